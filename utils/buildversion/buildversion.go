// Package buildversion extracts the version of a module from the build
// information embedded in the running binary.
package buildversion

import (
	"runtime/debug"

	"golang.org/x/mod/semver"
)

const DevVersion = "v0.0.0-dev"

var readBuildInfo = debug.ReadBuildInfo

// GetVersion returns the version of modPath linked into this binary.  The
// main module is checked first, then dependencies.  Anything which is not a
// valid semantic version (such as "(devel)") yields DevVersion.
func GetVersion(modPath string) string {
	info, ok := readBuildInfo()
	if !ok {
		return DevVersion
	}

	if info.Main.Path == modPath {
		return canonicalVersion(info.Main.Version)
	}

	for _, dep := range info.Deps {
		if dep.Path != modPath {
			continue
		}

		if dep.Replace != nil && dep.Replace.Version != "" {
			return canonicalVersion(dep.Replace.Version)
		}
		return canonicalVersion(dep.Version)
	}

	return DevVersion
}

func canonicalVersion(version string) string {
	if !semver.IsValid(version) {
		return DevVersion
	}

	// keep any build metadata, semver.Canonical would strip it
	if semver.Build(version) != "" {
		return version
	}
	return semver.Canonical(version)
}
