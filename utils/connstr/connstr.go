// Package connstr parses cluster seed connection strings of the form
// http://host1:8080,host2:8080/Database?fetch_timeout=5s.
package connstr

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/couchbaselabs/gocbconnstr"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/krptodr/ravendb/utils/sliceutils"
)

const (
	DefaultHTTPPort  = 8080
	DefaultHTTPSPort = 443

	httpsPrefix = "https://"
)

type Seeds struct {
	// PrimaryURL is the first address in the string.
	PrimaryURL string

	// URLs are the remaining addresses, in order.
	URLs []string

	Database string

	FetchTimeout      time.Duration
	LeaderWaitTimeout time.Duration
}

func Parse(connStr string) (*Seeds, error) {
	// gocbconnstr only knows the http scheme, so tls is tracked separately
	useTLS := false
	if len(connStr) >= len(httpsPrefix) && strings.EqualFold(connStr[:len(httpsPrefix)], httpsPrefix) {
		useTLS = true
		connStr = "http://" + connStr[len(httpsPrefix):]
	}

	spec, err := gocbconnstr.Parse(connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse connection string")
	}

	switch spec.Scheme {
	case "", "http":
	default:
		return nil, fmt.Errorf("unsupported connection string scheme %q", spec.Scheme)
	}

	scheme := "http"
	defaultPort := DefaultHTTPPort
	if useTLS {
		scheme = "https"
		defaultPort = DefaultHTTPSPort
	}

	if len(spec.Addresses) == 0 {
		return nil, errors.New("connection string contains no addresses")
	}

	seeds := &Seeds{
		Database: spec.Bucket,
	}

	for addrIdx, addr := range spec.Addresses {
		if addr.Host == "" {
			return nil, fmt.Errorf("address %d has no host", addrIdx)
		}

		port := addr.Port
		if port <= 0 {
			port = defaultPort
		}

		url := scheme + "://" + net.JoinHostPort(addr.Host, strconv.Itoa(port))
		if addrIdx == 0 {
			seeds.PrimaryURL = url
		} else {
			seeds.URLs = append(seeds.URLs, url)
		}
	}

	seeds.URLs = sliceutils.RemoveDuplicates(seeds.URLs)
	seeds.URLs = slices.DeleteFunc(seeds.URLs, func(url string) bool {
		return url == seeds.PrimaryURL
	})

	for name, values := range spec.Options {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]

		switch name {
		case "fetch_timeout":
			seeds.FetchTimeout, err = time.ParseDuration(value)
		case "leader_wait_timeout":
			seeds.LeaderWaitTimeout, err = time.ParseDuration(value)
		default:
			return nil, fmt.Errorf("unknown connection string option %q", name)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", name)
		}
	}

	return seeds, nil
}
