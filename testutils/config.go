package testutils

import (
	"os"
	"strings"
	"testing"
)

type Config struct {
	EtcdEndpoints []string
	ClusterURL    string
}

var globalTestConfig *Config

// GetTestConfig reads the optional integration targets from the environment.
// Tests which need one of them skip themselves when it is unset.
func GetTestConfig(t *testing.T) *Config {
	if globalTestConfig == nil {
		testConfig := &Config{}

		envEtcd := os.Getenv("LDRTEST_ETCD_ENDPOINTS")
		if envEtcd != "" {
			testConfig.EtcdEndpoints = strings.Split(envEtcd, ",")
		}

		envCluster := os.Getenv("LDRTEST_CLUSTER_URL")
		if envCluster != "" {
			testConfig.ClusterURL = envCluster
		}

		t.Logf("initialized test configuration")
		t.Logf("  etcd endpoints: %v", testConfig.EtcdEndpoints)
		t.Logf("  cluster url: %s", testConfig.ClusterURL)

		globalTestConfig = testConfig
	}

	return globalTestConfig
}
