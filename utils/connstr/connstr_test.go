package connstr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		seeds, err := Parse("http://a:8081,b:8082/Northwind?fetch_timeout=5s&leader_wait_timeout=1m")
		require.NoError(t, err)

		assert.Equal(t, "http://a:8081", seeds.PrimaryURL)
		assert.Equal(t, []string{"http://b:8082"}, seeds.URLs)
		assert.Equal(t, "Northwind", seeds.Database)
		assert.Equal(t, 5*time.Second, seeds.FetchTimeout)
		assert.Equal(t, time.Minute, seeds.LeaderWaitTimeout)
	})

	t.Run("DefaultPorts", func(t *testing.T) {
		seeds, err := Parse("a,b")
		require.NoError(t, err)
		assert.Equal(t, "http://a:8080", seeds.PrimaryURL)
		assert.Equal(t, []string{"http://b:8080"}, seeds.URLs)
		assert.Empty(t, seeds.Database)

		seeds, err = Parse("https://secure.example.com")
		require.NoError(t, err)
		assert.Equal(t, "https://secure.example.com:443", seeds.PrimaryURL)
		assert.Empty(t, seeds.URLs)
	})

	t.Run("TLS", func(t *testing.T) {
		seeds, err := Parse("HTTPS://a:8443,b/Northwind?fetch_timeout=2s")
		require.NoError(t, err)
		assert.Equal(t, "https://a:8443", seeds.PrimaryURL)
		assert.Equal(t, []string{"https://b:443"}, seeds.URLs)
		assert.Equal(t, "Northwind", seeds.Database)
		assert.Equal(t, 2*time.Second, seeds.FetchTimeout)
	})

	t.Run("DuplicateSeeds", func(t *testing.T) {
		seeds, err := Parse("a,b,a:8080,b")
		require.NoError(t, err)
		assert.Equal(t, "http://a:8080", seeds.PrimaryURL)
		assert.Equal(t, []string{"http://b:8080"}, seeds.URLs)
	})

	t.Run("BadScheme", func(t *testing.T) {
		_, err := Parse("couchbase://a")
		require.Error(t, err)
	})

	t.Run("UnknownOption", func(t *testing.T) {
		_, err := Parse("http://a?frobnicate=1")
		require.Error(t, err)
	})

	t.Run("BadDuration", func(t *testing.T) {
		_, err := Parse("http://a?fetch_timeout=soon")
		require.Error(t, err)
	})
}
