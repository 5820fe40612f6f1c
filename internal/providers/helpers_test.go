package providers

import (
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/tkorpela/bookdex/internal/cache"
)

// newIPv4TestServer starts a test server bound to IPv4 loopback to avoid IPv6 listener issues.
func newIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()

	t.Cleanup(server.Close)
	return server
}

// setupCache points the global cache at a throwaway database so cached
// lookups in one test never leak into another.
func setupCache(t *testing.T) {
	t.Helper()

	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))
	t.Cleanup(func() {
		_ = cache.ResetGlobal()
		viper.Set("cache.dbfile", "")
	})
	require.NoError(t, cache.ResetGlobal())
}

// testOptions returns provider options pointed at a stub server with a
// rate generous enough that tests never block on the limiter.
func testOptions(server *httptest.Server) Options {
	return Options{BaseURL: server.URL, Rate: 1000}
}
