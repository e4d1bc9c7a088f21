package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstream(t *testing.T, priceStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/price/"):
			w.WriteHeader(priceStatus)
			_, _ = w.Write([]byte(`{"price": 180.5}`))
		case r.URL.Path == "/new-trending":
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	body := fmt.Sprintf(`app:
  log_level: error
pricing:
  base_url: %[1]s
axiom:
  trend_base_url: %[1]s
  detail_base_url: %[1]s
`, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_Success(t *testing.T) {
	srv := newUpstream(t, http.StatusOK)
	assert.Equal(t, 0, run(writeConfig(t, srv.URL), 5*time.Second))
}

func TestRun_StalePriceReturnsFailureCode(t *testing.T) {
	srv := newUpstream(t, http.StatusBadGateway)
	assert.Equal(t, 1, run(writeConfig(t, srv.URL), 5*time.Second))
}

func TestRun_MissingConfig(t *testing.T) {
	assert.Equal(t, 1, run(filepath.Join(t.TempDir(), "missing.yaml"), time.Second))
}
