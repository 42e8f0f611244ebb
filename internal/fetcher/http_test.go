package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFetcher(t *testing.T, handler http.HandlerFunc) *HTTPFetcher {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPFetcher(server.URL, map[string]string{
		"products": "/api/products",
		"pricing":  "/api/pricing/steps",
	}, 5*time.Second)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("collection fetch for identifier all", func(t *testing.T) {
		var gotPath string
		f := setupFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte(`[{"id":"p1"}]`))
		})

		data, err := f.Fetch(ctx, "products", "all", nil)
		require.NoError(t, err)
		assert.Equal(t, "/api/products", gotPath)
		assert.JSONEq(t, `[{"id":"p1"}]`, string(data))
	})

	t.Run("single-item fetch appends the identifier", func(t *testing.T) {
		var gotPath string
		f := setupFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte(`{"id":"p1"}`))
		})

		_, err := f.Fetch(ctx, "products", "p1", nil)
		require.NoError(t, err)
		assert.Equal(t, "/api/products/p1", gotPath)
	})

	t.Run("params become query parameters", func(t *testing.T) {
		var gotQuery string
		f := setupFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			w.Write([]byte(`[]`))
		})

		_, err := f.Fetch(ctx, "products", "all", map[string]interface{}{"state": "CA"})
		require.NoError(t, err)
		assert.Equal(t, "state=CA", gotQuery)
	})

	t.Run("404 yields no data and no error", func(t *testing.T) {
		f := setupFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		data, err := f.Fetch(ctx, "products", "missing", nil)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("server error surfaces", func(t *testing.T) {
		f := setupFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := f.Fetch(ctx, "products", "all", nil)
		assert.Error(t, err)
	})

	t.Run("unconfigured operation is an error", func(t *testing.T) {
		f := setupFetcher(t, func(w http.ResponseWriter, r *http.Request) {})

		_, err := f.Fetch(ctx, "widgets", "all", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no endpoint configured")
	})
}
