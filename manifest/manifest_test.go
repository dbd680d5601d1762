package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestParse_Chunked(t *testing.T) {
	base := mustParse(t, "https://example.com/catalog/db-config.json")
	raw := []byte(`{
		"mode": "chunked",
		"chunkSizeBytes": 65536,
		"totalSizeBytes": 5242880,
		"databaseUrl": "catalog.db",
		"workerUrl": "sqlite.worker.js",
		"wasmUrl": "sql-wasm.wasm"
	}`)

	cfg, err := Parse(raw, base)
	require.NoError(t, err)

	assert.Equal(t, ModeChunked, cfg.Mode)
	assert.Equal(t, int64(65536), cfg.ChunkSize)
	assert.Equal(t, int64(5242880), cfg.TotalSize)
	assert.Equal(t, "https://example.com/catalog/catalog.db", cfg.DatabaseURL.String())
	assert.Equal(t, "https://example.com/catalog/sqlite.worker.js", cfg.WorkerURL.String())
	assert.Equal(t, "https://example.com/catalog/sql-wasm.wasm", cfg.WASMURL.String())
}

func TestParse_AssetBase(t *testing.T) {
	base := mustParse(t, "https://example.com/app/db-config.json")
	raw := []byte(`{
		"mode": "full",
		"assetBaseUrl": "/data/",
		"databaseUrl": "catalog.db"
	}`)

	cfg, err := Parse(raw, base)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/data/catalog.db", cfg.DatabaseURL.String())
}

func TestParse_RequestChunkSizeAlias(t *testing.T) {
	base := mustParse(t, "https://example.com/db-config.json")
	raw := []byte(`{"mode": "chunked", "requestChunkSize": 4096, "databaseUrl": "catalog.db"}`)

	cfg, err := Parse(raw, base)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), cfg.ChunkSize)
}

func TestParse_Errors(t *testing.T) {
	base := mustParse(t, "https://example.com/db-config.json")

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"not json", `{`, "not valid JSON"},
		{"unknown mode", `{"mode": "streaming", "databaseUrl": "x.db"}`, "unknown mode"},
		{"chunked without chunk size", `{"mode": "chunked", "databaseUrl": "x.db"}`, "chunkSizeBytes"},
		{"missing database url", `{"mode": "full"}`, "missing databaseUrl"},
		{"unknown compression", `{"mode": "full", "databaseUrl": "x.db", "compression": "brotli"}`, "unknown compression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw), base)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Error(), tt.reason)
		})
	}
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog/db-config.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"mode": "full", "databaseUrl": "catalog.db"}`))
	}))
	defer srv.Close()

	cfg, err := Resolve(context.Background(), srv.Client(), srv.URL+"/catalog/db-config.json")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, cfg.Mode)
	assert.Equal(t, srv.URL+"/catalog/catalog.db", cfg.DatabaseURL.String())
}

func TestResolve_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := Resolve(context.Background(), nil, srv.URL+"/db-config.json")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestResolve_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), srv.Client(), srv.URL+"/db-config.json")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "500")
}
