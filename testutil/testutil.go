// Package testutil provides helpers for tests: building a small catalog
// database image and serving it the way a static host would, with or
// without byte-range support.
package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// Building is one catalog row for test fixtures.
type Building struct {
	Name           string
	Architect      string
	City           string
	Prefecture     string
	Category       string
	Structure      string
	CompletionYear int
	Floors         int
}

// DefaultBuildings is a small, stable fixture set.
func DefaultBuildings() []Building {
	return []Building{
		{"Tokyo Metropolitan Art Museum", "Kunio Maekawa", "Taito", "tokyo", "art", "rc", 1975, 2},
		{"Church of the Light", "Tadao Ando", "Ibaraki", "osaka", "religious", "rc", 1989, 1},
		{"Sendai Mediatheque", "Toyo Ito", "Sendai", "miyagi", "culture", "steel", 2001, 7},
		{"Nakagin Capsule Tower", "Kisho Kurokawa", "Chuo", "tokyo", "residential", "steel", 1972, 13},
		{"21st Century Museum", "SANAA", "Kanazawa", "ishikawa", "art", "steel", 2004, 1},
		{"Yokohama Museum of Art", "Kenzo Tange", "Yokohama", "kanagawa", "art", "rc", 1989, 3},
	}
}

// BuildCatalog creates a SQLite catalog image with the given rows and
// returns its bytes.
func BuildCatalog(t *testing.T, buildings []Building) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}

	const schema = `CREATE TABLE buildings (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		architect TEXT NOT NULL,
		city TEXT NOT NULL,
		prefecture TEXT NOT NULL,
		category TEXT NOT NULL,
		structure TEXT NOT NULL,
		completion_year INTEGER NOT NULL,
		floors INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	for _, b := range buildings {
		_, err := db.Exec(
			`INSERT INTO buildings (name, architect, city, prefecture, category, structure, completion_year, floors)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.Name, b.Architect, b.City, b.Prefecture, b.Category, b.Structure, b.CompletionYear, b.Floors,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", b.Name, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close catalog: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read catalog image: %v", err)
	}
	return data
}

// CatalogServer serves a manifest at /db-config.json and the catalog image
// at /catalog.db, mimicking a static deployment.
type CatalogServer struct {
	*httptest.Server

	// Ranges controls whether /catalog.db honors Range headers. When false
	// the full body is streamed regardless, like a host without 206 support.
	Ranges bool

	manifest map[string]any
	image    []byte

	// RangeRequests, FullRequests, and HeadRequests count image fetches by
	// kind.
	RangeRequests atomic.Int64
	FullRequests  atomic.Int64
	HeadRequests  atomic.Int64
	// ManifestRequests counts manifest fetches.
	ManifestRequests atomic.Int64
}

// ServeCatalog starts a CatalogServer for the given image. Extra manifest
// fields can be overlaid via overrides.
func ServeCatalog(t *testing.T, image []byte, mode string, chunkSize int64, ranges bool, overrides map[string]any) *CatalogServer {
	t.Helper()

	m := map[string]any{
		"mode":           mode,
		"databaseUrl":    "catalog.db",
		"totalSizeBytes": len(image),
	}
	if chunkSize > 0 {
		m["chunkSizeBytes"] = chunkSize
	}
	for k, v := range overrides {
		m[k] = v
	}

	cs := &CatalogServer{Ranges: ranges, manifest: m, image: image}
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.Server.Close)
	return cs
}

// ManifestURL returns the manifest location.
func (cs *CatalogServer) ManifestURL() string {
	return cs.Server.URL + "/db-config.json"
}

func (cs *CatalogServer) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/db-config.json":
		cs.ManifestRequests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cs.manifest)
	case "/catalog.db":
		switch {
		case r.Method == http.MethodHead:
			cs.HeadRequests.Add(1)
		case r.Header.Get("Range") != "" && cs.Ranges:
			cs.RangeRequests.Add(1)
		default:
			cs.FullRequests.Add(1)
		}
		if cs.Ranges {
			http.ServeContent(w, r, "catalog.db", time.Time{}, bytes.NewReader(cs.image))
			return
		}
		_, _ = w.Write(cs.image)
	default:
		http.Error(w, fmt.Sprintf("no such asset %s", r.URL.Path), http.StatusNotFound)
	}
}
