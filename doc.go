// Package litefetch makes a read-only SQLite catalog published as a static
// asset queryable from client code without a server of its own.
//
// A deployment publishes three things: a small JSON manifest, the database
// image (optionally compressed), and nothing else. litefetch resolves the
// manifest, loads the image (in parallel byte-range chunks when the host
// supports HTTP 206, or as one monolithic download when it does not), and
// opens it with a pure-Go sqlite engine. All queries flow through a result
// cache that deduplicates repeated requests and coalesces concurrent
// identical ones into a single execution.
//
// # Quick start
//
//	client, err := litefetch.Open("https://example.com/catalog/db-config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Search(ctx, query.FilterSet{
//	    Text:   "museum",
//	    Facets: map[string][]string{"prefecture": {"tokyo"}},
//	    Ranges: map[string]query.Range{"completion_year": {Min: 1990, Max: 2010}},
//	}, query.Sort{Column: "name"}, query.Page{Number: 1, Size: 12})
//
// Raw SQL goes through the same cache:
//
//	res, err := client.Query(ctx,
//	    "SELECT prefecture, COUNT(*) AS n FROM buildings GROUP BY prefecture")
//
// The engine bootstraps lazily on the first query and exactly once per
// session, however many goroutines ask for it. Health transitions
// (initializing, ready, degraded after a fallback, error) are observable
// via Status and OnStatusChange.
//
// Database images may live on plain HTTP(S) hosts, Amazon S3 (fetch/s3),
// MinIO-compatible stores (fetch/minio), or the local file system.
package litefetch
