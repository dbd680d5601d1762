package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"slices"

	// Registers the pure-Go sqlite driver. If a build strips this import the
	// capability probe in openDatabase reports a ContractError instead of a
	// cryptic "unknown driver" at first query.
	_ "modernc.org/sqlite"

	"github.com/hupe1980/litefetch/fetch"
)

const driverName = "sqlite"

// Raw is the engine's native tabular result: parallel column and row-value
// arrays, the same shape the browser client's worker protocol uses on the
// wire. The Executor normalizes it into row maps.
type Raw struct {
	Columns []string
	Values  [][]any
}

// Handle is the single live reference to an initialized SQL engine. Exactly
// one Handle exists per session, owned by the Bootstrapper; everything else
// only borrows it.
type Handle interface {
	// Exec runs one statement with positional parameter binding and returns
	// the native tabular result.
	Exec(ctx context.Context, sqlText string, params []any) (*Raw, error)
	// Close releases the engine and its spooled database file.
	Close() error
}

// openDatabase opens the spooled image read-only after probing that the
// sqlite driver is actually registered.
func openDatabase(path string) (*sql.DB, error) {
	if !slices.Contains(sql.Drivers(), driverName) {
		return nil, &ContractError{Missing: fmt.Sprintf("sql driver %q is not registered", driverName)}
	}

	db, err := sql.Open(driverName, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	// The dataset is read-only and queries are short; a single connection
	// keeps the worker protocol's one-at-a-time semantics honest.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// runQuery executes one statement and collects the native result. All
// engine-level failures come back as *QueryError.
func runQuery(ctx context.Context, db *sql.DB, sqlText string, params []any) (*Raw, error) {
	rows, err := db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, &QueryError{SQL: sqlText, Params: params, cause: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{SQL: sqlText, Params: params, cause: err}
	}

	values := make([][]any, 0, 16)
	for rows.Next() {
		row := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{SQL: sqlText, Params: params, cause: err}
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: sqlText, Params: params, cause: err}
	}

	return &Raw{Columns: columns, Values: values}, nil
}

// directHandle is the in-process engine used by the full-download path.
type directHandle struct {
	db    *sql.DB
	spool string
}

func (h *directHandle) Exec(ctx context.Context, sqlText string, params []any) (*Raw, error) {
	return runQuery(ctx, h.db, sqlText, params)
}

func (h *directHandle) Close() error {
	err := h.db.Close()
	if h.spool != "" {
		if rmErr := os.Remove(h.spool); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// spoolFull downloads the entire image into a temp file, decompressing if
// the manifest declared a codec, and returns the spool path.
func spoolFull(ctx context.Context, src fetch.Source, compression, dir string) (string, error) {
	if bulk, ok := src.(fetch.BulkDownloader); ok && compression == "" {
		f, err := os.CreateTemp(dir, "litefetch-*.db")
		if err != nil {
			return "", err
		}
		if _, err := bulk.DownloadTo(ctx, f); err != nil {
			cleanupSpool(f)
			return "", err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return "", err
		}
		return f.Name(), nil
	}

	body, err := src.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	defer body.Close()

	plain, err := fetch.Decompress(compression, body)
	if err != nil {
		return "", err
	}
	defer plain.Close()

	f, err := os.CreateTemp(dir, "litefetch-*.db")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, plain); err != nil {
		cleanupSpool(f)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// decompressSpool rewrites a compressed spool file into a plain one and
// removes the compressed original.
func decompressSpool(path, compression, dir string) (string, error) {
	if compression == "" {
		return path, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	plain, err := fetch.Decompress(compression, in)
	if err != nil {
		return "", err
	}
	defer plain.Close()

	out, err := os.CreateTemp(dir, "litefetch-*.db")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, plain); err != nil {
		cleanupSpool(out)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	_ = os.Remove(path)
	return out.Name(), nil
}

func cleanupSpool(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
