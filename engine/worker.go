package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/hupe1980/litefetch/fetch"
)

// The worker mirrors the browser client's worker protocol: an init phase
// that ends with a ready (or error) signal, then a request loop serving one
// exec message at a time. Correlation is by per-request reply channel, so
// concurrent workers later would need no protocol change.

type execRequest struct {
	sql    string
	params []any
	reply  chan execReply
}

type execReply struct {
	raw *Raw
	err error
}

type workerConfig struct {
	source      fetch.Source
	chunkSize   int64
	compression string
	spoolDir    string
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// worker owns the chunked-mode engine: it spools the image via parallel
// range requests, opens the database, and serves exec requests until closed.
type worker struct {
	requests chan execRequest
	ready    chan error
	// done is closed when the run loop exits for any reason. A closed done
	// with pending requests means the engine binding is gone, which callers
	// surface as a ContractError.
	done   chan struct{}
	cancel context.CancelFunc
}

// startWorker launches the worker goroutine. The caller must await exactly
// one value on ready before sending requests.
func startWorker(cfg workerConfig) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		requests: make(chan execRequest),
		ready:    make(chan error, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go w.run(ctx, cfg)
	return w
}

func (w *worker) run(ctx context.Context, cfg workerConfig) {
	defer close(w.done)

	db, spool, err := w.init(ctx, cfg)
	w.ready <- err
	if err != nil {
		return
	}
	defer func() {
		_ = db.Close()
		_ = os.Remove(spool)
	}()

	for {
		select {
		case req := <-w.requests:
			// Queries run against the worker's own context: once issued, a
			// query runs to completion even if the requester gave up.
			raw, execErr := runQuery(ctx, db, req.sql, req.params)
			req.reply <- execReply{raw: raw, err: execErr}
		case <-ctx.Done():
			return
		}
	}
}

func (w *worker) init(ctx context.Context, cfg workerConfig) (*sql.DB, string, error) {
	f, err := os.CreateTemp(cfg.spoolDir, "litefetch-*.db")
	if err != nil {
		return nil, "", err
	}

	d := &fetch.Downloader{
		ChunkSize:   cfg.chunkSize,
		Concurrency: cfg.concurrency,
		Limiter:     cfg.limiter,
	}
	size, err := d.Download(ctx, cfg.source, f)
	if err != nil {
		cleanupSpool(f)
		return nil, "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, "", err
	}

	spool, err := decompressSpool(f.Name(), cfg.compression, cfg.spoolDir)
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, "", err
	}

	db, err := openDatabase(spool)
	if err != nil {
		_ = os.Remove(spool)
		return nil, "", err
	}

	if cfg.logger != nil {
		cfg.logger.Debug("chunked engine ready",
			slog.String("source", cfg.source.URL()),
			slog.Int64("bytes", size),
			slog.Int64("chunk_size", cfg.chunkSize))
	}
	return db, spool, nil
}

// close shuts the worker down and releases its database and spool file.
func (w *worker) close() {
	w.cancel()
	<-w.done
}

// workerHandle adapts the worker's message protocol to the Handle interface.
type workerHandle struct {
	w *worker
}

func (h *workerHandle) Exec(ctx context.Context, sqlText string, params []any) (*Raw, error) {
	req := execRequest{sql: sqlText, params: params, reply: make(chan execReply, 1)}

	select {
	case h.w.requests <- req:
	case <-h.w.done:
		return nil, &ContractError{Missing: "engine worker exited before accepting the request"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.raw, rep.err
	case <-h.w.done:
		return nil, &ContractError{Missing: "engine worker exited while serving the request"}
	}
}

func (h *workerHandle) Close() error {
	h.w.close()
	return nil
}
