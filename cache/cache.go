// Package cache memoizes query results and coalesces concurrent identical
// requests, so re-rendering feature code never sends the same statement to
// the engine twice.
//
// Entries are keyed by a canonical, type-aware serialization of the request:
// an int64 5 and a string "5" are different keys. The dataset is read-only
// for the lifetime of a session, so entries are never invalidated by writes;
// they age out by insertion order beyond a fixed capacity or by absolute
// expiry, checked lazily on access.
package cache

import (
	"container/list"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/litefetch/query"
)

const (
	// DefaultCapacity is the default maximum number of cached results.
	DefaultCapacity = 50
	// DefaultTTL is the default absolute entry lifetime.
	DefaultTTL = 5 * time.Minute
)

// ExecFunc is the underlying execution the cache wraps.
type ExecFunc func(ctx context.Context, req query.Request) (query.Result, error)

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity overrides the entry capacity.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithTTL overrides the absolute entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// Cache wraps an ExecFunc with memoization and request coalescing.
type Cache struct {
	exec     ExecFunc
	capacity int
	ttl      time.Duration
	group    singleflight.Group
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	// order tracks insertion order: newest at the front, eviction from the
	// back. Entries are never promoted on access, so eviction is
	// least-recently-inserted, not least-recently-used.
	order *list.List
}

type entry struct {
	key        string
	result     query.Result
	insertedAt time.Time
	elem       *list.Element
}

// New creates a Cache over exec.
func New(exec ExecFunc, opts ...Option) *Cache {
	c := &Cache{
		exec:     exec,
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
		entries:  make(map[string]*entry),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute returns the cached result for req, or runs it exactly once.
//
// Concurrent calls with the same key while an execution is in flight all
// join that execution. Failed executions are not cached; the next call
// retries.
func (c *Cache) Execute(ctx context.Context, req query.Request) (query.Result, error) {
	key := Key(req)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.insertedAt) < c.ttl {
			res := e.result
			c.mu.Unlock()
			return res, nil
		}
		c.removeLocked(e)
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.exec(ctx, req)
		if err != nil {
			return query.Result{}, err
		}
		c.insert(key, res)
		return res, nil
	})
	if err != nil {
		return query.Result{}, err
	}
	return v.(query.Result), nil
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) insert(key string, res query.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		// A concurrent flight for an expired entry re-inserted first.
		c.removeLocked(e)
	}

	e := &entry{key: key, result: res, insertedAt: c.now()}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

// Key computes the canonical cache key for a request: the length-framed SQL
// text plus an order-preserving, type-tagged serialization of the
// parameters. Free-form values (the SQL itself, string parameters) carry a
// length prefix so embedded separator bytes cannot alias a value boundary.
func Key(req query.Request) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(req.SQL)))
	sb.WriteByte(':')
	sb.WriteString(req.SQL)
	for _, p := range req.Params {
		sb.WriteByte(0x1f)
		encodeParam(&sb, p)
	}
	return sb.String()
}

func encodeParam(sb *strings.Builder, p any) {
	switch v := p.(type) {
	case nil:
		sb.WriteString("nil")
	case string:
		sb.WriteString("s:")
		sb.WriteString(strconv.Itoa(len(v)))
		sb.WriteByte(':')
		sb.WriteString(v)
	case bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(v))
	case int:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int8:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int16:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(v, 10))
	case uint:
		sb.WriteString("u:")
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		sb.WriteString("u:")
		sb.WriteString(strconv.FormatUint(v, 10))
	case float32:
		sb.WriteString("f:")
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case float64:
		sb.WriteString("f:")
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case []byte:
		sb.WriteString("x:")
		sb.WriteString(hex.EncodeToString(v))
	case time.Time:
		sb.WriteString("t:")
		sb.WriteString(v.UTC().Format(time.RFC3339Nano))
	default:
		s := fmt.Sprintf("%v", v)
		fmt.Fprintf(sb, "%T:%d:%s", v, len(s), s)
	}
}
