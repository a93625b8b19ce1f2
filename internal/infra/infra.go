// Package infra provides shared infrastructure components used across
// the application: a TTL cache with request collapsing, outbound request
// pacing and HTTP helpers.
package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// --- TTL cache ---

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// DefaultLoadTimeout bounds a shared GetOrLoad load.
const DefaultLoadTimeout = time.Minute

// Cache is a thread-safe in-memory cache with a fixed TTL. Entries only
// leave the cache by expiring or by Flush; there is no size bound.
// A Cache with a zero TTL stores nothing.
type Cache[V any] struct {
	mu          sync.RWMutex
	entries     map[string]cacheEntry[V]
	ttl         time.Duration
	group       singleflight.Group
	loadTimeout time.Duration
	now         func() time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries:     make(map[string]cacheEntry[V]),
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
	}
}

// SetLoadTimeout changes the deadline of shared loads. Zero or negative
// keeps the current value.
func (c *Cache[V]) SetLoadTimeout(d time.Duration) {
	if d > 0 {
		c.loadTimeout = d
	}
}

// Enabled reports whether the cache stores anything.
func (c *Cache[V]) Enabled() bool { return c != nil && c.ttl > 0 }

// TTL returns the entry lifetime.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Get returns a live entry.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if !c.Enabled() {
		return zero, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key or calls load once, even when
// several goroutines ask for the same key at the same time. Errors are not
// cached.
//
// The shared load runs on a context detached from ctx's cancellation and
// bounded by the load timeout, so one caller giving up does not fail the
// others. A caller whose ctx ends stops waiting and gets ctx.Err().
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if c == nil {
		return safeLoad(ctx, load)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		v, err := safeLoad(lctx, load)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		out, _ := res.Val.(V)
		return out, res.Err
	}
}

// safeLoad turns a panic in load into an error; DoChan cannot recover it.
func safeLoad[V any](ctx context.Context, load func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache load panicked: %v", r)
		}
	}()
	return load(ctx)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush removes all entries.
func (c *Cache[V]) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}

// Cleanup removes expired entries. Can be called periodically.
func (c *Cache[V]) Cleanup() {
	if c == nil {
		return
	}
	c.mu.Lock()
	now := c.now()
	for k, v := range c.entries {
		if !now.Before(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// --- Request pacing ---

// NewLimiter returns a limiter allowing perSecond requests with a burst of
// one, or nil when perSecond is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Wait blocks on l until a request may proceed. A nil limiter never blocks.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

// --- HTTP ---

// DefaultUserAgent is sent with every outbound request. Yahoo rejects the
// Go default agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Get performs a GET and returns the body. The caller closes it.
func Get(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	return resp.Body, nil
}
