// Package idempotency deduplicates non-idempotent requests by a
// client-supplied request identifier.
//
// Idempotency is opt-in per request: no key means the request proceeds and
// nothing is cached. When a key is supplied, the first response produced
// under it — success or failure alike — is recorded and replayed
// byte-for-byte to every later request carrying the same key, even when the
// underlying operation is non-deterministic or has side effects. Exactly one
// response is ever stored per key (first-writer-wins), and concurrent
// requests racing on a key before the first completes are coalesced: one of
// them executes, the rest wait and replay its response.
//
// The [Cache] backing the deduplication is injectable. [Memory] serves a
// single process; [StoreCache] keeps entries in the database (CBOR-encoded)
// so a multi-instance deployment shares one view. Entries carry a TTL so the
// cache cannot grow without bound.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Response is the replayable outcome of a request: the HTTP status and the
// exact body bytes the first handling produced.
type Response struct {
	Status int    `cbor:"1,keyasint"`
	Body   []byte `cbor:"2,keyasint"`
}

// Cache stores first responses by request key. Get reports (nil, false, nil)
// for a missing or expired key. Set must be first-writer-wins: a key that is
// already present keeps its original response.
type Cache interface {
	Get(ctx context.Context, key string) (*Response, bool, error)
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error
}

// Deduper combines a Cache with in-flight coalescing.
type Deduper struct {
	cache Cache
	ttl   time.Duration

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	resp *Response
	err  error
}

// NewDeduper wraps cache with per-key request coalescing. Entries written to
// the cache expire after ttl.
func NewDeduper(cache Cache, ttl time.Duration) *Deduper {
	return &Deduper{
		cache:    cache,
		ttl:      ttl,
		inflight: make(map[string]*flight),
	}
}

// Do executes fn at most once per key. An empty key disables deduplication
// entirely. The returned bool reports whether the response was replayed from
// an earlier request rather than produced by this one.
//
// Cache read failures fall through to executing fn: a broken cache degrades
// idempotency, it does not take request handling down with it.
func (d *Deduper) Do(ctx context.Context, key string, fn func() (*Response, error)) (*Response, bool, error) {
	if key == "" {
		resp, err := fn()
		return resp, false, err
	}

	if resp, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		return resp, true, nil
	}

	d.mu.Lock()
	if f, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		select {
		case <-f.done:
			return f.resp, true, f.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	d.inflight[key] = f
	d.mu.Unlock()

	resp, err := fn()
	if err == nil {
		// A store failure is not fatal; the response still goes out, only
		// replay protection is weakened.
		_ = d.cache.Set(ctx, key, resp, d.ttl)
	}

	f.resp, f.err = resp, err
	close(f.done)

	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()

	return resp, false, err
}
