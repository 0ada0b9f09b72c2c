// Package quotecache implements L1: the canonical mapping from RIC to
// latest quote, plus the reference-counted subscription handle table
// against the upstream feed. QuoteCache exclusively owns both the quote
// map and the handle table; no other package mutates them.
package quotecache

import (
	"fmt"
	"sync"

	"github.com/reservoir-data/marketdata-core/go/marketdata"
)

// HandleRegistrar is the small capability QuoteCache needs from whatever
// drives the upstream feed (in practice, *feed.Adapter). Defining it here,
// rather than importing the feed package, keeps the dependency direction
// pointing the way spec.md §2's layering requires: L3 depends on L1, not
// the reverse.
type HandleRegistrar interface {
	// Register opens (or confirms) an upstream subscription for ric and
	// returns an opaque handle identifying it.
	Register(ric marketdata.RIC) (Handle, error)
	// Release closes the upstream subscription identified by handle.
	Release(handle Handle) error
}

// Handle is an opaque token identifying one open upstream subscription.
type Handle interface{}

type entry struct {
	quote    marketdata.Quote
	hasQuote bool
	handle   Handle
	refcount int
}

// Cache is the L1 quote cache and subscription handle table.
type Cache struct {
	registrar HandleRegistrar

	mu      sync.RWMutex
	entries map[marketdata.RIC]*entry
}

// New builds a Cache that opens and releases upstream handles through registrar.
func New(registrar HandleRegistrar) *Cache {
	return &Cache{
		registrar: registrar,
		entries:   make(map[marketdata.RIC]*entry),
	}
}

// PutLatest replaces the latest quote for ric atomically. Last-writer-wins;
// no ordering across RICs is guaranteed. PutLatest never fails: a write for
// a RIC with no open handle simply creates an entry with a zero refcount so a
// stray message before subscribe-confirmation isn't lost, matching the
// cache's role as a pure store (subscription lifecycle is tracked
// separately by the refcount, not by presence in the map).
func (c *Cache) PutLatest(ric marketdata.RIC, q marketdata.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ric]
	if !ok {
		e = &entry{}
		c.entries[ric] = e
	}
	e.quote = q
	e.hasQuote = true
}

// GetLatest returns the latest quote for every RIC in rics that is
// currently present; missing RICs are omitted, never mapped to a
// placeholder.
func (c *Cache) GetLatest(rics []marketdata.RIC) map[marketdata.RIC]marketdata.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[marketdata.RIC]marketdata.Quote, len(rics))
	for _, r := range rics {
		if e, ok := c.entries[r]; ok && e.hasQuote {
			out[r] = e.quote
		}
	}
	return out
}

// OpenHandle ensures an upstream handle exists for ric; idempotent at the
// feed level (a second call merely increments the refcount).
func (c *Cache) OpenHandle(ric marketdata.RIC) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ric]
	if !ok {
		e = &entry{}
		c.entries[ric] = e
	}
	if e.refcount == 0 {
		h, err := c.registrar.Register(ric)
		if err != nil {
			return fmt.Errorf("opening handle for %s: %w", ric, err)
		}
		e.handle = h
	}
	e.refcount++
	return nil
}

// CloseHandle decrements the refcount for ric; on reaching zero it releases
// the upstream handle and evicts ric from the cache. On release failure the
// refcount is restored to its pre-call value, so a reader never observes a
// RIC as unsubscribed when the upstream release did not actually happen.
func (c *Cache) CloseHandle(ric marketdata.RIC) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ric]
	if !ok || e.refcount == 0 {
		return nil
	}

	e.refcount--
	if e.refcount > 0 {
		return nil
	}

	if err := c.registrar.Release(e.handle); err != nil {
		e.refcount++
		return fmt.Errorf("releasing handle for %s: %w", ric, err)
	}
	delete(c.entries, ric)
	return nil
}

// Subscribed returns a snapshot of the RICs with a positive refcount.
func (c *Cache) Subscribed() []marketdata.RIC {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]marketdata.RIC, 0, len(c.entries))
	for ric, e := range c.entries {
		if e.refcount > 0 {
			out = append(out, ric)
		}
	}
	return out
}
