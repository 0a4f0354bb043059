// Package market is the Market Cache (C1): the canonical in-memory
// view of live market quotes, updated from ingestion snapshots and
// served to the detector as atomic, versioned price views.
//
// Structurally this generalizes the teacher's mutex-protected
// BookSnapshot map (internal/feed/feed.go) from a single Polymarket
// orderbook shape to the cents/ticker domain model, and adds the
// monotonic-version and copy-on-read guarantees spec.md §4.1 asks
// for that the teacher's feed did not need.
package market

import (
	"errors"
	"sync"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
)

var (
	ErrUnknownTicker = errors.New("market: unknown ticker")
	ErrStaleMarket   = errors.New("market: not open")
)

// Cache holds the latest known Market per ticker. All reads return
// copies; callers never observe a record mid-update.
type Cache struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
	events  map[string]domain.Event
}

func NewCache() *Cache {
	return &Cache{
		markets: make(map[string]domain.Market),
		events:  make(map[string]domain.Event),
	}
}

// Apply ingests one market snapshot. Snapshots are append-at-
// monotonic-timestamp: a snapshot whose LastUpdate is not after the
// currently stored one is dropped, so an out-of-order delivery from
// the ingestion adapter can never regress the cache.
func (c *Cache) Apply(m domain.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.markets[m.Ticker]
	if ok && !m.LastUpdate.After(existing.LastUpdate) {
		return
	}
	m.Version = existing.Version + 1
	c.markets[m.Ticker] = m
}

// ApplyEvent registers or replaces an event's ticker grouping.
func (c *Cache) ApplyEvent(e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[e.Key] = e
}

// Get returns a copy of the named market.
func (c *Cache) Get(ticker string) (domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[ticker]
	if !ok {
		return domain.Market{}, ErrUnknownTicker
	}
	return m, nil
}

// Event returns the tickers grouped under key.
func (c *Cache) Event(key string) (domain.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.events[key]
	return e, ok
}

// PriceView is an atomic snapshot of a set of tickers' quotes, all
// read from one coherent point in time: no market in the returned set
// can have been updated between the first and last read, because the
// whole read happens under a single RLock and every stored Market is
// itself immutable once placed in the map (Apply always inserts a
// fresh copy rather than mutating in place).
type PriceView struct {
	Markets map[string]domain.Market
	TakenAt time.Time
}

// Quote looks up one ticker's quote within the view.
func (v PriceView) Quote(ticker string) (domain.Quote, bool) {
	m, ok := v.Markets[ticker]
	if !ok {
		return domain.Quote{}, false
	}
	return m.Quote, true
}

// PriceView returns a consistent snapshot of exactly the requested
// tickers. Tickers whose market is not open are still returned (the
// caller — the detector — must check Status and treat non-open
// markets as invalidating the relationship), but a ticker absent from
// the cache entirely yields ErrUnknownTicker.
func (c *Cache) PriceView(tickers []string) (PriceView, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.Market, len(tickers))
	for _, t := range tickers {
		m, ok := c.markets[t]
		if !ok {
			return PriceView{}, ErrUnknownTicker
		}
		out[t] = m
	}
	return PriceView{Markets: out, TakenAt: time.Now()}, nil
}

// AllOpenTickers returns every ticker currently marked open, for the
// catalog's structural-validity sweep.
func (c *Cache) AllOpenTickers() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.markets))
	for t, m := range c.markets {
		if m.Status == domain.MarketOpen {
			out[t] = true
		}
	}
	return out
}

// Fingerprint returns the current settlement-rules fingerprint for a
// ticker, used by the catalog to detect semantic drift.
func (c *Cache) Fingerprint(ticker string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[ticker]
	if !ok {
		return "", ErrUnknownTicker
	}
	return m.RulesFingerprint, nil
}
