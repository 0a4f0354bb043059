// Package catalog is the Relationship Catalog (C2): structural
// validation and lifecycle management of typed constraints over
// market tickers.
//
// The periodic revalidation sweep (Run/Sync) follows the same
// ticker-driven background-worker shape as the teacher's
// internal/builder/tracker.go VolumeTracker, generalized from an
// external volume sync to an external relationship-revalidation call.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/logging"
	"github.com/kalshi-arb/arbcore/internal/market"
	"go.uber.org/zap"
)

var (
	ErrMalformed             = errors.New("catalog: malformed relationship")
	ErrDuplicateForSameTickers = errors.New("catalog: relationship already exists for these tickers")
)

// Revalidator is the narrow interface to the external relationship
// source (an LLM or a human curator) used to refresh confidence and
// validity. The catalog never interprets relationship semantics
// itself.
type Revalidator interface {
	Revalidate(ctx context.Context, r domain.Relationship, titles map[string]string) (stillValid bool, newConfidence float64, err error)
}

// Catalog stores relationships keyed by ID, with a canonical-key index
// for dedupe.
type Catalog struct {
	mu          sync.RWMutex
	byID        map[string]domain.Relationship
	byCanonical map[string]string // canonical key -> ID

	cache       *market.Cache
	revalidator Revalidator
	log         *zap.Logger

	confidenceFloor float64
	revalidateEvery time.Duration
}

func New(cache *market.Cache, revalidator Revalidator, confidenceFloor float64, revalidateEvery time.Duration, log *zap.Logger) *Catalog {
	return &Catalog{
		byID:            make(map[string]domain.Relationship),
		byCanonical:     make(map[string]string),
		cache:           cache,
		revalidator:     revalidator,
		log:             log,
		confidenceFloor: confidenceFloor,
		revalidateEvery: revalidateEvery,
	}
}

// Upsert validates structural well-formedness and stores the
// relationship, fingerprinting each involved ticker's current
// settlement rules.
func (c *Catalog) Upsert(r domain.Relationship) (domain.Relationship, error) {
	if err := validateStructure(r); err != nil {
		return domain.Relationship{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := r.CanonicalKey()
	if prev, ok := c.byID[r.ID]; ok && prev.Status == domain.RelationInvalid {
		return domain.Relationship{}, fmt.Errorf("catalog: relationship %s was invalidated", r.ID)
	}
	if existingID, ok := c.byCanonical[key]; ok && existingID != r.ID && c.byID[existingID].Status != domain.RelationInvalid {
		return domain.Relationship{}, fmt.Errorf("%w: %s", ErrDuplicateForSameTickers, key)
	}

	fingerprints := make(map[string]string, len(r.Tickers))
	for _, t := range r.Tickers {
		fp, err := c.cache.Fingerprint(t)
		if err != nil {
			return domain.Relationship{}, fmt.Errorf("catalog: fingerprint %s: %w", t, err)
		}
		fingerprints[t] = fp
	}

	now := time.Now()
	r.Fingerprints = fingerprints
	r.Status = domain.RelationActive
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.LastValidatedAt = now

	c.byID[r.ID] = r
	c.byCanonical[key] = r.ID
	return r, nil
}

func validateStructure(r domain.Relationship) error {
	min := r.Kind.MinTickers()
	if min == 0 {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, r.Kind)
	}
	if len(r.Tickers) < min {
		return fmt.Errorf("%w: %s requires >= %d tickers, got %d", ErrMalformed, r.Kind, min, len(r.Tickers))
	}
	seen := make(map[string]bool, len(r.Tickers))
	for _, t := range r.Tickers {
		if t == "" {
			return fmt.Errorf("%w: empty ticker", ErrMalformed)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate ticker %s within relationship", ErrMalformed, t)
		}
		seen[t] = true
	}
	if r.Kind == domain.KindImplication && (r.Kappa < 0 || r.Kappa > 1) {
		return fmt.Errorf("%w: kappa must be within [0,1], got %f", ErrMalformed, r.Kappa)
	}
	return nil
}

// Invalidate marks a relationship terminal. It is never re-activated;
// a later Upsert with the same tickers creates a fresh relationship.
func (c *Catalog) Invalidate(id, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[id]
	if !ok {
		return
	}
	r.Status = domain.RelationInvalid
	r.InvalidReason = reason
	c.byID[id] = r
}

// Active returns relationships that are structurally active, whose
// involved markets are all open, and whose fingerprints still match
// the cache, and whose confidence is at or above the configured
// floor. A mismatch is a hard invalidation, independent of whether a
// revalidation sweep has run yet.
func (c *Catalog) Active() []domain.Relationship {
	c.mu.Lock()
	defer c.mu.Unlock()

	openTickers := c.cache.AllOpenTickers()

	out := make([]domain.Relationship, 0, len(c.byID))
	for id, r := range c.byID {
		if r.Status != domain.RelationActive {
			continue
		}
		if r.Confidence < c.confidenceFloor {
			continue
		}
		if !c.allOpenAndFresh(r, openTickers) {
			r.Status = domain.RelationInvalid
			r.InvalidReason = "market closed or settlement rules changed"
			c.byID[id] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *Catalog) allOpenAndFresh(r domain.Relationship, openTickers map[string]bool) bool {
	for _, t := range r.Tickers {
		if !openTickers[t] {
			return false
		}
		fp, err := c.cache.Fingerprint(t)
		if err != nil || fp != r.Fingerprints[t] {
			return false
		}
	}
	return true
}

// StaleForRevalidation returns relationships whose last validation is
// older than the configured interval.
func (c *Catalog) StaleForRevalidation(now time.Time) []domain.Relationship {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Relationship
	for _, r := range c.byID {
		if r.Status != domain.RelationActive {
			continue
		}
		if now.Sub(r.LastValidatedAt) >= c.revalidateEvery {
			out = append(out, r)
		}
	}
	return out
}

// Sync revalidates every stale relationship against the external
// revalidator, updating confidence or invalidating as instructed.
func (c *Catalog) Sync(ctx context.Context) error {
	if c.revalidator == nil {
		return nil
	}
	stale := c.StaleForRevalidation(time.Now())
	for _, r := range stale {
		titles := make(map[string]string, len(r.Tickers))
		for _, t := range r.Tickers {
			if m, err := c.cache.Get(t); err == nil {
				titles[t] = m.Title
			}
		}
		stillValid, newConfidence, err := c.revalidator.Revalidate(ctx, r, titles)
		if err != nil {
			c.log.Warn("relationship revalidation failed", logging.Relationship(r.ID), zap.Error(err))
			continue
		}
		c.mu.Lock()
		cur, ok := c.byID[r.ID]
		if ok {
			if !stillValid {
				cur.Status = domain.RelationInvalid
				cur.InvalidReason = "revalidator rejected"
			} else {
				cur.Confidence = newConfidence
				cur.LastValidatedAt = time.Now()
			}
			c.byID[r.ID] = cur
		}
		c.mu.Unlock()
	}
	return nil
}

// Run drives the periodic revalidation sweep until ctx is cancelled.
func (c *Catalog) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.revalidateEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil {
				c.log.Warn("catalog revalidation sweep failed", zap.Error(err))
			}
		}
	}
}

// Get returns a single relationship by ID.
func (c *Catalog) Get(id string) (domain.Relationship, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byID[id]
	return r, ok
}
