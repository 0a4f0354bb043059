package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/market"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRevalidator struct {
	stillValid bool
	confidence float64
	err        error
}

func (f fakeRevalidator) Revalidate(ctx context.Context, r domain.Relationship, titles map[string]string) (bool, float64, error) {
	return f.stillValid, f.confidence, f.err
}

func seedMarket(c *market.Cache, ticker, fingerprint string) {
	c.Apply(domain.Market{
		Ticker:           ticker,
		Status:           domain.MarketOpen,
		RulesFingerprint: fingerprint,
		LastUpdate:       time.Now(),
	})
}

func TestUpsertRejectsMalformed(t *testing.T) {
	cache := market.NewCache()
	cat := New(cache, fakeRevalidator{}, 0.5, time.Hour, zap.NewNop())

	_, err := cat.Upsert(domain.Relationship{ID: uuid.NewString(), Kind: domain.KindSubset, Tickers: []string{"A"}})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestUpsertRejectsDuplicateCanonicalKey(t *testing.T) {
	cache := market.NewCache()
	seedMarket(cache, "A", "fp-a")
	seedMarket(cache, "B", "fp-b")
	cat := New(cache, fakeRevalidator{}, 0.5, time.Hour, zap.NewNop())

	r1 := domain.Relationship{ID: uuid.NewString(), Kind: domain.KindSubset, Tickers: []string{"A", "B"}, Confidence: 0.9}
	_, err := cat.Upsert(r1)
	require.NoError(t, err)

	r2 := domain.Relationship{ID: uuid.NewString(), Kind: domain.KindSubset, Tickers: []string{"A", "B"}, Confidence: 0.9}
	_, err = cat.Upsert(r2)
	require.ErrorIs(t, err, ErrDuplicateForSameTickers)
}

func TestActiveExcludesClosedMarket(t *testing.T) {
	cache := market.NewCache()
	seedMarket(cache, "A", "fp-a")
	seedMarket(cache, "B", "fp-b")
	cat := New(cache, fakeRevalidator{}, 0.5, time.Hour, zap.NewNop())

	r, err := cat.Upsert(domain.Relationship{ID: uuid.NewString(), Kind: domain.KindSubset, Tickers: []string{"A", "B"}, Confidence: 0.9})
	require.NoError(t, err)
	require.Len(t, cat.Active(), 1)

	cache.Apply(domain.Market{Ticker: "B", Status: domain.MarketClosed, RulesFingerprint: "fp-b", LastUpdate: time.Now().Add(time.Second)})
	require.Empty(t, cat.Active())

	invalid, ok := cat.Get(r.ID)
	require.True(t, ok)
	require.Equal(t, domain.RelationInvalid, invalid.Status)
}

func TestActiveExcludesFingerprintMismatch(t *testing.T) {
	cache := market.NewCache()
	seedMarket(cache, "A", "fp-a")
	seedMarket(cache, "B", "fp-b")
	cat := New(cache, fakeRevalidator{}, 0.5, time.Hour, zap.NewNop())

	_, err := cat.Upsert(domain.Relationship{ID: uuid.NewString(), Kind: domain.KindSubset, Tickers: []string{"A", "B"}, Confidence: 0.9})
	require.NoError(t, err)

	cache.Apply(domain.Market{Ticker: "B", Status: domain.MarketOpen, RulesFingerprint: "fp-b-changed", LastUpdate: time.Now().Add(time.Second)})
	require.Empty(t, cat.Active())
}

func TestSyncInvalidatesOnRevalidatorRejection(t *testing.T) {
	cache := market.NewCache()
	seedMarket(cache, "A", "fp-a")
	seedMarket(cache, "B", "fp-b")
	cat := New(cache, fakeRevalidator{stillValid: false}, 0.5, -time.Second, zap.NewNop())

	r, err := cat.Upsert(domain.Relationship{ID: uuid.NewString(), Kind: domain.KindSubset, Tickers: []string{"A", "B"}, Confidence: 0.9})
	require.NoError(t, err)

	require.NoError(t, cat.Sync(context.Background()))
	got, ok := cat.Get(r.ID)
	require.True(t, ok)
	require.Equal(t, domain.RelationInvalid, got.Status)
}
