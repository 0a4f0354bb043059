package market

import (
	"testing"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/stretchr/testify/require"
)

func mkMarket(ticker string, yesAsk, yesBid int, at time.Time) domain.Market {
	return domain.Market{
		Ticker:     ticker,
		Status:     domain.MarketOpen,
		LastUpdate: at,
		Quote:      domain.Quote{YesAsk: yesAsk, YesBid: yesBid},
	}
}

func TestApplyDropsOutOfOrderSnapshot(t *testing.T) {
	c := NewCache()
	t0 := time.Now()
	c.Apply(mkMarket("A", 60, 58, t0))
	c.Apply(mkMarket("A", 70, 68, t0.Add(-time.Second)))

	m, err := c.Get("A")
	require.NoError(t, err)
	require.Equal(t, 60, m.Quote.YesAsk)
}

func TestApplyIncrementsVersion(t *testing.T) {
	c := NewCache()
	t0 := time.Now()
	c.Apply(mkMarket("A", 60, 58, t0))
	c.Apply(mkMarket("A", 61, 59, t0.Add(time.Second)))

	m, err := c.Get("A")
	require.NoError(t, err)
	require.Equal(t, uint64(2), m.Version)
}

func TestGetUnknownTicker(t *testing.T) {
	c := NewCache()
	_, err := c.Get("nope")
	require.ErrorIs(t, err, ErrUnknownTicker)
}

func TestPriceViewAtomicSnapshot(t *testing.T) {
	c := NewCache()
	t0 := time.Now()
	c.Apply(mkMarket("A", 60, 58, t0))
	c.Apply(mkMarket("B", 52, 50, t0))

	view, err := c.PriceView([]string{"A", "B"})
	require.NoError(t, err)
	require.Len(t, view.Markets, 2)

	qa, ok := view.Quote("A")
	require.True(t, ok)
	require.Equal(t, 60, qa.YesAsk)
}

func TestPriceViewUnknownTickerErrors(t *testing.T) {
	c := NewCache()
	c.Apply(mkMarket("A", 60, 58, time.Now()))
	_, err := c.PriceView([]string{"A", "ghost"})
	require.ErrorIs(t, err, ErrUnknownTicker)
}
