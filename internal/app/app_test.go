package app

import (
	"context"
	"testing"
	"time"

	"github.com/kalshi-arb/arbcore/internal/adapter/exchange"
	"github.com/kalshi-arb/arbcore/internal/config"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/execution"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExchangeClient struct {
	markets []domain.Market
	events  []domain.Event
}

func (f *fakeExchangeClient) ListOpenMarkets(_ context.Context, _ string) ([]domain.Market, string, error) {
	return f.markets, "", nil
}
func (f *fakeExchangeClient) ListEvents(_ context.Context) ([]domain.Event, error) {
	return f.events, nil
}
func (f *fakeExchangeClient) GetOrderbook(_ context.Context, ticker string) (domain.Quote, error) {
	for _, m := range f.markets {
		if m.Ticker == ticker {
			return m.Quote, nil
		}
	}
	return domain.Quote{}, nil
}
func (f *fakeExchangeClient) PlaceOrder(_ context.Context, req exchange.PlaceOrderRequest) (string, error) {
	return "order-" + req.Ticker, nil
}
func (f *fakeExchangeClient) GetOrder(_ context.Context, orderID string) (exchange.OrderReport, error) {
	return exchange.OrderReport{OrderID: orderID, Status: exchange.OrderFilled, FilledCount: 1}, nil
}
func (f *fakeExchangeClient) CancelOrder(_ context.Context, _ string) error { return nil }
func (f *fakeExchangeClient) ListPositions(_ context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

type fakeFeeEstimator struct{}

func (fakeFeeEstimator) Estimate(_ context.Context, legs []domain.Leg, count int) (int, error) {
	return len(legs) * count, nil
}

type noopAlerter struct{}

func (noopAlerter) Notify(context.Context, string, string) {}

func testApp(t *testing.T, markets []domain.Market, events []domain.Event) *App {
	t.Helper()
	client := &fakeExchangeClient{markets: markets, events: events}
	cfg := config.Default()
	cfg.Detect.FullScanInterval = time.Hour
	cfg.Detect.OpportunityRecheck = time.Hour
	cfg.Risk.MaxContractsPerTrade = 50
	return New(cfg, zap.NewNop(), client, "", fakeFeeEstimator{}, nil, noopAlerter{}, nil)
}

func TestFullScanPopulatesCacheFromExchange(t *testing.T) {
	markets := []domain.Market{
		{Ticker: "MAR_CUT", Status: domain.MarketOpen, Quote: domain.Quote{YesAsk: 60, YesBid: 58, YesAskDepth: 20, YesBidDepth: 20}},
	}
	a := testApp(t, markets, nil)

	require.NoError(t, a.fullScan(t.Context()))
	m, err := a.Cache.Get("MAR_CUT")
	require.NoError(t, err)
	require.Equal(t, 60, m.Quote.YesAsk)
}

func TestDetectAndSubmitIsNoopWhenNoRelationshipsCataloged(t *testing.T) {
	a := testApp(t, nil, nil)
	// No relationships were ever upserted into the catalog, so a scan
	// finds nothing to violate and detectAndSubmit is a no-op.
	require.NotPanics(t, func() { a.detectAndSubmit(t.Context()) })
}

func TestTimeUntilMidnightUTCIsPositiveAndBounded(t *testing.T) {
	d := timeUntilMidnightUTC()
	require.Greater(t, d, time.Duration(0))
	require.LessOrEqual(t, d, 24*time.Hour)
}

func TestHandleResultWithoutStoreDoesNotPanic(t *testing.T) {
	a := testApp(t, nil, nil)
	// Store is nil in this fixture; handleResult must not panic and
	// must return without attempting to persist.
	require.NotPanics(t, func() {
		a.handleResult(t.Context(), execution.Result{
			OpportunityID: "opp-1",
			FinalState:    domain.StateFilled,
			Fills:         []domain.Fill{{Ticker: "MAR_CUT", Count: 10}},
		})
	})
}
