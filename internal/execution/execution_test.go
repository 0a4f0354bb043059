package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalshi-arb/arbcore/internal/adapter/exchange"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClient is a scripted exchange.Client: each ticker fills to a
// preconfigured count at order placement time (no real polling delay,
// so tests run instantly).
type fakeClient struct {
	mu          sync.Mutex
	fillCount   map[string]int // ticker -> filled count on next PlaceOrder
	placed      []exchange.PlaceOrderRequest
	cancelErr   error
	orderStatus map[string]exchange.OrderReport
	seq         int
}

func newFakeClient() *fakeClient {
	return &fakeClient{fillCount: map[string]int{}, orderStatus: map[string]exchange.OrderReport{}}
}

func (f *fakeClient) ListOpenMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error) {
	return nil, "", nil
}
func (f *fakeClient) ListEvents(ctx context.Context) ([]domain.Event, error) { return nil, nil }
func (f *fakeClient) GetOrderbook(ctx context.Context, ticker string) (domain.Quote, error) {
	return domain.Quote{}, nil
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	f.seq++
	orderID := req.IdempotencyKey
	filled := f.fillCount[req.Ticker]
	if filled > req.Count {
		filled = req.Count
	}
	status := exchange.OrderFilled
	if filled == 0 {
		status = exchange.OrderCancelled
	} else if filled < req.Count {
		status = exchange.OrderPartial
	}
	f.orderStatus[orderID] = exchange.OrderReport{
		OrderID: orderID, Status: status, FilledCount: filled, AvgPriceCent: req.LimitPriceCent,
	}
	return orderID, nil
}

func (f *fakeClient) GetOrder(ctx context.Context, orderID string) (exchange.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderStatus[orderID], nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, orderID string) error { return f.cancelErr }
func (f *fakeClient) ListPositions(ctx context.Context) (map[string]int, error) { return nil, nil }

type fakeGovernor struct {
	mu          sync.Mutex
	fills       []domain.Fill
	shadowFills []domain.Fill
	released    int
	killSwitch  bool
}

func (g *fakeGovernor) ApplyFill(f domain.Fill) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fills = append(g.fills, f)
}
func (g *fakeGovernor) ApplyShadowFill(f domain.Fill) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shadowFills = append(g.shadowFills, f)
}
func (g *fakeGovernor) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
}
func (g *fakeGovernor) KillSwitch() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitch
}

type noopAlerter struct{ notified []string }

func (a *noopAlerter) Notify(ctx context.Context, subject, body string) {
	a.notified = append(a.notified, subject)
}

func testLogger() *zap.Logger { return zap.NewNop() }

func twoLegSubsetOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-sub",
		RelationKind: domain.KindSubset,
		State:        domain.StateValidated,
		Legs: []domain.Leg{
			{Ticker: "JUN_CUT", Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: 52, DesiredCount: 10},
			{Ticker: "MAR_CUT", Side: domain.SideYes, Action: domain.ActionSell, LimitPriceCent: 58, DesiredCount: 10},
		},
	}
}

func TestExecuteTwoLegFullFill(t *testing.T) {
	client := newFakeClient()
	client.fillCount["JUN_CUT"] = 10
	client.fillCount["MAR_CUT"] = 10
	gov := &fakeGovernor{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1, HedgeWidenCents: 1}, client, gov, &noopAlerter{}, testLogger())

	result := eng.executeTwoLeg(context.Background(), twoLegSubsetOpp())

	require.Equal(t, domain.StateFilled, result.FinalState)
	require.Len(t, result.Fills, 2)
	require.NoError(t, result.Err)
}

func TestExecuteTwoLegZeroHedgeFillRunsHedgeTaskAndFlattensLeg0(t *testing.T) {
	client := newFakeClient()
	client.fillCount["JUN_CUT"] = 6 // leg0 partial: 6 of 10
	client.fillCount["MAR_CUT"] = 0 // hedge leg never fills, even on the widened re-attempt
	gov := &fakeGovernor{}
	alerter := &noopAlerter{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1, HedgeWidenCents: 1}, client, gov, alerter, testLogger())

	result := eng.executeTwoLeg(context.Background(), twoLegSubsetOpp())

	require.Equal(t, domain.StatePartial, result.FinalState)
	require.Error(t, result.Err)
	require.Len(t, result.Fills, 2, "leg 0 entry plus the hedge task's flatten of the unhedged remainder")
	require.Equal(t, 6, result.Fills[0].Count)
	require.Equal(t, domain.ActionBuy, result.Fills[0].Action)
	require.Equal(t, 6, result.Fills[1].Count, "hedge task flattens the full unhedged residual")
	require.Equal(t, domain.ActionSell, result.Fills[1].Action, "flatten closes leg 0's buy with a sell")
	require.NotEmpty(t, alerter.notified, "the hedge task's flatten must be alerted")
}

func TestExecuteTwoLegZeroFillOnLeg0Fails(t *testing.T) {
	client := newFakeClient() // no fill configured for either ticker
	gov := &fakeGovernor{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, &noopAlerter{}, testLogger())

	result := eng.executeTwoLeg(context.Background(), twoLegSubsetOpp())

	require.Equal(t, domain.StateFailed, result.FinalState)
	require.Empty(t, result.Fills)
}

func TestExecuteTwoLegKillSwitchHoldsLeg0BeforeHedge(t *testing.T) {
	client := newFakeClient()
	client.fillCount["JUN_CUT"] = 10
	gov := &fakeGovernor{killSwitch: true}
	alerter := &noopAlerter{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, alerter, testLogger())

	result := eng.executeTwoLeg(context.Background(), twoLegSubsetOpp())

	require.Equal(t, domain.StatePartial, result.FinalState)
	require.Len(t, result.Fills, 1, "hedge leg must never be submitted once the kill switch is engaged")
	require.NotEmpty(t, alerter.notified)
	require.Len(t, client.placed, 1, "only leg 0 should have been placed")
}

func partitionOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-part",
		RelationKind: domain.KindPartition,
		State:        domain.StateValidated,
		Legs: []domain.Leg{
			{Ticker: "GDP_A", Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: 20, DesiredCount: 5},
			{Ticker: "GDP_B", Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: 25, DesiredCount: 5},
			{Ticker: "GDP_C", Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: 25, DesiredCount: 5},
			{Ticker: "GDP_D", Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: 22, DesiredCount: 5},
		},
	}
}

func TestExecuteNLegAllFilledEvenly(t *testing.T) {
	client := newFakeClient()
	for _, tk := range []string{"GDP_A", "GDP_B", "GDP_C", "GDP_D"} {
		client.fillCount[tk] = 5
	}
	gov := &fakeGovernor{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, &noopAlerter{}, testLogger())

	result := eng.executeNLeg(context.Background(), partitionOpp())

	require.Equal(t, domain.StateFilled, result.FinalState)
	require.Len(t, result.Fills, 4)
}

func TestExecuteNLegUnwindsExcessLeg(t *testing.T) {
	client := newFakeClient()
	client.fillCount["GDP_A"] = 5
	client.fillCount["GDP_B"] = 3 // common fill becomes 3
	client.fillCount["GDP_C"] = 5
	client.fillCount["GDP_D"] = 5
	gov := &fakeGovernor{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, &noopAlerter{}, testLogger())

	result := eng.executeNLeg(context.Background(), partitionOpp())

	require.Equal(t, domain.StatePartial, result.FinalState)
	// 4 entry fills plus one unwind-closing fill for each of the 3
	// legs that over-filled relative to the common count.
	require.Len(t, result.Fills, 7)

	entryCounts := map[string]int{}
	unwindCounts := map[string]int{}
	for _, f := range result.Fills {
		if f.Action == domain.ActionSell {
			unwindCounts[f.Ticker] += f.Count
		} else {
			entryCounts[f.Ticker] = f.Count
		}
	}
	require.Equal(t, map[string]int{"GDP_A": 5, "GDP_B": 3, "GDP_C": 5, "GDP_D": 5}, entryCounts,
		"the ledger keeps each leg's actual entry fill, not a count clamped to the common size")
	require.Equal(t, map[string]int{"GDP_A": 2, "GDP_C": 2, "GDP_D": 2}, unwindCounts,
		"each over-filled leg's excess is unwound at a marketable price and captured as its own fill")
}

func TestRunOneRoutesDryRunFillsToShadowLedgerOnly(t *testing.T) {
	client := newFakeClient()
	client.fillCount["JUN_CUT"] = 10
	client.fillCount["MAR_CUT"] = 10
	gov := &fakeGovernor{}
	eng := New(Config{DryRun: true, OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, &noopAlerter{}, testLogger())

	eng.runOne(context.Background(), twoLegSubsetOpp())

	require.Empty(t, gov.fills, "dry run must never mutate the real position ledger")
	require.Len(t, gov.shadowFills, 2, "dry run fills flow to the shadow ledger instead")
}

func TestRunOneRoutesLiveFillsToRealLedgerOnly(t *testing.T) {
	client := newFakeClient()
	client.fillCount["JUN_CUT"] = 10
	client.fillCount["MAR_CUT"] = 10
	gov := &fakeGovernor{}
	eng := New(Config{OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, &noopAlerter{}, testLogger())

	eng.runOne(context.Background(), twoLegSubsetOpp())

	require.Empty(t, gov.shadowFills)
	require.Len(t, gov.fills, 2)
}

func TestDryRunSimulatesFullFillAtLimitPrice(t *testing.T) {
	client := newFakeClient() // never consulted in dry-run mode
	gov := &fakeGovernor{}
	eng := New(Config{DryRun: true, OrderDeadline: time.Millisecond, CancelRetries: 1}, client, gov, &noopAlerter{}, testLogger())

	result := eng.executeTwoLeg(context.Background(), twoLegSubsetOpp())

	require.Equal(t, domain.StateFilled, result.FinalState)
	require.Empty(t, client.placed, "dry run must never touch the exchange client")
	require.Equal(t, 52, result.Fills[0].PriceCent)
}

func TestClassifyErrorBucketsKnownPatterns(t *testing.T) {
	require.Equal(t, "network", classifyError(errors.New("dial tcp: connection timeout")))
	require.Equal(t, "exchange_rejected", classifyError(errors.New("order rejected: invalid price")))
	require.Equal(t, "funds", classifyError(errors.New("insufficient balance")))
	require.Equal(t, "unknown", classifyError(nil))
}

func TestIdempotencyKeyFormat(t *testing.T) {
	require.Equal(t, "opp-1:0:0", idempotencyKey("opp-1", 0, 0))
	require.Equal(t, "opp-1:0:1", idempotencyKey("opp-1", 0, 1))
}
