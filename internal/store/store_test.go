package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "arbcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordTransitionUpsertsByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	opp := domain.Opportunity{
		ID: "opp-1", RelationshipID: "rel-1", RelationKind: domain.KindSubset,
		Signal: "BUY_JUN_SELL_MAR", State: domain.StateDetected,
		RawEdgeCents: 10, NetMagnitude: 6, Score: 5.7, DesiredCount: 10,
		DetectedAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, s.RecordTransition(ctx, opp))

	opp.State = domain.StateFilled
	require.NoError(t, s.RecordTransition(ctx, opp))

	var state string
	row := s.db.QueryRowContext(ctx, `SELECT state FROM opportunities WHERE id = ?`, "opp-1")
	require.NoError(t, row.Scan(&state))
	require.Equal(t, "FILLED", state)

	var count int
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities WHERE id = ?`, "opp-1")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count, "a repeated transition must update the row, not duplicate it")
}

func TestRecordFillAndFillsFor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f1 := domain.Fill{OpportunityID: "opp-2", Ticker: "JUN_CUT", Side: domain.SideYes, Action: domain.ActionBuy, Count: 6, PriceCent: 52, FilledAt: time.Now()}
	f2 := domain.Fill{OpportunityID: "opp-2", Ticker: "MAR_CUT", Side: domain.SideYes, Action: domain.ActionSell, Count: 6, PriceCent: 58, FilledAt: time.Now()}

	require.NoError(t, s.RecordFill(ctx, f1))
	require.NoError(t, s.RecordFill(ctx, f2))

	fills, err := s.FillsFor(ctx, "opp-2")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	require.Equal(t, "JUN_CUT", fills[0].Ticker)
	require.Equal(t, "MAR_CUT", fills[1].Ticker)
}

func TestFillsForUnknownOpportunityReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	fills, err := s.FillsFor(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, fills)
}
