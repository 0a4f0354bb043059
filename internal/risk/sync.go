package risk

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PositionSource is the narrow read-only interface to the exchange
// adapter's position listing, used to reconcile the governor's fill-
// derived ledger against the exchange's view of truth.
type PositionSource interface {
	ListPositions(ctx context.Context) (map[string]int, error)
}

// Reconciler periodically compares the governor's position ledger
// against the exchange and alerts on drift. The periodic-sync worker
// shape follows the teacher's PortfolioTracker.Run
// (internal/portfolio/tracker.go): an initial sync, then a ticker
// loop, generalized from "fetch USDC portfolio value" to "diff two
// position maps".
type Reconciler struct {
	gov      *Governor
	source   PositionSource
	interval time.Duration
	log      *zap.Logger

	onDrift func(ticker string, ours, theirs int)
}

func NewReconciler(gov *Governor, source PositionSource, interval time.Duration, log *zap.Logger, onDrift func(ticker string, ours, theirs int)) *Reconciler {
	return &Reconciler{gov: gov, source: source, interval: interval, log: log, onDrift: onDrift}
}

func (r *Reconciler) syncOnce(ctx context.Context) error {
	theirs, err := r.source.ListPositions(ctx)
	if err != nil {
		return err
	}
	ours := r.gov.Positions()

	seen := make(map[string]bool, len(theirs))
	for ticker, theirCount := range theirs {
		seen[ticker] = true
		ourCount := ours[ticker].NetContracts
		if ourCount != theirCount && r.onDrift != nil {
			r.onDrift(ticker, ourCount, theirCount)
		}
	}
	for ticker, pos := range ours {
		if pos.NetContracts == 0 || seen[ticker] {
			continue
		}
		if r.onDrift != nil {
			r.onDrift(ticker, pos.NetContracts, 0)
		}
	}
	return nil
}

// Run drives the reconciliation loop until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.syncOnce(ctx); err != nil {
		r.log.Warn("risk: initial position reconciliation failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.syncOnce(ctx); err != nil {
				r.log.Warn("risk: position reconciliation failed", zap.Error(err))
			}
		}
	}
}
