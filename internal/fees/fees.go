// Package fees is a reference FeeEstimator (detector.FeeEstimator):
// a flat per-contract taker rate charged on every contract of every
// leg, independent of price, generalizing the takerFee rate mselser95-polymarket-arb's
// executor.go applies in calculateActualProfit to an arbitrary
// number of legs instead of a hardcoded two-sided trade.
package fees

import (
	"context"

	"github.com/kalshi-arb/arbcore/internal/domain"
)

// FlatRateEstimator charges RatePerContractCent on every contract of
// every leg; the total is an exact integer product, so no rounding
// applies.
type FlatRateEstimator struct {
	RatePerContractCent int
}

func New(ratePerContractCent int) *FlatRateEstimator {
	return &FlatRateEstimator{RatePerContractCent: ratePerContractCent}
}

// Estimate prices the full leg set at count contracts each, per
// SPEC_FULL.md §4.3's "fee interface (legs, limit_prices, desired_count)".
func (f *FlatRateEstimator) Estimate(_ context.Context, legs []domain.Leg, count int) (int, error) {
	return len(legs) * count * f.RatePerContractCent, nil
}
