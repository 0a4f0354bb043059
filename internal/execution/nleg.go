package execution

import (
	"context"
	"errors"
	"sync"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"go.uber.org/zap"
)

// executeNLeg drives a PARTITION opportunity: all legs submit in
// parallel against a shared deadline, then the engine computes the
// largest common fill count and unwinds any leg that over-filled
// relative to it.
func (e *Engine) executeNLeg(ctx context.Context, opp domain.Opportunity) Result {
	n := len(opp.Legs)
	if n == 0 {
		opp.Transition(domain.StateFailed)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFailed, Err: errors.New("n-leg execution requires at least 1 leg")}
	}

	fills := make([]domain.Fill, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i, leg := range opp.Legs {
		i, leg := i, leg
		go func() {
			defer wg.Done()
			f, err := e.runLeg(ctx, opp.ID, i, leg, leg.DesiredCount)
			fills[i] = f
			errs[i] = err
		}()
	}
	wg.Wait()

	common := opp.Legs[0].DesiredCount
	for i, f := range fills {
		if errs[i] != nil {
			common = 0
			continue
		}
		if f.Count < common {
			common = f.Count
		}
	}

	if common == 0 {
		opp.Transition(domain.StateFailed)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFailed, Fills: fills, Err: errors.New("no common fill across partition legs")}
	}

	excessUnwound := false
	for i, f := range fills {
		excess := f.Count - common
		if excess <= 0 {
			continue
		}
		unwindFill, err := e.unwindExcess(ctx, opp.ID, opp.Legs[i], excess)
		if err != nil {
			e.log.Error("unwind of excess partition leg failed",
				zap.String("opportunity_id", opp.ID), zap.String("ticker", opp.Legs[i].Ticker), zap.Error(err))
		}
		if unwindFill.Count > 0 {
			fills = append(fills, unwindFill)
		}
		excessUnwound = true
	}

	allFilledEvenly := !excessUnwound
	for i, f := range fills[:n] {
		if errs[i] != nil || f.Count != common {
			allFilledEvenly = false
		}
	}

	if allFilledEvenly {
		opp.Transition(domain.StateFilled)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFilled, Fills: fills}
	}

	opp.Transition(domain.StatePartial)
	return Result{OpportunityID: opp.ID, FinalState: domain.StatePartial, Fills: fills}
}

// unwindExcess closes a quantity of a leg that over-filled relative
// to its siblings, at a marketable price. The closing fill is
// returned (not discarded): its entry carries the realized loss from
// trading out at a marketable rather than limit price, and the ledger
// invariant (position = sum of fills) requires it alongside the
// original entry fill rather than in place of it.
func (e *Engine) unwindExcess(ctx context.Context, opportunityID string, leg domain.Leg, excess int) (domain.Fill, error) {
	opposite := leg
	opposite.Action = domain.ActionSell
	if leg.Action == domain.ActionSell {
		opposite.Action = domain.ActionBuy
	}
	opposite.DesiredCount = excess
	opposite.LimitPriceCent = marketablePrice(opposite)

	return e.runLeg(ctx, opportunityID, -1, opposite, excess)
}

// marketablePrice picks a limit aggressive enough to be treated as a
// market order by a price-time-priority book: pay up to close, accept
// down to close.
func marketablePrice(leg domain.Leg) int {
	if leg.Action == domain.ActionBuy {
		return 100
	}
	return 0
}

