package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalshi-arb/arbcore/internal/adapter/exchange"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/telemetry"
	"go.uber.org/zap"
)

// executeTwoLeg drives a SUBSET/THRESHOLD/IMPLICATION opportunity:
// leg[0] (already ordered least-liquid-first by the detector) goes
// first; leg[1] follows for whatever count leg[0] actually filled,
// always at a price escalated by HedgeWidenCents.
func (e *Engine) executeTwoLeg(ctx context.Context, opp domain.Opportunity) Result {
	if len(opp.Legs) < 2 {
		opp.Transition(domain.StateFailed)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFailed, Err: errors.New("two-leg execution requires at least 2 legs")}
	}

	leg0 := opp.Legs[0]
	fill0, err := e.runLeg(ctx, opp.ID, 0, leg0, leg0.DesiredCount)
	if err != nil {
		opp.Transition(domain.StateFailed)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFailed, Err: err}
	}

	if fill0.Count == 0 {
		opp.Transition(domain.StateFailed)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFailed, Err: errors.New("leg 0 received zero fill at deadline")}
	}

	var fills []domain.Fill
	fills = append(fills, fill0)

	if e.gov.KillSwitch() {
		e.holdAndAlert(ctx, opp, leg0.Ticker, fill0.Count)
		opp.Transition(domain.StatePartial)
		return Result{OpportunityID: opp.ID, FinalState: domain.StatePartial, Fills: fills, Err: errors.New("kill switch engaged before hedge leg; leg 0 exposure held")}
	}

	leg1 := opp.Legs[1]
	leg1.LimitPriceCent = aggressivePrice(leg1, e.cfg.HedgeWidenCents)
	fill1, err := e.runLeg(ctx, opp.ID, 1, leg1, fill0.Count)

	if err == nil && fill1.Count == fill0.Count {
		fills = append(fills, fill1)
		opp.Transition(domain.StateFilled)
		return Result{OpportunityID: opp.ID, FinalState: domain.StateFilled, Fills: fills}
	}

	hedgeFilled := 0
	if err == nil && fill1.Count > 0 {
		fills = append(fills, fill1)
		hedgeFilled = fill1.Count
	}

	residual := fill0.Count - hedgeFilled
	hedgeFills, resolved := e.runHedgeTask(ctx, opp, leg0, leg1, residual)
	fills = append(fills, hedgeFills...)

	opp.Transition(domain.StatePartial)
	msg := "leg 1 under-filled leg 0; hedge task resolved the residual exposure"
	if !resolved {
		msg = "leg 1 under-filled leg 0 and the hedge task could not fully resolve the residual exposure"
	}
	return Result{OpportunityID: opp.ID, FinalState: domain.StatePartial, Fills: fills, Err: errors.New(msg)}
}

// runHedgeTask implements the §4.4.1 hedge/unwind policy for leg 0
// exposure the hedge leg didn't fully offset: (a) one aggressive
// re-fill attempt of the residual at a further-widened price, then (b)
// on failure, flattens leg 0's unhedged remainder at a marketable
// price. (c) the flatten's realized loss reaches the daily-loss cap
// the same way any other fill does, through the caller's normal
// ApplyFill/ApplyShadowFill path over the returned fills. Per §4.4.1
// the hedge task is itself an execution attempt gated by the kill
// switch: "directional-unwind always allowed unless kill switch is
// set" — so both the re-fill attempt and the flatten are skipped when
// the kill switch is already engaged as the task starts, leaving the
// exposure held for an operator. The switch is checked only at that
// point, not again between the re-fill attempt and the flatten.
// resolved reports whether the residual exposure was fully cleared.
func (e *Engine) runHedgeTask(ctx context.Context, opp domain.Opportunity, leg0, leg1 domain.Leg, residual int) (fills []domain.Fill, resolved bool) {
	if residual <= 0 {
		return nil, true
	}
	if e.gov.KillSwitch() {
		e.holdAndAlert(ctx, opp, leg0.Ticker, residual)
		return nil, false
	}

	reattempt := leg1
	reattempt.LimitPriceCent = aggressivePrice(leg1, 2*e.cfg.HedgeWidenCents)
	// legIndex -2: a hedge re-attempt is a distinct order from the
	// original leg 1 attempt (legIndex 1), so it needs its own
	// idempotency key rather than colliding with that order's.
	refill, err := e.runLeg(ctx, opp.ID, -2, reattempt, residual)
	if err == nil && refill.Count > 0 {
		fills = append(fills, refill)
		residual -= refill.Count
	}
	if residual <= 0 {
		return fills, true
	}

	flatten := leg0
	flatten.Action = domain.ActionSell
	if leg0.Action == domain.ActionSell {
		flatten.Action = domain.ActionBuy
	}
	flatten.LimitPriceCent = marketablePrice(flatten)

	// legIndex -3: same reasoning — the flatten is a distinct order
	// from the original leg 0 entry (legIndex 0).
	closingFill, err := e.runLeg(ctx, opp.ID, -3, flatten, residual)
	if err != nil {
		e.log.Error("hedge task flatten failed",
			zap.String("opportunity_id", opp.ID), zap.String("ticker", leg0.Ticker), zap.Error(err))
		e.holdAndAlert(ctx, opp, leg0.Ticker, residual)
		return fills, false
	}
	if closingFill.Count > 0 {
		fills = append(fills, closingFill)
		e.log.Warn("hedge task flattened unhedged leg 0 exposure at marketable price",
			zap.String("opportunity_id", opp.ID), zap.String("ticker", leg0.Ticker), zap.Int("count", closingFill.Count))
		if e.alerter != nil {
			e.alerter.Notify(ctx, "hedge task flattened position",
				fmt.Sprintf("%s flattened %d %s at marketable price; realized loss booked against the daily cap", opp.ID, closingFill.Count, leg0.Ticker))
		}
	}
	if closingFill.Count < residual {
		e.holdAndAlert(ctx, opp, leg0.Ticker, residual-closingFill.Count)
		return fills, false
	}
	return fills, true
}

// runLeg places one order, polls it to deadline, and cancels any
// unfilled residual. It returns the confirmed fill (possibly partial
// or zero-count).
func (e *Engine) runLeg(ctx context.Context, opportunityID string, legIndex int, leg domain.Leg, count int) (domain.Fill, error) {
	if e.cfg.DryRun {
		return e.simulateFill(opportunityID, leg, count), nil
	}

	deadline := time.Now().Add(e.cfg.OrderDeadline)
	key := idempotencyKey(opportunityID, legIndex, 0)

	orderID, err := e.client.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Ticker:         leg.Ticker,
		Side:           leg.Side,
		Action:         leg.Action,
		Count:          count,
		LimitPriceCent: leg.LimitPriceCent,
		ExpirationTime: deadline.Add(2 * time.Second),
		IdempotencyKey: key,
	})
	if err != nil {
		return domain.Fill{}, err
	}

	report, err := e.pollToDeadline(ctx, orderID, deadline)
	if err != nil {
		return domain.Fill{}, err
	}

	if report.Status != exchange.OrderFilled {
		if cancelErr := e.cancelWithRetries(ctx, orderID, leg.Ticker); cancelErr != nil {
			e.log.Warn("leg order could not be confirmed cancelled", zap.String("order_id", orderID), zap.Error(cancelErr))
		}
	}

	return domain.Fill{
		OpportunityID: opportunityID,
		Ticker:        leg.Ticker,
		Side:          leg.Side,
		Action:        leg.Action,
		Count:         report.FilledCount,
		PriceCent:     report.AvgPriceCent,
		FilledAt:      time.Now(),
	}, nil
}

func (e *Engine) pollToDeadline(ctx context.Context, orderID string, deadline time.Time) (exchange.OrderReport, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		report, err := e.client.GetOrder(ctx, orderID)
		if err != nil {
			return exchange.OrderReport{}, err
		}
		if report.Status == exchange.OrderFilled || report.Status == exchange.OrderCancelled || report.Status == exchange.OrderRejected {
			return report, nil
		}
		if !time.Now().Before(deadline) {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return exchange.OrderReport{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) cancelWithRetries(ctx context.Context, orderID, ticker string) error {
	var lastErr error
retry:
	for i := 0; i < e.cfg.CancelRetries; i++ {
		if err := e.client.CancelOrder(ctx, orderID); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(100 * time.Millisecond):
		}
	}
	telemetry.OrphanOrders.WithLabelValues(ticker).Inc()
	return lastErr
}

// aggressivePrice nudges a leg's limit one hedge-widen increment
// toward the marketable side: buyers raise their bid, sellers lower
// their offer.
func aggressivePrice(leg domain.Leg, widenCents int) int {
	if leg.Action == domain.ActionBuy {
		return leg.LimitPriceCent + widenCents
	}
	return leg.LimitPriceCent - widenCents
}

// holdAndAlert surfaces a held directional exposure that the hedge
// step could not fully offset.
func (e *Engine) holdAndAlert(ctx context.Context, opp domain.Opportunity, ticker string, heldCount int) {
	if heldCount <= 0 {
		return
	}
	e.log.Warn("holding directional exposure after incomplete hedge",
		zap.String("opportunity_id", opp.ID), zap.String("ticker", ticker), zap.Int("held_count", heldCount))
	if e.alerter != nil {
		e.alerter.Notify(ctx, "partial fill held",
			fmt.Sprintf("%s holds %d %s after an incomplete hedge", opp.ID, heldCount, ticker))
	}
}
