// Package risk is the Risk Governor (C5): it gates every candidate
// opportunity against global trading invariants, sizes admitted
// opportunities, and owns the Position ledger.
//
// The ordered rejection-check pipeline in Admit generalizes the
// teacher's Manager.Allow (internal/risk/manager.go): kill switch,
// daily-loss cap, open-position cap, per-market cap, in the same
// sequence, extended with the multi-leg sizing and IMPLICATION policy
// checks spec.md §4.5 requires that a single-amount gate did not need.
package risk

import (
	"fmt"
	"sync"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/telemetry"
)

// Reasons for rejection, surfaced on Opportunity.RejectReason.
const (
	ReasonKillSwitch     = "KILL_SWITCH"
	ReasonDailyLossCap   = "DAILY_LOSS_CAP"
	ReasonPositionCap    = "POSITION_CAP"
	ReasonPerMarketCap   = "PER_MARKET_CAP"
	ReasonPolicyBlock    = "POLICY_BLOCK"
	ReasonTooSmall       = "TOO_SMALL"
)

// RejectError carries a stable machine-checkable reason alongside a
// human-readable message.
type RejectError struct {
	Reason  string
	Message string
}

func (e *RejectError) Error() string { return e.Message }

func reject(reason, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Config mirrors config.RiskConfig; kept separate so this package has
// no dependency on the config package.
type Config struct {
	MaxRiskPerTradePct         float64
	MaxDailyLossCents          int
	MaxOpenPositions           int
	MaxContractsPerTrade       int
	MaxContractsPerMarket      int
	AccountBalanceCents        int
	KillSwitch                 bool
	RequireHumanForImplication bool
}

// Governor owns positions and the admission pipeline.
type Governor struct {
	mu  sync.RWMutex
	cfg Config

	positions    map[string]domain.Position
	openOpps     int
	dailyPnLCent int
	killSwitch   bool

	// shadowPositions and shadowPnLCent mirror positions/dailyPnLCent
	// but are only ever touched by ApplyShadowFill, per SPEC_FULL.md
	// §4.5's "Positions and P&L remain unmodified; a shadow ledger
	// tracks what would have happened" dry-run requirement.
	shadowPositions map[string]domain.Position
	shadowPnLCent   int
}

func New(cfg Config) *Governor {
	return &Governor{
		cfg:             cfg,
		positions:       make(map[string]domain.Position),
		shadowPositions: make(map[string]domain.Position),
		killSwitch:      cfg.KillSwitch,
	}
}

// Admit runs the ordered admission pipeline of spec.md §4.5 and, on
// success, returns the opportunity re-sized to what the governor will
// actually allow.
//
// The daily-loss check below compares against realized P&L only, not
// realized+unrealized mark-to-market as spec.md §4.5/§8 specify — the
// governor has no dependency on live quotes to mark open positions
// against. See DESIGN.md's Open Question decision on this deviation.
func (g *Governor) Admit(opp domain.Opportunity) (domain.Opportunity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killSwitch {
		return opp, reject(ReasonKillSwitch, "kill switch engaged")
	}
	if g.cfg.MaxDailyLossCents > 0 && g.dailyPnLCent <= -g.cfg.MaxDailyLossCents {
		return opp, reject(ReasonDailyLossCap, "daily pnl %d <= -%d", g.dailyPnLCent, g.cfg.MaxDailyLossCents)
	}
	if g.openOpps >= g.cfg.MaxOpenPositions {
		return opp, reject(ReasonPositionCap, "open opportunities %d/%d", g.openOpps, g.cfg.MaxOpenPositions)
	}

	count, err := g.sizeForLegsLocked(opp.Legs)
	if err != nil {
		return opp, err
	}
	for _, leg := range opp.Legs {
		delta := count
		if leg.Action == domain.ActionSell {
			delta = -delta
		}
		cur := g.positions[leg.Ticker].NetContracts
		if abs(cur+delta) > g.cfg.MaxContractsPerMarket {
			return opp, reject(ReasonPerMarketCap, "%s position %d+%d exceeds cap %d", leg.Ticker, cur, delta, g.cfg.MaxContractsPerMarket)
		}
	}

	if opp.RelationKind == domain.KindImplication && g.cfg.RequireHumanForImplication {
		return opp, reject(ReasonPolicyBlock, "implication trades require human sign-off")
	}

	sized, err := g.sizeLocked(opp)
	if err != nil {
		return opp, err
	}

	g.openOpps++
	nonFlat := 0
	for _, p := range g.positions {
		if p.NetContracts != 0 {
			nonFlat++
		}
	}
	telemetry.OpenPositions.Set(float64(nonFlat))
	return sized, nil
}

// SizeFor implements detector.SizingOracle, used before fee estimation
// to avoid materializing opportunities no admission pass could ever
// allow through.
func (g *Governor) SizeFor(legs []domain.Leg) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sizeForLegsLocked(legs)
}

func (g *Governor) sizeLocked(opp domain.Opportunity) (domain.Opportunity, error) {
	count, err := g.sizeForLegsLocked(opp.Legs)
	if err != nil {
		return opp, err
	}
	if count < 1 {
		return opp, reject(ReasonTooSmall, "sized count %d < 1", count)
	}
	for i := range opp.Legs {
		opp.Legs[i].DesiredCount = count
	}
	opp.DesiredCount = count
	return opp, nil
}

// sizeForLegsLocked implements spec.md §4.5 item 6: bounded by
// risk-per-trade capital, observed depth, and the per-trade contract
// cap.
func (g *Governor) sizeForLegsLocked(legs []domain.Leg) (int, error) {
	if len(legs) == 0 {
		return 0, reject(ReasonTooSmall, "no legs")
	}
	maxLossPerContract := 0
	minDepth := legs[0].ObservedDepth
	for _, l := range legs {
		if l.LimitPriceCent > maxLossPerContract {
			maxLossPerContract = l.LimitPriceCent
		}
		if l.ObservedDepth < minDepth {
			minDepth = l.ObservedDepth
		}
	}
	if maxLossPerContract == 0 {
		return 0, nil
	}

	riskBudget := float64(g.cfg.AccountBalanceCents) * g.cfg.MaxRiskPerTradePct
	byRisk := int(riskBudget / float64(maxLossPerContract))

	count := byRisk
	if minDepth < count {
		count = minDepth
	}
	if g.cfg.MaxContractsPerTrade < count {
		count = g.cfg.MaxContractsPerTrade
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// Release gives back one admission slot, called when an opportunity
// reaches a terminal state.
func (g *Governor) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openOpps > 0 {
		g.openOpps--
	}
}

// ApplyFill updates the position ledger and daily P&L from a
// confirmed fill. This is the only path that mutates live Position
// state, per spec.md §3's "Positions ... updated only by confirmed
// fill events" invariant.
func (g *Governor) ApplyFill(f domain.Fill) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, pnlDelta := applyFillToLedger(g.positions[f.Ticker], f)
	g.positions[f.Ticker] = pos
	g.dailyPnLCent += pnlDelta

	telemetry.DailyPnLCents.Set(float64(g.dailyPnLCent))
	// Realized-only circuit breaker; see the deviation note on Admit.
	if g.cfg.MaxDailyLossCents > 0 && g.dailyPnLCent <= -g.cfg.MaxDailyLossCents {
		g.killSwitch = true
		telemetry.KillSwitchEngaged.Set(1)
	}
}

// ApplyShadowFill runs a dry-run engine's synthetic fill through the
// same cost-basis and realized-P&L arithmetic as ApplyFill, but against
// the shadow ledger only: no kill-switch engagement, no telemetry, and
// the live positions/dailyPnLCent this governor is actually admitting
// against are untouched.
func (g *Governor) ApplyShadowFill(f domain.Fill) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, pnlDelta := applyFillToLedger(g.shadowPositions[f.Ticker], f)
	g.shadowPositions[f.Ticker] = pos
	g.shadowPnLCent += pnlDelta
}

// applyFillToLedger folds one fill into a position, returning the
// updated position and the realized-P&L delta (fees included, in
// cents) the caller should add to its running daily total. Shared by
// the live and shadow ledgers so dry-run accounting exercises exactly
// the arithmetic real trading does.
func applyFillToLedger(pos domain.Position, f domain.Fill) (domain.Position, int) {
	pos.Ticker = f.Ticker

	signedCount := f.Count
	if f.Action == domain.ActionSell {
		signedCount = -signedCount
	}

	realizedCent := 0
	if pos.NetContracts == 0 || sameSign(pos.NetContracts, signedCount) {
		totalCost := pos.AvgEntryCent*float64(abs(pos.NetContracts)) + float64(f.PriceCent)*float64(abs(signedCount))
		pos.NetContracts += signedCount
		if pos.NetContracts != 0 {
			pos.AvgEntryCent = totalCost / float64(abs(pos.NetContracts))
		}
	} else {
		closing := signedCount
		if abs(closing) > abs(pos.NetContracts) {
			closing = -pos.NetContracts
		}
		realized := (float64(f.PriceCent) - pos.AvgEntryCent) * float64(sign(pos.NetContracts)) * float64(abs(closing))
		pos.RealizedPnL += realized
		realizedCent = int(realized)

		oldSign := sign(pos.NetContracts)
		pos.NetContracts += signedCount
		if pos.NetContracts == 0 {
			pos.AvgEntryCent = 0
		} else if sign(pos.NetContracts) != oldSign {
			// The fill flipped the position through zero: the
			// residual is a fresh position entered at this fill's
			// price, not at the prior side's average.
			pos.AvgEntryCent = float64(f.PriceCent)
		}
	}

	pos.UpdatedAt = f.FilledAt
	realizedCent -= f.FeeCent
	return pos, realizedCent
}

// Position returns a copy of the current position for ticker.
func (g *Governor) Position(ticker string) domain.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.positions[ticker]
}

// Positions returns a copy of every tracked position.
func (g *Governor) Positions() map[string]domain.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]domain.Position, len(g.positions))
	for k, v := range g.positions {
		out[k] = v
	}
	return out
}

// DailyPnLCents returns the realized P&L (minus fees) for the current
// trading day.
func (g *Governor) DailyPnLCents() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dailyPnLCent
}

// ShadowPositions returns a copy of every dry-run shadow position —
// what the ledger would look like had dry-run fills been real.
func (g *Governor) ShadowPositions() map[string]domain.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]domain.Position, len(g.shadowPositions))
	for k, v := range g.shadowPositions {
		out[k] = v
	}
	return out
}

// ShadowDailyPnLCents returns the dry-run shadow ledger's realized P&L
// for the current trading day.
func (g *Governor) ShadowDailyPnLCents() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shadowPnLCent
}

// SetKillSwitch engages or disengages the global halt.
func (g *Governor) SetKillSwitch(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitch = on
	if on {
		telemetry.KillSwitchEngaged.Set(1)
	} else {
		telemetry.KillSwitchEngaged.Set(0)
	}
}

// KillSwitch reports whether the global halt is engaged.
func (g *Governor) KillSwitch() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.killSwitch
}

// ResetDaily clears the daily P&L counters (live and shadow); called
// by the orchestrator at the start of each trading day.
func (g *Governor) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnLCent = 0
	g.shadowPnLCent = 0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	return 1
}

func sameSign(a, b int) bool {
	return (a >= 0) == (b >= 0)
}
