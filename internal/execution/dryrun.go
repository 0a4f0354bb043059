package execution

import (
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
)

// simulateFill synthesizes a full fill at the leg's limit price, the
// same shape as a live Fill. This is the dry-run path: detection and
// sizing run unchanged, only the exchange interaction is synthetic,
// following the retrieved teacher paper.Simulator's fill-at-quoted-
// price approach (no slippage model is needed here since the engine
// already executes at the detector's observed limit price, not at a
// simulated market order).
func (e *Engine) simulateFill(opportunityID string, leg domain.Leg, count int) domain.Fill {
	return domain.Fill{
		OpportunityID: opportunityID,
		Ticker:        leg.Ticker,
		Side:          leg.Side,
		Action:        leg.Action,
		Count:         count,
		PriceCent:     leg.LimitPriceCent,
		FilledAt:      time.Now(),
	}
}
