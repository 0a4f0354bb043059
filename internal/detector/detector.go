// Package detector is the Violation Detector (C3): it joins the
// Market Cache and the Relationship Catalog on every scan cycle and
// turns live prices into scored, time-bounded Opportunities.
//
// The per-relationship violation check generalizes the teacher's
// checkConvergenceArbitrage (internal/app/app.go), which already
// detects the same shape of constraint — YES+NO should sum to 100 —
// as a single hardcoded case of what this package treats as one
// RelationKind among four.
package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kalshi-arb/arbcore/internal/catalog"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/logging"
	"github.com/kalshi-arb/arbcore/internal/market"
	"github.com/kalshi-arb/arbcore/internal/telemetry"
	"go.uber.org/zap"
)

// FeeEstimator is the narrow interface used to price fees for a
// candidate set of legs before an opportunity is emitted.
type FeeEstimator interface {
	Estimate(ctx context.Context, legs []domain.Leg, count int) (cents int, err error)
}

// SizingOracle supplies the desired contract count a candidate
// opportunity should be sized to, given observed liquidity. The risk
// governor implements this (it owns position/balance state); the
// detector only consumes it to decide whether an opportunity clears
// the minimum-size bar before emission.
type SizingOracle interface {
	SizeFor(legs []domain.Leg) (count int, err error)
}

// Config holds the detector's tunables, mirrored from
// SPEC_FULL.md §6 / config.DetectConfig.
type Config struct {
	OpportunityTTL             time.Duration
	MinScoreThreshold          float64
	FeeSafetyMultiplier        float64
	PartitionEpsilonCents      int
	ImplicationSoftThresholdC  int
	KappaFloor                 float64
	RequireHumanForImplication bool
}

// Detector runs scan cycles over the catalog's active relationships.
type Detector struct {
	cache *market.Cache
	cat   *catalog.Catalog
	fees  FeeEstimator
	sizer SizingOracle
	cfg   Config
	log   *zap.Logger
}

func New(cache *market.Cache, cat *catalog.Catalog, fees FeeEstimator, sizer SizingOracle, cfg Config, log *zap.Logger) *Detector {
	return &Detector{cache: cache, cat: cat, fees: fees, sizer: sizer, cfg: cfg, log: log}
}

// Scan computes violations for every active relationship and returns
// the resulting opportunities, deterministically ordered by
// relationship ID then signal.
func (d *Detector) Scan(ctx context.Context, now time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	for _, r := range d.cat.Active() {
		view, err := d.cache.PriceView(r.Tickers)
		if err != nil {
			continue
		}
		allOpen := true
		for _, m := range view.Markets {
			if m.Status != domain.MarketOpen {
				allOpen = false
				break
			}
		}
		if !allOpen {
			continue
		}
		var candidates []candidate
		switch r.Kind {
		case domain.KindSubset:
			candidates = d.checkSubset(r, view)
		case domain.KindThreshold:
			candidates = d.checkThreshold(r, view)
		case domain.KindPartition:
			candidates = d.checkPartition(r, view)
		case domain.KindImplication:
			candidates = d.checkImplication(r, view)
		}
		for _, c := range candidates {
			opp, ok := d.materialize(ctx, r, c, now)
			if !ok {
				continue
			}
			out = append(out, opp)
			telemetry.OpportunitiesDetected.WithLabelValues(string(r.Kind)).Inc()
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RelationshipID != out[j].RelationshipID {
			return out[i].RelationshipID < out[j].RelationshipID
		}
		return out[i].Signal < out[j].Signal
	})
	return out
}

// candidate is an internal, pre-sizing violation finding.
type candidate struct {
	signal   string
	legs     []domain.Leg
	rawEdge  int
}

func (d *Detector) checkSubset(r domain.Relationship, view market.PriceView) []candidate {
	a, b := r.Tickers[0], r.Tickers[1]
	qa, okA := view.Quote(a)
	qb, okB := view.Quote(b)
	if !okA || !okB {
		return nil
	}
	// P(a) <= P(b) required. Violated when yes_ask(a) + (100 - yes_bid(b)) > 100,
	// i.e. yes_ask(a) > yes_bid(b).
	if qa.YesAsk <= qb.YesBid {
		return nil
	}
	edge := qa.YesAsk - qb.YesBid
	legs := orderLeastLiquidFirst([]domain.Leg{
		{Ticker: b, Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: qb.YesAsk, ObservedDepth: qb.YesAskDepth},
		{Ticker: a, Side: domain.SideYes, Action: domain.ActionSell, LimitPriceCent: qa.YesBid, ObservedDepth: qa.YesBidDepth},
	})
	return []candidate{{signal: "BUY_SUPERSET_SELL_SUBSET", legs: legs, rawEdge: edge}}
}

func (d *Detector) checkThreshold(r domain.Relationship, view market.PriceView) []candidate {
	var out []candidate
	for i := 0; i+1 < len(r.Tickers); i++ {
		lo, hi := r.Tickers[i], r.Tickers[i+1]
		qLo, okLo := view.Quote(lo)
		qHi, okHi := view.Quote(hi)
		if !okLo || !okHi {
			continue
		}
		if qHi.YesAsk <= qLo.YesBid {
			continue
		}
		edge := qHi.YesAsk - qLo.YesBid
		legs := orderLeastLiquidFirst([]domain.Leg{
			{Ticker: lo, Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: qLo.YesAsk, ObservedDepth: qLo.YesAskDepth},
			{Ticker: hi, Side: domain.SideYes, Action: domain.ActionSell, LimitPriceCent: qHi.YesBid, ObservedDepth: qHi.YesBidDepth},
		})
		out = append(out, candidate{signal: fmt.Sprintf("THRESHOLD_%s_%s", lo, hi), legs: legs, rawEdge: edge})
	}
	return out
}

func (d *Detector) checkPartition(r domain.Relationship, view market.PriceView) []candidate {
	sumAsk, sumBid := 0, 0
	legsAsk := make([]domain.Leg, 0, len(r.Tickers))
	legsBid := make([]domain.Leg, 0, len(r.Tickers))
	for _, t := range r.Tickers {
		q, ok := view.Quote(t)
		if !ok {
			return nil
		}
		sumAsk += q.YesAsk
		sumBid += q.YesBid
		legsAsk = append(legsAsk, domain.Leg{Ticker: t, Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: q.YesAsk, ObservedDepth: q.YesAskDepth})
		legsBid = append(legsBid, domain.Leg{Ticker: t, Side: domain.SideYes, Action: domain.ActionSell, LimitPriceCent: q.YesBid, ObservedDepth: q.YesBidDepth})
	}

	eps := d.cfg.PartitionEpsilonCents
	var out []candidate
	if sumAsk < 100-eps {
		out = append(out, candidate{signal: "BUY_ALL", legs: legsAsk, rawEdge: 100 - sumAsk})
	}
	if sumBid > 100+eps {
		out = append(out, candidate{signal: "SELL_ALL", legs: legsBid, rawEdge: sumBid - 100})
	}
	return out
}

func (d *Detector) checkImplication(r domain.Relationship, view market.PriceView) []candidate {
	if r.Kappa < d.cfg.KappaFloor {
		return nil
	}
	ifT, thenT := r.Tickers[0], r.Tickers[1]
	qIf, okIf := view.Quote(ifT)
	qThen, okThen := view.Quote(thenT)
	if !okIf || !okThen {
		return nil
	}
	edge := qIf.YesBid - qThen.YesAsk
	if edge <= d.cfg.ImplicationSoftThresholdC {
		return nil
	}
	legs := orderLeastLiquidFirst([]domain.Leg{
		{Ticker: thenT, Side: domain.SideYes, Action: domain.ActionBuy, LimitPriceCent: qThen.YesAsk, ObservedDepth: qThen.YesAskDepth},
		{Ticker: ifT, Side: domain.SideYes, Action: domain.ActionSell, LimitPriceCent: qIf.YesBid, ObservedDepth: qIf.YesBidDepth},
	})
	return []candidate{{signal: "BUY_THEN_SELL_IF", legs: legs, rawEdge: edge}}
}

// orderLeastLiquidFirst reorders two-leg candidates so the
// shallower-depth leg executes first, per spec.md §4.3.
func orderLeastLiquidFirst(legs []domain.Leg) []domain.Leg {
	if len(legs) == 2 && legs[1].ObservedDepth < legs[0].ObservedDepth {
		return []domain.Leg{legs[1], legs[0]}
	}
	return legs
}

func (d *Detector) materialize(ctx context.Context, r domain.Relationship, c candidate, now time.Time) (domain.Opportunity, bool) {
	count, err := d.sizer.SizeFor(c.legs)
	if err != nil || count < 1 {
		return domain.Opportunity{}, false
	}
	for i := range c.legs {
		c.legs[i].DesiredCount = count
	}

	feeCents, err := d.fees.Estimate(ctx, c.legs, count)
	if err != nil {
		return domain.Opportunity{}, false
	}

	netMagnitude := c.rawEdge*count - feeCents
	if float64(netMagnitude) < d.cfg.FeeSafetyMultiplier*float64(feeCents) {
		return domain.Opportunity{}, false
	}

	minDepth := c.legs[0].ObservedDepth
	for _, l := range c.legs {
		if l.ObservedDepth < minDepth {
			minDepth = l.ObservedDepth
		}
	}
	liquidityFactor := 0.0
	if count > 0 {
		liquidityFactor = float64(minDepth) / float64(count)
	}
	if liquidityFactor > 1 {
		liquidityFactor = 1
	}
	if liquidityFactor < 0 {
		liquidityFactor = 0
	}

	score := float64(netMagnitude) * r.Confidence * liquidityFactor
	if score < d.cfg.MinScoreThreshold {
		return domain.Opportunity{}, false
	}

	opp := domain.Opportunity{
		ID:             uuid.NewString(),
		RelationshipID: r.ID,
		RelationKind:   r.Kind,
		Signal:         c.signal,
		Legs:           c.legs,
		RawEdgeCents:   c.rawEdge,
		FeeEstimate:    feeCents,
		NetMagnitude:   netMagnitude,
		LiquidityFac:   liquidityFactor,
		Confidence:     r.Confidence,
		Score:          score,
		DesiredCount:   count,
		State:          domain.StateDetected,
		DetectedAt:     now,
		ExpiresAt:      now.Add(d.cfg.OpportunityTTL),
	}

	d.log.Debug("opportunity detected",
		logging.Relationship(r.ID), logging.Signal(c.signal),
		logging.EdgeCents(c.rawEdge), logging.NetMagnitude(netMagnitude), logging.Score(score))

	return opp, true
}
