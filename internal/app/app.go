// Package app is the orchestrator: it wires the Market Cache,
// Relationship Catalog, Violation Detector, Risk Governor and
// Execution Engine into one select-loop and owns their background
// workers' lifetimes. The shape — a single Run(ctx) loop fed by
// tickers and channels, with component workers started as goroutines
// before the loop and torn down on ctx.Done() — follows the teacher's
// internal/app/app.go Run(ctx) directly; this is the strongest single
// grounding source for this package.
package app

import (
	"context"
	"time"

	"github.com/kalshi-arb/arbcore/internal/adapter/exchange"
	"github.com/kalshi-arb/arbcore/internal/catalog"
	"github.com/kalshi-arb/arbcore/internal/config"
	"github.com/kalshi-arb/arbcore/internal/detector"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/execution"
	"github.com/kalshi-arb/arbcore/internal/market"
	"github.com/kalshi-arb/arbcore/internal/risk"
	"github.com/kalshi-arb/arbcore/internal/store"
	"github.com/kalshi-arb/arbcore/internal/telemetry"
	"go.uber.org/zap"
)

// App holds every component and the configuration used to wire them.
type App struct {
	cfg    config.Config
	log    *zap.Logger
	client exchange.Client

	Cache    *market.Cache
	Catalog  *catalog.Catalog
	Detector *detector.Detector
	Governor *risk.Governor
	Engine   *execution.Engine
	Store    *store.Store

	reconciler *risk.Reconciler
	feed       *exchange.MarketFeed
}

// New constructs every component per cfg but starts nothing.
// fees/revalidator/alertSink are the external collaborators named in
// SPEC_FULL.md §6 (fee estimator, relationship revalidator, alert
// sink); the sizing oracle is the Governor itself.
func New(cfg config.Config, log *zap.Logger, client exchange.Client, wsURL string, fees detector.FeeEstimator, revalidator catalog.Revalidator, alertSink execution.Alerter, st *store.Store) *App {
	cache := market.NewCache()

	cat := catalog.New(cache, revalidator, cfg.Catalog.ConfidenceFloor, cfg.Catalog.RevalidateInterval, log)

	gov := risk.New(risk.Config{
		MaxRiskPerTradePct:    cfg.Risk.MaxRiskPerTradePct,
		MaxDailyLossCents:     cfg.Risk.MaxDailyLossCents,
		MaxOpenPositions:      cfg.Risk.MaxOpenPositions,
		MaxContractsPerTrade:  cfg.Risk.MaxContractsPerTrade,
		MaxContractsPerMarket: cfg.Risk.MaxContractsPerMarket,
		AccountBalanceCents:   cfg.Risk.AccountBalanceCents,
		KillSwitch:            cfg.Risk.KillSwitch,

		RequireHumanForImplication: cfg.Detect.RequireHumanForImplication,
	})

	det := detector.New(cache, cat, fees, gov, detector.Config{
		OpportunityTTL:             cfg.Detect.OpportunityTTL,
		MinScoreThreshold:          cfg.Detect.MinScoreThreshold,
		FeeSafetyMultiplier:        cfg.Detect.FeeSafetyMultiplier,
		PartitionEpsilonCents:      cfg.Detect.PartitionEpsilonCents,
		ImplicationSoftThresholdC:  cfg.Detect.ImplicationSoftThreshold,
		KappaFloor:                 cfg.Catalog.KappaFloor,
		RequireHumanForImplication: cfg.Detect.RequireHumanForImplication,
	}, log)

	eng := execution.New(execution.Config{
		OrderDeadline:      cfg.Exec.OrderDeadline,
		HedgeWidenCents:    cfg.Exec.HedgeWidenCents,
		MaxUnwindLossCents: cfg.Exec.MaxUnwindLossCents,
		Workers:            cfg.Exec.Workers,
		QueueCapacity:      cfg.Exec.QueueCapacity,
		CancelRetries:      cfg.Exec.CancelRetries,
		DryRun:             cfg.DryRun,
	}, client, gov, alertSink, log)

	reconciler := risk.NewReconciler(gov, client, cfg.Risk.RiskSyncInterval, log, func(ticker string, ours, theirs int) {
		log.Warn("position drift detected", zap.String("ticker", ticker), zap.Int("ours", ours), zap.Int("theirs", theirs))
		if alertSink != nil {
			alertSink.Notify(context.Background(), "position drift", ticker)
		}
	})

	var feed *exchange.MarketFeed
	if wsURL != "" {
		feed = exchange.NewMarketFeed(wsURL, log)
	}

	return &App{
		cfg: cfg, log: log, client: client,
		Cache: cache, Catalog: cat, Detector: det, Governor: gov, Engine: eng, Store: st,
		reconciler: reconciler, feed: feed,
	}
}

// Run starts every background worker and drives the detect/admit/
// execute loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.Catalog.Run(ctx)
	go func() {
		if err := a.reconciler.Run(ctx); err != nil && err != context.Canceled {
			a.log.Warn("reconciler stopped", zap.Error(err))
		}
	}()
	a.Engine.Run(ctx)

	if err := a.fullScan(ctx); err != nil {
		a.log.Error("initial market scan failed", zap.Error(err))
	}

	if a.feed != nil {
		open := a.Cache.AllOpenTickers()
		tickers := make([]string, 0, len(open))
		for t := range open {
			tickers = append(tickers, t)
		}
		go func() {
			if err := a.feed.Run(ctx, tickers, a.Cache.Apply); err != nil && err != context.Canceled {
				a.log.Warn("market feed stopped", zap.Error(err))
			}
		}()
	}

	scanInterval := a.cfg.Detect.FullScanInterval
	if scanInterval <= 0 {
		scanInterval = 60 * time.Second
	}
	fullScanTicker := time.NewTicker(scanInterval)
	defer fullScanTicker.Stop()

	recheckInterval := a.cfg.Detect.OpportunityRecheck
	if recheckInterval <= 0 {
		recheckInterval = 15 * time.Second
	}
	recheckTicker := time.NewTicker(recheckInterval)
	defer recheckTicker.Stop()

	dailyResetTimer := time.NewTimer(timeUntilMidnightUTC())
	defer dailyResetTimer.Stop()

	results := a.Engine.Results()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-fullScanTicker.C:
			if err := a.fullScan(ctx); err != nil {
				a.log.Warn("periodic market scan failed", zap.Error(err))
			}

		case <-recheckTicker.C:
			a.detectAndSubmit(ctx)

		case <-dailyResetTimer.C:
			a.Governor.ResetDaily()
			a.log.Info("daily risk reset")
			dailyResetTimer.Reset(timeUntilMidnightUTC())

		case result, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			a.handleResult(ctx, result)
		}
	}
}

// fullScan pulls every open market and event via REST and applies
// them to the cache. This stands in for the teacher's WebSocket
// orderbook bootstrap since this exchange's market/event discovery
// endpoint is pull-based rather than a subscribable stream; live
// quote updates instead arrive over the MarketFeed started above.
func (a *App) fullScan(ctx context.Context) error {
	cursor := ""
	for {
		markets, next, err := a.client.ListOpenMarkets(ctx, cursor)
		if err != nil {
			return err
		}
		for _, m := range markets {
			a.Cache.Apply(m)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	events, err := a.client.ListEvents(ctx)
	if err != nil {
		return err
	}
	for _, e := range events {
		a.Cache.ApplyEvent(e)
	}
	return nil
}

// detectAndSubmit scans for violations, admits each through the risk
// governor, and enqueues admitted opportunities for execution.
func (a *App) detectAndSubmit(ctx context.Context) {
	now := time.Now()
	opportunities := a.Detector.Scan(ctx, now)

	for _, opp := range opportunities {
		if opp.Expired(now) {
			opp.Transition(domain.StateExpired)
			continue
		}

		sized, err := a.Governor.Admit(opp)
		if err != nil {
			reason := "unknown"
			if re, ok := err.(*risk.RejectError); ok {
				reason = re.Reason
			}
			telemetry.OpportunitiesRejected.WithLabelValues(reason).Inc()
			opp.RejectReason = reason
			opp.Transition(domain.StateRejected)
			if a.Store != nil {
				_ = a.Store.RecordTransition(ctx, opp)
			}
			continue
		}

		telemetry.OpportunitiesAdmitted.WithLabelValues(string(sized.RelationKind)).Inc()
		sized.Transition(domain.StateValidated)
		if a.Store != nil {
			_ = a.Store.RecordTransition(ctx, sized)
		}

		if err := a.Engine.Submit(ctx, sized); err != nil {
			a.log.Warn("execution queue full or cancelled, releasing admission", zap.String("opportunity_id", sized.ID), zap.Error(err))
			a.Governor.Release()
		}
	}
}

func (a *App) handleResult(ctx context.Context, result execution.Result) {
	a.log.Info("opportunity reached terminal state",
		zap.String("opportunity_id", result.OpportunityID),
		zap.String("final_state", string(result.FinalState)))

	if a.Store == nil {
		return
	}
	for _, f := range result.Fills {
		if err := a.Store.RecordFill(ctx, f); err != nil {
			a.log.Warn("failed to persist fill", zap.Error(err))
		}
	}
}

func timeUntilMidnightUTC() time.Duration {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}
