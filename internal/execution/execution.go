// Package execution is the Execution Engine (C4): it takes an
// admitted, sized Opportunity and drives it to a terminal state by
// placing and polling orders against an exchange.Client. Two
// strategies are implemented: sequential least-liquid-first for
// two-leg opportunities (SUBSET/THRESHOLD/IMPLICATION), and parallel
// common-fill-then-unwind for N-leg PARTITION opportunities. Both are
// grounded on the retrieved mselser95-polymarket-arb executor's
// paper/live dispatch and fill-verification idiom, generalized from
// Polymarket's async order-placement-then-verify flow to a
// synchronous poll-to-deadline flow matching this exchange's simpler
// REST order lifecycle.
package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalshi-arb/arbcore/internal/adapter/exchange"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/kalshi-arb/arbcore/internal/telemetry"
	"go.uber.org/zap"
)

// Config controls order deadlines, hedge behavior, and the worker pool.
type Config struct {
	OrderDeadline      time.Duration
	HedgeWidenCents    int
	MaxUnwindLossCents int
	Workers            int
	QueueCapacity      int
	CancelRetries      int
	DryRun             bool
}

// Governor is the subset of risk.Governor the engine depends on.
type Governor interface {
	ApplyFill(f domain.Fill)
	// ApplyShadowFill records a dry-run engine's synthetic fill against
	// the shadow ledger only, per SPEC_FULL.md §4.5's "Positions and
	// P&L remain unmodified; a shadow ledger tracks what would have
	// happened."
	ApplyShadowFill(f domain.Fill)
	Release()
	KillSwitch() bool
}

// Alerter is notified of conditions an operator should know about
// without blocking execution: orphan orders, held partial fills.
type Alerter interface {
	Notify(ctx context.Context, subject, body string)
}

// Result is the terminal outcome of one execute() call.
type Result struct {
	OpportunityID string
	FinalState    domain.OppState
	Fills         []domain.Fill
	Err           error
}

// Engine owns a bounded queue of admitted opportunities and a pool of
// workers that drive each one to a terminal state.
type Engine struct {
	cfg     Config
	client  exchange.Client
	gov     Governor
	alerter Alerter
	log     *zap.Logger

	queue   chan domain.Opportunity
	results chan Result
}

func New(cfg Config, client exchange.Client, gov Governor, alerter Alerter, log *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1
	}
	return &Engine{
		cfg:     cfg,
		client:  client,
		gov:     gov,
		alerter: alerter,
		log:     log,
		queue:   make(chan domain.Opportunity, cfg.QueueCapacity),
		results: make(chan Result, cfg.QueueCapacity),
	}
}

// Results returns the channel on which terminal outcomes are published.
func (e *Engine) Results() <-chan Result { return e.results }

// Submit enqueues an admitted opportunity for execution. It blocks if
// the queue is full; callers that cannot block should select on
// ctx.Done() alongside this call.
func (e *Engine) Submit(ctx context.Context, opp domain.Opportunity) error {
	select {
	case e.queue <- opp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts cfg.Workers goroutines draining the queue until ctx is
// cancelled or the queue is closed.
func (e *Engine) Run(ctx context.Context) {
	for i := 0; i < e.cfg.Workers; i++ {
		go e.worker(ctx, i)
	}
}

func (e *Engine) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp, ok := <-e.queue:
			if !ok {
				return
			}
			e.runOne(ctx, opp)
		}
	}
}

func (e *Engine) runOne(ctx context.Context, opp domain.Opportunity) {
	start := time.Now()
	mode := "live"
	if e.cfg.DryRun {
		mode = "dry_run"
	}

	if !opp.Transition(domain.StateExecuting) {
		e.log.Error("illegal transition to EXECUTING", zap.String("opportunity_id", opp.ID), zap.String("from", string(opp.State)))
		return
	}

	var result Result
	if opp.RelationKind == domain.KindPartition {
		result = e.executeNLeg(ctx, opp)
	} else {
		result = e.executeTwoLeg(ctx, opp)
	}

	telemetry.ExecutionDurationSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	outcome := strings.ToLower(string(result.FinalState))
	telemetry.TradesTotal.WithLabelValues(mode, outcome).Inc()

	if result.Err != nil {
		errType := classifyError(result.Err)
		telemetry.ExecutionErrorsByType.WithLabelValues(errType).Inc()
		e.log.Error("execution failed",
			zap.String("opportunity_id", opp.ID),
			zap.String("final_state", string(result.FinalState)),
			zap.Error(result.Err))
	}

	for _, f := range result.Fills {
		if e.cfg.DryRun {
			e.gov.ApplyShadowFill(f)
		} else {
			e.gov.ApplyFill(f)
		}
	}
	e.gov.Release()

	select {
	case e.results <- result:
	default:
		e.log.Warn("execution result channel full, dropping result", zap.String("opportunity_id", opp.ID))
	}
}

// idempotencyKey implements the {opportunity_id, leg_index, attempt}
// scheme: retries of the same leg MUST reuse the same key so the
// exchange adapter can deduplicate.
func idempotencyKey(opportunityID string, legIndex, attempt int) string {
	return fmt.Sprintf("%s:%d:%d", opportunityID, legIndex, attempt)
}

// classifyError buckets an execution error for the error-type metric,
// following the retrieved mselser95-polymarket-arb executor's
// substring classification.
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "dial"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "network"):
		return "network"
	case strings.Contains(msg, "rejected"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "bad request"):
		return "exchange_rejected"
	case strings.Contains(msg, "orphan"):
		return "orphan_order"
	case strings.Contains(msg, "insufficient"),
		strings.Contains(msg, "balance"),
		strings.Contains(msg, "funds"):
		return "funds"
	default:
		return "unknown"
	}
}
