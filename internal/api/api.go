// Package api is the read/control HTTP surface for the running
// process: status, the active relationship catalog, positions, and a
// kill-switch toggle. Trimmed from the teacher's internal/api/server.go
// dashboard-and-reporting surface (orders/trades/CSV exports/builder
// volume/grant reports — none of which this domain has) down to the
// handful of endpoints SPEC_FULL.md's "control plane" calls for, kept
// on the same net/http.ServeMux + JSON-response idiom.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"go.uber.org/zap"
)

// PositionSource is satisfied by risk.Governor.
type PositionSource interface {
	Positions() map[string]domain.Position
	DailyPnLCents() int
	KillSwitch() bool
	SetKillSwitch(bool)
}

// RelationshipSource is satisfied by catalog.Catalog.
type RelationshipSource interface {
	Active() []domain.Relationship
}

// ScanSource is satisfied by detector.Detector; Scan is re-run
// on-demand for the /opportunities endpoint rather than cached, since
// opportunities are intentionally short-lived (spec.md §4.4's TTL).
type ScanSource interface {
	Scan(ctx context.Context, now time.Time) []domain.Opportunity
}

// Server is a lightweight control-plane HTTP API.
type Server struct {
	addr      string
	positions PositionSource
	relations RelationshipSource
	scanner   ScanSource
	log       *zap.Logger
	startedAt time.Time

	httpServer *http.Server
}

func New(addr string, positions PositionSource, relations RelationshipSource, scanner ScanSource, log *zap.Logger) *Server {
	s := &Server{
		addr:      addr,
		positions: positions,
		relations: relations,
		scanner:   scanner,
		log:       log,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/relationships", s.handleRelationships)
	mux.HandleFunc("/api/opportunities", s.handleOpportunities)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/kill-switch", s.handleKillSwitch)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("api server listening", zap.String("addr", s.addr))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/status — top-level snapshot of risk state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"uptime_s":        time.Since(s.startedAt).Seconds(),
		"kill_switch":     s.positions.KillSwitch(),
		"daily_pnl_cents": s.positions.DailyPnLCents(),
	})
}

// GET /api/relationships — the active catalog.
func (s *Server) handleRelationships(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.relations.Active())
}

// GET /api/opportunities — a fresh on-demand detector scan.
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	opps := s.scanner.Scan(r.Context(), time.Now())
	s.writeJSON(w, opps)
}

// GET /api/positions — the live position ledger.
func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.positions.Positions())
}

// POST /api/kill-switch {"engage": true} — engage or disengage the
// global halt. This is the operator-facing half of the force-flat
// control named in SPEC_FULL.md's control plane: engaging the kill
// switch stops new admissions immediately; any already-open position
// still needs a manual or strategy-driven unwind, since the API has no
// direct order-placement path of its own.
func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.writeJSON(w, map[string]bool{"engaged": s.positions.KillSwitch()})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Engage bool `json:"engage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.positions.SetKillSwitch(body.Engage)
	s.log.Info("kill switch toggled via api", zap.Bool("engaged", body.Engage))
	s.writeJSON(w, map[string]bool{"engaged": body.Engage})
}
