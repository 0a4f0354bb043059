// Package llm is a reference adapter for the external relationship
// discovery/revalidation collaborator (SPEC_FULL.md §6's "LLM
// adapter"). The core never parses free-form text: every response is
// a structured JSON object decoded into fixed Go structs, matching
// this pack's narrow-interface-over-HTTP style (teacher's Notifier,
// 0xtitan6's exchange.Client) rather than embedding a prompt-templating
// framework.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kalshi-arb/arbcore/internal/domain"
)

// Client discovers relationship candidates over a batch of markets
// and revalidates existing ones. It satisfies catalog.Revalidator.
type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	h := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: h}
}

// candidateDTO is the structured shape the collaborator must return —
// never free text.
type candidateDTO struct {
	Kind       string   `json:"kind"`
	Tickers    []string `json:"tickers"`
	Kappa      float64  `json:"kappa,omitempty"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// MarketSummary is what the core discloses about a market to the
// collaborator: title and rules text, never live prices (discovery is
// a structural/semantic task, not a pricing one).
type MarketSummary struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
	Rules  string `json:"rules"`
}

// Discover asks the collaborator for relationship candidates over one
// batch of markets (typically one Event's tickers).
func (c *Client) Discover(ctx context.Context, markets []MarketSummary) ([]domain.Relationship, error) {
	var out struct {
		Candidates []candidateDTO `json:"candidates"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"markets": markets}).
		SetResult(&out).
		Post("/discover")
	if err != nil {
		return nil, fmt.Errorf("llm discover: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("llm discover: status %d: %s", resp.StatusCode(), resp.String())
	}

	now := time.Now()
	rels := make([]domain.Relationship, 0, len(out.Candidates))
	for _, cand := range out.Candidates {
		rels = append(rels, domain.Relationship{
			Kind:            domain.RelationKind(cand.Kind),
			Tickers:         cand.Tickers,
			Kappa:           cand.Kappa,
			Confidence:      cand.Confidence,
			Reasoning:       cand.Reasoning,
			Status:          domain.RelationUnverified,
			CreatedAt:       now,
			LastValidatedAt: now,
		})
	}
	return rels, nil
}

// Revalidate implements catalog.Revalidator.
func (c *Client) Revalidate(ctx context.Context, r domain.Relationship, titles map[string]string) (bool, float64, error) {
	var out struct {
		StillValid bool    `json:"still_valid"`
		Confidence float64 `json:"confidence"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{
			"kind":    string(r.Kind),
			"tickers": r.Tickers,
			"kappa":   r.Kappa,
			"titles":  titles,
		}).
		SetResult(&out).
		Post("/revalidate")
	if err != nil {
		return false, 0, fmt.Errorf("llm revalidate: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, 0, fmt.Errorf("llm revalidate: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.StillValid, out.Confidence, nil
}
