package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalshi-arb/arbcore/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestDiscoverParsesStructuredCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/discover", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"kind": "SUBSET", "tickers": []string{"MAR_CUT", "JUN_CUT"}, "confidence": 0.95, "reasoning": "rate-cut timing subset"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	rels, err := c.Discover(t.Context(), []MarketSummary{{Ticker: "MAR_CUT"}, {Ticker: "JUN_CUT"}})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, domain.KindSubset, rels[0].Kind)
	require.Equal(t, domain.RelationUnverified, rels[0].Status)
	require.InDelta(t, 0.95, rels[0].Confidence, 0.0001)
}

func TestRevalidateParsesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/revalidate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"still_valid": false, "confidence": 0.4})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	stillValid, confidence, err := c.Revalidate(t.Context(), domain.Relationship{Kind: domain.KindSubset, Tickers: []string{"A", "B"}}, map[string]string{"A": "t"})
	require.NoError(t, err)
	require.False(t, stillValid)
	require.InDelta(t, 0.4, confidence, 0.0001)
}

func TestRevalidateSurfacesNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	c.http.SetRetryCount(0)
	_, _, err := c.Revalidate(t.Context(), domain.Relationship{Kind: domain.KindSubset, Tickers: []string{"A", "B"}}, nil)
	require.Error(t, err)
}
