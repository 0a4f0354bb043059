// ws.go is a reference streaming ingestion adapter: a single
// reconnecting WebSocket feed that pushes quote-change events into
// the Market Cache. Reconnect-with-backoff and a read-deadline watch-
// dog follow the retrieved 0xtitan6-polymarket-mm exchange.WSFeed;
// this adapter collapses its two channels (market/user) into one,
// since this domain has no per-user private feed to merge.
package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kalshi-arb/arbcore/internal/domain"
	"go.uber.org/zap"
)

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

type quoteEvent struct {
	Ticker           string `json:"ticker"`
	Status           string `json:"status"`
	RulesFingerprint string `json:"rules_fingerprint"`
	YesBid           int    `json:"yes_bid"`
	YesAsk           int    `json:"yes_ask"`
	NoBid            int    `json:"no_bid"`
	NoAsk            int    `json:"no_ask"`
}

// MarketFeed streams quote updates from the exchange's public
// WebSocket channel, reconnecting with exponential backoff.
type MarketFeed struct {
	url string
	log *zap.Logger
}

func NewMarketFeed(wsURL string, log *zap.Logger) *MarketFeed {
	return &MarketFeed{url: wsURL, log: log}
}

// Run connects, subscribes to every ticker, and invokes onQuote for
// each update until ctx is cancelled. It reconnects on any read error
// or missed-ping timeout with exponential backoff capped at
// maxReconnectWait.
func (f *MarketFeed) Run(ctx context.Context, tickers []string, onQuote func(domain.Market)) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := f.runOnce(ctx, tickers, onQuote); err != nil {
			f.log.Warn("market feed disconnected, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxReconnectWait {
				backoff = maxReconnectWait
			}
			continue
		}
		backoff = time.Second
	}
}

func (f *MarketFeed) runOnce(ctx context.Context, tickers []string, onQuote func(domain.Market)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]any{"cmd": "subscribe", "tickers": tickers}); err != nil {
		return err
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev quoteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			f.log.Warn("market feed: malformed event", zap.Error(err))
			continue
		}
		onQuote(domain.Market{
			Ticker:           ev.Ticker,
			Status:           domain.MarketStatus(ev.Status),
			RulesFingerprint: ev.RulesFingerprint,
			LastUpdate:       time.Now(),
			Quote: domain.Quote{
				YesBid: ev.YesBid, YesAsk: ev.YesAsk,
				NoBid: ev.NoBid, NoAsk: ev.NoAsk,
			},
		})
	}
}
