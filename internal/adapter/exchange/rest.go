// rest.go is a reference implementation of Client against a
// Kalshi-shaped REST API: integer-cent yes/no quotes, opaque string
// tickers, API-key header authentication. It follows the retrieved
// 0xtitan6-polymarket-mm exchange.Client's shape (resty client with
// rate limiting, retries on 5xx, JSON unmarshal into typed results)
// but drops EIP-712 order signing, since this domain has no on-chain
// settlement. Requests are not signed at all: each carries only the
// API-key header, and the configured API secret is not used.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kalshi-arb/arbcore/internal/domain"
)

// RESTClient implements Client over HTTPS.
type RESTClient struct {
	http *resty.Client
	rl   *TokenBucket
}

// RESTConfig configures the reference client.
type RESTConfig struct {
	BaseURL       string
	APIKeyID      string
	APISecret     string
	Timeout       time.Duration
	RateLimitRPS  int
}

func NewRESTClient(cfg RESTConfig) *RESTClient {
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("KALSHI-ACCESS-KEY", cfg.APIKeyID).
		SetHeader("Content-Type", "application/json")

	rate := float64(cfg.RateLimitRPS)
	if rate <= 0 {
		rate = 5
	}
	return &RESTClient{http: h, rl: NewTokenBucket(rate*2, rate)}
}

type marketDTO struct {
	Ticker     string `json:"ticker"`
	EventKey   string `json:"event_ticker"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	YesBid     int    `json:"yes_bid"`
	YesAsk     int    `json:"yes_ask"`
	NoBid      int    `json:"no_bid"`
	NoAsk      int    `json:"no_ask"`
	RulesHash  string `json:"rules_fingerprint"`
	CloseTime  string `json:"close_time"`
}

func (d marketDTO) toDomain() domain.Market {
	closeTime, _ := time.Parse(time.RFC3339, d.CloseTime)
	return domain.Market{
		Ticker:           d.Ticker,
		EventKey:         d.EventKey,
		Title:            d.Title,
		RulesFingerprint: d.RulesHash,
		Status:           domain.MarketStatus(d.Status),
		CloseTime:        closeTime,
		LastUpdate:       time.Now(),
		Quote: domain.Quote{
			YesBid: d.YesBid, YesAsk: d.YesAsk,
			NoBid: d.NoBid, NoAsk: d.NoAsk,
		},
	}
}

func (c *RESTClient) ListOpenMarkets(ctx context.Context, cursor string) ([]domain.Market, string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, "", err
	}
	var out struct {
		Markets    []marketDTO `json:"markets"`
		NextCursor string      `json:"cursor"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("status", "open").
		SetQueryParam("cursor", cursor).
		SetResult(&out).
		Get("/markets")
	if err != nil {
		return nil, "", fmt.Errorf("list open markets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, "", fmt.Errorf("list open markets: status %d: %s", resp.StatusCode(), resp.String())
	}
	markets := make([]domain.Market, 0, len(out.Markets))
	for _, m := range out.Markets {
		markets = append(markets, m.toDomain())
	}
	return markets, out.NextCursor, nil
}

func (c *RESTClient) ListEvents(ctx context.Context) ([]domain.Event, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		Events []struct {
			Key     string   `json:"event_ticker"`
			Title   string   `json:"title"`
			Tickers []string `json:"markets"`
		} `json:"events"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/events")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list events: status %d: %s", resp.StatusCode(), resp.String())
	}
	events := make([]domain.Event, 0, len(out.Events))
	for _, e := range out.Events {
		events = append(events, domain.Event{Key: e.Key, Title: e.Title, Tickers: e.Tickers})
	}
	return events, nil
}

func (c *RESTClient) GetOrderbook(ctx context.Context, ticker string) (domain.Quote, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.Quote{}, err
	}
	var out struct {
		YesBid, YesAsk, NoBid, NoAsk                     int
		YesBidDepth, YesAskDepth, NoBidDepth, NoAskDepth int
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("ticker", ticker).SetResult(&out).Get("/orderbook")
	if err != nil {
		return domain.Quote{}, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("get orderbook %s: status %d: %s", ticker, resp.StatusCode(), resp.String())
	}
	return domain.Quote{
		YesBid: out.YesBid, YesAsk: out.YesAsk, NoBid: out.NoBid, NoAsk: out.NoAsk,
		YesBidDepth: out.YesBidDepth, YesAskDepth: out.YesAskDepth,
		NoBidDepth: out.NoBidDepth, NoAskDepth: out.NoAskDepth,
	}, nil
}

func (c *RESTClient) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return "", err
	}
	body := map[string]any{
		"ticker":          req.Ticker,
		"side":            req.Side,
		"action":          req.Action,
		"count":           req.Count,
		"yes_price":       req.LimitPriceCent,
		"expiration_ts":   req.ExpirationTime.Unix(),
		"client_order_id": req.IdempotencyKey,
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/orders")
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.OrderID, nil
}

func (c *RESTClient) GetOrder(ctx context.Context, orderID string) (OrderReport, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return OrderReport{}, err
	}
	var out struct {
		Status       string `json:"status"`
		FilledCount  int    `json:"filled_count"`
		AvgPriceCent int    `json:"avg_price_cent"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/orders/" + orderID)
	if err != nil {
		return OrderReport{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return OrderReport{}, fmt.Errorf("get order %s: status %d: %s", orderID, resp.StatusCode(), resp.String())
	}
	return OrderReport{OrderID: orderID, Status: OrderStatus(out.Status), FilledCount: out.FilledCount, AvgPriceCent: out.AvgPriceCent}, nil
}

func (c *RESTClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Delete("/orders/" + orderID)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("cancel order %s: status %d: %s", orderID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *RESTClient) ListPositions(ctx context.Context) (map[string]int, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		Positions []struct {
			Ticker       string `json:"ticker"`
			NetContracts string `json:"net_contracts"`
		} `json:"positions"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list positions: status %d: %s", resp.StatusCode(), resp.String())
	}
	result := make(map[string]int, len(out.Positions))
	for _, p := range out.Positions {
		n, err := strconv.Atoi(p.NetContracts)
		if err != nil {
			continue
		}
		result[p.Ticker] = n
	}
	return result, nil
}
