// Package pricefeed polls CoinGecko for the BTC price shown next to the
// analysis dashboard.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rawblock/wallet-anomaly-engine/internal/forecast"
)

// DefaultBaseURL is the public CoinGecko API (free, no key required).
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrUnavailable is returned when no quote can be served.
var ErrUnavailable = errors.New("price feed unavailable")

// Quote is a BTC spot price in USD and INR.
type Quote struct {
	USD          float64   `json:"usd"`
	INR          float64   `json:"inr"`
	USDChange24h float64   `json:"usd24hChange"`
	INRChange24h float64   `json:"inr24hChange"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// Client talks to the CoinGecko REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SimplePrice fetches the current bitcoin price with its 24h change.
func (c *Client) SimplePrice(ctx context.Context) (Quote, error) {
	q := url.Values{}
	q.Set("ids", "bitcoin")
	q.Set("vs_currencies", "usd,inr")
	q.Set("include_24hr_change", "true")

	var result struct {
		Bitcoin struct {
			USD          float64 `json:"usd"`
			INR          float64 `json:"inr"`
			USDChange24h float64 `json:"usd_24h_change"`
			INRChange24h float64 `json:"inr_24h_change"`
		} `json:"bitcoin"`
	}
	if err := c.get(ctx, "/simple/price", q, &result); err != nil {
		return Quote{}, errors.Wrap(err, "simple price")
	}
	if result.Bitcoin.USD <= 0 {
		return Quote{}, errors.Errorf("invalid price returned: %f", result.Bitcoin.USD)
	}

	return Quote{
		USD:          result.Bitcoin.USD,
		INR:          result.Bitcoin.INR,
		USDChange24h: result.Bitcoin.USDChange24h,
		INRChange24h: result.Bitcoin.INRChange24h,
		FetchedAt:    time.Now().UTC(),
	}, nil
}

// MarketChart fetches daily USD closing prices for the last days days.
func (c *Client) MarketChart(ctx context.Context, days int) ([]forecast.PricePoint, error) {
	if days <= 0 {
		return nil, errors.Errorf("days must be positive, got %d", days)
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprintf("%d", days))
	q.Set("interval", "daily")

	var result struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := c.get(ctx, "/coins/bitcoin/market_chart", q, &result); err != nil {
		return nil, errors.Wrap(err, "market chart")
	}

	points := make([]forecast.PricePoint, 0, len(result.Prices))
	for _, p := range result.Prices {
		points = append(points, forecast.PricePoint{
			Date:  time.UnixMilli(int64(p[0])).UTC(),
			Price: p[1],
		})
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to fetch price")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("price API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode price response")
	}
	return nil
}
