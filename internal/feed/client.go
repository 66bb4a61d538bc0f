package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/quantfold/perpsim/pkg/types"
	"go.uber.org/zap"
)

// Client is an HTTP client for the external market data API. It implements
// both BookSource and RateSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a feed client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// bookResponse is the wire format of the order-book endpoint: levels are
// [price, quantity] string pairs, timestamp is epoch milliseconds.
type bookResponse struct {
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Timestamp string     `json:"ts"`
}

// GetOrderBook fetches a level-2 snapshot for the given market id. Bids come
// back sorted descending by price, asks ascending; zero-quantity levels are
// dropped.
func (c *Client) GetOrderBook(ctx context.Context, marketID string) (*types.BookSnapshot, error) {
	endpoint := fmt.Sprintf("%s/api/v5/market/books", c.baseURL)

	params := url.Values{}
	params.Add("instId", marketID)
	params.Add("sz", "50")

	body, err := c.get(ctx, fmt.Sprintf("%s?%s", endpoint, params.Encode()))
	if err != nil {
		return nil, err
	}

	var raw bookResponse
	err = json.Unmarshal(body, &raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal book response: %w", err)
	}

	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}

	// The matcher requires bid-descending / ask-ascending order.
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	snap := &types.BookSnapshot{
		Bids:      bids,
		Asks:      asks,
		Timestamp: parseTimestamp(raw.Timestamp),
	}
	return snap, nil
}

// fundingResponse is the wire format of the funding-rate endpoint.
type fundingResponse struct {
	Rates []struct {
		Symbol   string `json:"symbol"`
		Rate     string `json:"fundingRate"`
		Exchange string `json:"exchange"`
	} `json:"rates"`
}

// FundingRates fetches the published per-period funding rates.
func (c *Client) FundingRates(ctx context.Context) ([]FundingRate, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/api/v5/public/funding-rates", c.baseURL))
	if err != nil {
		return nil, err
	}

	var raw fundingResponse
	err = json.Unmarshal(body, &raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal funding response: %w", err)
	}

	rates := make([]FundingRate, 0, len(raw.Rates))
	for _, r := range raw.Rates {
		rate, err := strconv.ParseFloat(r.Rate, 64)
		if err != nil {
			c.logger.Warn("skip-unparseable-funding-rate",
				zap.String("symbol", r.Symbol),
				zap.String("rate", r.Rate))
			continue
		}
		rates = append(rates, FundingRate{
			Symbol:   types.NormalizeSymbol(r.Symbol),
			Rate:     rate,
			Exchange: r.Exchange,
		})
	}
	return rates, nil
}

func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "perpsim/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		RequestErrorsTotal.Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		RequestErrorsTotal.Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func parseLevels(raw [][]string) ([]types.BookLevel, error) {
	levels := make([]types.BookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level needs [price, quantity], got %d fields", len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", pair[1], err)
		}
		if price <= 0 || qty <= 0 {
			continue
		}
		levels = append(levels, types.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

func parseTimestamp(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
