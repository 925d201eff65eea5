package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"FinSheet/internal/domain/models"
	"FinSheet/internal/service/ratelimit"
	xhttp "FinSheet/pkg/http"
	applogger "FinSheet/pkg/logger"
)

// Provider request budget: most market-data plans sit around a call per
// second with small bursts.
const (
	fetchBurst     = 10.0
	fetchPerSecond = 2.0
)

// Client polls a market-data provider's REST API for daily bars and
// fundamental statements. The pipeline runs on periodic batch refresh, so a
// plain poll is all that is needed here.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	l       *applogger.Logger
}

// New creates a provider client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: ratelimit.New(),
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// ErrRateLimited signals the caller to back off and retry with jitter.
var ErrRateLimited = errors.New("provider rate limited")

// APIError carries the HTTP status of a failed provider call so callers can
// tell transient failures from permanent ones.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api status %d: %s", e.Status, e.Body)
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts,
// server-side failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusTooManyRequests ||
			ae.Status == http.StatusRequestTimeout || ae.Status >= 500
	}
	// transport-level errors (connection reset, timeout) arrive unwrapped
	return true
}

type barPayload struct {
	Timestamp int64   `json:"t"` // unix seconds
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type statementPayload struct {
	Period   string   `json:"period"` // RFC3339
	Revenue  *float64 `json:"revenue"`
	Earnings *float64 `json:"earnings"`
	Debt     *float64 `json:"debt"`
	Equity   *float64 `json:"equity"`
	Assets   *float64 `json:"assets"`
}

// FetchBars returns up to limit daily bars for symbol, ascending.
func (c *Client) FetchBars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	if !c.limiter.Allow("provider", fetchBurst, fetchPerSecond) {
		return nil, ErrRateLimited
	}
	var resp struct {
		Bars []barPayload `json:"bars"`
	}
	err := c.doJSON(ctx, fmt.Sprintf("%s/v1/bars", c.baseURL), map[string][]string{
		"symbol": {symbol},
		"limit":  {fmt.Sprintf("%d", limit)},
		"token":  {c.apiKey},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
	}

	out := make([]models.PriceBar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		out = append(out, models.PriceBar{
			Symbol:    symbol,
			Timestamp: time.Unix(b.Timestamp, 0).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	if c.l != nil {
		c.l.Debug("provider bars ok", applogger.String("symbol", symbol), applogger.Int("bars", len(out)))
	}
	return out, nil
}

// FetchStatements returns the reported fundamental periods for symbol,
// ascending. Absent payload fields map to Missing so the analyzer can branch
// on presence explicitly.
func (c *Client) FetchStatements(ctx context.Context, symbol string) ([]models.FinancialStatement, error) {
	if !c.limiter.Allow("provider", fetchBurst, fetchPerSecond) {
		return nil, ErrRateLimited
	}
	var resp struct {
		Statements []statementPayload `json:"statements"`
	}
	err := c.doJSON(ctx, fmt.Sprintf("%s/v1/fundamentals", c.baseURL), map[string][]string{
		"symbol": {symbol},
		"token":  {c.apiKey},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch statements %s: %w", symbol, err)
	}

	out := make([]models.FinancialStatement, 0, len(resp.Statements))
	for _, p := range resp.Statements {
		period, err := time.Parse(time.RFC3339, p.Period)
		if err != nil {
			if c.l != nil {
				c.l.Warn("provider statement with bad period",
					applogger.String("symbol", symbol), applogger.String("period", p.Period))
			}
			continue
		}
		out = append(out, models.FinancialStatement{
			Symbol: symbol,
			Period: period.UTC(),
			Fields: map[string]models.FieldValue{
				models.FieldRevenue:  field(p.Revenue),
				models.FieldEarnings: field(p.Earnings),
				models.FieldDebt:     field(p.Debt),
				models.FieldEquity:   field(p.Equity),
				models.FieldAssets:   field(p.Assets),
			},
		})
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, url string, query map[string][]string, dest interface{}) error {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         url,
		QueryParams: query,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func field(v *float64) models.FieldValue {
	if v == nil {
		return models.Missing()
	}
	return models.Present(*v)
}
