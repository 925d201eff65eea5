package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"FinSheet/internal/domain/models"
	drepo "FinSheet/internal/domain/repository"
	"FinSheet/internal/service/ratelimit"
	xhttp "FinSheet/pkg/http"
	applogger "FinSheet/pkg/logger"

	"golang.org/x/oauth2"
)

// Write budget against the sheet API. The service throttles around one write
// per second sustained; the bucket allows short bursts.
const (
	writeBurst     = 5.0
	writePerSecond = 1.0
)

// Client talks to the spreadsheet service REST API. Row identity is the
// instrument key column; the service resolves symbols to row ids so sheet
// reordering never misplaces a write.
type Client struct {
	baseURL       string
	spreadsheetID string
	tokens        oauth2.TokenSource
	http          *xhttp.Client
	limiter       *ratelimit.Limiter
	l             *applogger.Logger
}

// New creates a sheet client. token is a static bearer credential; a
// refreshing TokenSource can be swapped in without touching call sites.
func New(baseURL, spreadsheetID, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       baseURL,
		spreadsheetID: spreadsheetID,
		tokens:        oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		http:          xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter:       ratelimit.New(),
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// APIError carries the HTTP status of a failed sheet call so callers can
// classify it.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheet api status %d: %s", e.Status, e.Body)
}

// ErrRateLimited signals the caller to back off and retry with jitter.
var ErrRateLimited = errors.New("sheet api rate limited")

// IsRateLimited reports whether err is a rate-limit signal.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts,
// server-side failures, and transport errors. Client-side 4xx are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusRequestTimeout || ae.Status >= 500
	}
	// transport-level errors (connection reset, timeout) arrive unwrapped
	return true
}

type rowPayload struct {
	RowID      string             `json:"row_id,omitempty"`
	Symbol     string             `json:"symbol"`
	Signal     string             `json:"signal"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Indicators map[string]float64 `json:"indicators"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func toPayload(r models.SheetRow) rowPayload {
	return rowPayload{
		RowID:      r.RowID,
		Symbol:     r.Symbol,
		Signal:     string(r.Signal),
		Score:      r.Score,
		Confidence: r.Confidence,
		Indicators: r.Indicators,
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func fromPayload(p rowPayload) models.SheetRow {
	return models.SheetRow{
		RowID:      p.RowID,
		Symbol:     p.Symbol,
		Signal:     models.Signal(p.Signal),
		Score:      p.Score,
		Confidence: p.Confidence,
		Indicators: p.Indicators,
		UpdatedAt:  p.UpdatedAt,
	}
}

// FetchRows reads the whole sheet. A failure here means the caller has no
// reliable view of remote state and must abort its cycle.
func (c *Client) FetchRows(ctx context.Context) ([]models.SheetRow, error) {
	var resp struct {
		Rows []rowPayload `json:"rows"`
	}
	url := fmt.Sprintf("%s/v1/spreadsheets/%s/rows", c.baseURL, c.spreadsheetID)
	if err := c.doJSON(ctx, xhttp.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch rows: %w", err)
	}
	out := make([]models.SheetRow, 0, len(resp.Rows))
	for _, p := range resp.Rows {
		out = append(out, fromPayload(p))
	}
	if c.l != nil {
		c.l.Debug("sheet fetch ok", applogger.Int("rows", len(out)))
	}
	return out, nil
}

// UpsertRow writes one row, matched by symbol. Returns the row id assigned by
// the service.
func (c *Client) UpsertRow(ctx context.Context, row models.SheetRow) (string, error) {
	if !c.limiter.Allow("sheet:write", writeBurst, writePerSecond) {
		return "", ErrRateLimited
	}
	var resp struct {
		RowID string `json:"row_id"`
	}
	url := fmt.Sprintf("%s/v1/spreadsheets/%s/rows/%s", c.baseURL, c.spreadsheetID, row.Symbol)
	if err := c.doJSON(ctx, xhttp.MethodPut, url, toPayload(row), &resp); err != nil {
		return "", fmt.Errorf("upsert row %s: %w", row.Symbol, err)
	}
	return resp.RowID, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, dest interface{}) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: method,
		URL:    url,
		Headers: map[string]string{
			"Authorization": "Bearer " + tok.AccessToken,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ drepo.SheetClient = (*Client)(nil)
