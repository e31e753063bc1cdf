package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/domain/service"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
)

const (
	defaultBaseURL = "https://api.exchangerate.host"
	latestPath     = "/latest"
	timeseriesPath = "/timeseries"

	// maxBodyBytes bounds how much of a response is read
	maxBodyBytes = 4 << 20
)

// ClientOptions configures a RateAPIClient
type ClientOptions struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       logger.Logger
}

// RateAPIClient implements service.RateSource against an exchangerate.host style API
type RateAPIClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	maxAttempts  int
	retryBackoff time.Duration
	logger       logger.Logger
}

var _ service.RateSource = (*RateAPIClient)(nil)

// NewRateAPIClient creates a new remote rate client
func NewRateAPIClient(opts ClientOptions) *RateAPIClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &RateAPIClient{
		baseURL:      baseURL,
		apiKey:       opts.APIKey,
		httpClient:   httpClient,
		maxAttempts:  maxAttempts,
		retryBackoff: opts.RetryBackoff,
		logger:       logger.ForComponent(opts.Logger, "rate_api"),
	}
}

// Name identifies the remote source
func (c *RateAPIClient) Name() string {
	return "remote"
}

// ratesResponse is the shape of the latest and single-day endpoints
type ratesResponse struct {
	Success *bool              `json:"success"`
	Base    string             `json:"base"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
	Error   *apiError          `json:"error"`
}

// timeseriesResponse is the shape of the date-range endpoint
type timeseriesResponse struct {
	Success   *bool                         `json:"success"`
	StartDate string                        `json:"start_date"`
	EndDate   string                        `json:"end_date"`
	Rates     map[string]map[string]float64 `json:"rates"`
	Error     *apiError                     `json:"error"`
}

type apiError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

func (e *apiError) String() string {
	return fmt.Sprintf("provider error %d (%s): %s", e.Code, e.Type, e.Info)
}

// FetchLatest retrieves the latest rates expressed against base
func (c *RateAPIClient) FetchLatest(ctx context.Context, base string) (entity.RateTable, error) {
	const op = "fetch latest rates"

	var resp ratesResponse
	if err := c.get(ctx, op, latestPath, url.Values{"base": {base}}, &resp); err != nil {
		return nil, err
	}

	if err := checkSuccess(op, resp.Success, resp.Error); err != nil {
		return nil, err
	}
	if len(resp.Rates) == 0 {
		return nil, decodingError(op, errors.New("response carries no rates"))
	}

	table, dropped := entity.RateTable(resp.Rates).Normalize(base)
	if len(dropped) > 0 {
		c.logger.Warn("Dropped invalid rates from provider response", map[string]interface{}{
			"base":    base,
			"dropped": dropped,
		})
	}

	c.logger.Debug("Latest rates received", map[string]interface{}{
		"base":       base,
		"currencies": len(table),
		"rate_date":  resp.Date,
	})

	return table, nil
}

// FetchDay retrieves the from->to rate for a single calendar day
func (c *RateAPIClient) FetchDay(ctx context.Context, from, to string, day time.Time) (entity.HistoricalPoint, error) {
	const op = "fetch historical rate"

	var resp ratesResponse
	params := url.Values{"base": {from}, "symbols": {to}}
	if err := c.get(ctx, op, "/"+day.Format(entity.DateLayout), params, &resp); err != nil {
		return entity.HistoricalPoint{}, err
	}

	if err := checkSuccess(op, resp.Success, resp.Error); err != nil {
		return entity.HistoricalPoint{}, err
	}

	rate, ok := resp.Rates[to]
	if !ok || rate <= 0 {
		return entity.HistoricalPoint{}, decodingError(op, fmt.Errorf("no valid %s rate for %s", to, day.Format(entity.DateLayout)))
	}

	return entity.HistoricalPoint{Date: day, Rate: rate}, nil
}

// FetchRange retrieves the from->to rates for every day the provider has in [start, end]
func (c *RateAPIClient) FetchRange(ctx context.Context, from, to string, start, end time.Time) ([]entity.HistoricalPoint, error) {
	const op = "fetch historical range"

	if end.Before(start) {
		return nil, &service.SourceError{
			Op:   op,
			Kind: service.ErrMalformedRequest,
			Err:  fmt.Errorf("end date %s before start date %s", end.Format(entity.DateLayout), start.Format(entity.DateLayout)),
		}
	}

	var resp timeseriesResponse
	params := url.Values{
		"start_date": {start.Format(entity.DateLayout)},
		"end_date":   {end.Format(entity.DateLayout)},
		"base":       {from},
		"symbols":    {to},
	}
	if err := c.get(ctx, op, timeseriesPath, params, &resp); err != nil {
		return nil, err
	}

	if err := checkSuccess(op, resp.Success, resp.Error); err != nil {
		return nil, err
	}

	points := make([]entity.HistoricalPoint, 0, len(resp.Rates))
	for dateStr, rates := range resp.Rates {
		date, err := entity.ParseDay(dateStr)
		if err != nil {
			return nil, decodingError(op, fmt.Errorf("invalid date %q: %w", dateStr, err))
		}
		rate, ok := rates[to]
		if !ok || rate <= 0 {
			continue
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		points = append(points, entity.HistoricalPoint{Date: date, Rate: rate})
	}

	if len(points) == 0 {
		return nil, decodingError(op, fmt.Errorf("no %s rates between %s and %s", to,
			start.Format(entity.DateLayout), end.Format(entity.DateLayout)))
	}

	return entity.SortPoints(points), nil
}

// get performs a GET with retries on transport failures and decodes the JSON body into out
func (c *RateAPIClient) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	reqURL, err := c.buildURL(path, params)
	if err != nil {
		c.logger.Error("Failed to build provider request", map[string]interface{}{
			"op":    op,
			"error": err.Error(),
		})
		return &service.SourceError{Op: op, Kind: service.ErrMalformedRequest, Err: err}
	}

	var resp *http.Response
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return &service.SourceError{Op: op, Kind: service.ErrMalformedRequest, Err: err}
		}

		// Add Accept header to ensure JSON response
		req.Header.Add("Accept", "application/json")

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}

		if attempt < c.maxAttempts && ctx.Err() == nil {
			// Wait with quadratic backoff before retrying
			backoffTime := time.Duration(attempt*attempt) * c.retryBackoff
			c.logger.Warn("Provider request failed, retrying", map[string]interface{}{
				"op":      op,
				"attempt": attempt,
				"backoff": backoffTime.String(),
				"error":   err.Error(),
			})

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
			}
		}
	}

	if err != nil {
		return &service.SourceError{
			Op:   op,
			Kind: service.ErrTransport,
			Err:  fmt.Errorf("failed to execute request after %d attempts: %w", c.maxAttempts, err),
		}
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Error closing response body", map[string]interface{}{
				"op":    op,
				"error": closeErr.Error(),
			})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &service.SourceError{Op: op, Kind: service.ErrTransport, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Provider returned error status", map[string]interface{}{
			"op":     op,
			"status": resp.StatusCode,
		})
		return &service.SourceError{
			Op:         op,
			Kind:       service.ErrHTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body: %.200s", string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return decodingError(op, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

func (c *RateAPIClient) buildURL(path string, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", c.baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", c.baseURL)
	}

	u.Path += path
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	if c.apiKey != "" {
		query.Set("access_key", c.apiKey)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func checkSuccess(op string, success *bool, apiErr *apiError) error {
	if apiErr != nil {
		return decodingError(op, errors.New(apiErr.String()))
	}
	if success != nil && !*success {
		return decodingError(op, errors.New("provider reported failure"))
	}
	return nil
}

func decodingError(op string, err error) error {
	return &service.SourceError{Op: op, Kind: service.ErrDecoding, Err: err}
}
