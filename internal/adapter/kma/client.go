// Package kma is the gateway to the KMA short-term forecast OpenAPI
// (VilageFcstInfoService). It owns the retry policy, the circuit breaker, and
// the parse-at-the-boundary conversion of the provider's JSON into domain
// values. Callers only ever see the domain error taxonomy.
package kma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ondamlab/yesterday/internal/domain"
	"github.com/ondamlab/yesterday/internal/observability"
)

const (
	endpointObservation = "getUltraSrtNcst" // hourly observations (T1H)
	endpointForecast    = "getVilageFcst"   // village forecast (TMP, ~48h)

	// The forecast response interleaves ~12 categories per hour; this covers
	// the full 48-hour window in one page.
	forecastRows = "2880"
)

// Client calls the KMA API with bounded retries.
type Client struct {
	serviceKey  string
	baseURL     string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
	metrics     *observability.Metrics
	maxAttempts int
	retryDelay  time.Duration
}

// NewClient creates a gateway for the given API base URL and service key.
func NewClient(serviceKey, baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		serviceKey: serviceKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "kma",
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		logger:      logger,
		metrics:     metrics,
		maxAttempts: 5,
		retryDelay:  500 * time.Millisecond,
	}
}

// FetchTemperature returns the observed air temperature (category T1H) for
// the grid cell at the hourly bucket. ErrDataAbsent when the provider has no
// value for that slot; ErrProviderUnavailable after retries are exhausted.
func (c *Client) FetchTemperature(ctx context.Context, cell domain.GridCell, bucket domain.TimeBucket) (float64, error) {
	params := url.Values{
		"base_date": {bucket.BaseDate()},
		"base_time": {bucket.BaseTime()},
		"nx":        {strconv.Itoa(cell.X)},
		"ny":        {strconv.Itoa(cell.Y)},
		"numOfRows": {"10"},
	}

	items, err := c.callAPI(ctx, endpointObservation, params)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if it.Category != "T1H" {
			continue
		}
		if v, ok := parseTemp(it.ObsrValue); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: no T1H observation at %s %s", domain.ErrDataAbsent, bucket.BaseDate(), bucket.BaseTime())
}

// FetchExtremes returns the max/min temperature for one local calendar day,
// derived from the hourly TMP forecast. The request is anchored at the
// previous day's 02:00 publication, whose window covers the whole target day.
func (c *Client) FetchExtremes(ctx context.Context, cell domain.GridCell, day domain.TimeBucket) (domain.DayExtremes, error) {
	target, err := time.Parse("20060102", day.BaseDate())
	if err != nil {
		return domain.DayExtremes{}, fmt.Errorf("bad day bucket %q: %w", day, err)
	}
	base := target.AddDate(0, 0, -1)

	params := url.Values{
		"base_date": {base.Format("20060102")},
		"base_time": {"0200"},
		"nx":        {strconv.Itoa(cell.X)},
		"ny":        {strconv.Itoa(cell.Y)},
		"numOfRows": {forecastRows},
	}

	items, err := c.callAPI(ctx, endpointForecast, params)
	if err != nil {
		return domain.DayExtremes{}, err
	}

	var temps []float64
	for _, it := range items {
		if it.Category != "TMP" || it.FcstDate != day.BaseDate() {
			continue
		}
		if v, ok := parseTemp(it.FcstValue); ok {
			temps = append(temps, v)
		}
	}
	if len(temps) == 0 {
		return domain.DayExtremes{}, fmt.Errorf("%w: no TMP forecast for %s", domain.ErrDataAbsent, day.BaseDate())
	}

	ext := domain.DayExtremes{Max: temps[0], Min: temps[0]}
	for _, v := range temps[1:] {
		if v > ext.Max {
			ext.Max = v
		}
		if v < ext.Min {
			ext.Min = v
		}
	}
	return ext, nil
}

// callAPI runs one logical provider call with up to maxAttempts attempts.
// ErrDataAbsent is returned immediately: retrying cannot produce data that
// does not exist. Everything else is retried with a fixed inter-attempt delay
// and surfaces as ErrProviderUnavailable once attempts are exhausted.
func (c *Client) callAPI(ctx context.Context, endpoint string, params url.Values) ([]apiItem, error) {
	c.logger.Info("provider request",
		"endpoint", endpoint,
		"base_date", params.Get("base_date"),
		"base_time", params.Get("base_time"),
		"nx", params.Get("nx"),
		"ny", params.Get("ny"),
	)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		// Data absence is classified after Execute so the breaker only counts
		// transport and provider failures, never legitimate empty answers.
		result, err := c.breaker.Execute(func() (any, error) {
			return c.doRequest(ctx, endpoint, params)
		})
		c.metrics.ProviderDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		if err == nil {
			body := result.(apiBody)
			if items, absent := body.classify(); absent == nil {
				c.metrics.ProviderRequests.WithLabelValues(endpoint, "success").Inc()
				return items, nil
			} else {
				c.metrics.ProviderRequests.WithLabelValues(endpoint, "empty").Inc()
				return nil, absent
			}
		}
		c.metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		c.logger.Warn("provider request failed",
			"endpoint", endpoint, "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)

		if attempt < c.maxAttempts && !sleepWithContext(ctx, c.retryDelay) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, endpoint, lastErr)
}

// doRequest performs a single HTTP attempt and decodes the typed response.
// It fails only on transport, HTTP, decode, or provider-fault conditions;
// "nothing there" answers come back as a body for classify to turn into
// ErrDataAbsent.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (apiBody, error) {
	q := url.Values{
		"serviceKey": {c.serviceKey},
		"dataType":   {"JSON"},
	}
	for k, vs := range params {
		q[k] = vs
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return apiBody{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiBody{}, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiBody{}, fmt.Errorf("%s: status %d", endpoint, resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return apiBody{}, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	header := payload.Response.Header
	if header.ResultCode != "00" && header.ResultCode != noDataResultCode {
		return apiBody{}, fmt.Errorf("%s: result %s (%s)", endpoint, header.ResultCode, header.ResultMsg)
	}
	return apiBody{
		resultCode: header.ResultCode,
		resultMsg:  header.ResultMsg,
		totalCount: payload.Response.Body.TotalCount,
		items:      payload.Response.Body.Items.Item,
	}, nil
}

// noDataResultCode is the provider's "NO_DATA" answer: a successful response
// that simply has nothing for the requested slot.
const noDataResultCode = "03"

type apiBody struct {
	resultCode string
	resultMsg  string
	totalCount int
	items      []apiItem
}

// classify separates "data exists" from "slot legitimately empty".
func (b apiBody) classify() ([]apiItem, error) {
	if b.resultCode == noDataResultCode {
		return nil, fmt.Errorf("%w: %s", domain.ErrDataAbsent, b.resultMsg)
	}
	if b.totalCount == 0 || len(b.items) == 0 {
		return nil, fmt.Errorf("%w: empty result set", domain.ErrDataAbsent)
	}
	return b.items, nil
}

// parseTemp converts a provider value field to a float, rejecting the -999
// sentinel and blanks.
func parseTemp(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-999" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// KMA API response shape. Value fields arrive as strings.

type apiResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			TotalCount int `json:"totalCount"`
			Items      struct {
				Item []apiItem `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type apiItem struct {
	Category  string `json:"category"`
	ObsrValue string `json:"obsrValue,omitempty"`
	FcstValue string `json:"fcstValue,omitempty"`
	FcstDate  string `json:"fcstDate,omitempty"`
	FcstTime  string `json:"fcstTime,omitempty"`
}
