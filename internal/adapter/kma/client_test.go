package kma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondamlab/yesterday/internal/domain"
	"github.com/ondamlab/yesterday/internal/observability"
)

func testClient(baseURL string) *Client {
	return &Client{
		serviceKey: "test-key",
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "kma-test",
			// Keep the breaker out of the way unless a test wants it.
			ReadyToTrip: func(gobreaker.Counts) bool { return false },
		}),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     observability.NewMetricsForTesting(),
		maxAttempts: 5,
		retryDelay:  0,
	}
}

func writeItems(t *testing.T, w http.ResponseWriter, items []apiItem) {
	t.Helper()
	var payload apiResponse
	payload.Response.Header.ResultCode = "00"
	payload.Response.Header.ResultMsg = "NORMAL_SERVICE"
	payload.Response.Body.TotalCount = len(items)
	payload.Response.Body.Items.Item = items
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(payload))
}

func TestFetchTemperature_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, endpointObservation)
		assert.Equal(t, "test-key", r.URL.Query().Get("serviceKey"))
		assert.Equal(t, "20250613", r.URL.Query().Get("base_date"))
		assert.Equal(t, "1400", r.URL.Query().Get("base_time"))
		assert.Equal(t, "60", r.URL.Query().Get("nx"))
		assert.Equal(t, "127", r.URL.Query().Get("ny"))

		writeItems(t, w, []apiItem{
			{Category: "RN1", ObsrValue: "0"},
			{Category: "T1H", ObsrValue: "24.3"},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.FetchTemperature(context.Background(), domain.GridCell{X: 60, Y: 127}, "202506131400")
	require.NoError(t, err)
	assert.Equal(t, 24.3, got)
}

func TestFetchTemperature_EmptyResultIsDataAbsentAndNotRetried(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		writeItems(t, w, nil)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchTemperature(context.Background(), domain.GridCell{X: 60, Y: 127}, "202506131400")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataAbsent))
	assert.Equal(t, int64(1), requests.Load(), "data absence must not be retried")
}

func TestFetchTemperature_MissingCategoryIsDataAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeItems(t, w, []apiItem{{Category: "RN1", ObsrValue: "0"}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchTemperature(context.Background(), domain.GridCell{X: 60, Y: 127}, "202506131400")
	assert.True(t, errors.Is(err, domain.ErrDataAbsent))
}

func TestFetchTemperature_RetriesExhaustedOnServerErrors(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchTemperature(context.Background(), domain.GridCell{X: 60, Y: 127}, "202506131400")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
	assert.Equal(t, int64(5), requests.Load(), "should attempt exactly maxAttempts times")
}

func TestFetchTemperature_UnreachableEndpoint(t *testing.T) {
	c := testClient("http://127.0.0.1:1")
	c.httpClient.Timeout = 100 * time.Millisecond

	_, err := c.FetchTemperature(context.Background(), domain.GridCell{X: 60, Y: 127}, "202506131400")
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
}

func TestFetchExtremes_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, endpointForecast)
		// Anchored at the previous day's 02:00 publication.
		assert.Equal(t, "20250612", r.URL.Query().Get("base_date"))
		assert.Equal(t, "0200", r.URL.Query().Get("base_time"))

		var items []apiItem
		for hour, temp := range map[string]string{"0300": "18.0", "1500": "26.0", "2100": "21.5"} {
			items = append(items, apiItem{Category: "TMP", FcstDate: "20250613", FcstTime: hour, FcstValue: temp})
		}
		// Other days and categories in the window must be ignored.
		items = append(items,
			apiItem{Category: "TMP", FcstDate: "20250612", FcstTime: "1500", FcstValue: "30.0"},
			apiItem{Category: "POP", FcstDate: "20250613", FcstTime: "1500", FcstValue: "80"},
			apiItem{Category: "TMP", FcstDate: "20250613", FcstTime: "0600", FcstValue: "-999"},
		)
		writeItems(t, w, items)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.FetchExtremes(context.Background(), domain.GridCell{X: 60, Y: 127}, "20250613")
	require.NoError(t, err)
	assert.Equal(t, domain.DayExtremes{Max: 26.0, Min: 18.0}, got)
}

func TestFetchExtremes_NoTempsForDayIsDataAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeItems(t, w, []apiItem{
			{Category: "TMP", FcstDate: "20250612", FcstTime: "1500", FcstValue: "30.0"},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchExtremes(context.Background(), domain.GridCell{X: 60, Y: 127}, "20250613")
	assert.True(t, errors.Is(err, domain.ErrDataAbsent))
}

func TestCallAPI_NoDataResultCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"response":{"header":{"resultCode":"03","resultMsg":"NO_DATA"}}}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.callAPI(context.Background(), endpointObservation, nil)
	assert.True(t, errors.Is(err, domain.ErrDataAbsent))
}
