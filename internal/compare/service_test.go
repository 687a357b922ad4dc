package compare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondamlab/yesterday/internal/cache"
	"github.com/ondamlab/yesterday/internal/domain"
	"github.com/ondamlab/yesterday/internal/observability"
)

var seoul = mustLoadLocation("Asia/Seoul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// fakeGateway serves canned temperatures keyed by bucket and counts fetches.
type fakeGateway struct {
	temps      map[domain.TimeBucket]float64
	extremes   map[domain.TimeBucket]domain.DayExtremes
	err        error
	tempCalls  atomic.Int64
	extraCalls atomic.Int64
}

func (g *fakeGateway) FetchTemperature(_ context.Context, _ domain.GridCell, bucket domain.TimeBucket) (float64, error) {
	g.tempCalls.Add(1)
	if g.err != nil {
		return 0, g.err
	}
	v, ok := g.temps[bucket]
	if !ok {
		return 0, fmt.Errorf("%w: no observation for %s", domain.ErrDataAbsent, bucket)
	}
	return v, nil
}

func (g *fakeGateway) FetchExtremes(_ context.Context, _ domain.GridCell, day domain.TimeBucket) (domain.DayExtremes, error) {
	g.extraCalls.Add(1)
	if g.err != nil {
		return domain.DayExtremes{}, g.err
	}
	ext, ok := g.extremes[day]
	if !ok {
		return domain.DayExtremes{}, fmt.Errorf("%w: no forecast for %s", domain.ErrDataAbsent, day)
	}
	return ext, nil
}

func testService(t *testing.T, gw *fakeGateway) *Service {
	t.Helper()

	// 05:47 UTC is 14:47 KST, so the hourly buckets are 14:00 today and
	// 14:00 yesterday in the Seoul calendar.
	fake := clockwork.NewFakeClockAt(time.Date(2025, 6, 13, 5, 47, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(cache.NewMemoryStore(fake), logger, observability.NewMetricsForTesting())
	return NewService(c, gw, logger, observability.NewMetricsForTesting(), 10*time.Minute, time.Hour)
}

func TestCompareNow(t *testing.T) {
	gw := &fakeGateway{temps: map[domain.TimeBucket]float64{
		"202506131400": 24.3,
		"202506121400": 22.1,
	}}
	svc := testService(t, gw)

	got, err := svc.CompareNow(context.Background(), domain.Coordinate{Lat: 37.5665, Lon: 126.9780}, seoul)
	require.NoError(t, err)
	assert.Equal(t, domain.ComparisonResult{Now: 24.3, Yesterday: 22.1, Delta: 2.2}, got)
	assert.Equal(t, int64(2), gw.tempCalls.Load())
}

func TestCompareNow_SecondCallServedFromCache(t *testing.T) {
	gw := &fakeGateway{temps: map[domain.TimeBucket]float64{
		"202506131400": 24.3,
		"202506121400": 22.1,
	}}
	svc := testService(t, gw)
	coord := domain.Coordinate{Lat: 37.5665, Lon: 126.9780}

	_, err := svc.CompareNow(context.Background(), coord, seoul)
	require.NoError(t, err)
	_, err = svc.CompareNow(context.Background(), coord, seoul)
	require.NoError(t, err)

	assert.Equal(t, int64(2), gw.tempCalls.Load(), "repeat query within TTL must not refetch")
}

func TestCompareNow_MissingYesterdayIsInsufficientData(t *testing.T) {
	gw := &fakeGateway{temps: map[domain.TimeBucket]float64{
		"202506131400": 24.3,
	}}
	svc := testService(t, gw)

	_, err := svc.CompareNow(context.Background(), domain.Coordinate{Lat: 37.5665, Lon: 126.9780}, seoul)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestCompareNow_ProviderFailurePropagates(t *testing.T) {
	gw := &fakeGateway{err: fmt.Errorf("%w: getUltraSrtNcst", domain.ErrProviderUnavailable)}
	svc := testService(t, gw)

	_, err := svc.CompareNow(context.Background(), domain.Coordinate{Lat: 37.5665, Lon: 126.9780}, seoul)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
	assert.False(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestCompareExtremes(t *testing.T) {
	gw := &fakeGateway{extremes: map[domain.TimeBucket]domain.DayExtremes{
		"20250613": {Max: 26.0, Min: 18.0},
		"20250612": {Max: 24.5, Min: 19.0},
	}}
	svc := testService(t, gw)

	got, err := svc.CompareExtremes(context.Background(), domain.Coordinate{Lat: 37.5665, Lon: 126.9780}, seoul)
	require.NoError(t, err)
	assert.Equal(t, domain.ExtremesComparison{
		TodayMax: 26.0, TodayMin: 18.0,
		YestMax: 24.5, YestMin: 19.0,
		DeltaMax: 1.5, DeltaMin: -1.0,
	}, got)

	// Repeat is fully cached.
	_, err = svc.CompareExtremes(context.Background(), domain.Coordinate{Lat: 37.5665, Lon: 126.9780}, seoul)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gw.extraCalls.Load())
}

func TestCompareExtremes_MissingDayIsInsufficientData(t *testing.T) {
	gw := &fakeGateway{extremes: map[domain.TimeBucket]domain.DayExtremes{
		"20250613": {Max: 26.0, Min: 18.0},
	}}
	svc := testService(t, gw)

	_, err := svc.CompareExtremes(context.Background(), domain.Coordinate{Lat: 37.5665, Lon: 126.9780}, seoul)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}
