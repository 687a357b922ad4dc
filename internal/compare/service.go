// Package compare computes "now vs the same hour yesterday" and "today's
// extremes vs yesterday's" for a coordinate, reading through the comparison
// cache to the weather gateway.
package compare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ondamlab/yesterday/internal/cache"
	"github.com/ondamlab/yesterday/internal/domain"
	"github.com/ondamlab/yesterday/internal/observability"
)

// Gateway fetches raw temperature data for a grid cell. Implemented by the
// KMA adapter.
type Gateway interface {
	FetchTemperature(ctx context.Context, cell domain.GridCell, bucket domain.TimeBucket) (float64, error)
	FetchExtremes(ctx context.Context, cell domain.GridCell, day domain.TimeBucket) (domain.DayExtremes, error)
}

// Service answers comparison queries. All upstream reads go through the
// cache, so concurrent subscribers in the same grid cell share one fetch.
type Service struct {
	cache       *cache.Cache
	gateway     Gateway
	logger      *slog.Logger
	metrics     *observability.Metrics
	compareTTL  time.Duration
	extremesTTL time.Duration
}

// NewService wires the comparison service.
func NewService(c *cache.Cache, gw Gateway, logger *slog.Logger, metrics *observability.Metrics, compareTTL, extremesTTL time.Duration) *Service {
	return &Service{
		cache:       c,
		gateway:     gw,
		logger:      logger,
		metrics:     metrics,
		compareTTL:  compareTTL,
		extremesTTL: extremesTTL,
	}
}

// CompareNow compares the current hourly observation with the observation 24
// hours earlier, in the location's local calendar. Either slot missing
// upstream yields ErrInsufficientData.
func (s *Service) CompareNow(ctx context.Context, coord domain.Coordinate, loc *time.Location) (domain.ComparisonResult, error) {
	cell := domain.Project(coord)
	now := domain.Now()

	nowBucket := domain.HourlyBucket(now, loc)
	yestBucket := domain.HourlyBucket(now.Add(-24*time.Hour), loc)

	nowTemp, err := s.cachedTemp(ctx, cell, nowBucket)
	if err != nil {
		return domain.ComparisonResult{}, s.finish("now", err)
	}
	yestTemp, err := s.cachedTemp(ctx, cell, yestBucket)
	if err != nil {
		return domain.ComparisonResult{}, s.finish("now", err)
	}

	s.metrics.Comparisons.WithLabelValues("now", "success").Inc()
	return domain.NewComparison(nowTemp, yestTemp), nil
}

// CompareExtremes compares today's forecast max/min with yesterday's, in the
// location's local calendar.
func (s *Service) CompareExtremes(ctx context.Context, coord domain.Coordinate, loc *time.Location) (domain.ExtremesComparison, error) {
	cell := domain.Project(coord)
	now := domain.Now()

	today, err := s.cachedExtremes(ctx, cell, domain.DayBucket(now, loc))
	if err != nil {
		return domain.ExtremesComparison{}, s.finish("extremes", err)
	}
	yest, err := s.cachedExtremes(ctx, cell, domain.DayBucket(now.AddDate(0, 0, -1), loc))
	if err != nil {
		return domain.ExtremesComparison{}, s.finish("extremes", err)
	}

	s.metrics.Comparisons.WithLabelValues("extremes", "success").Inc()
	return domain.NewExtremesComparison(today, yest), nil
}

func (s *Service) cachedTemp(ctx context.Context, cell domain.GridCell, bucket domain.TimeBucket) (float64, error) {
	key := fmt.Sprintf("t1h:%s:%s", cell, bucket)
	raw, err := s.cache.GetOrCompute(ctx, key, s.compareTTL, func(ctx context.Context) (string, error) {
		v, err := s.gateway.FetchTemperature(ctx, cell, bucket)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	})
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cache value for %s: %w", key, err)
	}
	return v, nil
}

func (s *Service) cachedExtremes(ctx context.Context, cell domain.GridCell, day domain.TimeBucket) (domain.DayExtremes, error) {
	key := fmt.Sprintf("ext:%s:%s", cell, day)
	raw, err := s.cache.GetOrCompute(ctx, key, s.extremesTTL, func(ctx context.Context) (string, error) {
		ext, err := s.gateway.FetchExtremes(ctx, cell, day)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(ext)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
	if err != nil {
		return domain.DayExtremes{}, err
	}
	var ext domain.DayExtremes
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		return domain.DayExtremes{}, fmt.Errorf("corrupt cache value for %s: %w", key, err)
	}
	return ext, nil
}

// finish records the outcome metric and translates data absence into the
// caller-facing "not enough data to compare" error. A single missing slot
// already makes the comparison impossible.
func (s *Service) finish(kind string, err error) error {
	if errors.Is(err, domain.ErrDataAbsent) {
		s.metrics.Comparisons.WithLabelValues(kind, "insufficient").Inc()
		return fmt.Errorf("%w: %v", domain.ErrInsufficientData, err)
	}
	s.metrics.Comparisons.WithLabelValues(kind, "error").Inc()
	return err
}
