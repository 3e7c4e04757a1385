// Package analytics runs the ad-hoc query engine and the statistical explorations over the
// completed-sales fact table.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"restaurant-analytics/cache"
	"restaurant-analytics/metrics"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
)

// Thresholds are the heuristic cut-offs behind classifications and insights. They are product
// policy and come from configuration.
type Thresholds struct {
	AnomalySensitivity float64
	AnomalyHighSigma   float64

	AffinityStrongLift       float64
	AffinityModerateLift     float64
	AffinityStrongConfidence float64
	AffinityUpsellConfidence float64

	ForecastGoodR2 float64
	ForecastFairR2 float64
	TrendStablePct float64

	DiscountLowPct          float64
	DiscountMediumPct       float64
	WeekendGapPct           float64
	ChannelConcentrationPct float64

	CancellationRatePct float64
	OutlierRatePct      float64
}

type Settings struct {
	Limits       query.Limits
	QueryTimeout time.Duration
	QueryTTL     time.Duration
	AnalysisTTL  time.Duration

	CorrelationDefaultDays int
	CohortLookbackMonths   int
	AffinityLookbackDays   int
	MaxAffinitySales       int
	MaxAffinityProducts    int
	ProfileHistogramMax    float64

	Thresholds Thresholds

	// Now is the clock used for relative windows. Defaults to time.Now.
	Now func() time.Time
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		AnomalySensitivity:       2.0,
		AnomalyHighSigma:         3.0,
		AffinityStrongLift:       2.0,
		AffinityModerateLift:     1.2,
		AffinityStrongConfidence: 0.5,
		AffinityUpsellConfidence: 0.5,
		ForecastGoodR2:           0.7,
		ForecastFairR2:           0.5,
		TrendStablePct:           1.0,
		DiscountLowPct:           5,
		DiscountMediumPct:        15,
		WeekendGapPct:            10,
		ChannelConcentrationPct:  50,
		CancellationRatePct:      10,
		OutlierRatePct:           5,
	}
}

func DefaultSettings() Settings {
	return Settings{
		Limits:                 query.DefaultLimits(),
		QueryTimeout:           30 * time.Second,
		QueryTTL:               5 * time.Minute,
		AnalysisTTL:            10 * time.Minute,
		CorrelationDefaultDays: 30,
		CohortLookbackMonths:   12,
		AffinityLookbackDays:   90,
		MaxAffinitySales:       50000,
		MaxAffinityProducts:    200,
		ProfileHistogramMax:    500,
		Thresholds:             DefaultThresholds(),
	}
}

// Engine answers structured queries and analyses against a Store, memoizing results.
type Engine struct {
	store    Store
	cache    *cache.Cache
	metrics  *metrics.Metrics
	settings Settings
	now      func() time.Time
}

// NewEngine wires an engine. A nil cache disables memoization; nil metrics record nothing.
func NewEngine(store Store, c *cache.Cache, m *metrics.Metrics, settings Settings) *Engine {
	if c == nil {
		c = cache.New(cache.Options{Enabled: false})
	}
	now := settings.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, cache: c, metrics: m, settings: settings, now: now}
}

func (e *Engine) Settings() Settings { return e.settings }

// fetch runs one datastore query under the configured timeout.
func (e *Engine) fetch(ctx context.Context, op, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	if e.settings.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.store.Fetch(ctx, sql, args...)
	elapsed := time.Since(start)
	e.metrics.ObserveQuery(op, elapsed, err)

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			log.Printf("[ANALYTICS] %s timed out after %s", op, elapsed.Round(time.Millisecond))
			return nil, &ComputationError{Op: op, Timeout: true, Err: err}
		case errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Printf("[ANALYTICS] %s failed: %v", op, err)
		return nil, &ComputationError{Op: op, Err: err}
	}
	return rows, nil
}

// ExecuteQuery validates, builds and runs a structured query.
func (e *Engine) ExecuteQuery(ctx context.Context, req models.QueryRequest) (models.QueryResult, error) {
	vq, err := query.Validate(req, e.settings.Limits)
	if err != nil {
		return models.QueryResult{}, err
	}
	sql, args := query.Build(vq)
	columns := vq.Columns()

	key := struct {
		SQL  string        `json:"sql"`
		Args []interface{} `json:"args"`
	}{sql, args}

	return cache.Fetch(ctx, e.cache, "query", key, e.settings.QueryTTL, func(ctx context.Context) (models.QueryResult, error) {
		rows, err := e.fetch(ctx, "query", sql, args...)
		if err != nil {
			return models.QueryResult{}, err
		}
		if rows == nil {
			rows = []map[string]interface{}{}
		}
		log.Printf("[QUERY] %d columns, %d rows", len(columns), len(rows))
		return models.QueryResult{Columns: columns, Rows: rows, RowCount: len(rows)}, nil
	})
}

// FieldCatalog lists the queryable fields for clients building requests.
func FieldCatalog() []models.FieldInfo {
	fields := query.Fields()
	out := make([]models.FieldInfo, 0, len(fields))
	for _, f := range fields {
		out = append(out, models.FieldInfo{
			Name:         f.Name,
			Type:         f.Type.String(),
			Table:        f.Table(),
			Aggregations: f.AggregationNames(),
			Operators:    f.OperatorNames(),
		})
	}
	return out
}

// today returns the current calendar day as midnight UTC.
func (e *Engine) today() time.Time {
	now := e.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
