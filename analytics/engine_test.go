package analytics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-analytics/cache"
	"restaurant-analytics/models"
	"restaurant-analytics/query"
)

type fakeCall struct {
	sql  string
	args []interface{}
}

type fakeStore struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(ctx context.Context, sql string, args []interface{}) ([]map[string]interface{}, error)
}

func (f *fakeStore) Fetch(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{sql: sql, args: args})
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(ctx, sql, args)
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func rowsOf(rows ...map[string]interface{}) func(context.Context, string, []interface{}) ([]map[string]interface{}, error) {
	return func(context.Context, string, []interface{}) ([]map[string]interface{}, error) {
		return rows, nil
	}
}

var testNow = time.Date(2024, 3, 7, 10, 30, 0, 0, time.UTC)

func newTestEngine(store Store) *Engine {
	s := DefaultSettings()
	s.Now = func() time.Time { return testNow }
	return NewEngine(store, cache.New(cache.Options{Enabled: true}), nil, s)
}

func TestExecuteQuery_StoreRevenueRollup(t *testing.T) {
	store := &fakeStore{respond: rowsOf(map[string]interface{}{"store_name": "Centro", "sum_net_amount": 60.0})}
	e := newTestEngine(store)

	req := models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "store_name"}},
		Metrics:    []models.Metric{{Field: "net_amount", Aggregation: "sum"}},
		TimeRange:  &models.TimeRange{Start: "2024-01-01", End: "2024-01-31"},
	}
	res, err := e.ExecuteQuery(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"store_name", "sum_net_amount"}, res.Columns)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, 60.0, res.Rows[0]["sum_net_amount"])

	require.Equal(t, 1, store.callCount())
	call := store.calls[0]
	assert.Contains(t, call.sql, "s.sale_status_desc = 'COMPLETED'")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), call.args[0])
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), call.args[1])

	// Identical request is served from cache.
	_, err = e.ExecuteQuery(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, store.callCount())
}

func TestExecuteQuery_EmptyResultHasRows(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	res, err := e.ExecuteQuery(context.Background(), models.QueryRequest{
		Metrics: []models.Metric{{Field: "sale_id", Aggregation: "count"}},
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Equal(t, 0, res.RowCount)
}

func TestExecuteQuery_ValidationErrorSkipsStore(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store)

	_, err := e.ExecuteQuery(context.Background(), models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "password"}},
	})
	assert.True(t, errors.Is(err, query.ErrUnknownField))
	assert.Equal(t, 0, store.callCount())
}

func TestFetch_TimeoutBecomesComputationError(t *testing.T) {
	store := &fakeStore{respond: func(ctx context.Context, _ string, _ []interface{}) ([]map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	s := DefaultSettings()
	s.QueryTimeout = 10 * time.Millisecond
	s.Now = func() time.Time { return testNow }
	e := NewEngine(store, nil, nil, s)

	_, err := e.Anomalies(context.Background(), 7, 2)
	var ce *ComputationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.True(t, ce.Timeout)
	assert.Equal(t, "anomalies", ce.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_FailureIsReportedAndNotCached(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeStore{respond: func(context.Context, string, []interface{}) ([]map[string]interface{}, error) {
		return nil, boom
	}}
	e := newTestEngine(store)

	req := models.QueryRequest{Metrics: []models.Metric{{Field: "net_amount", Aggregation: "sum"}}}
	_, err := e.ExecuteQuery(context.Background(), req)
	var ce *ComputationError
	require.True(t, errors.As(err, &ce))
	assert.False(t, ce.Timeout)
	assert.ErrorIs(t, err, boom)

	_, err = e.ExecuteQuery(context.Background(), req)
	assert.Error(t, err)
	assert.Equal(t, 2, store.callCount())
}

func TestFieldCatalog(t *testing.T) {
	catalog := FieldCatalog()
	require.Len(t, catalog, len(query.Fields()))

	byName := map[string]models.FieldInfo{}
	for _, f := range catalog {
		byName[f.Name] = f
	}
	assert.Equal(t, "stores", byName["store_name"].Table)
	assert.Equal(t, []string{"count"}, byName["store_name"].Aggregations)
	assert.Contains(t, byName["net_amount"].Operators, "gte")
	assert.Equal(t, "numeric", byName["net_amount"].Type)
}

func TestCorrelationAnalysis(t *testing.T) {
	store := &fakeStore{respond: func(_ context.Context, sql string, _ []interface{}) ([]map[string]interface{}, error) {
		switch {
		case strings.Contains(sql, "WITH banded"):
			return []map[string]interface{}{
				{"band": int32(0), "order_count": int64(100), "avg_order_value": 40.0, "total_revenue": 4000.0},
				{"band": int32(1), "order_count": int64(50), "avg_order_value": 50.0, "total_revenue": 2500.0},
			}, nil
		case strings.Contains(sql, "EXTRACT(DOW"):
			return []map[string]interface{}{
				{"day_of_week": int32(0), "order_count": int64(10), "avg_order_value": 40.0, "total_revenue": 400.0},
				{"day_of_week": int32(5), "order_count": int64(90), "avg_order_value": 40.0, "total_revenue": 3600.0},
			}, nil
		case strings.Contains(sql, "EXTRACT(HOUR"):
			return []map[string]interface{}{
				{"hour": int32(12), "order_count": int64(70), "avg_order_value": 45.0, "total_revenue": 3150.0, "avg_party_size": 2.5},
				{"hour": int32(20), "order_count": int64(30), "avg_order_value": 55.0, "total_revenue": 1650.0, "avg_party_size": 3.0},
			}, nil
		case strings.Contains(sql, "production_seconds IS NOT NULL"):
			return []map[string]interface{}{
				{"band": int32(1), "order_count": int64(60), "avg_order_value": 42.0, "total_revenue": 2520.0, "avg_production_seconds": 900.0},
			}, nil
		case strings.Contains(sql, "JOIN channels"):
			return []map[string]interface{}{
				{"channel_name": "iFood", "channel_type": "D", "order_count": int64(80), "avg_order_value": 50.0, "total_revenue": 4000.0, "delivery_orders": int64(80)},
				{"channel_name": "Presencial", "channel_type": "P", "order_count": int64(20), "avg_order_value": 50.0, "total_revenue": 1000.0, "delivery_orders": int64(0)},
			}, nil
		}
		return nil, errors.New("unexpected query")
	}}
	e := newTestEngine(store)

	res, err := e.CorrelationAnalysis(context.Background(), models.TimeRange{Start: "2024-02-01", End: "2024-02-29"})
	require.NoError(t, err)
	assert.Equal(t, 5, store.callCount())
	for _, c := range store.calls {
		assert.Contains(t, c.sql, query.StatusPredicate)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), c.args[0])
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), c.args[1])
	}

	assert.Equal(t, models.TimeRange{Start: "2024-02-01", End: "2024-02-29"}, res.Period)
	require.Len(t, res.Analyses.DiscountImpact, 2)
	assert.Equal(t, "No discount", res.Analyses.DiscountImpact[0].Band)
	assert.Equal(t, "Friday", res.Analyses.DayOfWeek[1].DayName)
	assert.Equal(t, "Lunch", res.Analyses.Hourly[0].Period)
	assert.Equal(t, "Normal (10-20min)", res.Analyses.Production[0].Band)
	assert.Equal(t, 80.0, res.Analyses.Channels[0].Share)

	categories := map[string]models.Insight{}
	for _, in := range res.Insights {
		categories[in.Category] = in
	}
	assert.Equal(t, "positive", categories["discount_effectiveness"].Type)
	assert.Equal(t, "Friday is the busiest day", categories["busiest_day"].Title)
	assert.Equal(t, "Sunday is the quietest day", categories["quietest_day"].Title)
	assert.Equal(t, "Weekdays outsell weekends", categories["weekday_vs_weekend"].Title)
	assert.Contains(t, categories["peak_hour"].Title, "12h")
	assert.Equal(t, "warning", categories["channel_concentration"].Type)
}

func TestDiscountBands_ZeroGrossCountsAsHigh(t *testing.T) {
	none := strings.Index(discountImpactSQL, "COALESCE(s.total_discount, 0) = 0 THEN 0")
	zeroGross := strings.Index(discountImpactSQL, "COALESCE(s.total_amount_items, 0) <= 0 THEN 3")
	ratio := strings.Index(discountImpactSQL, "NULLIF(s.total_amount_items, 0)")
	require.NotEqual(t, -1, zeroGross)
	// A discounted sale without a gross amount must not fall through the NULL ratio checks.
	assert.Less(t, none, zeroGross)
	assert.Less(t, zeroGross, ratio)
}

func TestCorrelationAnalysis_DefaultAndInvalidPeriod(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store)

	res, err := e.CorrelationAnalysis(context.Background(), models.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-07", res.Period.Start)
	assert.Equal(t, "2024-03-07", res.Period.End)
	assert.NotNil(t, res.Insights)

	_, err = e.CorrelationAnalysis(context.Background(), models.TimeRange{Start: "2024-03-05", End: "2024-03-01"})
	assert.True(t, errors.Is(err, query.ErrInvalidParameter))

	_, err = e.CorrelationAnalysis(context.Background(), models.TimeRange{Start: "03/01/2024"})
	assert.True(t, errors.Is(err, query.ErrInvalidParameter))
}
