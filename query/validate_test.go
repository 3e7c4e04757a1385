package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-analytics/models"
)

func storeRevenueRequest() models.QueryRequest {
	return models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "store_name"}},
		Metrics:    []models.Metric{{Field: "net_amount", Aggregation: "sum"}},
	}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Code
}

func TestValidate_EmptyRequest(t *testing.T) {
	_, err := Validate(models.QueryRequest{}, DefaultLimits())
	assert.True(t, errors.Is(err, ErrEmptyRequest))
}

func TestValidate_Limits(t *testing.T) {
	limits := DefaultLimits()

	cases := []struct {
		name string
		mut  func(r *models.QueryRequest)
	}{
		{"too many dimensions", func(r *models.QueryRequest) {
			for i := 0; i < 6; i++ {
				r.Dimensions = append(r.Dimensions, models.Dimension{Field: "store_name"})
			}
		}},
		{"too many metrics", func(r *models.QueryRequest) {
			for i := 0; i < 11; i++ {
				r.Metrics = append(r.Metrics, models.Metric{Field: "net_amount", Aggregation: "sum"})
			}
		}},
		{"too many filters", func(r *models.QueryRequest) {
			for i := 0; i < 11; i++ {
				r.Filters = append(r.Filters, models.Filter{Field: "store_id", Operator: "eq", Value: 1.0})
			}
		}},
		{"limit over max", func(r *models.QueryRequest) { r.Limit = 1001 }},
		{"negative limit", func(r *models.QueryRequest) { r.Limit = -5 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := storeRevenueRequest()
			c.mut(&req)
			_, err := Validate(req, limits)
			assert.Equal(t, CodeLimitExceeded, codeOf(t, err))
		})
	}
}

func TestValidate_DefaultLimitApplied(t *testing.T) {
	q, err := Validate(storeRevenueRequest(), DefaultLimits())
	require.NoError(t, err)
	_, args := Build(q)
	assert.Equal(t, 100, args[len(args)-1])
}

func TestValidate_UnknownFieldAnywhere(t *testing.T) {
	cases := []struct {
		name string
		mut  func(r *models.QueryRequest)
	}{
		{"dimension", func(r *models.QueryRequest) { r.Dimensions[0].Field = "password_hash" }},
		{"metric", func(r *models.QueryRequest) { r.Metrics[0].Field = "total_amount" }},
		{"filter", func(r *models.QueryRequest) {
			r.Filters = []models.Filter{{Field: "s.total_amount", Operator: "gt", Value: 1.0}}
		}},
		{"group by", func(r *models.QueryRequest) { r.GroupBy = []string{"users"} }},
		{"order by", func(r *models.QueryRequest) { r.OrderBy = []models.OrderBy{{Field: "secret_column"}} }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := storeRevenueRequest()
			c.mut(&req)
			_, err := Validate(req, DefaultLimits())
			assert.True(t, errors.Is(err, ErrUnknownField), "got %v", err)
		})
	}
}

func TestValidate_Aggregations(t *testing.T) {
	req := storeRevenueRequest()
	req.Metrics = []models.Metric{{Field: "store_name", Aggregation: "sum"}}
	_, err := Validate(req, DefaultLimits())
	assert.True(t, errors.Is(err, ErrInvalidAggregation))

	req.Metrics = []models.Metric{{Field: "net_amount", Aggregation: "median"}}
	_, err = Validate(req, DefaultLimits())
	assert.True(t, errors.Is(err, ErrInvalidAggregation))

	req.Metrics = []models.Metric{{Field: "net_amount", Aggregation: "AVG"}}
	_, err = Validate(req, DefaultLimits())
	assert.NoError(t, err)
}

func TestValidate_FilterOperatorsAndTypes(t *testing.T) {
	cases := []struct {
		name   string
		filter models.Filter
		code   string
	}{
		{"like on numeric", models.Filter{Field: "net_amount", Operator: "like", Value: "1%"}, CodeInvalidOperator},
		{"unknown operator", models.Filter{Field: "net_amount", Operator: "between", Value: 1.0}, CodeInvalidOperator},
		{"gt on identifier", models.Filter{Field: "store_id", Operator: "gt", Value: 1.0}, CodeInvalidOperator},
		{"string for numeric", models.Filter{Field: "net_amount", Operator: "gt", Value: "lots"}, CodeTypeMismatch},
		{"fraction for integer", models.Filter{Field: "store_id", Operator: "eq", Value: 1.5}, CodeTypeMismatch},
		{"number for string", models.Filter{Field: "store_name", Operator: "eq", Value: 3.0}, CodeTypeMismatch},
		{"bad date", models.Filter{Field: "sale_date", Operator: "gte", Value: "yesterday"}, CodeTypeMismatch},
		{"empty in list", models.Filter{Field: "store_id", Operator: "in", Value: []interface{}{}}, CodeTypeMismatch},
		{"in with scalar", models.Filter{Field: "store_id", Operator: "in", Value: 1.0}, CodeTypeMismatch},
		{"bool value", models.Filter{Field: "net_amount", Operator: "eq", Value: true}, CodeTypeMismatch},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := storeRevenueRequest()
			req.Filters = []models.Filter{c.filter}
			_, err := Validate(req, DefaultLimits())
			assert.Equal(t, c.code, codeOf(t, err))
		})
	}
}

func TestValidate_NumericStringAccepted(t *testing.T) {
	req := storeRevenueRequest()
	req.Filters = []models.Filter{{Field: "net_amount", Operator: "gte", Value: "12.5"}}
	q, err := Validate(req, DefaultLimits())
	require.NoError(t, err)
	_, args := Build(q)
	assert.Equal(t, 12.5, args[0])
}

func TestValidate_TimeRange(t *testing.T) {
	req := storeRevenueRequest()
	req.TimeRange = &models.TimeRange{Start: "2024-02-01", End: "2024-01-01"}
	_, err := Validate(req, DefaultLimits())
	assert.Equal(t, CodeTypeMismatch, codeOf(t, err))

	req.TimeRange = &models.TimeRange{Start: "not-a-date"}
	_, err = Validate(req, DefaultLimits())
	assert.Equal(t, CodeTypeMismatch, codeOf(t, err))

	req.TimeRange = &models.TimeRange{Start: "2024-01-01T00:00:00Z", End: "2024-01-01T12:00:00Z"}
	q, err := Validate(req, DefaultLimits())
	require.NoError(t, err)
	_, args := Build(q)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), args[1])
}

func TestValidate_Aliases(t *testing.T) {
	req := storeRevenueRequest()
	req.Metrics[0].Alias = `x" FROM users --`
	_, err := Validate(req, DefaultLimits())
	assert.True(t, errors.Is(err, ErrInvalidAlias))

	req = storeRevenueRequest()
	req.Metrics[0].Alias = "store_name"
	_, err = Validate(req, DefaultLimits())
	assert.True(t, errors.Is(err, ErrDuplicateAlias))

	req = storeRevenueRequest()
	req.Metrics = append(req.Metrics, models.Metric{Field: "net_amount", Aggregation: "sum"})
	_, err = Validate(req, DefaultLimits())
	assert.True(t, errors.Is(err, ErrDuplicateAlias))
}

func TestValidate_OrderBy(t *testing.T) {
	cases := []struct {
		name    string
		orderBy models.OrderBy
		ok      bool
	}{
		{"metric alias", models.OrderBy{Field: "sum_net_amount", Direction: "desc"}, true},
		{"grouped field", models.OrderBy{Field: "store_name", Direction: "ASC"}, true},
		{"expression", models.OrderBy{Field: "1; DROP TABLE sales"}, false},
		{"bad direction", models.OrderBy{Field: "sum_net_amount", Direction: "sideways"}, false},
		{"ungrouped field", models.OrderBy{Field: "channel_name"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := storeRevenueRequest()
			req.OrderBy = []models.OrderBy{c.orderBy}
			_, err := Validate(req, DefaultLimits())
			if c.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidOrderBy), "got %v", err)
		})
	}
}

func TestValidate_MixedGrain(t *testing.T) {
	req := models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "product_name"}},
		Metrics:    []models.Metric{{Field: "net_amount", Aggregation: "sum"}},
	}
	_, err := Validate(req, DefaultLimits())
	assert.True(t, errors.Is(err, ErrMixedGrain))

	req.Metrics = []models.Metric{{Field: "item_revenue", Aggregation: "sum"}, {Field: "sale_id", Aggregation: "count"}}
	_, err = Validate(req, DefaultLimits())
	assert.NoError(t, err)
}

func TestValidate_RuleOrderIsStable(t *testing.T) {
	// Unknown field, bad operator and bad alias at once: the field check runs first.
	req := models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "store_name", Alias: "bad alias"}},
		Metrics:    []models.Metric{{Field: "nope", Aggregation: "sum"}},
		Filters:    []models.Filter{{Field: "net_amount", Operator: "like", Value: "x"}},
	}
	for i := 0; i < 5; i++ {
		_, err := Validate(req, DefaultLimits())
		assert.Equal(t, CodeUnknownField, codeOf(t, err))
	}

	// Limit beats unknown field.
	req.Limit = 5000
	_, err := Validate(req, DefaultLimits())
	assert.Equal(t, CodeLimitExceeded, codeOf(t, err))
}

func TestValidate_InjectionNeverReachesSQL(t *testing.T) {
	build := func(value string) (string, []interface{}) {
		req := storeRevenueRequest()
		req.Filters = []models.Filter{
			{Field: "store_name", Operator: "eq", Value: value},
			{Field: "channel_name", Operator: "like", Value: value},
			{Field: "store_city", Operator: "in", Value: []interface{}{value, "Recife"}},
		}
		q, err := Validate(req, DefaultLimits())
		require.NoError(t, err)
		return Build(q)
	}

	payload := "'; DROP TABLE sales; --"
	sql, args := build(payload)
	benignSQL, _ := build("Centro")

	assert.Equal(t, benignSQL, sql)
	assert.NotContains(t, sql, "DROP")
	assert.Contains(t, args, payload)
	assert.Contains(t, args, []string{payload, "Recife"})
}

func TestRegistry_FieldsAreConsistent(t *testing.T) {
	for _, f := range Fields() {
		got, ok := Lookup(f.Name)
		require.True(t, ok, f.Name)
		assert.Equal(t, f, got)
		assert.Equal(t, f, Get(f.ID))
		assert.NotEmpty(t, f.AggregationNames(), f.Name)
		assert.NotEmpty(t, f.OperatorNames(), f.Name)
		if f.Type == TypeString {
			assert.Equal(t, []string{"count"}, f.AggregationNames(), f.Name)
		}
	}
	_, ok := Lookup("s.total_amount")
	assert.False(t, ok)
}
