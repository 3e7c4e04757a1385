package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-analytics/models"
)

func TestBuild_StoreRevenueRollup(t *testing.T) {
	req := storeRevenueRequest()
	req.TimeRange = &models.TimeRange{Start: "2024-01-01", End: "2024-01-31"}

	sql, args, columns, err := Compile(req, DefaultLimits())
	require.NoError(t, err)

	want := `SELECT st.name AS "store_name", SUM(s.total_amount)::float8 AS "sum_net_amount"
FROM sales s
LEFT JOIN stores st ON st.id = s.store_id
WHERE s.sale_status_desc = 'COMPLETED'
  AND s.created_at >= $1
  AND s.created_at < $2
GROUP BY st.name
LIMIT $3`
	assert.Equal(t, want, sql)
	assert.Equal(t, []interface{}{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		100,
	}, args)
	assert.Equal(t, []string{"store_name", "sum_net_amount"}, columns)
}

func TestBuild_ParametersFollowPlaceholderOrder(t *testing.T) {
	req := models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "channel_name", Alias: "channel"}},
		Metrics: []models.Metric{
			{Field: "sale_id", Aggregation: "count", Alias: "orders"},
			{Field: "net_amount", Aggregation: "avg", Alias: "ticket"},
		},
		Filters: []models.Filter{
			{Field: "store_id", Operator: "in", Value: []interface{}{1.0, 2.0}},
			{Field: "net_amount", Operator: "gt", Value: 10.0},
		},
		OrderBy: []models.OrderBy{{Field: "orders", Direction: "desc"}},
		Limit:   25,
	}

	sql, args, _, err := Compile(req, DefaultLimits())
	require.NoError(t, err)

	assert.Contains(t, sql, `COUNT(s.id) AS "orders"`)
	assert.Contains(t, sql, `AVG(s.total_amount)::float8 AS "ticket"`)
	assert.Contains(t, sql, "s.store_id = ANY($1)")
	assert.Contains(t, sql, "s.total_amount > $2")
	assert.Contains(t, sql, `ORDER BY "orders" DESC`)
	assert.True(t, strings.HasSuffix(sql, "LIMIT $3"))
	assert.Equal(t, []interface{}{[]int64{1, 2}, 10.0, 25}, args)
}

func TestBuild_JoinsOnlyWhatIsReferenced(t *testing.T) {
	req := models.QueryRequest{
		Metrics: []models.Metric{{Field: "net_amount", Aggregation: "sum"}},
	}
	sql, _, _, err := Compile(req, DefaultLimits())
	require.NoError(t, err)
	assert.NotContains(t, sql, "JOIN")
	assert.NotContains(t, sql, "GROUP BY")

	req = models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "product_name"}},
		Metrics:    []models.Metric{{Field: "item_quantity", Aggregation: "sum"}},
		Filters:    []models.Filter{{Field: "store_city", Operator: "eq", Value: "Recife"}},
	}
	sql, _, _, err = Compile(req, DefaultLimits())
	require.NoError(t, err)

	stores := strings.Index(sql, "LEFT JOIN stores st")
	items := strings.Index(sql, "JOIN product_sales ps")
	products := strings.Index(sql, "LEFT JOIN products p")
	require.True(t, stores > 0 && items > 0 && products > 0, sql)
	assert.Less(t, stores, items)
	assert.Less(t, items, products)
	assert.NotContains(t, sql, "channels")
}

func TestBuild_GroupByUsesExpressions(t *testing.T) {
	req := models.QueryRequest{
		Dimensions: []models.Dimension{{Field: "sale_date", Alias: "day"}},
		Metrics:    []models.Metric{{Field: "net_amount", Aggregation: "sum", Alias: "revenue"}},
		GroupBy:    []string{"store_id"},
		OrderBy:    []models.OrderBy{{Field: "store_id"}},
	}
	sql, _, _, err := Compile(req, DefaultLimits())
	require.NoError(t, err)
	assert.Contains(t, sql, "GROUP BY DATE(s.created_at), s.store_id")
	assert.Contains(t, sql, "ORDER BY s.store_id ASC")
}

func TestBuild_LikeIsEscaped(t *testing.T) {
	req := storeRevenueRequest()
	req.Filters = []models.Filter{{Field: "store_name", Operator: "like", Value: `50%_off\`}}
	sql, args, _, err := Compile(req, DefaultLimits())
	require.NoError(t, err)
	assert.Contains(t, sql, "st.name ILIKE $1")
	assert.Equal(t, `%50\%\_off\\%`, args[0])
}

func TestBuild_ReturnsFreshArgs(t *testing.T) {
	q, err := Validate(storeRevenueRequest(), DefaultLimits())
	require.NoError(t, err)

	_, args := Build(q)
	args[0] = "mutated"
	_, again := Build(q)
	assert.Equal(t, 100, again[0])
}
