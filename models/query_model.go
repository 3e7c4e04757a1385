package models

// Dimension is a non-aggregated grouping column in a QueryRequest.
type Dimension struct {
	Field string `json:"field"`
	Alias string `json:"alias,omitempty"`
}

// Metric is an aggregated column in a QueryRequest.
type Metric struct {
	Field       string `json:"field"`
	Aggregation string `json:"aggregation"`
	Alias       string `json:"alias,omitempty"`
}

// Filter restricts the rows that participate in a QueryRequest.
// Value is whatever the JSON decoder produced: a number, string, bool or list.
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// TimeRange bounds the sale creation timestamp. Dates are YYYY-MM-DD (end inclusive)
// or RFC3339 timestamps (end exclusive).
type TimeRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// OrderBy sorts the result by a declared alias or a grouped field.
type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction,omitempty"`
}

// QueryRequest is the declarative aggregate query accepted by the query endpoint.
type QueryRequest struct {
	Dimensions []Dimension `json:"dimensions"`
	Metrics    []Metric    `json:"metrics"`
	Filters    []Filter    `json:"filters"`
	TimeRange  *TimeRange  `json:"time_range,omitempty"`
	GroupBy    []string    `json:"group_by,omitempty"`
	OrderBy    []OrderBy   `json:"order_by,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

// QueryResult is the tabular answer to a QueryRequest.
type QueryResult struct {
	Columns  []string                 `json:"columns"`
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"rowCount"`
}

// FieldInfo describes one whitelisted field for the metadata endpoint.
type FieldInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Table        string   `json:"table"`
	Aggregations []string `json:"aggregations"`
	Operators    []string `json:"operators"`
}
