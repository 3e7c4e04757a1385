package query

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"restaurant-analytics/models"
)

// StatusPredicate is applied to every query: only completed sales count.
const StatusPredicate = "s.sale_status_desc = 'COMPLETED'"

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const maxAliasLength = 63

// maxInValues bounds the size of an "in" filter list.
const maxInValues = 1000

// Limits are the resource bounds enforced on a QueryRequest.
type Limits struct {
	MaxDimensions int
	MaxMetrics    int
	MaxFilters    int
	MaxLimit      int
	DefaultLimit  int
}

// DefaultLimits returns the stock bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxDimensions: 5,
		MaxMetrics:    10,
		MaxFilters:    10,
		MaxLimit:      1000,
		DefaultLimit:  100,
	}
}

// ValidatedQuery is the immutable result of Validate. It carries resolved SQL fragments and
// the positional parameters; nothing in it is raw caller text except pattern-checked aliases.
type ValidatedQuery struct {
	selects []string
	columns []string
	joins   []string
	where   []string
	groupBy []string
	orderBy []string
	limit   string
	args    []interface{}
}

// Columns returns the result column names in select order.
func (v *ValidatedQuery) Columns() []string {
	out := make([]string, len(v.columns))
	copy(out, v.columns)
	return out
}

type resolvedMetric struct {
	field Field
	agg   Aggregation
	alias string
}

type resolvedDimension struct {
	field Field
	alias string
}

type validator struct {
	req    models.QueryRequest
	limits Limits

	dimAliases    []string
	metricAliases []string

	dims    []resolvedDimension
	metrics []resolvedMetric
	filters []Field
	groupBy []Field
	orderBy []*Field // nil entry: ordered by alias
	limit   int

	where []string
	args  []interface{}
}

// Validate checks a request against the registry and the limits. Rules run in a fixed
// order and the first failure is returned, so a request always gets the same verdict.
func Validate(req models.QueryRequest, limits Limits) (*ValidatedQuery, error) {
	v := &validator{req: req, limits: limits}
	v.defaultAliases()

	steps := []func() error{
		v.checkEmpty,
		v.checkLimits,
		v.resolveFields,
		v.checkAggregations,
		v.checkFilters,
		v.checkAliases,
		v.checkOrderBy,
		v.checkGrain,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return v.assemble(), nil
}

func (v *validator) defaultAliases() {
	for _, d := range v.req.Dimensions {
		alias := d.Alias
		if alias == "" {
			alias = d.Field
		}
		v.dimAliases = append(v.dimAliases, alias)
	}
	for _, m := range v.req.Metrics {
		alias := m.Alias
		if alias == "" {
			alias = strings.ToLower(m.Aggregation) + "_" + m.Field
		}
		v.metricAliases = append(v.metricAliases, alias)
	}
}

func (v *validator) isAlias(name string) bool {
	for _, a := range v.dimAliases {
		if a == name {
			return true
		}
	}
	for _, a := range v.metricAliases {
		if a == name {
			return true
		}
	}
	return false
}

func (v *validator) checkEmpty() error {
	if len(v.req.Dimensions) == 0 && len(v.req.Metrics) == 0 {
		return newError(CodeEmptyRequest, "", "request must contain at least one dimension or metric")
	}
	return nil
}

func (v *validator) checkLimits() error {
	switch {
	case len(v.req.Dimensions) > v.limits.MaxDimensions:
		return newError(CodeLimitExceeded, "dimensions", "at most %d dimensions allowed, got %d", v.limits.MaxDimensions, len(v.req.Dimensions))
	case len(v.req.Metrics) > v.limits.MaxMetrics:
		return newError(CodeLimitExceeded, "metrics", "at most %d metrics allowed, got %d", v.limits.MaxMetrics, len(v.req.Metrics))
	case len(v.req.Filters) > v.limits.MaxFilters:
		return newError(CodeLimitExceeded, "filters", "at most %d filters allowed, got %d", v.limits.MaxFilters, len(v.req.Filters))
	}

	v.limit = v.req.Limit
	if v.limit == 0 {
		v.limit = v.limits.DefaultLimit
	}
	if v.limit < 1 || v.limit > v.limits.MaxLimit {
		return newError(CodeLimitExceeded, "limit", "limit must be between 1 and %d", v.limits.MaxLimit)
	}
	return nil
}

func (v *validator) resolveFields() error {
	lookup := func(name string) (Field, error) {
		f, ok := Lookup(name)
		if !ok {
			return Field{}, newError(CodeUnknownField, name, "field %q is not available for querying", name)
		}
		return f, nil
	}

	for i, d := range v.req.Dimensions {
		f, err := lookup(d.Field)
		if err != nil {
			return err
		}
		v.dims = append(v.dims, resolvedDimension{field: f, alias: v.dimAliases[i]})
	}
	for i, m := range v.req.Metrics {
		f, err := lookup(m.Field)
		if err != nil {
			return err
		}
		v.metrics = append(v.metrics, resolvedMetric{field: f, alias: v.metricAliases[i]})
	}
	for _, flt := range v.req.Filters {
		f, err := lookup(flt.Field)
		if err != nil {
			return err
		}
		v.filters = append(v.filters, f)
	}
	for _, name := range v.req.GroupBy {
		f, err := lookup(name)
		if err != nil {
			return err
		}
		v.groupBy = append(v.groupBy, f)
	}
	// Non-identifier order-by entries are left to checkOrderBy.
	for _, o := range v.req.OrderBy {
		if v.isAlias(o.Field) || !aliasPattern.MatchString(o.Field) {
			v.orderBy = append(v.orderBy, nil)
			continue
		}
		f, err := lookup(o.Field)
		if err != nil {
			return err
		}
		v.orderBy = append(v.orderBy, &f)
	}
	return nil
}

func (v *validator) checkAggregations() error {
	for i, m := range v.req.Metrics {
		agg, ok := aggregationNames[strings.ToLower(m.Aggregation)]
		if !ok {
			return newError(CodeInvalidAggregation, m.Field, "unknown aggregation %q", m.Aggregation)
		}
		f := v.metrics[i].field
		if !f.AllowsAggregation(agg) {
			return newError(CodeInvalidAggregation, m.Field, "aggregation %q is not allowed on %s field %q (allowed: %s)",
				agg, f.Type, f.Name, strings.Join(f.AggregationNames(), ", "))
		}
		v.metrics[i].agg = agg
	}
	return nil
}

func (v *validator) bind(value interface{}) string {
	v.args = append(v.args, value)
	return "$" + strconv.Itoa(len(v.args))
}

func (v *validator) checkFilters() error {
	v.where = append(v.where, StatusPredicate)

	if tr := v.req.TimeRange; tr != nil {
		var start, end time.Time
		var hasStart, hasEnd bool
		if tr.Start != "" {
			t, _, err := parseTime(tr.Start)
			if err != nil {
				return newError(CodeTypeMismatch, "time_range.start", "cannot parse %q as a date", tr.Start)
			}
			start, hasStart = t, true
		}
		if tr.End != "" {
			t, dateOnly, err := parseTime(tr.End)
			if err != nil {
				return newError(CodeTypeMismatch, "time_range.end", "cannot parse %q as a date", tr.End)
			}
			if dateOnly {
				t = t.AddDate(0, 0, 1)
			}
			end, hasEnd = t, true
		}
		if hasStart && hasEnd && !start.Before(end) {
			return newError(CodeTypeMismatch, "time_range", "start must be before end")
		}
		if hasStart {
			v.where = append(v.where, "s.created_at >= "+v.bind(start))
		}
		if hasEnd {
			v.where = append(v.where, "s.created_at < "+v.bind(end))
		}
	}

	for i, flt := range v.req.Filters {
		f := v.filters[i]
		op, ok := operatorNames[strings.ToLower(flt.Operator)]
		if !ok {
			return newError(CodeInvalidOperator, f.Name, "unknown operator %q", flt.Operator)
		}
		if !f.AllowsOperator(op) {
			return newError(CodeInvalidOperator, f.Name, "operator %q is not allowed on %s field %q (allowed: %s)",
				op, f.Type, f.Name, strings.Join(f.OperatorNames(), ", "))
		}
		value, err := coerceFilterValue(f, op, flt.Value)
		if err != nil {
			return err
		}
		switch op {
		case OpIn:
			v.where = append(v.where, f.Expr+" = ANY("+v.bind(value)+")")
		case OpLike:
			v.where = append(v.where, f.Expr+" ILIKE "+v.bind(value))
		default:
			v.where = append(v.where, f.Expr+" "+op.sql()+" "+v.bind(value))
		}
	}
	return nil
}

func (v *validator) checkAliases() error {
	seen := make(map[string]bool)
	check := func(alias, field string) error {
		if len(alias) > maxAliasLength || !aliasPattern.MatchString(alias) {
			return newError(CodeInvalidAlias, field, "alias %q must match [A-Za-z0-9_]+ and be at most %d characters", alias, maxAliasLength)
		}
		if seen[alias] {
			return newError(CodeDuplicateAlias, field, "alias %q is used more than once", alias)
		}
		seen[alias] = true
		return nil
	}
	for _, d := range v.dims {
		if err := check(d.alias, d.field.Name); err != nil {
			return err
		}
	}
	for _, m := range v.metrics {
		if err := check(m.alias, m.field.Name); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) grouped(id FieldID) bool {
	for _, d := range v.dims {
		if d.field.ID == id {
			return true
		}
	}
	for _, f := range v.groupBy {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (v *validator) checkOrderBy() error {
	for i, o := range v.req.OrderBy {
		switch strings.ToLower(o.Direction) {
		case "", "asc", "desc":
		default:
			return newError(CodeInvalidOrderBy, o.Field, "direction must be asc or desc")
		}
		if v.isAlias(o.Field) {
			continue
		}
		f := v.orderBy[i]
		if f == nil {
			return newError(CodeInvalidOrderBy, o.Field, "order by must reference a declared alias or a whitelisted field")
		}
		if !v.grouped(f.ID) {
			return newError(CodeInvalidOrderBy, o.Field, "field %q must be a dimension or group_by field to be used in order by", f.Name)
		}
	}
	return nil
}

func (v *validator) checkGrain() error {
	lineItems := false
	for _, f := range v.referenced() {
		if f.LineItem() {
			lineItems = true
			break
		}
	}
	if !lineItems {
		return nil
	}
	for _, m := range v.metrics {
		if m.field.saleGrain && (m.agg == AggSum || m.agg == AggAvg) {
			return newError(CodeMixedGrain, m.field.Name, "%s of sale-level field %q cannot be combined with line-item fields", m.agg, m.field.Name)
		}
	}
	return nil
}

func (v *validator) referenced() []Field {
	var out []Field
	for _, d := range v.dims {
		out = append(out, d.field)
	}
	for _, m := range v.metrics {
		out = append(out, m.field)
	}
	out = append(out, v.filters...)
	out = append(out, v.groupBy...)
	for _, f := range v.orderBy {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

func quoteIdent(alias string) string {
	return `"` + alias + `"`
}

func (v *validator) assemble() *ValidatedQuery {
	q := &ValidatedQuery{where: v.where}

	for _, d := range v.dims {
		expr := d.field.Expr
		if d.field.Type == TypeNumeric {
			expr += "::float8"
		}
		q.selects = append(q.selects, expr+" AS "+quoteIdent(d.alias))
		q.columns = append(q.columns, d.alias)
	}
	for _, m := range v.metrics {
		expr := m.agg.sql() + "(" + m.field.Expr + ")"
		switch {
		case m.agg == AggSum || m.agg == AggAvg:
			expr += "::float8"
		case (m.agg == AggMin || m.agg == AggMax) && m.field.Type == TypeNumeric:
			expr += "::float8"
		}
		q.selects = append(q.selects, expr+" AS "+quoteIdent(m.alias))
		q.columns = append(q.columns, m.alias)
	}

	needed := make(map[Join]bool)
	for _, f := range v.referenced() {
		needed[f.Join] = true
	}
	if needed[JoinProducts] {
		needed[JoinLineItems] = true
	}
	for j := JoinStores; j <= JoinProducts; j++ {
		if needed[j] {
			q.joins = append(q.joins, joinClauses[j])
		}
	}

	seen := make(map[FieldID]bool)
	for _, d := range v.dims {
		if !seen[d.field.ID] {
			seen[d.field.ID] = true
			q.groupBy = append(q.groupBy, d.field.Expr)
		}
	}
	for _, f := range v.groupBy {
		if !seen[f.ID] {
			seen[f.ID] = true
			q.groupBy = append(q.groupBy, f.Expr)
		}
	}

	for i, o := range v.req.OrderBy {
		dir := "ASC"
		if strings.EqualFold(o.Direction, "desc") {
			dir = "DESC"
		}
		if v.isAlias(o.Field) {
			q.orderBy = append(q.orderBy, quoteIdent(o.Field)+" "+dir)
			continue
		}
		q.orderBy = append(q.orderBy, v.orderBy[i].Expr+" "+dir)
	}

	q.limit = v.bind(v.limit)
	q.args = v.args
	return q
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// parseTime accepts YYYY-MM-DD or an RFC3339-style timestamp and reports which it was.
func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, false, nil
		}
		lastErr = err
	}
	return time.Time{}, false, lastErr
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func coerceFilterValue(f Field, op Operator, value interface{}) (interface{}, error) {
	switch op {
	case OpLike:
		s, ok := value.(string)
		if !ok {
			return nil, newError(CodeTypeMismatch, f.Name, "like requires a string value")
		}
		return "%" + likeEscaper.Replace(s) + "%", nil
	case OpIn:
		return coerceList(f, value)
	}
	return coerceScalar(f, value)
}

func coerceList(f Field, value interface{}) (interface{}, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, newError(CodeTypeMismatch, f.Name, "in requires a list value")
	}
	if len(list) == 0 {
		return nil, newError(CodeTypeMismatch, f.Name, "in requires at least one value")
	}
	if len(list) > maxInValues {
		return nil, newError(CodeTypeMismatch, f.Name, "in accepts at most %d values", maxInValues)
	}

	switch f.Type {
	case TypeInteger:
		out := make([]int64, 0, len(list))
		for _, item := range list {
			x, err := coerceScalar(f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, x.(int64))
		}
		return out, nil
	case TypeNumeric:
		out := make([]float64, 0, len(list))
		for _, item := range list {
			x, err := coerceScalar(f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, x.(float64))
		}
		return out, nil
	case TypeString:
		out := make([]string, 0, len(list))
		for _, item := range list {
			x, err := coerceScalar(f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, x.(string))
		}
		return out, nil
	}
	out := make([]time.Time, 0, len(list))
	for _, item := range list {
		x, err := coerceScalar(f, item)
		if err != nil {
			return nil, err
		}
		out = append(out, x.(time.Time))
	}
	return out, nil
}

func coerceScalar(f Field, value interface{}) (interface{}, error) {
	mismatch := func() error {
		return newError(CodeTypeMismatch, f.Name, "value %v is not a valid %s", describe(value), f.Type)
	}

	switch f.Type {
	case TypeInteger:
		n, ok := toFloat(value)
		if !ok || n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return nil, mismatch()
		}
		return int64(n), nil
	case TypeNumeric:
		n, ok := toFloat(value)
		if !ok {
			return nil, mismatch()
		}
		return n, nil
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, mismatch()
		}
		return s, nil
	case TypeDate, TypeTimestamp:
		s, ok := value.(string)
		if !ok {
			return nil, mismatch()
		}
		t, _, err := parseTime(s)
		if err != nil {
			return nil, mismatch()
		}
		return t, nil
	}
	return nil, mismatch()
}

func toFloat(value interface{}) (float64, bool) {
	var n float64
	switch x := value.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func describe(value interface{}) string {
	if s, ok := value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", value)
}
