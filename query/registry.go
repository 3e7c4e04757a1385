// Package query turns declarative aggregate requests into parameterized SQL over the
// sales fact table. Every column reference goes through the field registry below; caller
// text never reaches the SQL string.
package query

import "sort"

// FieldType is the SQL type family of a registry field.
type FieldType int

const (
	TypeInteger FieldType = iota
	TypeNumeric
	TypeString
	TypeDate
	TypeTimestamp
)

func (t FieldType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeNumeric:
		return "numeric"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	}
	return "unknown"
}

// Join is a dimension table a field needs in the FROM clause.
type Join int

const (
	JoinNone Join = iota
	JoinStores
	JoinChannels
	JoinCustomers
	JoinLineItems
	JoinProducts
)

// joinClauses are emitted in this order; products depend on line items.
var joinClauses = map[Join]string{
	JoinStores:    "LEFT JOIN stores st ON st.id = s.store_id",
	JoinChannels:  "LEFT JOIN channels ch ON ch.id = s.channel_id",
	JoinCustomers: "LEFT JOIN customers c ON c.id = s.customer_id",
	JoinLineItems: "JOIN product_sales ps ON ps.sale_id = s.id",
	JoinProducts:  "LEFT JOIN products p ON p.id = ps.product_id",
}

var joinTables = map[Join]string{
	JoinNone:      "sales",
	JoinStores:    "stores",
	JoinChannels:  "channels",
	JoinCustomers: "customers",
	JoinLineItems: "product_sales",
	JoinProducts:  "products",
}

// Aggregation is an aggregate function permitted in a metric.
type Aggregation int

const (
	AggSum Aggregation = iota
	AggAvg
	AggCount
	AggMin
	AggMax
)

var aggregationNames = map[string]Aggregation{
	"sum":   AggSum,
	"avg":   AggAvg,
	"count": AggCount,
	"min":   AggMin,
	"max":   AggMax,
}

func (a Aggregation) String() string {
	switch a {
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggCount:
		return "count"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "unknown"
}

func (a Aggregation) sql() string {
	switch a {
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	}
	return "COUNT"
}

// Operator is a filter comparison.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpLike
)

var operatorNames = map[string]Operator{
	"eq":   OpEq,
	"ne":   OpNe,
	"gt":   OpGt,
	"gte":  OpGte,
	"lt":   OpLt,
	"lte":  OpLte,
	"in":   OpIn,
	"like": OpLike,
}

func (o Operator) String() string {
	for name, op := range operatorNames {
		if op == o {
			return name
		}
	}
	return "unknown"
}

func (o Operator) sql() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	}
	return ""
}

type aggSet uint8

func aggs(list ...Aggregation) aggSet {
	var s aggSet
	for _, a := range list {
		s |= 1 << a
	}
	return s
}

func (s aggSet) has(a Aggregation) bool { return s&(1<<a) != 0 }

type opSet uint16

func ops(list ...Operator) opSet {
	var s opSet
	for _, o := range list {
		s |= 1 << o
	}
	return s
}

func (s opSet) has(o Operator) bool { return s&(1<<o) != 0 }

var (
	measureAggs  = aggs(AggSum, AggAvg, AggCount, AggMin, AggMax)
	countOnly    = aggs(AggCount)
	temporalAggs = aggs(AggCount, AggMin, AggMax)

	numericOps  = ops(OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn)
	identityOps = ops(OpEq, OpNe, OpIn)
	stringOps   = ops(OpEq, OpNe, OpIn, OpLike)
	temporalOps = ops(OpEq, OpNe, OpGt, OpGte, OpLt, OpLte)
)

// FieldID enumerates every column the engine may reference.
type FieldID int

const (
	FieldSaleID FieldID = iota
	FieldCreatedAt
	FieldSaleDate
	FieldSaleMonth
	FieldSaleHour
	FieldDayOfWeek
	FieldStoreID
	FieldChannelID
	FieldCustomerID
	FieldGrossAmount
	FieldDiscountAmount
	FieldNetAmount
	FieldDeliveryFee
	FieldServiceFee
	FieldPeopleQuantity
	FieldProductionSeconds
	FieldDeliverySeconds
	FieldStoreName
	FieldStoreCity
	FieldStoreState
	FieldChannelName
	FieldChannelType
	FieldCustomerName
	FieldProductID
	FieldProductName
	FieldItemQuantity
	FieldItemRevenue

	fieldCount
)

// Field is the column descriptor behind a logical field name.
type Field struct {
	ID        FieldID
	Name      string
	Expr      string
	Type      FieldType
	Join      Join
	aggs      aggSet
	ops       opSet
	saleGrain bool
}

// LineItem reports whether referencing the field joins sale line items.
func (f Field) LineItem() bool {
	return f.Join == JoinLineItems || f.Join == JoinProducts
}

// AllowsAggregation reports whether the aggregation is permitted for the field.
func (f Field) AllowsAggregation(a Aggregation) bool { return f.aggs.has(a) }

// AllowsOperator reports whether the filter operator is permitted for the field.
func (f Field) AllowsOperator(o Operator) bool { return f.ops.has(o) }

var registry = [fieldCount]Field{
	FieldSaleID:            {Name: "sale_id", Expr: "s.id", Type: TypeInteger, aggs: countOnly, ops: identityOps},
	FieldCreatedAt:         {Name: "created_at", Expr: "s.created_at", Type: TypeTimestamp, aggs: temporalAggs, ops: temporalOps},
	FieldSaleDate:          {Name: "sale_date", Expr: "DATE(s.created_at)", Type: TypeDate, aggs: temporalAggs, ops: temporalOps},
	FieldSaleMonth:         {Name: "sale_month", Expr: "DATE_TRUNC('month', s.created_at)::date", Type: TypeDate, aggs: temporalAggs, ops: temporalOps},
	FieldSaleHour:          {Name: "sale_hour", Expr: "EXTRACT(HOUR FROM s.created_at)::int", Type: TypeInteger, aggs: countOnly, ops: numericOps},
	FieldDayOfWeek:         {Name: "day_of_week", Expr: "EXTRACT(DOW FROM s.created_at)::int", Type: TypeInteger, aggs: countOnly, ops: numericOps},
	FieldStoreID:           {Name: "store_id", Expr: "s.store_id", Type: TypeInteger, aggs: countOnly, ops: identityOps},
	FieldChannelID:         {Name: "channel_id", Expr: "s.channel_id", Type: TypeInteger, aggs: countOnly, ops: identityOps},
	FieldCustomerID:        {Name: "customer_id", Expr: "s.customer_id", Type: TypeInteger, aggs: countOnly, ops: identityOps},
	FieldGrossAmount:       {Name: "gross_amount", Expr: "s.total_amount_items", Type: TypeNumeric, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldDiscountAmount:    {Name: "discount_amount", Expr: "s.total_discount", Type: TypeNumeric, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldNetAmount:         {Name: "net_amount", Expr: "s.total_amount", Type: TypeNumeric, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldDeliveryFee:       {Name: "delivery_fee", Expr: "s.delivery_fee", Type: TypeNumeric, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldServiceFee:        {Name: "service_fee", Expr: "s.service_tax_fee", Type: TypeNumeric, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldPeopleQuantity:    {Name: "people_quantity", Expr: "s.people_quantity", Type: TypeInteger, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldProductionSeconds: {Name: "production_seconds", Expr: "s.production_seconds", Type: TypeInteger, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldDeliverySeconds:   {Name: "delivery_seconds", Expr: "s.delivery_seconds", Type: TypeInteger, aggs: measureAggs, ops: numericOps, saleGrain: true},
	FieldStoreName:         {Name: "store_name", Expr: "st.name", Type: TypeString, Join: JoinStores, aggs: countOnly, ops: stringOps},
	FieldStoreCity:         {Name: "store_city", Expr: "st.city", Type: TypeString, Join: JoinStores, aggs: countOnly, ops: stringOps},
	FieldStoreState:        {Name: "store_state", Expr: "st.state", Type: TypeString, Join: JoinStores, aggs: countOnly, ops: stringOps},
	FieldChannelName:       {Name: "channel_name", Expr: "ch.name", Type: TypeString, Join: JoinChannels, aggs: countOnly, ops: stringOps},
	FieldChannelType:       {Name: "channel_type", Expr: "ch.type", Type: TypeString, Join: JoinChannels, aggs: countOnly, ops: stringOps},
	FieldCustomerName:      {Name: "customer_name", Expr: "c.customer_name", Type: TypeString, Join: JoinCustomers, aggs: countOnly, ops: stringOps},
	FieldProductID:         {Name: "product_id", Expr: "ps.product_id", Type: TypeInteger, Join: JoinLineItems, aggs: countOnly, ops: identityOps},
	FieldProductName:       {Name: "product_name", Expr: "p.name", Type: TypeString, Join: JoinProducts, aggs: countOnly, ops: stringOps},
	FieldItemQuantity:      {Name: "item_quantity", Expr: "ps.quantity", Type: TypeNumeric, Join: JoinLineItems, aggs: measureAggs, ops: numericOps},
	FieldItemRevenue:       {Name: "item_revenue", Expr: "ps.total_price", Type: TypeNumeric, Join: JoinLineItems, aggs: measureAggs, ops: numericOps},
}

var fieldsByName = func() map[string]FieldID {
	m := make(map[string]FieldID, len(registry))
	for i := range registry {
		registry[i].ID = FieldID(i)
		m[registry[i].Name] = FieldID(i)
	}
	return m
}()

// Lookup resolves a logical field name.
func Lookup(name string) (Field, bool) {
	id, ok := fieldsByName[name]
	if !ok {
		return Field{}, false
	}
	return registry[id], true
}

// Get returns the descriptor for a known field id.
func Get(id FieldID) Field {
	return registry[id]
}

// Fields lists the registry in declaration order.
func Fields() []Field {
	out := make([]Field, len(registry))
	copy(out, registry[:])
	return out
}

// AggregationNames lists the aggregations the field accepts, sorted.
func (f Field) AggregationNames() []string {
	var out []string
	for name, a := range aggregationNames {
		if f.aggs.has(a) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// OperatorNames lists the filter operators the field accepts, sorted.
func (f Field) OperatorNames() []string {
	var out []string
	for name, o := range operatorNames {
		if f.ops.has(o) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Table is the source table of the field.
func (f Field) Table() string {
	return joinTables[f.Join]
}
