package query

import (
	"strings"

	"restaurant-analytics/models"
)

// Build renders a validated query as SQL with positional parameters. The returned args
// line up with $1..$n in the text.
func Build(q *ValidatedQuery) (string, []interface{}) {
	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.selects, ", "))
	b.WriteString("\nFROM sales s")
	for _, j := range q.joins {
		b.WriteString("\n")
		b.WriteString(j)
	}
	if len(q.where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(q.where, "\n  AND "))
	}
	if len(q.groupBy) > 0 {
		b.WriteString("\nGROUP BY ")
		b.WriteString(strings.Join(q.groupBy, ", "))
	}
	if len(q.orderBy) > 0 {
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(q.orderBy, ", "))
	}
	b.WriteString("\nLIMIT ")
	b.WriteString(q.limit)

	args := make([]interface{}, len(q.args))
	copy(args, q.args)
	return b.String(), args
}

// Compile validates and builds in one step.
func Compile(req models.QueryRequest, limits Limits) (string, []interface{}, []string, error) {
	q, err := Validate(req, limits)
	if err != nil {
		return "", nil, nil, err
	}
	sql, args := Build(q)
	return sql, args, q.Columns(), nil
}
