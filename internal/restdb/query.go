package restdb

import (
	"fmt"
	"net/url"
	"strings"
)

// Query accumulates filter, order, and projection parameters for a read.
// The encoding follows the backend's dialect: `col=eq.value`,
// `col=in.(v1,v2)`, `col=ilike."value"` with internal quotes doubled, and
// `order=col.direction[.nullslast]`.
type Query struct {
	params [][2]string
	limit  int
}

// Select restricts the returned columns.
func (q *Query) Select(cols ...string) *Query {
	q.params = append(q.params, [2]string{"select", strings.Join(cols, ",")})
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(col string, value any) *Query {
	q.params = append(q.params, [2]string{col, fmt.Sprintf("eq.%v", value)})
	return q
}

// In adds a membership filter over the given values.
func (q *Query) In(col string, values ...any) *Query {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	q.params = append(q.params, [2]string{col, "in.(" + strings.Join(parts, ",") + ")"})
	return q
}

// ILike adds a case-insensitive pattern filter. The value is quoted so commas
// and reserved characters survive; embedded quotes are doubled.
func (q *Query) ILike(col, value string) *Query {
	q.params = append(q.params, [2]string{col, "ilike." + quote(value)})
	return q
}

// Or adds a disjunction of expressions built with ILikeExpr or EqExpr.
func (q *Query) Or(exprs ...string) *Query {
	q.params = append(q.params, [2]string{"or", "(" + strings.Join(exprs, ",") + ")"})
	return q
}

// Order adds an ordering clause. Multiple calls accumulate.
func (q *Query) Order(col, direction string, nullsLast bool) *Query {
	clause := col + "." + direction
	if nullsLast {
		clause += ".nullslast"
	}
	q.params = append(q.params, [2]string{"order", clause})
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// ILikeExpr builds a `col.ilike."value"` expression for use inside Or.
func ILikeExpr(col, value string) string {
	return col + ".ilike." + quote(value)
}

// EqExpr builds a `col.eq.value` expression for use inside Or.
func EqExpr(col string, value any) string {
	return fmt.Sprintf("%s.eq.%v", col, value)
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// Encode renders the accumulated parameters as a URL query string, preserving
// insertion order so repeated order clauses keep their precedence.
func (q *Query) Encode() string {
	var b strings.Builder
	for i, p := range q.params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	if q.limit > 0 {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "limit=%d", q.limit)
	}
	return b.String()
}
