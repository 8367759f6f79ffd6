package sqltranslate

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// groupKey is one COLLECT grouping key, named either from the matching
// SELECT alias (so RETURN can reference it directly) or g0, g1...
type groupKey struct {
	alias string
	expr  string
}

func groupByKeys(groupBy sqlparser.GroupBy, selectExprs sqlparser.SelectExprs, defaultAlias string) ([]groupKey, error) {
	keys := make([]groupKey, 0, len(groupBy))
	for i, e := range groupBy {
		text, err := translateExpr(e, defaultAlias)
		if err != nil {
			return nil, err
		}
		alias := fmt.Sprintf("g%d", i)
		if col, ok := e.(*sqlparser.ColName); ok {
			if a := aliasForColumn(selectExprs, col); a != "" {
				alias = a
			} else {
				alias = col.Name.String()
			}
		}
		keys = append(keys, groupKey{alias: alias, expr: text})
	}
	return keys, nil
}

// aliasForColumn finds the SELECT-list alias for a bare column reference,
// so `GROUP BY name` with `SELECT name` reuses `name` rather than `g0`.
func aliasForColumn(selectExprs sqlparser.SelectExprs, col *sqlparser.ColName) string {
	for _, se := range selectExprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		if c, ok := ae.Expr.(*sqlparser.ColName); ok && c.Name.String() == col.Name.String() {
			return aliasName(ae)
		}
	}
	return ""
}

// aggregate is one SELECT-list aggregate function, bound to a LET after
// COLLECT so HAVING/ORDER BY/RETURN never recompute it.
type aggregate struct {
	alias string
	fn    string // COUNT, SUM, AVG, MIN, MAX
	arg   string // translated inner expression; empty for COUNT(*)
	star  bool
}

func (a aggregate) dbqlExpr(groupVar string) string {
	if a.star {
		return fmt.Sprintf("LENGTH(%s)", groupVar)
	}
	return fmt.Sprintf("%s(%s[*].%s)", a.fn, groupVar, a.arg)
}

func collectAggregates(exprs sqlparser.SelectExprs) ([]aggregate, error) {
	var out []aggregate
	for _, se := range exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		fn, ok := ae.Expr.(*sqlparser.FuncExpr)
		if !ok || !isAggregateFunc(ae.Expr) {
			continue
		}
		name := strings.ToUpper(fn.Name.String())
		alias := aliasName(ae)
		if isCountStar(fn) {
			out = append(out, aggregate{alias: alias, fn: name, star: true})
			continue
		}
		if len(fn.Exprs) != 1 {
			continue
		}
		inner, ok := fn.Exprs[0].(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		col, ok := inner.Expr.(*sqlparser.ColName)
		if !ok {
			continue
		}
		out = append(out, aggregate{alias: alias, fn: name, arg: col.Name.String()})
	}
	return out, nil
}

// substituteAggregateAliases replaces every literal occurrence of an
// aggregate's recomputed form (e.g. "LENGTH(group)" or
// "SUM(group[*].age)") with its bound LET alias, so HAVING never
// recomputes an aggregate already materialized after COLLECT.
func substituteAggregateAliases(text string, aggs []aggregate, groupVar string) string {
	for _, a := range aggs {
		text = strings.ReplaceAll(text, a.dbqlExpr(groupVar), a.alias)
	}
	return text
}

func isAggregateFunc(e sqlparser.Expr) bool {
	fn, ok := e.(*sqlparser.FuncExpr)
	if !ok {
		return false
	}
	switch strings.ToUpper(fn.Name.String()) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	default:
		return false
	}
}
