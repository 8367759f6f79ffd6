// Package sqltranslate implements the SQL→DBQL translator: it parses a
// SQL subset (SELECT/INSERT/UPDATE/DELETE with WHERE, GROUP BY, HAVING,
// ORDER BY, LIMIT/OFFSET, JOIN variants, BETWEEN, IN, LIKE, IS NULL, and
// COUNT/SUM/AVG/MIN/MAX) by walking xwb1989/sqlparser's DML statement
// kinds and emits textually valid DBQL.
package sqltranslate

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/solisoft/solidb/dberr"
)

// Translate parses sql and returns the equivalent DBQL query text.
func Translate(sql string) (string, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return "", dberr.Wrap(dberr.ParseError, err, "parsing SQL")
	}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		return translateSelect(s)
	case *sqlparser.Insert:
		return translateInsert(s)
	case *sqlparser.Update:
		return translateUpdate(s)
	case *sqlparser.Delete:
		return translateDelete(s)
	default:
		return "", dberr.New(dberr.ParseError, "unsupported SQL statement: %T", stmt)
	}
}

// tableRef is one FROM/JOIN source resolved to a DBQL loop variable.
type tableRef struct {
	table string // physical collection name
	alias string // DBQL FOR variable; defaults to table when unaliased
	join  string // "" for the first (base) table, else the SQL join keyword
	on    sqlparser.Expr
}

func translateSelect(s *sqlparser.Select) (string, error) {
	refs, err := flattenTableExprs(s.From)
	if err != nil {
		return "", err
	}

	// Bare column references only have an unambiguous single-table home when
	// there is exactly one FROM/JOIN source; with a join, SQL's own implicit
	// scoping is ambiguous too, so such columns are left bare (see colNameToDBQL).
	defaultAlias := ""
	if len(refs) == 1 {
		defaultAlias = refs[0].alias
	}

	var b strings.Builder
	leftJoinNote := false
	for i, r := range refs {
		if i == 0 {
			fmt.Fprintf(&b, "FOR %s IN %s\n", r.alias, r.table)
			continue
		}
		kind := joinKind(r.join)
		if kind == "LEFT" || kind == "RIGHT" || kind == "FULL" {
			leftJoinNote = true
		}
		// LEFT/RIGHT/FULL are emitted as plain nested FOR+FILTER, which
		// evaluates as an implicit INNER join. The executor's own JOIN
		// clause keeps unmatched left rows for LEFT/FULL; this translator's nested-FOR
		// output does not preserve unmatched left rows, a documented
		// limitation noted in the generated text.
		fmt.Fprintf(&b, "FOR %s IN %s\n", r.alias, r.table)
		if r.on != nil {
			cond, err := translateExpr(r.on, defaultAlias)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "  FILTER %s\n", cond)
		}
	}
	if leftJoinNote {
		b.WriteString("// LEFT JOIN executed as INNER\n")
	}

	if s.Where != nil {
		cond, err := translateExpr(s.Where.Expr, defaultAlias)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "FILTER %s\n", cond)
	}

	aggs, err := collectAggregates(s.SelectExprs)
	if err != nil {
		return "", err
	}

	groupVar := "group"
	usesGroup := len(s.GroupBy) > 0 || len(aggs) > 0
	// Once COLLECT has run, only group/LET-bound aliases are in scope, so a
	// bare identifier in HAVING/ORDER BY/RETURN never refers to a raw table
	// column anymore, so qualification against the FOR loop alias stops.
	postGroupAlias := defaultAlias
	if usesGroup {
		postGroupAlias = ""
	}
	if usesGroup {
		keys, err := groupByKeys(s.GroupBy, s.SelectExprs, defaultAlias)
		if err != nil {
			return "", err
		}
		if len(keys) == 0 {
			// Whole-result aggregate with no GROUP BY: the COLLECT grammar
			// still requires at least one key, so bind a constant one. A
			// key equal for every row collapses all rows into a single
			// group.
			keys = []groupKey{{alias: "_all", expr: "1"}}
		}
		fmt.Fprint(&b, "COLLECT ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = %s", k.alias, k.expr)
		}
		fmt.Fprintf(&b, " INTO %s\n", groupVar)

		for _, a := range aggs {
			fmt.Fprintf(&b, "LET %s = %s\n", a.alias, a.dbqlExpr(groupVar))
		}

		if s.Having != nil {
			cond, err := translateExpr(s.Having.Expr, postGroupAlias)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "FILTER %s\n", substituteAggregateAliases(cond, aggs, groupVar))
		}
	}

	if len(s.OrderBy) > 0 {
		b.WriteString("SORT ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			expr, err := translateExpr(o.Expr, postGroupAlias)
			if err != nil {
				return "", err
			}
			dir := "ASC"
			if strings.EqualFold(o.Direction, "desc") {
				dir = "DESC"
			}
			fmt.Fprintf(&b, "%s %s", expr, dir)
		}
		b.WriteByte('\n')
	}

	if s.Limit != nil {
		if s.Limit.Offset != nil {
			offset, err := translateExpr(s.Limit.Offset, postGroupAlias)
			if err != nil {
				return "", err
			}
			count, err := translateExpr(s.Limit.Rowcount, postGroupAlias)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "LIMIT %s, %s\n", offset, count)
		} else {
			count, err := translateExpr(s.Limit.Rowcount, postGroupAlias)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "LIMIT %s\n", count)
		}
	}

	ret, err := translateReturn(s.SelectExprs, refs, usesGroup, postGroupAlias)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "RETURN %s", ret)

	return b.String(), nil
}

// translateReturn builds the RETURN expression. `SELECT *` over a join
// becomes MERGE(left, right, ...); a plain projection
// becomes an object literal using the parser's `{name}` shorthand
// wherever the output alias matches a bare identifier.
func translateReturn(exprs sqlparser.SelectExprs, refs []tableRef, usesGroup bool, defaultAlias string) (string, error) {
	if isStar(exprs) {
		if len(refs) > 1 {
			vars := make([]string, len(refs))
			for i, r := range refs {
				vars[i] = r.alias
			}
			return fmt.Sprintf("MERGE(%s)", strings.Join(vars, ", ")), nil
		}
		if len(refs) == 1 {
			return refs[0].alias, nil
		}
		return "null", nil
	}

	var keys, vals []string
	for _, se := range exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		alias := aliasName(ae)
		var valText string
		if isAggregateFunc(ae.Expr) && usesGroup {
			valText = alias // already bound by a LET above
		} else {
			v, err := translateExpr(ae.Expr, defaultAlias)
			if err != nil {
				return "", err
			}
			valText = v
		}
		keys = append(keys, alias)
		vals = append(vals, valText)
	}

	var b strings.Builder
	b.WriteByte('{')
	for i := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		if keys[i] == vals[i] {
			b.WriteString(keys[i]) // shorthand {name}
		} else {
			fmt.Fprintf(&b, "%s: %s", keys[i], vals[i])
		}
	}
	b.WriteByte('}')
	return b.String(), nil
}

func isStar(exprs sqlparser.SelectExprs) bool {
	if len(exprs) != 1 {
		return false
	}
	_, ok := exprs[0].(*sqlparser.StarExpr)
	return ok
}

func aliasName(ae *sqlparser.AliasedExpr) string {
	if !ae.As.IsEmpty() {
		return ae.As.String()
	}
	if col, ok := ae.Expr.(*sqlparser.ColName); ok {
		return col.Name.String()
	}
	if fn, ok := ae.Expr.(*sqlparser.FuncExpr); ok {
		return strings.ToLower(fn.Name.String())
	}
	return "col"
}

func joinKind(join string) string {
	switch strings.ToLower(join) {
	case sqlparser.LeftJoinStr:
		return "LEFT"
	case sqlparser.RightJoinStr:
		return "RIGHT"
	case sqlparser.NaturalJoinStr:
		return "INNER"
	default:
		if strings.Contains(strings.ToLower(join), "full") {
			return "FULL"
		}
		return "INNER"
	}
}

// flattenTableExprs walks FROM's TableExprs (cross joins at the top level,
// explicit JOIN chains nested inside each) into an ordered list of table
// references, base table first.
func flattenTableExprs(exprs sqlparser.TableExprs) ([]tableRef, error) {
	var out []tableRef
	for _, te := range exprs {
		refs, err := flattenTableExpr(te, "")
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	return out, nil
}

func flattenTableExpr(te sqlparser.TableExpr, join string) ([]tableRef, error) {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		name, ok := t.Expr.(sqlparser.TableName)
		if !ok {
			return nil, dberr.New(dberr.ParseError, "unsupported table expression in FROM")
		}
		alias := name.Name.String()
		if !t.As.IsEmpty() {
			alias = t.As.String()
		}
		return []tableRef{{table: name.Name.String(), alias: alias, join: join}}, nil
	case *sqlparser.JoinTableExpr:
		left, err := flattenTableExpr(t.LeftExpr, "")
		if err != nil {
			return nil, err
		}
		right, err := flattenTableExpr(t.RightExpr, t.Join)
		if err != nil {
			return nil, err
		}
		if len(right) > 0 && t.Condition.On != nil {
			right[0].on = t.Condition.On
		}
		return append(left, right...), nil
	default:
		return nil, dberr.New(dberr.ParseError, "unsupported table expression in FROM")
	}
}
