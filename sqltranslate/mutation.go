package sqltranslate

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/solisoft/solidb/dberr"
)

// translateInsert emits `INSERT {...} IN table`, matching the mutation
// grammar dbql/parser.parseMutationClause expects (`INSERT <expr> IN
// <collection>`). The local executor rejects mutation clauses, but the
// translator still produces the textual form for callers running against
// a mutation-capable executor.
func translateInsert(ins *sqlparser.Insert) (string, error) {
	rows, ok := ins.Rows.(sqlparser.Values)
	if !ok || len(rows) == 0 {
		return "", dberr.New(dberr.ParseError, "INSERT requires a VALUES row list")
	}
	if len(ins.Columns) != len(rows[0]) {
		return "", dberr.New(dberr.ParseError, "INSERT column count does not match VALUES count")
	}

	var stmts []string
	for _, row := range rows {
		var b strings.Builder
		b.WriteByte('{')
		for i, col := range ins.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			v, err := translateExpr(row[i], "")
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s: %s", col.String(), v)
		}
		b.WriteByte('}')
		stmts = append(stmts, fmt.Sprintf("INSERT %s IN %s", b.String(), ins.Table.Name.String()))
	}
	return strings.Join(stmts, "\n"), nil
}

// translateUpdate emits `FOR doc IN table FILTER cond UPDATE doc._key IN
// table WITH {...}`, matching `UPDATE <keyExpr> IN <collection> WITH
// <patch>`.
func translateUpdate(u *sqlparser.Update) (string, error) {
	refs, err := flattenTableExprs(u.TableExprs)
	if err != nil {
		return "", err
	}
	if len(refs) != 1 {
		return "", dberr.New(dberr.ParseError, "UPDATE supports exactly one table")
	}
	table := refs[0]

	var head strings.Builder
	fmt.Fprintf(&head, "FOR %s IN %s\n", table.alias, table.table)
	if u.Where != nil {
		cond, err := translateExpr(u.Where.Expr, table.alias)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&head, "FILTER %s\n", cond)
	}

	var patch strings.Builder
	patch.WriteByte('{')
	for i, e := range u.Exprs {
		if i > 0 {
			patch.WriteString(", ")
		}
		v, err := translateExpr(e.Expr, table.alias)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&patch, "%s: %s", e.Name.Name.String(), v)
	}
	patch.WriteByte('}')

	fmt.Fprintf(&head, "UPDATE %s._key IN %s WITH %s", table.alias, table.table, patch.String())
	return head.String(), nil
}

func translateDelete(d *sqlparser.Delete) (string, error) {
	refs, err := flattenTableExprs(d.TableExprs)
	if err != nil {
		return "", err
	}
	if len(refs) != 1 {
		return "", dberr.New(dberr.ParseError, "DELETE supports exactly one table")
	}
	table := refs[0]

	var b strings.Builder
	fmt.Fprintf(&b, "FOR %s IN %s\n", table.alias, table.table)
	if d.Where != nil {
		cond, err := translateExpr(d.Where.Expr, table.alias)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "FILTER %s\n", cond)
	}
	fmt.Fprintf(&b, "REMOVE %s._key IN %s", table.alias, table.table)
	return b.String(), nil
}
