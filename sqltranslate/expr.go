package sqltranslate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/solisoft/solidb/dberr"
)

// translateExpr renders a SQL expression tree as DBQL expression text
// (IN and LIKE map to DBQL operators of the same name; BETWEEN becomes a
// >= / <= pair and IS NULL a comparison with null).
// defaultAlias qualifies any
// unqualified column reference (DBQL has no bare-field access outside an
// already-bound variable, unlike SQL's implicit single-table scope); it is
// "" when the statement joins more than one table, in which case an
// unqualified column is left bare rather than guessed at.
func translateExpr(e sqlparser.Expr, defaultAlias string) (string, error) {
	switch v := e.(type) {
	case *sqlparser.AndExpr:
		left, err := translateExpr(v.Left, defaultAlias)
		if err != nil {
			return "", err
		}
		right, err := translateExpr(v.Right, defaultAlias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s AND %s)", left, right), nil

	case *sqlparser.OrExpr:
		left, err := translateExpr(v.Left, defaultAlias)
		if err != nil {
			return "", err
		}
		right, err := translateExpr(v.Right, defaultAlias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s OR %s)", left, right), nil

	case *sqlparser.NotExpr:
		inner, err := translateExpr(v.Expr, defaultAlias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil

	case *sqlparser.ParenExpr:
		inner, err := translateExpr(v.Expr, defaultAlias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s)", inner), nil

	case *sqlparser.ComparisonExpr:
		return translateComparison(v, defaultAlias)

	case *sqlparser.RangeCond:
		left, err := translateExpr(v.Left, defaultAlias)
		if err != nil {
			return "", err
		}
		from, err := translateExpr(v.From, defaultAlias)
		if err != nil {
			return "", err
		}
		to, err := translateExpr(v.To, defaultAlias)
		if err != nil {
			return "", err
		}
		cond := fmt.Sprintf("(%s >= %s AND %s <= %s)", left, from, left, to)
		if strings.EqualFold(v.Operator, sqlparser.NotBetweenStr) {
			return fmt.Sprintf("NOT %s", cond), nil
		}
		return cond, nil

	case *sqlparser.IsExpr:
		inner, err := translateExpr(v.Expr, defaultAlias)
		if err != nil {
			return "", err
		}
		if strings.Contains(strings.ToLower(v.Operator), "not") {
			return fmt.Sprintf("%s != null", inner), nil
		}
		return fmt.Sprintf("%s == null", inner), nil

	case *sqlparser.ColName:
		return colNameToDBQL(v, defaultAlias), nil

	case *sqlparser.SQLVal:
		return sqlValToDBQL(v)

	case sqlparser.BoolVal:
		if v {
			return "true", nil
		}
		return "false", nil

	case *sqlparser.NullVal:
		return "null", nil

	case *sqlparser.FuncExpr:
		return translateFuncExpr(v, defaultAlias)

	case *sqlparser.BinaryExpr:
		left, err := translateExpr(v.Left, defaultAlias)
		if err != nil {
			return "", err
		}
		right, err := translateExpr(v.Right, defaultAlias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, v.Operator, right), nil

	case *sqlparser.UnaryExpr:
		inner, err := translateExpr(v.Expr, defaultAlias)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s%s", v.Operator, inner), nil

	case sqlparser.ValTuple:
		parts := make([]string, len(v))
		for i, item := range v {
			p, err := translateExpr(item, defaultAlias)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ", ")), nil

	default:
		return "", dberr.New(dberr.ParseError, "unsupported SQL expression: %T", e)
	}
}

func translateComparison(v *sqlparser.ComparisonExpr, defaultAlias string) (string, error) {
	left, err := translateExpr(v.Left, defaultAlias)
	if err != nil {
		return "", err
	}
	right, err := translateExpr(v.Right, defaultAlias)
	if err != nil {
		return "", err
	}

	switch v.Operator {
	case sqlparser.EqualStr:
		return fmt.Sprintf("%s == %s", left, right), nil
	case sqlparser.NotEqualStr, sqlparser.NullSafeEqualStr:
		return fmt.Sprintf("%s != %s", left, right), nil
	case sqlparser.LessThanStr:
		return fmt.Sprintf("%s < %s", left, right), nil
	case sqlparser.GreaterThanStr:
		return fmt.Sprintf("%s > %s", left, right), nil
	case sqlparser.LessEqualStr:
		return fmt.Sprintf("%s <= %s", left, right), nil
	case sqlparser.GreaterEqualStr:
		return fmt.Sprintf("%s >= %s", left, right), nil
	case sqlparser.InStr:
		return fmt.Sprintf("%s IN %s", left, right), nil
	case sqlparser.NotInStr:
		return fmt.Sprintf("%s NOT IN %s", left, right), nil
	case sqlparser.LikeStr:
		return fmt.Sprintf("%s LIKE %s", left, right), nil
	case sqlparser.NotLikeStr:
		return fmt.Sprintf("%s NOT LIKE %s", left, right), nil
	case sqlparser.RegexpStr:
		return fmt.Sprintf("%s REGEX %s", left, right), nil
	case sqlparser.NotRegexpStr:
		return fmt.Sprintf("%s NOT REGEX %s", left, right), nil
	default:
		return "", dberr.New(dberr.ParseError, "unsupported comparison operator: %s", v.Operator)
	}
}

// colNameToDBQL renders a (possibly qualified) column reference as a DBQL
// field access, e.g. `u.name` for either `u.name` or a bare `name` resolved
// against defaultAlias (DBQL has no implicit single-table scope, so bare
// columns must be qualified by a loop variable).
func colNameToDBQL(c *sqlparser.ColName, defaultAlias string) string {
	if !c.Qualifier.IsEmpty() {
		return fmt.Sprintf("%s.%s", c.Qualifier.Name.String(), c.Name.String())
	}
	if defaultAlias != "" {
		return fmt.Sprintf("%s.%s", defaultAlias, c.Name.String())
	}
	return c.Name.String()
}

func sqlValToDBQL(v *sqlparser.SQLVal) (string, error) {
	switch v.Type {
	case sqlparser.StrVal:
		return strconv.Quote(string(v.Val)), nil
	case sqlparser.IntVal, sqlparser.FloatVal:
		return string(v.Val), nil
	case sqlparser.ValArg:
		// Placeholders: positional "?" parses as ":v1", ":v2", ...; named
		// params keep their ":name" spelling. Both become DBQL bind
		// variables.
		name := strings.TrimPrefix(string(v.Val), ":")
		if name == "" || name == "v1" {
			name = "p1"
		}
		return "@" + name, nil
	default:
		return "", dberr.New(dberr.ParseError, "unsupported SQL literal kind: %v", v.Type)
	}
}

func translateFuncExpr(fn *sqlparser.FuncExpr, defaultAlias string) (string, error) {
	name := strings.ToUpper(fn.Name.String())
	if name == "COUNT" && isCountStar(fn) {
		return "LENGTH(group)", nil // only reached outside an aggregate LET context
	}
	args := make([]string, 0, len(fn.Exprs))
	for _, se := range fn.Exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			continue // StarExpr inside a non-COUNT(*) call: skip
		}
		a, err := translateExpr(ae.Expr, defaultAlias)
		if err != nil {
			return "", err
		}
		args = append(args, a)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil
}

func isCountStar(fn *sqlparser.FuncExpr) bool {
	if !strings.EqualFold(fn.Name.String(), "count") || len(fn.Exprs) != 1 {
		return false
	}
	_, ok := fn.Exprs[0].(*sqlparser.StarExpr)
	return ok
}
