package parser

import (
	"strings"
	"testing"

	"github.com/solisoft/solidb/dbql/ast"
)

func mustParse(t *testing.T, src string) *ast.Query {
	t.Helper()
	q, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return q
}

func TestParseSimpleQueryShape(t *testing.T) {
	q := mustParse(t, `FOR d IN users FILTER d.age > 26 SORT d.age DESC RETURN d.name`)

	if len(q.ForClauses) != 1 {
		t.Fatalf("got %d FOR clauses", len(q.ForClauses))
	}
	fc := q.ForClauses[0]
	if fc.Var != "d" || fc.Kind != ast.ForRegular {
		t.Errorf("FOR clause = %+v", fc)
	}
	src, ok := fc.Source.(*ast.Variable)
	if !ok || src.Name != "users" {
		t.Errorf("FOR source = %#v, want Variable users", fc.Source)
	}
	if len(q.FilterClauses) != 1 {
		t.Fatalf("got %d FILTER clauses", len(q.FilterClauses))
	}
	if q.Sort == nil || len(q.Sort.Items) != 1 || !q.Sort.Items[0].Desc {
		t.Errorf("SORT clause = %+v", q.Sort)
	}
	if q.Return == nil {
		t.Fatal("missing RETURN clause")
	}
	if len(q.BodyClauses) != 2 {
		t.Errorf("body clauses should preserve FOR then FILTER, got %d", len(q.BodyClauses))
	}
}

func TestParseCollectClause(t *testing.T) {
	q := mustParse(t, `FOR d IN users COLLECT c = d.city AGGREGATE avg = AVG(d.age) WITH COUNT INTO n RETURN {c, n, avg}`)

	var cc *ast.CollectClause
	for _, bc := range q.BodyClauses {
		if bc.Kind == ast.BodyCollect {
			cc = bc.Collect
		}
	}
	if cc == nil {
		t.Fatal("missing COLLECT clause")
	}
	if len(cc.Keys) != 1 || cc.Keys[0].Name != "c" {
		t.Errorf("COLLECT keys = %+v", cc.Keys)
	}
	if len(cc.Aggregates) != 1 || cc.Aggregates[0].Name != "avg" || cc.Aggregates[0].Func != "AVG" {
		t.Errorf("COLLECT aggregates = %+v", cc.Aggregates)
	}
	if cc.WithCount != "n" {
		t.Errorf("WITH COUNT INTO = %q, want n", cc.WithCount)
	}
}

func TestParseCollectInto(t *testing.T) {
	q := mustParse(t, `FOR d IN users COLLECT city = d.city INTO group RETURN {city, group}`)
	var cc *ast.CollectClause
	for _, bc := range q.BodyClauses {
		if bc.Kind == ast.BodyCollect {
			cc = bc.Collect
		}
	}
	if cc == nil || cc.Into != "group" {
		t.Fatalf("COLLECT INTO = %+v", cc)
	}
}

func TestForOverRangeIsRegular(t *testing.T) {
	q := mustParse(t, `FOR i IN 1..5 RETURN i`)
	fc := q.ForClauses[0]
	if fc.Kind != ast.ForRegular {
		t.Fatalf("kind = %v, want regular", fc.Kind)
	}
	if _, ok := fc.Source.(*ast.RangeExpr); !ok {
		t.Errorf("source = %#v, want RangeExpr", fc.Source)
	}
}

func TestForGraphTraversalDisambiguation(t *testing.T) {
	q := mustParse(t, `FOR v IN 1..3 OUTBOUND 'people/1' knows RETURN v`)
	fc := q.ForClauses[0]
	if fc.Kind != ast.ForGraphTraversal {
		t.Fatalf("kind = %v, want graph traversal", fc.Kind)
	}
	if fc.Direction != "OUTBOUND" {
		t.Errorf("direction = %q", fc.Direction)
	}
	if fc.MinDepth == nil || fc.MaxDepth == nil {
		t.Errorf("depth range not captured: %+v", fc)
	}
}

func TestForDirectionWithoutDepthIsTraversal(t *testing.T) {
	q := mustParse(t, `FOR v IN ANY 'people/1' knows RETURN v`)
	if q.ForClauses[0].Kind != ast.ForGraphTraversal {
		t.Fatalf("kind = %v, want graph traversal", q.ForClauses[0].Kind)
	}
}

func TestForShortestPathDisambiguation(t *testing.T) {
	q := mustParse(t, `FOR p IN SHORTEST_PATH 'people/1' TO 'people/9' OUTBOUND knows RETURN p`)
	fc := q.ForClauses[0]
	if fc.Kind != ast.ForShortestPath {
		t.Fatalf("kind = %v, want shortest path", fc.Kind)
	}
	if fc.StartExpr == nil || fc.ToExpr == nil {
		t.Errorf("endpoints not captured: %+v", fc)
	}
}

func TestQueryWithoutReturnOrMutationRejected(t *testing.T) {
	if _, err := Parse(`FOR d IN users FILTER d.age > 1`); err == nil {
		t.Error("expected error for query without RETURN")
	}
}

func TestTrailingTokensRejected(t *testing.T) {
	if _, err := Parse(`RETURN 1 bogus`); err == nil {
		t.Error("expected error for trailing tokens")
	}
}

func TestMutationClauseParsed(t *testing.T) {
	q := mustParse(t, `INSERT {name: "x"} IN users`)
	if q.Mutation == nil || q.Mutation.Kind != ast.MutInsert || q.Mutation.Collection != "users" {
		t.Fatalf("mutation = %+v", q.Mutation)
	}
}

func TestLimitWithOffset(t *testing.T) {
	q := mustParse(t, `FOR d IN users LIMIT 10, 5 RETURN d`)
	if q.Limit == nil || q.Limit.Offset == nil {
		t.Fatalf("limit = %+v", q.Limit)
	}
}

func TestTopLevelLetBeforeFor(t *testing.T) {
	q := mustParse(t, `LET threshold = 10 FOR d IN users FILTER d.age > threshold RETURN d`)
	if len(q.LetClauses) != 1 || q.LetClauses[0].Name != "threshold" {
		t.Fatalf("top-level LETs = %+v", q.LetClauses)
	}
}

func TestPrecedenceMulBeforeAdd(t *testing.T) {
	q := mustParse(t, `RETURN 1 + 2 * 3`)
	bin, ok := q.Return.Expr.(*ast.BinaryOp)
	if !ok || bin.Op != ast.OpAdd {
		t.Fatalf("root = %#v, want +", q.Return.Expr)
	}
	right, ok := bin.Right.(*ast.BinaryOp)
	if !ok || right.Op != ast.OpMul {
		t.Errorf("right = %#v, want *", bin.Right)
	}
}

func TestPrecedenceComparisonBelowRange(t *testing.T) {
	q := mustParse(t, `RETURN 5 IN 1..10`)
	bin, ok := q.Return.Expr.(*ast.BinaryOp)
	if !ok || bin.Op != ast.OpIn {
		t.Fatalf("root = %#v, want IN", q.Return.Expr)
	}
	if _, ok := bin.Right.(*ast.RangeExpr); !ok {
		t.Errorf("right = %#v, want RangeExpr", bin.Right)
	}
}

func TestInDisabledInsideArrayLiteralForSource(t *testing.T) {
	// `FOR x IN [...]` must treat IN as the clause keyword, while IN inside
	// the brackets stays an operator.
	q := mustParse(t, `FOR x IN [1, 2, 3] RETURN x`)
	if _, ok := q.ForClauses[0].Source.(*ast.ArrayLit); !ok {
		t.Fatalf("source = %#v, want ArrayLit", q.ForClauses[0].Source)
	}
}

func TestLambdaArrow(t *testing.T) {
	q := mustParse(t, `RETURN FILTER([1,2,3], x -> x > 1)`)
	call, ok := q.Return.Expr.(*ast.FunctionCall)
	if !ok || !strings.EqualFold(call.Name, "FILTER") {
		t.Fatalf("root = %#v", q.Return.Expr)
	}
	lam, ok := call.Args[1].(*ast.Lambda)
	if !ok || len(lam.Params) != 1 || lam.Params[0] != "x" {
		t.Errorf("lambda = %#v", call.Args[1])
	}
}

func TestTwoParamLambda(t *testing.T) {
	q := mustParse(t, `RETURN REDUCE([1,2,3], 0, (a, x) -> a + x)`)
	call := q.Return.Expr.(*ast.FunctionCall)
	lam, ok := call.Args[2].(*ast.Lambda)
	if !ok || len(lam.Params) != 2 {
		t.Fatalf("lambda = %#v", call.Args[2])
	}
}

func TestBindVariableExpression(t *testing.T) {
	q := mustParse(t, `FOR d IN users FILTER d.age >= @minAge RETURN d`)
	bin := q.FilterClauses[0].Expr.(*ast.BinaryOp)
	bv, ok := bin.Right.(*ast.BindVariable)
	if !ok || bv.Name != "minAge" {
		t.Errorf("right = %#v, want BindVariable minAge", bin.Right)
	}
}

func TestCaseExpression(t *testing.T) {
	q := mustParse(t, `RETURN CASE WHEN 1 > 2 THEN "a" ELSE "b" END`)
	ce, ok := q.Return.Expr.(*ast.CaseExpr)
	if !ok || ce.Switch != nil || len(ce.Whens) != 1 || ce.Else == nil {
		t.Fatalf("case = %#v", q.Return.Expr)
	}
}

func TestJoinClauseKinds(t *testing.T) {
	q := mustParse(t, `FOR u IN users LEFT JOIN o IN orders ON o.user == u._key RETURN {u, o}`)
	if len(q.JoinClauses) != 1 {
		t.Fatalf("got %d JOIN clauses", len(q.JoinClauses))
	}
	jc := q.JoinClauses[0]
	if jc.Kind != ast.JoinLeft || jc.Var != "o" {
		t.Errorf("join = %+v", jc)
	}
}

func TestCreateStreamClause(t *testing.T) {
	q := mustParse(t, `CREATE STREAM events_hourly AS FOR e IN events RETURN e`)
	if q.CreateStream == nil || q.CreateStream.Name != "events_hourly" {
		t.Fatalf("create stream = %+v", q.CreateStream)
	}
}

func TestSubqueryExpression(t *testing.T) {
	q := mustParse(t, `FOR u IN users RETURN {u, orders: (FOR o IN orders FILTER o.user == u._key RETURN o)}`)
	obj, ok := q.Return.Expr.(*ast.ObjectLit)
	if !ok {
		t.Fatalf("return = %#v", q.Return.Expr)
	}
	if _, ok := obj.Values[1].(*ast.Subquery); !ok {
		t.Errorf("orders value = %#v, want Subquery", obj.Values[1])
	}
}
