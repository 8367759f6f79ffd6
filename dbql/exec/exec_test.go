package exec_test

import (
	"strings"
	"testing"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/dbql/exec"
	"github.com/solisoft/solidb/dbql/parser"
	"github.com/solisoft/solidb/value"
)

// memSource is an in-memory DataSource over fixed rows per collection.
type memSource struct {
	collections map[string][]value.Value
}

func (m *memSource) CollectionExists(name string) bool {
	_, ok := m.collections[name]
	return ok
}

func (m *memSource) Scan(name string, limit int) ([]value.Value, error) {
	rows := m.collections[name]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func doc(pairs ...any) value.Value {
	obj := value.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		key := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case string:
			obj.Set(key, value.String(v))
		case int:
			obj.Set(key, value.Int(int64(v)))
		case float64:
			obj.Set(key, value.Float(v))
		case value.Value:
			obj.Set(key, v)
		}
	}
	return obj
}

func usersSource() *memSource {
	return &memSource{collections: map[string][]value.Value{
		"users": {
			doc("_key", "1", "name", "Alice", "age", 30, "city", "NYC"),
			doc("_key", "2", "name", "Bob", "age", 25, "city", "LA"),
			doc("_key", "3", "name", "Carol", "age", 35, "city", "NYC"),
		},
		"orders": {
			doc("_key", "o1", "user", "1", "total", 100),
			doc("_key", "o2", "user", "1", "total", 50),
			doc("_key", "o3", "user", "3", "total", 75),
		},
	}}
}

func run(t *testing.T, src string, bindVars map[string]value.Value) value.Value {
	t.Helper()
	q, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	out, err := exec.New(usersSource()).Run(q, bindVars)
	if err != nil {
		t.Fatalf("run %q: %v", src, err)
	}
	return out
}

func TestFilterSortReturn(t *testing.T) {
	got := run(t, `FOR d IN users FILTER d.age > 26 SORT d.age DESC RETURN d.name`, nil)
	want := value.Array([]value.Value{value.String("Carol"), value.String("Alice")})
	if !value.Equal(got, want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCollectWithAggregateAndCount(t *testing.T) {
	got := run(t, `FOR d IN users COLLECT c = d.city AGGREGATE avg = AVG(d.age) WITH COUNT INTO n RETURN {c, n, avg}`, nil)
	rows := got.AsArray()
	if len(rows) != 2 {
		t.Fatalf("got %d groups: %s", len(rows), got)
	}
	byCity := map[string]value.Value{}
	for _, r := range rows {
		c, _ := r.Get("c")
		byCity[c.AsString()] = r
	}
	nyc := byCity["NYC"]
	if n, _ := nyc.Get("n"); !value.Equal(n, value.Int(2)) {
		t.Errorf("NYC count = %s", n)
	}
	if avg, _ := nyc.Get("avg"); avg.ToFloat() != 32.5 {
		t.Errorf("NYC avg = %s", avg)
	}
	la := byCity["LA"]
	if avg, _ := la.Get("avg"); avg.ToFloat() != 25 {
		t.Errorf("LA avg = %s", avg)
	}
}

func TestCollectIntoGroup(t *testing.T) {
	got := run(t, `FOR d IN users COLLECT c = d.city INTO group RETURN {c, n: LENGTH(group)}`, nil)
	total := int64(0)
	for _, r := range got.AsArray() {
		n, _ := r.Get("n")
		total += n.AsInt()
	}
	if total != 3 {
		t.Errorf("group members total %d, want 3", total)
	}
}

func TestForOverExpressionAndLetVariable(t *testing.T) {
	got := run(t, `FOR i IN 1..3 RETURN i * 10`, nil)
	want := value.Array([]value.Value{value.Int(10), value.Int(20), value.Int(30)})
	if !value.Equal(got, want) {
		t.Errorf("got %s", got)
	}

	got = run(t, `LET xs = [4, 5] FOR x IN xs RETURN x`, nil)
	want = value.Array([]value.Value{value.Int(4), value.Int(5)})
	if !value.Equal(got, want) {
		t.Errorf("got %s", got)
	}
}

func TestNestedForProducesCrossProduct(t *testing.T) {
	got := run(t, `FOR a IN [1,2] FOR b IN [10,20] RETURN a + b`, nil)
	if len(got.AsArray()) != 4 {
		t.Errorf("got %s, want 4 combinations", got)
	}
}

func TestInnerJoin(t *testing.T) {
	got := run(t, `FOR u IN users JOIN o IN orders ON o.user == u._key RETURN {name: u.name, total: o.total}`, nil)
	if len(got.AsArray()) != 3 {
		t.Fatalf("got %s, want 3 joined rows", got)
	}
}

func TestLeftJoinPreservesUnmatchedLeftRows(t *testing.T) {
	got := run(t, `FOR u IN users LEFT JOIN o IN orders ON o.user == u._key SORT u.name RETURN {name: u.name, o: o}`, nil)
	rows := got.AsArray()
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4 (Bob keeps a null right side)", len(rows))
	}
	var bobRight value.Value
	found := false
	for _, r := range rows {
		name, _ := r.Get("name")
		if name.AsString() == "Bob" {
			bobRight, _ = r.Get("o")
			found = true
		}
	}
	if !found {
		t.Fatal("Bob missing from LEFT JOIN output")
	}
	if !bobRight.IsNull() {
		t.Errorf("Bob's right side = %s, want null", bobRight)
	}
}

func TestLimitWithOffset(t *testing.T) {
	got := run(t, `FOR d IN users SORT d.age LIMIT 1, 2 RETURN d.age`, nil)
	want := value.Array([]value.Value{value.Int(30), value.Int(35)})
	if !value.Equal(got, want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestReturnDistinct(t *testing.T) {
	got := run(t, `FOR d IN users RETURN DISTINCT d.city`, nil)
	if len(got.AsArray()) != 2 {
		t.Errorf("got %s, want 2 distinct cities", got)
	}
}

func TestBindVars(t *testing.T) {
	got := run(t, `FOR d IN users FILTER d.age >= @minAge RETURN d.name`,
		map[string]value.Value{"minAge": value.Int(30)})
	if len(got.AsArray()) != 2 {
		t.Errorf("got %s", got)
	}
}

func TestSubqueryInReturn(t *testing.T) {
	got := run(t, `FOR u IN users SORT u.name RETURN {name: u.name, orders: (FOR o IN orders FILTER o.user == u._key RETURN o.total)}`, nil)
	rows := got.AsArray()
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	aliceOrders, _ := rows[0].Get("orders")
	if len(aliceOrders.AsArray()) != 2 {
		t.Errorf("Alice's orders = %s, want 2", aliceOrders)
	}
	bobOrders, _ := rows[1].Get("orders")
	if len(bobOrders.AsArray()) != 0 {
		t.Errorf("Bob's orders = %s, want empty", bobOrders)
	}
}

func TestSortToleratesEvaluationErrors(t *testing.T) {
	// d.name / 2 fails on strings; SORT treats the key as null instead of
	// aborting, so the query still succeeds.
	got := run(t, `FOR d IN users SORT d.name / 2 RETURN d.name`, nil)
	if len(got.AsArray()) != 3 {
		t.Errorf("got %s", got)
	}
}

func TestScanLimitExceeded(t *testing.T) {
	q, err := parser.Parse(`FOR d IN users RETURN d`)
	if err != nil {
		t.Fatal(err)
	}
	ex := exec.New(usersSource())
	ex.MaxScanDocs = 2
	_, err = ex.Run(q, nil)
	if err == nil {
		t.Fatal("expected scan-limit error")
	}
	if !strings.Contains(err.Error(), "Scan limit exceeded") {
		t.Errorf("error = %v", err)
	}
}

func TestMutationRejectedInLocalMode(t *testing.T) {
	q, err := parser.Parse(`INSERT {name: "x"} IN users`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = exec.New(usersSource()).Run(q, nil)
	if !dberr.Is(err, dberr.OperationNotSupported) {
		t.Errorf("error = %v, want OperationNotSupported", err)
	}
}

func TestGraphTraversalRejectedInLocalMode(t *testing.T) {
	q, err := parser.Parse(`FOR v IN 1..2 OUTBOUND 'users/1' knows RETURN v`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = exec.New(usersSource()).Run(q, nil)
	if !dberr.Is(err, dberr.OperationNotSupported) {
		t.Errorf("error = %v, want OperationNotSupported", err)
	}
}

func TestCreateStreamRejectedInLocalMode(t *testing.T) {
	q, err := parser.Parse(`CREATE STREAM s AS FOR d IN users RETURN d`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = exec.New(usersSource()).Run(q, nil)
	if !dberr.Is(err, dberr.OperationNotSupported) {
		t.Errorf("error = %v, want OperationNotSupported", err)
	}
}

func TestDeterministicResults(t *testing.T) {
	const src = `FOR d IN users FILTER d.age > 20 SORT d.age RETURN {name: d.name, age: d.age}`
	first := run(t, src, nil)
	for i := 0; i < 3; i++ {
		if again := run(t, src, nil); !value.Equal(first, again) {
			t.Fatalf("run %d diverged: %s vs %s", i, first, again)
		}
	}
}

func TestForOverUnknownCollectionFails(t *testing.T) {
	q, err := parser.Parse(`FOR d IN nothing_here RETURN d`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = exec.New(usersSource()).Run(q, nil)
	if !dberr.Is(err, dberr.CollectionNotFound) {
		t.Errorf("error = %v, want CollectionNotFound", err)
	}
}
