package engine

import (
	"testing"

	"github.com/solisoft/solidb/columnar"
	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/dbql/exec"
	"github.com/solisoft/solidb/dbql/parser"
	"github.com/solisoft/solidb/document"
	"github.com/solisoft/solidb/value"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func run(t *testing.T, s *Store, query string) value.Value {
	t.Helper()
	q, err := parser.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	ex := exec.New(s)
	out, err := ex.Run(q, nil)
	if err != nil {
		t.Fatalf("Run(%q): %v", query, err)
	}
	return out
}

func obj(pairs ...any) value.Value {
	out := value.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		out.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return out
}

// A filter/sort/return query over a small document collection.
func TestFilterSortReturn(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Docs.CreateCollection("users", document.TypeDocument); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	c, _ := s.Docs.Collection("users")
	for _, d := range []value.Value{
		obj("_key", value.String("1"), "name", value.String("Alice"), "age", value.Int(30)),
		obj("_key", value.String("2"), "name", value.String("Bob"), "age", value.Int(25)),
		obj("_key", value.String("3"), "name", value.String("Carol"), "age", value.Int(35)),
	} {
		if _, err := c.Insert(d); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	out := run(t, s, "FOR d IN users FILTER d.age > 26 SORT d.age DESC RETURN d.name")
	got := out.AsArray()
	if len(got) != 2 || got[0].AsString() != "Carol" || got[1].AsString() != "Alice" {
		t.Fatalf("expected [Carol, Alice], got %v", got)
	}
}

// COLLECT with AGGREGATE and WITH COUNT INTO over grouped documents.
func TestCollectAggregate(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Docs.CreateCollection("users", document.TypeDocument); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	c, _ := s.Docs.Collection("users")
	for _, d := range []value.Value{
		obj("city", value.String("NYC"), "age", value.Int(30)),
		obj("city", value.String("LA"), "age", value.Int(25)),
		obj("city", value.String("NYC"), "age", value.Int(35)),
	} {
		if _, err := c.Insert(d); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	out := run(t, s, "FOR d IN users COLLECT c = d.city AGGREGATE avg = AVG(d.age) WITH COUNT INTO n RETURN {c, n, avg}")
	got := out.AsArray()
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d: %v", len(got), got)
	}
	byCity := map[string]value.Value{}
	for _, row := range got {
		c, _ := row.Get("c")
		byCity[c.AsString()] = row
	}
	la, ok := byCity["LA"]
	if !ok {
		t.Fatalf("missing LA group in %v", got)
	}
	if n, _ := la.Get("n"); n.AsInt() != 1 {
		t.Fatalf("expected LA count 1, got %v", n)
	}
	if avg, _ := la.Get("avg"); avg.ToFloat() != 25.0 {
		t.Fatalf("expected LA avg 25.0, got %v", avg)
	}
	nyc, ok := byCity["NYC"]
	if !ok {
		t.Fatalf("missing NYC group in %v", got)
	}
	if n, _ := nyc.Get("n"); n.AsInt() != 2 {
		t.Fatalf("expected NYC count 2, got %v", n)
	}
	if avg, _ := nyc.Get("avg"); avg.ToFloat() != 32.5 {
		t.Fatalf("expected NYC avg 32.5, got %v", avg)
	}
}

// Lambda-taking built-ins evaluated through a full query.
func TestHigherOrderFunctions(t *testing.T) {
	s := newTestStore(t)

	out := run(t, s, "RETURN FILTER([1,2,3,4,5], x -> x > 3)")
	got := out.AsArray()[0].AsArray()
	if len(got) != 2 || got[0].AsInt() != 4 || got[1].AsInt() != 5 {
		t.Fatalf("expected [4,5], got %v", got)
	}

	out = run(t, s, "RETURN REDUCE([1,2,3], 0, (a,x) -> a + x)")
	sum := out.AsArray()[0]
	if sum.AsInt() != 6 {
		t.Fatalf("expected 6, got %v", sum)
	}
}

// SQL-style LIKE wildcards through the full query path.
func TestLikeOperator(t *testing.T) {
	s := newTestStore(t)

	cases := []struct {
		query string
		want  bool
	}{
		{`RETURN "hello world" LIKE "hello%"`, true},
		{`RETURN "abc" LIKE "a_c"`, true},
		{`RETURN "ac" LIKE "a_c"`, false},
	}
	for _, tc := range cases {
		out := run(t, s, tc.query)
		got := out.AsArray()[0].ToBool()
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.query, tc.want, got)
		}
	}
}

// TimeBucket group-by over a columnar collection.
func TestColumnarTimeBucketGroupBy(t *testing.T) {
	s := newTestStore(t)
	col, err := s.Columns.CreateCollection("metrics")
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	rows := []value.Value{
		obj("t", value.String("2024-01-01T00:00:00Z"), "v", value.Int(10)),
		obj("t", value.String("2024-01-01T00:30:00Z"), "v", value.Int(20)),
		obj("t", value.String("2024-01-01T01:00:00Z"), "v", value.Int(30)),
	}
	if _, err := col.InsertRows(rows); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}

	groups, err := col.GroupBy([]columnar.GroupKey{{Column: "t", TimeBucket: "1h"}}, "v", columnar.AggSum)
	if err != nil {
		t.Fatalf("GroupBy: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 buckets, got %d: %v", len(groups), groups)
	}
	var sums []float64
	for _, v := range groups {
		sums = append(sums, v.ToFloat())
	}
	if !(sums[0] == 30 && sums[1] == 30) {
		t.Fatalf("expected both bucket sums to be 30, got %v", sums)
	}
}

func TestMutationPathLocksKeys(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Docs.CreateCollection("users", document.TypeDocument); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	doc, err := s.Insert("tx1", "users", obj("_key", value.String("alice"), "age", value.Int(30)))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if k, _ := doc.Get("_key"); k.AsString() != "alice" {
		t.Fatalf("unexpected key %v", k)
	}

	// A second transaction touching the same key conflicts fast.
	_, err = s.Update("tx2", "users", "alice", obj("age", value.Int(31)), "", false)
	if !dberr.Is(err, dberr.TransactionConflict) {
		t.Fatalf("expected TransactionConflict, got %v", err)
	}

	// The owner can keep writing (re-entrant), and release frees the key.
	if _, err := s.Update("tx1", "users", "alice", obj("age", value.Int(31)), "", false); err != nil {
		t.Fatalf("same-tx update: %v", err)
	}
	s.ReleaseTx("tx1")
	if _, err := s.Update("tx2", "users", "alice", obj("age", value.Int(32)), "", false); err != nil {
		t.Fatalf("post-release update: %v", err)
	}
	s.ReleaseTx("tx2")
}

func TestChangeEventsAreEmitted(t *testing.T) {
	s := newTestStore(t)
	var events []document.ChangeEvent
	s.Docs.OnChange(func(ev document.ChangeEvent) { events = append(events, ev) })
	if _, err := s.Docs.CreateCollection("users", document.TypeDocument); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	c, _ := s.Docs.Collection("users")
	doc, err := c.Insert(obj("name", value.String("Alice")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	if _, err := c.Update(key.AsString(), obj("name", value.String("Alicia")), "", false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := c.Remove(key.AsString()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	kinds := []document.ChangeKind{events[0].Kind, events[1].Kind, events[2].Kind}
	want := []document.ChangeKind{document.ChangeInsert, document.ChangeUpdate, document.ChangeRemove}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}
}
