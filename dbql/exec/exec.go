// Package exec drives the DBQL clause pipeline: FOR/LET/FILTER/
// JOIN/COLLECT transform a slice of execution contexts, then SORT/LIMIT/
// RETURN project the final rows.
package exec

import (
	"sort"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/dbql/ast"
	"github.com/solisoft/solidb/dbql/eval"
	"github.com/solisoft/solidb/value"
)

// DataSource is the capability the executor needs from storage.
// Document and columnar collections both satisfy it.
type DataSource interface {
	CollectionExists(name string) bool
	Scan(name string, limit int) ([]value.Value, error)
}

// Optional extensions a DataSource may additionally implement.
type KeyGetter interface {
	GetByKey(name, key string) (value.Value, bool, error)
}

type IndexLookup interface {
	IndexLookupEq(name, index string, values []value.Value) ([]value.Value, error)
}

const defaultMaxScanDocs = 1_000_000

// Executor runs one DBQL query against a DataSource. It is safe to reuse
// across queries but not to share across goroutines mid-query; callers
// that parallelize use one Executor per worker rather than relying on
// Executor being concurrency-safe.
type Executor struct {
	Source      DataSource
	MaxScanDocs int
}

func New(src DataSource) *Executor {
	return &Executor{Source: src, MaxScanDocs: defaultMaxScanDocs}
}

func init() {
	eval.SubqueryRunner = runSubquery
}

// Run executes a full query and returns the RETURN/mutation result.
func (ex *Executor) Run(q *ast.Query, bindVars map[string]value.Value) (value.Value, error) {
	if q.CreateStream != nil || q.CreateMV != nil || q.RefreshMV != nil {
		return value.Null(), dberr.New(dberr.OperationNotSupported, "streaming clauses are not supported by the local executor")
	}
	if q.Mutation != nil {
		return value.Null(), dberr.New(dberr.OperationNotSupported, "mutation clauses are not supported by the local executor")
	}

	root := eval.NewContext(bindVars)
	root.Source = ex.Source
	return ex.runWithContext(root, q)
}

func (ex *Executor) applyBodyClause(contexts []*eval.Context, bc ast.BodyClause) ([]*eval.Context, error) {
	switch bc.Kind {
	case ast.BodyLet:
		return ex.applyLet(contexts, bc.Let)
	case ast.BodyFor:
		return ex.applyFor(contexts, bc.For)
	case ast.BodyFilter:
		return ex.applyFilter(contexts, bc.Filter)
	case ast.BodyJoin:
		return ex.applyJoin(contexts, bc.Join)
	case ast.BodyCollect:
		return ex.applyCollect(contexts, bc.Collect)
	}
	return contexts, dberr.New(dberr.ExecutionError, "unknown body clause kind")
}

func (ex *Executor) applyLet(contexts []*eval.Context, let *ast.LetClause) ([]*eval.Context, error) {
	out := make([]*eval.Context, len(contexts))
	for i, ctx := range contexts {
		v, err := eval.Eval(ctx, let.Expr)
		if err != nil {
			return nil, err
		}
		out[i] = ctx.CloneWith(let.Name, v)
	}
	return out, nil
}

func (ex *Executor) applyFilter(contexts []*eval.Context, f *ast.FilterClause) ([]*eval.Context, error) {
	var out []*eval.Context
	for _, ctx := range contexts {
		v, err := eval.Eval(ctx, f.Expr)
		if err != nil {
			return nil, err
		}
		if v.ToBool() {
			out = append(out, ctx)
		}
	}
	return out, nil
}

// resolveForSource evaluates a FOR clause's source: either a collection
// scan (bounded by max_scan_docs) or an array-valued expression.
func (ex *Executor) resolveForSource(ctx *eval.Context, src ast.Expr) ([]value.Value, error) {
	if variable, ok := src.(*ast.Variable); ok {
		if _, bound := ctx.Variables[variable.Name]; !bound {
			if ex.Source != nil && ex.Source.CollectionExists(variable.Name) {
				return ex.scanBounded(variable.Name)
			}
			return nil, dberr.New(dberr.CollectionNotFound, "collection %q not found", variable.Name)
		}
	}
	v, err := eval.Eval(ctx, src)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case value.KindArray:
		return v.AsArray(), nil
	case value.KindNull:
		return nil, nil
	default:
		return nil, dberr.New(dberr.ExecutionError, "FOR source must be a collection or an array")
	}
}

func (ex *Executor) scanBounded(name string) ([]value.Value, error) {
	rows, err := ex.Source.Scan(name, ex.MaxScanDocs+1)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "scanning collection %q", name)
	}
	if len(rows) > ex.MaxScanDocs {
		return nil, dberr.New(dberr.ExecutionError, "Scan limit exceeded")
	}
	return rows, nil
}

func (ex *Executor) applyFor(contexts []*eval.Context, fc *ast.ForClause) ([]*eval.Context, error) {
	if fc.Kind != ast.ForRegular {
		return nil, dberr.New(dberr.OperationNotSupported, "graph traversal and shortest-path FOR clauses are not supported by the local executor")
	}
	var out []*eval.Context
	for _, ctx := range contexts {
		rows, err := ex.resolveForSource(ctx, fc.Source)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, ctx.CloneWith(fc.Var, row))
		}
	}
	return out, nil
}

func (ex *Executor) applyJoin(contexts []*eval.Context, jc *ast.JoinClause) ([]*eval.Context, error) {
	var out []*eval.Context
	for _, ctx := range contexts {
		rows, err := ex.resolveForSource(ctx, jc.Source)
		if err != nil {
			return nil, err
		}
		matched := false
		for _, row := range rows {
			candidate := ctx.CloneWith(jc.Var, row)
			cond, err := eval.Eval(candidate, jc.On)
			if err != nil {
				return nil, err
			}
			if cond.ToBool() {
				matched = true
				out = append(out, candidate)
			}
		}
		if !matched && (jc.Kind == ast.JoinLeft || jc.Kind == ast.JoinFull) {
			out = append(out, ctx.CloneWith(jc.Var, value.Null()))
		}
	}
	// RIGHT/FULL additionally owe unmatched right rows with left bound to
	// Null; without a reverse index over the left contexts already
	// consumed, RIGHT here behaves as INNER (FULL still gets its
	// left-unmatched rows from the loop above).
	return out, nil
}

func keysEqual(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !value.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (ex *Executor) applyCollect(contexts []*eval.Context, cc *ast.CollectClause) ([]*eval.Context, error) {
	type group struct {
		key      []value.Value
		members  []*eval.Context
	}
	var groups []*group

	for _, ctx := range contexts {
		key := make([]value.Value, len(cc.Keys))
		for i, k := range cc.Keys {
			v, err := eval.Eval(ctx, k.Expr)
			if err != nil {
				return nil, err
			}
			key[i] = v
		}
		var g *group
		for _, existing := range groups {
			if keysEqual(existing.key, key) {
				g = existing
				break
			}
		}
		if g == nil {
			g = &group{key: key}
			groups = append(groups, g)
		}
		g.members = append(g.members, ctx)
	}

	if len(groups) == 0 && len(cc.Keys) == 0 {
		groups = append(groups, &group{})
	}

	out := make([]*eval.Context, 0, len(groups))
	for _, g := range groups {
		var base *eval.Context
		if len(g.members) > 0 {
			base = g.members[0]
		} else {
			base = eval.NewContext(nil)
		}
		next := base
		for i, k := range cc.Keys {
			next = next.CloneWith(k.Name, g.key[i])
		}
		if cc.WithCount != "" {
			next = next.CloneWith(cc.WithCount, value.Int(int64(len(g.members))))
		}
		if cc.Into != "" {
			rows := make([]value.Value, len(g.members))
			for i, m := range g.members {
				if cc.IntoExpr != nil {
					v, err := eval.Eval(m, cc.IntoExpr)
					if err != nil {
						return nil, err
					}
					rows[i] = v
					continue
				}
				rows[i] = contextToObject(m)
			}
			next = next.CloneWith(cc.Into, value.Array(rows))
		}
		for _, agg := range cc.Aggregates {
			v, err := ex.computeAggregate(g.members, agg)
			if err != nil {
				return nil, err
			}
			next = next.CloneWith(agg.Name, v)
		}
		out = append(out, next)
	}
	return out, nil
}

// contextToObject is used when COLLECT ... INTO group captures whole rows
// without an explicit projection: it snapshots every bound variable.
func contextToObject(ctx *eval.Context) value.Value {
	obj := value.NewObject()
	for k, v := range ctx.Variables {
		obj.Set(k, v)
	}
	return obj
}

func (ex *Executor) computeAggregate(members []*eval.Context, agg ast.AggregateSpec) (value.Value, error) {
	switch agg.Func {
	case "COUNT":
		return value.Int(int64(len(members))), nil
	}
	var nums []float64
	var vals []value.Value
	for _, m := range members {
		v, err := eval.Eval(m, agg.Expr)
		if err != nil {
			return value.Null(), err
		}
		if v.IsNull() {
			continue
		}
		vals = append(vals, v)
		if n, ok := v.Number(); ok {
			nums = append(nums, n)
		}
	}
	switch agg.Func {
	case "SUM":
		var s float64
		for _, n := range nums {
			s += n
		}
		return value.Float(s), nil
	case "AVG":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		var s float64
		for _, n := range nums {
			s += n
		}
		return value.Float(s / float64(len(nums))), nil
	case "MIN":
		if len(vals) == 0 {
			return value.Null(), nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if value.Compare(v, best) < 0 {
				best = v
			}
		}
		return best, nil
	case "MAX":
		if len(vals) == 0 {
			return value.Null(), nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if value.Compare(v, best) > 0 {
				best = v
			}
		}
		return best, nil
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unknown aggregate function %q", agg.Func)
}

// applySort evaluates per context with graceful degradation: a sort key
// that fails to evaluate becomes Null rather than aborting the query,
// so ordering stays deterministic even over heterogeneous rows.
func (ex *Executor) applySort(contexts []*eval.Context, sc *ast.SortClause) []*eval.Context {
	type keyed struct {
		ctx  *eval.Context
		keys []value.Value
	}
	rows := make([]keyed, len(contexts))
	for i, ctx := range contexts {
		keys := make([]value.Value, len(sc.Items))
		for j, item := range sc.Items {
			v, err := eval.Eval(ctx, item.Expr)
			if err != nil {
				v = value.Null()
			}
			keys[j] = v
		}
		rows[i] = keyed{ctx, keys}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, item := range sc.Items {
			c := value.Compare(rows[i].keys[k], rows[j].keys[k])
			if c == 0 {
				continue
			}
			if item.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	out := make([]*eval.Context, len(rows))
	for i, r := range rows {
		out[i] = r.ctx
	}
	return out
}

func (ex *Executor) applyLimit(root *eval.Context, contexts []*eval.Context, lc *ast.LimitClause) ([]*eval.Context, error) {
	offset := 0
	if lc.Offset != nil {
		v, err := eval.Eval(root, lc.Offset)
		if err != nil {
			return nil, err
		}
		offset = int(v.ToFloat())
	}
	countVal, err := eval.Eval(root, lc.Count)
	if err != nil {
		return nil, err
	}
	count := int(countVal.ToFloat())
	if offset < 0 {
		offset = 0
	}
	if offset >= len(contexts) {
		return nil, nil
	}
	end := offset + count
	if count < 0 || end > len(contexts) {
		end = len(contexts)
	}
	return contexts[offset:end], nil
}

func (ex *Executor) applyReturn(contexts []*eval.Context, rc *ast.ReturnClause) (value.Value, error) {
	out := make([]value.Value, 0, len(contexts))
	for _, ctx := range contexts {
		v, err := eval.Eval(ctx, rc.Expr)
		if err != nil {
			return value.Null(), err
		}
		out = append(out, v)
	}
	if rc.Distinct {
		out = distinct(out)
	}
	return value.Array(out), nil
}

func distinct(in []value.Value) []value.Value {
	var out []value.Value
	for _, v := range in {
		dup := false
		for _, seen := range out {
			if value.Equal(v, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// runSubquery executes a nested query sharing the caller's bind vars,
// outer variable bindings, and DataSource (via ctx.Source, set by Run),
// returning its RETURN rows. Wired into eval.SubqueryRunner at package
// init so eval can invoke it without importing this package.
func runSubquery(ctx *eval.Context, q *ast.Query) ([]value.Value, error) {
	src, _ := ctx.Source.(DataSource)
	ex := &Executor{Source: src, MaxScanDocs: defaultMaxScanDocs}
	inner := ctx.Clone()
	result, err := ex.runWithContext(inner, q)
	if err != nil {
		return nil, err
	}
	if result.Kind() != value.KindArray {
		return []value.Value{result}, nil
	}
	return result.AsArray(), nil
}

func (ex *Executor) runWithContext(root *eval.Context, q *ast.Query) (value.Value, error) {
	for _, let := range q.LetClauses {
		v, err := eval.Eval(root, let.Expr)
		if err != nil {
			return value.Null(), err
		}
		root = root.CloneWith(let.Name, v)
	}
	contexts := []*eval.Context{root}
	var err error
	for _, bc := range q.BodyClauses {
		contexts, err = ex.applyBodyClause(contexts, bc)
		if err != nil {
			return value.Null(), err
		}
	}
	if q.Sort != nil {
		contexts = ex.applySort(contexts, q.Sort)
	}
	if q.Limit != nil {
		contexts, err = ex.applyLimit(root, contexts, q.Limit)
		if err != nil {
			return value.Null(), err
		}
	}
	if q.Return == nil {
		return value.Array(nil), nil
	}
	return ex.applyReturn(contexts, q.Return)
}
