package eval

import (
	"math"
	"strings"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/dbql/ast"
	"github.com/solisoft/solidb/dbql/eval/builtins"
	"github.com/solisoft/solidb/value"
)

// SubqueryRunner executes a nested Query and returns its result rows. The
// executor package (which depends on eval) assigns this at init time so
// eval can evaluate ast.Subquery without importing the executor and
// creating a cycle.
var SubqueryRunner func(ctx *Context, q *ast.Query) ([]value.Value, error)

// higherOrder lists the built-ins whose last argument is an unevaluated
// lambda body; these never go through builtins.Call since that package
// only sees already-evaluated Values.
var higherOrder = map[string]bool{
	"FILTER": true, "MAP": true, "ANY": true, "ALL": true, "REDUCE": true, "SORT_BY": true,
}

// Eval walks e under ctx and returns its value, following the DBQL
// expression precedence and truthiness rules.
func Eval(ctx *Context, e ast.Expr) (value.Value, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return literalValue(n.Value), nil
	case *ast.Variable:
		// Lookup is permissive: an unbound name evaluates to Null rather
		// than failing, same as a missing document field.
		return ctx.Variables[n.Name], nil
	case *ast.BindVariable:
		return ctx.BindVars[n.Name], nil
	case *ast.FieldAccess:
		return evalFieldAccess(ctx, n)
	case *ast.ArrayAccess:
		return evalArrayAccess(ctx, n)
	case *ast.ArraySpreadAccess:
		return evalArraySpread(ctx, n)
	case *ast.BinaryOp:
		return evalBinaryOp(ctx, n)
	case *ast.UnaryOp:
		return evalUnaryOp(ctx, n)
	case *ast.ObjectLit:
		return evalObjectLit(ctx, n)
	case *ast.ArrayLit:
		return evalArrayLit(ctx, n)
	case *ast.RangeExpr:
		return evalRange(ctx, n)
	case *ast.FunctionCall:
		return evalFunctionCall(ctx, n)
	case *ast.Ternary:
		return evalTernary(ctx, n)
	case *ast.CaseExpr:
		return evalCaseExpr(ctx, n)
	case *ast.PipelineExpr:
		return evalPipeline(ctx, n)
	case *ast.Lambda:
		return value.Null(), dberr.New(dberr.ExecutionError, "lambda used outside a higher-order call")
	case *ast.Subquery:
		return evalSubquery(ctx, n)
	case *ast.TemplateString:
		return evalTemplateString(ctx, n)
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unsupported expression node %T", e)
}

func literalValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case int64:
		return value.Int(t)
	case int:
		return value.Int(int64(t))
	case float64:
		return value.Float(t)
	case string:
		return value.String(t)
	default:
		return value.Null()
	}
}

func evalFieldAccess(ctx *Context, n *ast.FieldAccess) (value.Value, error) {
	target, err := Eval(ctx, n.Target)
	if err != nil {
		if n.Optional {
			return value.Null(), nil
		}
		return value.Null(), err
	}
	if target.Kind() != value.KindObject {
		if n.Optional || target.IsNull() {
			return value.Null(), nil
		}
		return value.Null(), dberr.New(dberr.ExecutionError, "field access %q on non-object value", n.Field)
	}
	v, ok := target.Get(n.Field)
	if !ok {
		return value.Null(), nil
	}
	return v, nil
}

func evalArrayAccess(ctx *Context, n *ast.ArrayAccess) (value.Value, error) {
	target, err := Eval(ctx, n.Target)
	if err != nil {
		return value.Null(), err
	}
	idxVal, err := Eval(ctx, n.Index)
	if err != nil {
		return value.Null(), err
	}
	switch target.Kind() {
	case value.KindArray:
		arr := target.AsArray()
		idx := int(idxVal.ToFloat())
		if idx < 0 {
			idx = len(arr) + idx
		}
		if idx < 0 || idx >= len(arr) {
			return value.Null(), nil
		}
		return arr[idx], nil
	case value.KindObject:
		v, ok := target.Get(idxVal.ToStringValue())
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	case value.KindNull:
		return value.Null(), nil
	default:
		return value.Null(), dberr.New(dberr.ExecutionError, "index access on %s", target.TypeName())
	}
}

func evalArraySpread(ctx *Context, n *ast.ArraySpreadAccess) (value.Value, error) {
	target, err := Eval(ctx, n.Target)
	if err != nil {
		return value.Null(), err
	}
	if target.Kind() != value.KindArray {
		if target.IsNull() {
			return value.Array(nil), nil
		}
		return value.Null(), dberr.New(dberr.ExecutionError, "expr[*] on non-array value")
	}
	arr := target.AsArray()
	if len(n.Path) == 0 {
		return value.Array(arr), nil
	}
	out := make([]value.Value, len(arr))
	for i, item := range arr {
		cur := item
		for _, field := range n.Path {
			if cur.Kind() != value.KindObject {
				cur = value.Null()
				break
			}
			v, ok := cur.Get(field)
			if !ok {
				cur = value.Null()
				break
			}
			cur = v
		}
		out[i] = cur
	}
	return value.Array(out), nil
}

func evalObjectLit(ctx *Context, n *ast.ObjectLit) (value.Value, error) {
	obj := value.NewObject()
	for i, k := range n.Keys {
		v, err := Eval(ctx, n.Values[i])
		if err != nil {
			return value.Null(), err
		}
		obj.Set(k, v)
	}
	return obj, nil
}

func evalArrayLit(ctx *Context, n *ast.ArrayLit) (value.Value, error) {
	out := make([]value.Value, len(n.Elements))
	for i, e := range n.Elements {
		v, err := Eval(ctx, e)
		if err != nil {
			return value.Null(), err
		}
		out[i] = v
	}
	return value.Array(out), nil
}

func evalRange(ctx *Context, n *ast.RangeExpr) (value.Value, error) {
	start, err := Eval(ctx, n.Start)
	if err != nil {
		return value.Null(), err
	}
	end, err := Eval(ctx, n.End)
	if err != nil {
		return value.Null(), err
	}
	s, e := int64(start.ToFloat()), int64(end.ToFloat())
	var out []value.Value
	if s <= e {
		for i := s; i <= e; i++ {
			out = append(out, value.Int(i))
		}
	} else {
		for i := s; i >= e; i-- {
			out = append(out, value.Int(i))
		}
	}
	return value.Array(out), nil
}

func evalTernary(ctx *Context, n *ast.Ternary) (value.Value, error) {
	cond, err := Eval(ctx, n.Cond)
	if err != nil {
		return value.Null(), err
	}
	if cond.ToBool() {
		return Eval(ctx, n.Then)
	}
	return Eval(ctx, n.Else)
}

func evalCaseExpr(ctx *Context, n *ast.CaseExpr) (value.Value, error) {
	var switchVal value.Value
	if n.Switch != nil {
		v, err := Eval(ctx, n.Switch)
		if err != nil {
			return value.Null(), err
		}
		switchVal = v
	}
	for _, w := range n.Whens {
		if n.Switch != nil {
			whenVal, err := Eval(ctx, w.When)
			if err != nil {
				return value.Null(), err
			}
			if value.Equal(switchVal, whenVal) {
				return Eval(ctx, w.Then)
			}
			continue
		}
		cond, err := Eval(ctx, w.When)
		if err != nil {
			return value.Null(), err
		}
		if cond.ToBool() {
			return Eval(ctx, w.Then)
		}
	}
	if n.Else != nil {
		return Eval(ctx, n.Else)
	}
	return value.Null(), nil
}

func evalPipeline(ctx *Context, n *ast.PipelineExpr) (value.Value, error) {
	input, err := Eval(ctx, n.Input)
	if err != nil {
		return value.Null(), err
	}
	args := make([]ast.Expr, 0, len(n.Call.Args)+1)
	args = append(args, &ast.Literal{Value: nil})
	args = append(args, n.Call.Args...)
	call := &ast.FunctionCall{Name: n.Call.Name, Args: args}
	return evalFunctionCallWithFirst(ctx, call, input)
}

func evalSubquery(ctx *Context, n *ast.Subquery) (value.Value, error) {
	if SubqueryRunner == nil {
		return value.Null(), dberr.New(dberr.ExecutionError, "subqueries are not available in this context")
	}
	rows, err := SubqueryRunner(ctx, n.Query)
	if err != nil {
		return value.Null(), err
	}
	return value.Array(rows), nil
}

func evalTemplateString(ctx *Context, n *ast.TemplateString) (value.Value, error) {
	var sb strings.Builder
	for _, seg := range n.Segments {
		if seg.Expr == nil {
			sb.WriteString(seg.Literal)
			continue
		}
		v, err := Eval(ctx, seg.Expr)
		if err != nil {
			return value.Null(), err
		}
		sb.WriteString(v.ToStringValue())
	}
	return value.String(sb.String()), nil
}

func evalUnaryOp(ctx *Context, n *ast.UnaryOp) (value.Value, error) {
	v, err := Eval(ctx, n.Operand)
	if err != nil {
		return value.Null(), err
	}
	switch n.Op {
	case ast.UnaryNot:
		return value.Bool(!v.ToBool()), nil
	case ast.UnaryNeg:
		if v.Kind() == value.KindInt {
			return value.Int(-v.AsInt()), nil
		}
		return value.Float(-v.ToFloat()), nil
	case ast.UnaryBitNot:
		return value.Int(^int64(v.ToFloat())), nil
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unknown unary operator %s", n.Op)
}

func evalBinaryOp(ctx *Context, n *ast.BinaryOp) (value.Value, error) {
	switch n.Op {
	case ast.OpAnd:
		l, err := Eval(ctx, n.Left)
		if err != nil {
			return value.Null(), err
		}
		if !l.ToBool() {
			return value.Bool(false), nil
		}
		r, err := Eval(ctx, n.Right)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(r.ToBool()), nil
	case ast.OpOr:
		l, err := Eval(ctx, n.Left)
		if err != nil {
			return value.Null(), err
		}
		if l.ToBool() {
			return value.Bool(true), nil
		}
		r, err := Eval(ctx, n.Right)
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(r.ToBool()), nil
	case ast.OpCoalesce:
		l, err := Eval(ctx, n.Left)
		if err != nil {
			return value.Null(), err
		}
		if !l.IsNull() {
			return l, nil
		}
		return Eval(ctx, n.Right)
	case ast.OpLogicalOr:
		l, err := Eval(ctx, n.Left)
		if err != nil {
			return value.Null(), err
		}
		if l.ToBool() {
			return l, nil
		}
		return Eval(ctx, n.Right)
	}

	l, err := Eval(ctx, n.Left)
	if err != nil {
		return value.Null(), err
	}
	r, err := Eval(ctx, n.Right)
	if err != nil {
		return value.Null(), err
	}
	return applyBinOp(n.Op, l, r)
}

func applyBinOp(op ast.BinOp, l, r value.Value) (value.Value, error) {
	switch op {
	case ast.OpAdd:
		if l.Kind() == value.KindString || r.Kind() == value.KindString {
			return value.String(l.ToStringValue() + r.ToStringValue()), nil
		}
		return arith("+", l, r, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case ast.OpSub:
		return arith("-", l, r, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case ast.OpMul:
		return arith("*", l, r, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case ast.OpDiv:
		lf, lok := l.Number()
		rf, rok := r.Number()
		if !lok || !rok {
			return value.Null(), dberr.New(dberr.ExecutionError, "arithmetic on non-numeric values %s and %s", l.TypeName(), r.TypeName())
		}
		if rf == 0 {
			return value.Null(), dberr.New(dberr.ExecutionError, "division by zero")
		}
		return value.Float(lf / rf), nil
	case ast.OpMod:
		lf, lok := l.Number()
		rf, rok := r.Number()
		if !lok || !rok {
			return value.Null(), dberr.New(dberr.ExecutionError, "arithmetic on non-numeric values %s and %s", l.TypeName(), r.TypeName())
		}
		if rf == 0 {
			return value.Null(), dberr.New(dberr.ExecutionError, "modulo by zero")
		}
		if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
			return value.Int(l.AsInt() % r.AsInt()), nil
		}
		return value.Float(floatMod(lf, rf)), nil
	case ast.OpPow:
		lf, lok := l.Number()
		rf, rok := r.Number()
		if !lok || !rok {
			return value.Null(), dberr.New(dberr.ExecutionError, "arithmetic on non-numeric values %s and %s", l.TypeName(), r.TypeName())
		}
		return value.Float(floatPow(lf, rf)), nil
	case ast.OpEq:
		return value.Bool(value.Equal(l, r)), nil
	case ast.OpNotEq:
		return value.Bool(!value.Equal(l, r)), nil
	case ast.OpLt:
		return value.Bool(value.Compare(l, r) < 0), nil
	case ast.OpLtEq:
		return value.Bool(value.Compare(l, r) <= 0), nil
	case ast.OpGt:
		return value.Bool(value.Compare(l, r) > 0), nil
	case ast.OpGtEq:
		return value.Bool(value.Compare(l, r) >= 0), nil
	case ast.OpIn:
		return value.Bool(inArray(l, r)), nil
	case ast.OpNotIn:
		return value.Bool(!inArray(l, r)), nil
	case ast.OpLike:
		v, _, err := builtins.Call("LIKE", []value.Value{l, r})
		return v, err
	case ast.OpNotLike:
		v, _, err := builtins.Call("LIKE", []value.Value{l, r})
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(!v.ToBool()), nil
	case ast.OpRegex:
		v, _, err := builtins.Call("REGEX_TEST", []value.Value{l, r})
		return v, err
	case ast.OpNotRegex:
		v, _, err := builtins.Call("REGEX_TEST", []value.Value{l, r})
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(!v.ToBool()), nil
	case ast.OpFuzzyEq:
		v, _, err := builtins.Call("LEVENSHTEIN_DISTANCE", []value.Value{l, r})
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(v.AsInt() <= 2), nil
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unknown binary operator %s", op)
}

func arith(op string, l, r value.Value, fi func(int64, int64) int64, ff func(float64, float64) float64) (value.Value, error) {
	lf, lok := l.Number()
	rf, rok := r.Number()
	if !lok || !rok {
		return value.Null(), dberr.New(dberr.ExecutionError, "%s on non-numeric values %s and %s", op, l.TypeName(), r.TypeName())
	}
	if l.Kind() == value.KindInt && r.Kind() == value.KindInt {
		return value.Int(fi(l.AsInt(), r.AsInt())), nil
	}
	return value.Float(ff(lf, rf)), nil
}

func inArray(needle, haystack value.Value) bool {
	switch haystack.Kind() {
	case value.KindArray:
		for _, v := range haystack.AsArray() {
			if value.Equal(needle, v) {
				return true
			}
		}
	case value.KindObject:
		// Over an object, IN is a key membership test.
		_, ok := haystack.Get(needle.ToStringValue())
		return ok
	}
	return false
}

func evalFunctionCall(ctx *Context, n *ast.FunctionCall) (value.Value, error) {
	return evalFunctionCallWithFirst(ctx, n, value.Value{})
}

// evalFunctionCallWithFirst evaluates a call; if injected is non-zero-value
// (set by evalPipeline replacing a placeholder literal), the first
// argument slot is substituted with it rather than evaluated.
func evalFunctionCallWithFirst(ctx *Context, n *ast.FunctionCall, injected value.Value) (value.Value, error) {
	name := strings.ToUpper(n.Name)
	if higherOrder[name] {
		return evalHigherOrder(ctx, name, n.Args, injected)
	}

	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		if i == 0 {
			if lit, ok := a.(*ast.Literal); ok && lit.Value == nil && !injected.IsNull() {
				args[i] = injected
				continue
			}
		}
		v, err := Eval(ctx, a)
		if err != nil {
			return value.Null(), err
		}
		args[i] = v
	}
	v, ok, err := builtins.Call(name, args)
	if err != nil {
		return value.Null(), err
	}
	if !ok {
		return value.Null(), dberr.New(dberr.ExecutionError, "unknown function %q", n.Name)
	}
	return v, nil
}

// evalHigherOrder implements FILTER/MAP/ANY/ALL/REDUCE/SORT_BY: the last
// argument is a lambda whose body is re-evaluated per element under a
// context extended with the lambda's bound parameter name(s). injected
// replaces the slot-0 placeholder when the call is the target of a
// pipeline (arr |> FILTER(x -> ...)).
func evalHigherOrder(ctx *Context, name string, args []ast.Expr, injected value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Null(), dberr.New(dberr.ExecutionError, "%s requires an array and a lambda", name)
	}
	var arrVal value.Value
	if lit, ok := args[0].(*ast.Literal); ok && lit.Value == nil && !injected.IsNull() {
		arrVal = injected
	} else {
		var err error
		arrVal, err = Eval(ctx, args[0])
		if err != nil {
			return value.Null(), err
		}
	}
	if arrVal.Kind() != value.KindArray {
		return value.Null(), dberr.New(dberr.ExecutionError, "%s: first argument must be an array", name)
	}
	lambda, ok := args[len(args)-1].(*ast.Lambda)
	if !ok {
		return value.Null(), dberr.New(dberr.ExecutionError, "%s: last argument must be a lambda", name)
	}
	arr := arrVal.AsArray()

	switch name {
	case "FILTER":
		var out []value.Value
		for _, item := range arr {
			v, err := callLambda(ctx, lambda, item)
			if err != nil {
				return value.Null(), err
			}
			if v.ToBool() {
				out = append(out, item)
			}
		}
		return value.Array(out), nil
	case "MAP":
		out := make([]value.Value, len(arr))
		for i, item := range arr {
			v, err := callLambda(ctx, lambda, item)
			if err != nil {
				return value.Null(), err
			}
			out[i] = v
		}
		return value.Array(out), nil
	case "ANY":
		for _, item := range arr {
			v, err := callLambda(ctx, lambda, item)
			if err != nil {
				return value.Null(), err
			}
			if v.ToBool() {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	case "ALL":
		for _, item := range arr {
			v, err := callLambda(ctx, lambda, item)
			if err != nil {
				return value.Null(), err
			}
			if !v.ToBool() {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	case "REDUCE":
		var acc value.Value = value.Null()
		if len(args) == 3 {
			init, err := Eval(ctx, args[1])
			if err != nil {
				return value.Null(), err
			}
			acc = init
		}
		for _, item := range arr {
			next := ctx.CloneWith(lambda.Params[0], acc)
			if len(lambda.Params) > 1 {
				next = next.CloneWith(lambda.Params[1], item)
			}
			v, err := Eval(next, lambda.Body)
			if err != nil {
				return value.Null(), err
			}
			acc = v
		}
		return acc, nil
	case "SORT_BY":
		type pair struct {
			item value.Value
			key  value.Value
		}
		pairs := make([]pair, len(arr))
		for i, item := range arr {
			k, err := callLambda(ctx, lambda, item)
			if err != nil {
				return value.Null(), err
			}
			pairs[i] = pair{item, k}
		}
		for i := 1; i < len(pairs); i++ {
			for j := i; j > 0 && value.Compare(pairs[j-1].key, pairs[j].key) > 0; j-- {
				pairs[j-1], pairs[j] = pairs[j], pairs[j-1]
			}
		}
		out := make([]value.Value, len(pairs))
		for i, p := range pairs {
			out[i] = p.item
		}
		return value.Array(out), nil
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unimplemented higher-order function %s", name)
}

func callLambda(ctx *Context, lambda *ast.Lambda, item value.Value) (value.Value, error) {
	if len(lambda.Params) == 0 {
		return Eval(ctx, lambda.Body)
	}
	next := ctx.CloneWith(lambda.Params[0], item)
	return Eval(next, lambda.Body)
}

func floatMod(a, b float64) float64 { return math.Mod(a, b) }

func floatPow(a, b float64) float64 { return math.Pow(a, b) }
