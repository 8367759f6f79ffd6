// Package eval implements the DBQL expression evaluator: AST in, Value
// out, dispatching to the built-in function families.
package eval

import "github.com/solisoft/solidb/value"

// Context is the evaluation environment threaded through Eval: variable
// bindings accumulated by the clause pipeline, plus the caller-supplied
// bind variables.
type Context struct {
	Variables map[string]value.Value
	BindVars  map[string]value.Value

	// Source carries the enclosing executor's DataSource (an
	// exec.DataSource, held opaquely to avoid an eval<->exec import cycle)
	// so a Subquery expression can resolve `FOR x IN collection` against
	// the same storage the outer query runs against.
	Source interface{}
}

// NewContext starts an empty context seeded with bind variables.
func NewContext(bindVars map[string]value.Value) *Context {
	if bindVars == nil {
		bindVars = map[string]value.Value{}
	}
	return &Context{Variables: map[string]value.Value{}, BindVars: bindVars}
}

// CloneWith returns a new Context extending this one with an additional
// binding, never mutating the receiver: every clause step extends by
// copy-on-write rather than aliasing a parent's map.
func (c *Context) CloneWith(name string, v value.Value) *Context {
	next := &Context{
		Variables: make(map[string]value.Value, len(c.Variables)+1),
		BindVars:  c.BindVars,
		Source:    c.Source,
	}
	for k, val := range c.Variables {
		next.Variables[k] = val
	}
	next.Variables[name] = v
	return next
}

// Clone makes an independent copy with the same bindings, used when a
// subquery runs against its outer bindings without aliasing them.
func (c *Context) Clone() *Context {
	next := &Context{
		Variables: make(map[string]value.Value, len(c.Variables)),
		BindVars:  c.BindVars,
		Source:    c.Source,
	}
	for k, v := range c.Variables {
		next.Variables[k] = v
	}
	return next
}
