// Package parser implements the hand-written recursive-descent DBQL
// parser: tokens in, *ast.Query out.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solisoft/solidb/dbql/ast"
	"github.com/solisoft/solidb/dbql/lexer"
	"github.com/solisoft/solidb/dbql/token"
)

// Parser walks a pre-scanned token slice with a position index rather
// than re-lexing from a byte buffer.
type Parser struct {
	tokens         []token.Token
	pos            int
	allowInOperator bool
}

// Parse tokenizes and parses a complete DBQL query.
func Parse(src string) (*ast.Query, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("dbql: %w", err)
	}
	p := &Parser{tokens: toks, allowInOperator: true}
	q, err := p.parseQuery(true)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (p *Parser) cur() token.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token.Token{Kind: token.EOF}
}

func (p *Parser) peek(offset int) token.Token {
	i := p.pos + offset
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return token.Token{Kind: token.EOF}
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) is(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if !p.is(k) {
		return token.Token{}, fmt.Errorf("dbql: expected %s, got %s %q at offset %d", k, p.cur().Kind, p.cur().Text, p.cur().Pos)
	}
	return p.advance(), nil
}

func (p *Parser) errf(format string, args ...any) error {
	return fmt.Errorf("dbql: "+format, args...)
}

// parseQuery parses a full query; checkTrailing is false for subqueries
// (which stop at the closing paren owned by the caller).
func (p *Parser) parseQuery(checkTrailing bool) (*ast.Query, error) {
	q := &ast.Query{}

	if p.is(token.CREATE) {
		if p.peek(1).Kind == token.STREAM {
			c, err := p.parseCreateStream()
			if err != nil {
				return nil, err
			}
			q.CreateStream = c
		} else if p.peek(1).Kind == token.MATERIALIZED {
			c, err := p.parseCreateMaterializedView()
			if err != nil {
				return nil, err
			}
			q.CreateMV = c
		} else {
			return nil, p.errf("expected STREAM or MATERIALIZED VIEW after CREATE")
		}
	}

	if p.is(token.REFRESH) {
		c, err := p.parseRefreshMaterializedView()
		if err != nil {
			return nil, err
		}
		q.RefreshMV = c
	}

	// Top-level LET clauses (before the first FOR). These live only in
	// LetClauses: the executor seeds its root context with them once,
	// so they are deliberately not repeated in BodyClauses.
	for p.is(token.LET) {
		lc, err := p.parseLetClause()
		if err != nil {
			return nil, err
		}
		q.LetClauses = append(q.LetClauses, *lc)
	}

	for {
		switch p.cur().Kind {
		case token.FOR:
			fc, err := p.parseForClause()
			if err != nil {
				return nil, err
			}
			q.ForClauses = append(q.ForClauses, *fc)
			q.BodyClauses = append(q.BodyClauses, ast.BodyClause{Kind: ast.BodyFor, For: fc})
		case token.LET:
			lc, err := p.parseLetClause()
			if err != nil {
				return nil, err
			}
			q.BodyClauses = append(q.BodyClauses, ast.BodyClause{Kind: ast.BodyLet, Let: lc})
		case token.FILTER:
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fc := &ast.FilterClause{Expr: e}
			q.FilterClauses = append(q.FilterClauses, *fc)
			q.BodyClauses = append(q.BodyClauses, ast.BodyClause{Kind: ast.BodyFilter, Filter: fc})
		case token.JOIN, token.LEFT, token.RIGHT, token.INNER, token.FULL:
			jc, err := p.parseJoinClause()
			if err != nil {
				return nil, err
			}
			q.JoinClauses = append(q.JoinClauses, *jc)
			q.BodyClauses = append(q.BodyClauses, ast.BodyClause{Kind: ast.BodyJoin, Join: jc})
		case token.COLLECT:
			cc, err := p.parseCollectClause()
			if err != nil {
				return nil, err
			}
			q.BodyClauses = append(q.BodyClauses, ast.BodyClause{Kind: ast.BodyCollect, Collect: cc})
		default:
			goto afterBody
		}
	}
afterBody:

	if p.is(token.SORT) {
		sc, err := p.parseSortClause()
		if err != nil {
			return nil, err
		}
		q.Sort = sc
	}

	if p.is(token.LIMIT) {
		lc, err := p.parseLimitClause()
		if err != nil {
			return nil, err
		}
		q.Limit = lc
	}

	if p.is(token.WINDOW) {
		wc, err := p.parseWindowClause()
		if err != nil {
			return nil, err
		}
		q.Window = wc
	}

	switch p.cur().Kind {
	case token.RETURN:
		p.advance()
		distinct := false
		if p.is(token.Ident) && strings.EqualFold(p.cur().Text, "DISTINCT") {
			distinct = true
			p.advance()
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		q.Return = &ast.ReturnClause{Expr: e, Distinct: distinct}
	case token.INSERT, token.UPDATE, token.REMOVE, token.UPSERT:
		mc, err := p.parseMutationClause()
		if err != nil {
			return nil, err
		}
		q.Mutation = mc
	}

	if q.Return == nil && q.Mutation == nil && q.CreateStream == nil && q.CreateMV == nil && q.RefreshMV == nil {
		return nil, p.errf("query must contain RETURN, a mutation clause, or a CREATE/REFRESH streaming clause")
	}

	if checkTrailing && !p.is(token.EOF) {
		return nil, p.errf("unexpected trailing token %s %q at offset %d", p.cur().Kind, p.cur().Text, p.cur().Pos)
	}

	return q, nil
}

func (p *Parser) parseLetClause() (*ast.LetClause, error) {
	if _, err := p.expect(token.LET); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.LetClause{Name: name.Text, Expr: e}, nil
}

// parseForClause disambiguates regular / graph-traversal / shortest-path
// FOR clauses by lookahead after IN.
func (p *Parser) parseForClause() (*ast.ForClause, error) {
	if _, err := p.expect(token.FOR); err != nil {
		return nil, err
	}
	varName, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}

	if p.is(token.SHORTEST_PATH) {
		return p.parseShortestPathTail(varName.Text)
	}
	if isDepthLiteralLookahead(p) || isDirectionToken(p.cur().Kind) {
		return p.parseGraphTraversalTail(varName.Text)
	}

	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ForClause{Var: varName.Text, Kind: ast.ForRegular, Source: src}, nil
}

func isDirectionToken(k token.Kind) bool {
	return k == token.OUTBOUND || k == token.INBOUND || k == token.ANY
}

// isDepthLiteralLookahead reports whether the upcoming tokens look like
// "<int>..<int> OUTBOUND/INBOUND/ANY", the depth-range prefix of a graph
// traversal clause.
func isDepthLiteralLookahead(p *Parser) bool {
	if p.cur().Kind != token.IntNumber {
		return false
	}
	i := 1
	if p.peek(i).Kind == token.DotDot {
		i++
		if p.peek(i).Kind == token.IntNumber {
			i++
		}
	}
	return isDirectionToken(p.peek(i).Kind)
}

func (p *Parser) parseGraphTraversalTail(varName string) (*ast.ForClause, error) {
	fc := &ast.ForClause{Var: varName, Kind: ast.ForGraphTraversal}
	if p.is(token.IntNumber) {
		min, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		fc.MinDepth = min
		if p.is(token.DotDot) {
			p.advance()
			max, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			fc.MaxDepth = max
		} else {
			fc.MaxDepth = fc.MinDepth
		}
	}
	if !isDirectionToken(p.cur().Kind) {
		return nil, p.errf("expected OUTBOUND/INBOUND/ANY in graph traversal clause")
	}
	fc.Direction = p.advance().Text
	start, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fc.StartExpr = start
	edge, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fc.EdgeColl = edge
	return fc, nil
}

func (p *Parser) parseShortestPathTail(varName string) (*ast.ForClause, error) {
	if _, err := p.expect(token.SHORTEST_PATH); err != nil {
		return nil, err
	}
	fc := &ast.ForClause{Var: varName, Kind: ast.ForShortestPath}
	start, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fc.StartExpr = start
	if p.is(token.Ident) && strings.EqualFold(p.cur().Text, "TO") {
		p.advance()
	}
	to, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fc.ToExpr = to
	if !isDirectionToken(p.cur().Kind) {
		return nil, p.errf("expected OUTBOUND/INBOUND/ANY in shortest-path clause")
	}
	fc.Direction = p.advance().Text
	edge, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fc.EdgeColl = edge
	return fc, nil
}

func (p *Parser) parseJoinClause() (*ast.JoinClause, error) {
	kind := ast.JoinInner
	switch p.cur().Kind {
	case token.LEFT:
		kind = ast.JoinLeft
		p.advance()
	case token.RIGHT:
		kind = ast.JoinRight
		p.advance()
	case token.FULL:
		kind = ast.JoinFull
		p.advance()
	case token.INNER:
		p.advance()
	}
	if p.is(token.OUTER) {
		p.advance()
	}
	if _, err := p.expect(token.JOIN); err != nil {
		return nil, err
	}
	varName, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	var src ast.Expr = &ast.Variable{Name: varName.Text}
	if p.is(token.IN) {
		p.advance()
		src, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.ON); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.JoinClause{Kind: kind, Var: varName.Text, Source: src, On: cond}, nil
}

func (p *Parser) parseCollectClause() (*ast.CollectClause, error) {
	if _, err := p.expect(token.COLLECT); err != nil {
		return nil, err
	}
	cc := &ast.CollectClause{}
	for {
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Assign); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cc.Keys = append(cc.Keys, ast.LetClause{Name: name.Text, Expr: e})
		if p.is(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	if p.is(token.AGGREGATE) {
		p.advance()
		for {
			name, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.Assign); err != nil {
				return nil, err
			}
			fn, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.LParen); err != nil {
				return nil, err
			}
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			cc.Aggregates = append(cc.Aggregates, ast.AggregateSpec{Name: name.Text, Func: strings.ToUpper(fn.Text), Expr: inner})
			if p.is(token.Comma) {
				p.advance()
				continue
			}
			break
		}
	}
	if p.is(token.WITH) {
		p.advance()
		if _, err := p.expect(token.COUNT); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.INTO); err != nil {
			return nil, err
		}
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		cc.WithCount = name.Text
	}
	if p.is(token.INTO) {
		p.advance()
		name, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		cc.Into = name.Text
		if p.is(token.Assign) {
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			cc.IntoExpr = e
		}
	}
	return cc, nil
}

func (p *Parser) parseSortClause() (*ast.SortClause, error) {
	if _, err := p.expect(token.SORT); err != nil {
		return nil, err
	}
	sc := &ast.SortClause{}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.is(token.ASC) {
			p.advance()
		} else if p.is(token.DESC) {
			desc = true
			p.advance()
		}
		sc.Items = append(sc.Items, ast.SortItem{Expr: e, Desc: desc})
		if p.is(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	return sc, nil
}

func (p *Parser) parseLimitClause() (*ast.LimitClause, error) {
	if _, err := p.expect(token.LIMIT); err != nil {
		return nil, err
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.is(token.Comma) {
		p.advance()
		second, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.LimitClause{Offset: first, Count: second}, nil
	}
	return &ast.LimitClause{Count: first}, nil
}

func (p *Parser) parseWindowClause() (*ast.WindowClause, error) {
	if _, err := p.expect(token.WINDOW); err != nil {
		return nil, err
	}
	size, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.OVER); err != nil {
		return nil, err
	}
	over, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.WindowClause{Size: size, Over: over}, nil
}

func (p *Parser) parseMutationClause() (*ast.MutationClause, error) {
	tok := p.advance()
	mc := &ast.MutationClause{}
	switch tok.Kind {
	case token.INSERT:
		mc.Kind = ast.MutInsert
	case token.UPDATE:
		mc.Kind = ast.MutUpdate
	case token.REMOVE:
		mc.Kind = ast.MutRemove
	case token.UPSERT:
		mc.Kind = ast.MutUpsert
	}
	prevAllow := p.allowInOperator
	p.allowInOperator = false
	e, err := p.parseExpr()
	p.allowInOperator = prevAllow
	if err != nil {
		return nil, err
	}
	if mc.Kind == ast.MutUpdate || mc.Kind == ast.MutRemove {
		mc.Key = e
	} else {
		mc.Expr = e
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	coll, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	mc.Collection = coll.Text
	if mc.Kind == ast.MutUpdate && p.is(token.WITH) {
		p.advance()
		patch, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		mc.Expr = patch
	}
	return mc, nil
}

func (p *Parser) parseCreateStream() (*ast.CreateStreamClause, error) {
	if _, err := p.expect(token.CREATE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.STREAM); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if p.is(token.Ident) && strings.EqualFold(p.cur().Text, "AS") {
		p.advance()
	}
	q, err := p.parseQuery(false)
	if err != nil {
		return nil, err
	}
	return &ast.CreateStreamClause{Name: name.Text, Query: q}, nil
}

func (p *Parser) parseCreateMaterializedView() (*ast.CreateMaterializedViewClause, error) {
	if _, err := p.expect(token.CREATE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.MATERIALIZED); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.VIEW); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	if p.is(token.Ident) && strings.EqualFold(p.cur().Text, "AS") {
		p.advance()
	}
	q, err := p.parseQuery(false)
	if err != nil {
		return nil, err
	}
	return &ast.CreateMaterializedViewClause{Name: name.Text, Query: q}, nil
}

func (p *Parser) parseRefreshMaterializedView() (*ast.RefreshMaterializedViewClause, error) {
	if _, err := p.expect(token.REFRESH); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.MATERIALIZED); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.VIEW); err != nil {
		return nil, err
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	return &ast.RefreshMaterializedViewClause{Name: name.Text}, nil
}

// ---- Expression parsing: precedence climbing, lowest to highest call ----
//
// primary -> postfix -> unary -> exponent -> multiplicative -> additive
// -> range -> comparison (incl LIKE, IN, REGEX) -> AND -> OR -> ternary/??

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseTernary() }

func (p *Parser) parseTernary() (ast.Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.is(token.NULL_COALESCE) {
		p.advance()
		rhs, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: ast.OpCoalesce, Left: cond, Right: rhs}, nil
	}
	if p.is(token.Question) {
		p.advance()
		thenExpr, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		elseExpr, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &ast.Ternary{Cond: cond, Then: thenExpr, Else: elseExpr}, nil
	}
	return cond, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.is(token.OR) || p.is(token.LogicalOr) {
		op := ast.OpOr
		if p.is(token.LogicalOr) {
			op = ast.OpLogicalOr
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.is(token.AND) {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	for {
		not := false
		if p.is(token.NOT) && (p.peek(1).Kind == token.IN || p.peek(1).Kind == token.LIKE) {
			not = true
			p.advance()
		}
		switch p.cur().Kind {
		case token.Eq, token.Assign:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpEq, Left: left, Right: right}
		case token.NotEq:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpNotEq, Left: left, Right: right}
		case token.Lt:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpLt, Left: left, Right: right}
		case token.LtEq:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpLtEq, Left: left, Right: right}
		case token.Gt:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpGt, Left: left, Right: right}
		case token.GtEq:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpGtEq, Left: left, Right: right}
		case token.IN:
			if !p.allowInOperator {
				return left, nil
			}
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			op := ast.OpIn
			if not {
				op = ast.OpNotIn
			}
			left = &ast.BinaryOp{Op: op, Left: left, Right: right}
		case token.LIKE:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			op := ast.OpLike
			if not {
				op = ast.OpNotLike
			}
			left = &ast.BinaryOp{Op: op, Left: left, Right: right}
		case token.REGEX:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpRegex, Left: left, Right: right}
		case token.FuzzyEq:
			p.advance()
			right, err := p.parseRange()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryOp{Op: ast.OpFuzzyEq, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseRange() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.is(token.DotDot) {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &ast.RangeExpr{Start: left, End: right}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.is(token.Plus) || p.is(token.Minus) {
		op := ast.OpAdd
		if p.cur().Kind == token.Minus {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}
	for p.is(token.Star) || p.is(token.Slash) || p.is(token.Percent) {
		var op ast.BinOp
		switch p.cur().Kind {
		case token.Star:
			op = ast.OpMul
		case token.Slash:
			op = ast.OpDiv
		case token.Percent:
			op = ast.OpMod
		}
		p.advance()
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseExponent() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.is(token.Caret) {
		p.advance()
		right, err := p.parseExponent() // right-associative
		if err != nil {
			return nil, err
		}
		return &ast.BinaryOp{Op: ast.OpPow, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.NOT, token.Bang:
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: ast.UnaryNot, Operand: e}, nil
	case token.Minus:
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: ast.UnaryNeg, Operand: e}, nil
	case token.Tilde:
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Op: ast.UnaryBitNot, Operand: e}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case token.Dot:
			p.advance()
			name, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			e = &ast.FieldAccess{Target: e, Field: name.Text}
		case token.QuestionDot:
			p.advance()
			name, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			e = &ast.FieldAccess{Target: e, Field: name.Text, Optional: true}
		case token.LBracket:
			p.advance()
			if p.is(token.Star) {
				p.advance()
				if _, err := p.expect(token.RBracket); err != nil {
					return nil, err
				}
				var path []string
				for p.is(token.Dot) {
					p.advance()
					name, err := p.expect(token.Ident)
					if err != nil {
						return nil, err
					}
					path = append(path, name.Text)
				}
				e = &ast.ArraySpreadAccess{Target: e, Path: path}
				continue
			}
			prevAllow := p.allowInOperator
			p.allowInOperator = false
			idx, err := p.parseExpr()
			p.allowInOperator = prevAllow
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return nil, err
			}
			e = &ast.ArrayAccess{Target: e, Index: idx}
		case token.Arrow:
			// Only meaningful directly after parsing a would-be lambda
			// parameter list; handled in parsePrimary for `(x) -> body`
			// and bare `x -> body`. Nothing to do here.
			return e, nil
		case token.Pipeline:
			p.advance()
			call, err := p.parseFunctionCallExpr()
			if err != nil {
				return nil, err
			}
			fc, ok := call.(*ast.FunctionCall)
			if !ok {
				return nil, p.errf("pipeline target must be a function call")
			}
			e = &ast.PipelineExpr{Input: e, Call: fc}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur().Kind {
	case token.IntNumber:
		t := p.advance()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal %q", t.Text)
		}
		return &ast.Literal{Value: n}, nil
	case token.Number:
		t := p.advance()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %q", t.Text)
		}
		return &ast.Literal{Value: f}, nil
	case token.StringLit:
		t := p.advance()
		if strings.Contains(t.Text, "${") {
			return p.parseTemplateFromLiteral(t.Text)
		}
		return &ast.Literal{Value: t.Text}, nil
	case token.TRUE:
		p.advance()
		return &ast.Literal{Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.Literal{Value: false}, nil
	case token.NULL:
		p.advance()
		return &ast.Literal{Value: nil}, nil
	case token.BindVar:
		t := p.advance()
		return &ast.BindVariable{Name: t.Text}, nil
	case token.LParen:
		if lam, ok, err := p.tryParseParenLambda(); ok || err != nil {
			return lam, err
		}
		p.advance()
		if p.cur().Kind == token.FOR || p.cur().Kind == token.LET {
			q, err := p.parseQuery(false)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			return &ast.Subquery{Query: q}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return e, nil
	case token.LBracket:
		return p.parseArrayLit()
	case token.LBrace:
		return p.parseObjectLit()
	case token.CASE:
		return p.parseCaseExpr()
	case token.Ident:
		return p.parseIdentPrimary()
	}
	// Keywords double as built-in names when called: FILTER(arr, ...),
	// COUNT(arr), SORT(arr). The clause readings never reach this point
	// since the body loop consumes them first.
	if p.peek(1).Kind == token.LParen && isKeywordName(p.cur().Text) {
		name := p.advance().Text
		return p.parseFunctionCallArgsWithName(name)
	}
	return nil, p.errf("unexpected token %s %q at offset %d", p.cur().Kind, p.cur().Text, p.cur().Pos)
}

// isKeywordName reports whether a token's text looks like a bare word (a
// keyword such as FILTER or COUNT), as opposed to punctuation, so it can
// be reinterpreted as a function name when followed by an argument list.
func isKeywordName(text string) bool {
	if text == "" {
		return false
	}
	for _, c := range text {
		if !(c >= 'A' && c <= 'Z' || c == '_') {
			return false
		}
	}
	return true
}

// tryParseParenLambda speculatively parses `(a, b) -> body`; restores
// position and reports ok=false if the lookahead doesn't pan out.
func (p *Parser) tryParseParenLambda() (ast.Expr, bool, error) {
	save := p.pos
	p.advance() // (
	var params []string
	for p.is(token.Ident) {
		params = append(params, p.advance().Text)
		if p.is(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	if !p.is(token.RParen) || p.peek(1).Kind != token.Arrow {
		p.pos = save
		return nil, false, nil
	}
	p.advance() // )
	p.advance() // ->
	body, err := p.parseExpr()
	if err != nil {
		return nil, true, err
	}
	return &ast.Lambda{Params: params, Body: body}, true, nil
}

func (p *Parser) parseArrayLit() (ast.Expr, error) {
	if _, err := p.expect(token.LBracket); err != nil {
		return nil, err
	}
	lit := &ast.ArrayLit{}
	for !p.is(token.RBracket) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, e)
		if p.is(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBracket); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) parseObjectLit() (ast.Expr, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	lit := &ast.ObjectLit{}
	for !p.is(token.RBrace) {
		var key string
		switch p.cur().Kind {
		case token.Ident:
			key = p.advance().Text
		case token.StringLit:
			key = p.advance().Text
		default:
			return nil, p.errf("expected object key")
		}
		var valExpr ast.Expr
		if p.is(token.Colon) {
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			valExpr = e
		} else {
			// Shorthand `{name}` == `{name: name}`.
			valExpr = &ast.Variable{Name: key}
		}
		lit.Keys = append(lit.Keys, key)
		lit.Values = append(lit.Values, valExpr)
		if p.is(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *Parser) parseCaseExpr() (ast.Expr, error) {
	if _, err := p.expect(token.CASE); err != nil {
		return nil, err
	}
	ce := &ast.CaseExpr{}
	if !p.is(token.WHEN) {
		sw, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Switch = sw
	}
	for p.is(token.WHEN) {
		p.advance()
		when, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.THEN); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, ast.CaseWhen{When: when, Then: then})
	}
	if p.is(token.ELSE) {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = e
	}
	if _, err := p.expect(token.END); err != nil {
		return nil, err
	}
	return ce, nil
}

func (p *Parser) parseIdentPrimary() (ast.Expr, error) {
	name := p.advance().Text
	if p.is(token.LParen) {
		return p.parseFunctionCallArgsWithName(name)
	}
	if p.is(token.Arrow) {
		p.advance()
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Lambda{Params: []string{name}, Body: body}, nil
	}
	return &ast.Variable{Name: name}, nil
}

func (p *Parser) parseFunctionCallExpr() (ast.Expr, error) {
	if !p.is(token.Ident) && p.peek(1).Kind == token.LParen && isKeywordName(p.cur().Text) {
		return p.parseFunctionCallArgsWithName(p.advance().Text)
	}
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	return p.parseFunctionCallArgsWithName(name.Text)
}

func (p *Parser) parseFunctionCallArgsWithName(name string) (ast.Expr, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	call := &ast.FunctionCall{Name: name}
	for !p.is(token.RParen) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, e)
		if p.is(token.Comma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return call, nil
}

// parseTemplateFromLiteral splits a string literal containing `${expr}`
// segments into a TemplateString, re-lexing each embedded expression.
func (p *Parser) parseTemplateFromLiteral(text string) (ast.Expr, error) {
	ts := &ast.TemplateString{}
	rest := text
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			if rest != "" {
				ts.Segments = append(ts.Segments, ast.TemplateSegment{Literal: rest})
			}
			break
		}
		if i > 0 {
			ts.Segments = append(ts.Segments, ast.TemplateSegment{Literal: rest[:i]})
		}
		j := strings.Index(rest[i:], "}")
		if j < 0 {
			return nil, p.errf("unterminated template expression in %q", text)
		}
		exprText := rest[i+2 : i+j]
		sub, err := Parse("RETURN " + exprText)
		if err != nil {
			return nil, fmt.Errorf("dbql: template expression %q: %w", exprText, err)
		}
		ts.Segments = append(ts.Segments, ast.TemplateSegment{Expr: sub.Return.Expr})
		rest = rest[i+j+1:]
	}
	return ts, nil
}
