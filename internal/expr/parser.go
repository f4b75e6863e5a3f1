package expr

import (
	"strconv"
	"strings"

	"github.com/duckmesh/tableagent/internal/table"
)

const (
	maxSourceLength = 4096
	maxDepth        = 64
)

// Predicate is a compiled, validated row filter. It is safe for concurrent use.
type Predicate struct {
	root    node
	columns []string
}

func (p *Predicate) Match(row Row) bool {
	return p.root.eval(row)
}

// Columns lists the referenced columns in order of first appearance.
func (p *Predicate) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Compile parses source against the known fields. Column references resolve
// to positions in fields, so the predicate must be evaluated against rows
// with the same layout.
func Compile(source string, fields []table.Field) (*Predicate, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errorf(0, "expression is empty")
	}
	if len(source) > maxSourceLength {
		return nil, errorf(maxSourceLength, "expression exceeds %d bytes", maxSourceLength)
	}
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, fields: make(map[string]fieldRef, len(fields))}
	for i, field := range fields {
		p.fields[field.Name] = fieldRef{index: i, typ: field.Type}
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.cur(); tok.typ != tokEOF {
		return nil, errorf(tok.pos, "unexpected %s", tok)
	}
	return &Predicate{root: root, columns: p.refs}, nil
}

type fieldRef struct {
	index int
	typ   table.Type
}

type parser struct {
	tokens []token
	pos    int
	fields map[string]fieldRef
	depth  int
	refs   []string
}

func (p *parser) cur() token {
	return p.tokens[p.pos]
}

func (p *parser) peekToken() token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ tokenType) (token, error) {
	tok := p.cur()
	if tok.typ != typ {
		return token{}, errorf(tok.pos, "expected %s, found %s", typ, tok)
	}
	return p.advance(), nil
}

func (p *parser) isKeyword(word string) bool {
	return isKeywordToken(p.cur(), word)
}

func isKeywordToken(tok token, word string) bool {
	return tok.typ == tokIdent && strings.EqualFold(tok.literal, word)
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > maxDepth {
		return errorf(pos, "expression nesting exceeds %d levels", maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().typ == tokOr || p.isKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().typ == tokAnd || p.isKeyword("and") {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if tok := p.cur(); tok.typ == tokNot || p.isKeyword("not") {
		p.advance()
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	if tok := p.cur(); tok.typ == tokLParen {
		p.advance()
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, pred, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if pred != nil {
		return pred, nil
	}

	tok := p.cur()
	switch {
	case tok.typ == tokCompare:
		p.advance()
		right, rightPred, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if rightPred != nil {
			return nil, errorf(tok.pos, "right side of %s must be a value", tok.literal)
		}
		return p.buildCompare(tok, left, right)
	case p.isKeyword("is"):
		p.advance()
		negate := false
		if p.isKeyword("not") {
			p.advance()
			negate = true
		}
		if !p.isKeyword("null") && !p.isKeyword("none") {
			return nil, errorf(p.cur().pos, "expected null after is, found %s", p.cur())
		}
		p.advance()
		if !left.isColumn() {
			return nil, errorf(left.pos, "is null requires a column")
		}
		return nullNode{col: left.col, negate: negate}, nil
	case p.isKeyword("in"):
		p.advance()
		return p.parseIn(left, false)
	case p.isKeyword("not") && isKeywordToken(p.peekToken(), "in"):
		p.advance()
		p.advance()
		return p.parseIn(left, true)
	}

	if left.isColumn() {
		if left.typ != table.TypeBool {
			return nil, errorf(left.pos, "column %q is %s, not bool; compare it with a value", left.name, left.typ)
		}
		return boolColumnNode{col: left.col}, nil
	}
	if value, ok := left.value.(bool); ok {
		return constNode{value: value}, nil
	}
	return nil, errorf(left.pos, "expected a boolean expression")
}

// parseOperand returns either a value operand or, when the operand is a
// column followed by a predicate method, the resulting predicate.
func (p *parser) parseOperand() (operand, node, error) {
	tok := p.cur()
	switch tok.typ {
	case tokNumber:
		p.advance()
		lit, err := numberLiteral(tok)
		return lit, nil, err
	case tokString:
		p.advance()
		return operand{pos: tok.pos, col: -1, typ: table.TypeString, value: tok.literal}, nil, nil
	case tokQuotedIdent:
		p.advance()
		col, err := p.column(tok.literal, tok.pos)
		if err != nil {
			return operand{}, nil, err
		}
		return p.parseMethods(col)
	case tokIdent:
		return p.parseIdentOperand()
	}
	return operand{}, nil, errorf(tok.pos, "unexpected %s", tok)
}

func (p *parser) parseIdentOperand() (operand, node, error) {
	tok := p.cur()
	word := strings.ToLower(tok.literal)
	switch word {
	case "true", "false":
		p.advance()
		return operand{pos: tok.pos, col: -1, typ: table.TypeBool, value: word == "true"}, nil, nil
	case "null", "none":
		p.advance()
		return operand{pos: tok.pos, col: -1, null: true}, nil, nil
	case "and", "or", "not", "is", "in":
		return operand{}, nil, errorf(tok.pos, "unexpected keyword %q", tok.literal)
	}

	next := p.peekToken()
	switch {
	case tok.literal == "pl" && next.typ == tokDot:
		p.advance()
		p.advance()
		fn, err := p.expect(tokIdent)
		if err != nil {
			return operand{}, nil, err
		}
		return p.parseCall(fn)
	case next.typ == tokLParen:
		p.advance()
		return p.parseCall(tok)
	}

	p.advance()
	col, err := p.column(tok.literal, tok.pos)
	if err != nil {
		return operand{}, nil, err
	}
	return p.parseMethods(col)
}

func (p *parser) parseCall(fn token) (operand, node, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return operand{}, nil, err
	}
	switch fn.literal {
	case "col":
		name, err := p.expect(tokString)
		if err != nil {
			return operand{}, nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return operand{}, nil, err
		}
		col, err := p.column(name.literal, name.pos)
		if err != nil {
			return operand{}, nil, err
		}
		return p.parseMethods(col)
	case "lit":
		lit, pred, err := p.parseOperand()
		if err != nil {
			return operand{}, nil, err
		}
		if pred != nil || lit.isColumn() {
			return operand{}, nil, errorf(fn.pos, "lit() takes a literal value")
		}
		if _, err := p.expect(tokRParen); err != nil {
			return operand{}, nil, err
		}
		return lit, nil, nil
	}
	return operand{}, nil, errorf(fn.pos, "function %q is not allowed", fn.literal)
}

func (p *parser) parseMethods(col operand) (operand, node, error) {
	if p.cur().typ != tokDot {
		return col, nil, nil
	}
	p.advance()
	method, err := p.expect(tokIdent)
	if err != nil {
		return operand{}, nil, err
	}

	switch method.literal {
	case "is_null", "is_not_null":
		if err := p.expectEmptyArgs(); err != nil {
			return operand{}, nil, err
		}
		return operand{}, nullNode{col: col.col, negate: method.literal == "is_not_null"}, nil
	case "is_in":
		if _, err := p.expect(tokLParen); err != nil {
			return operand{}, nil, err
		}
		pred, err := p.parseIn(col, false)
		if err != nil {
			return operand{}, nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return operand{}, nil, err
		}
		return operand{}, pred, nil
	case "str":
		if _, err := p.expect(tokDot); err != nil {
			return operand{}, nil, err
		}
		fn, err := p.expect(tokIdent)
		if err != nil {
			return operand{}, nil, err
		}
		switch fn.literal {
		case "contains", "starts_with", "ends_with":
		default:
			return operand{}, nil, errorf(fn.pos, "method str.%s is not allowed", fn.literal)
		}
		if col.typ != table.TypeString {
			return operand{}, nil, errorf(fn.pos, "str.%s requires a string column, %q is %s", fn.literal, col.name, col.typ)
		}
		if _, err := p.expect(tokLParen); err != nil {
			return operand{}, nil, err
		}
		arg, err := p.expect(tokString)
		if err != nil {
			return operand{}, nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return operand{}, nil, err
		}
		return operand{}, stringMatchNode{col: col.col, method: fn.literal, arg: arg.literal}, nil
	}
	return operand{}, nil, errorf(method.pos, "method %q is not allowed", method.literal)
}

func (p *parser) expectEmptyArgs() error {
	if _, err := p.expect(tokLParen); err != nil {
		return err
	}
	_, err := p.expect(tokRParen)
	return err
}

func (p *parser) parseIn(col operand, negate bool) (node, error) {
	if !col.isColumn() {
		return nil, errorf(col.pos, "in requires a column on the left")
	}
	open := p.cur()
	var closing tokenType
	switch open.typ {
	case tokLBracket:
		closing = tokRBracket
	case tokLParen:
		closing = tokRParen
	default:
		return nil, errorf(open.pos, "expected a list, found %s", open)
	}
	p.advance()

	var values []any
	for p.cur().typ != closing {
		if len(values) > 0 {
			if _, err := p.expect(tokComma); err != nil {
				return nil, err
			}
			if p.cur().typ == closing {
				break
			}
		}
		item, pred, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if pred != nil || item.isColumn() || item.null {
			return nil, errorf(item.pos, "list items must be non-null literals")
		}
		converted, err := coerceLiteral(col, item)
		if err != nil {
			return nil, err
		}
		values = append(values, converted.value)
	}
	p.advance()
	return inNode{col: col.col, values: values, negate: negate}, nil
}

func (p *parser) buildCompare(op token, left, right operand) (node, error) {
	if !left.isColumn() && !right.isColumn() {
		return nil, errorf(op.pos, "comparison must reference a column")
	}
	if left.null || right.null {
		col := left
		if !col.isColumn() {
			col = right
		}
		switch op.literal {
		case "==":
			return nullNode{col: col.col}, nil
		case "!=":
			return nullNode{col: col.col, negate: true}, nil
		}
		return nil, errorf(op.pos, "null only supports == and !=")
	}

	if left.isColumn() && right.isColumn() {
		if !comparableTypes(left.typ, right.typ) {
			return nil, errorf(op.pos, "cannot compare %s column %q with %s column %q", left.typ, left.name, right.typ, right.name)
		}
	} else if left.isColumn() {
		lit, err := coerceLiteral(left, right)
		if err != nil {
			return nil, err
		}
		right = lit
	} else {
		lit, err := coerceLiteral(right, left)
		if err != nil {
			return nil, err
		}
		left = lit
	}

	if left.typ == table.TypeBool && op.literal != "==" && op.literal != "!=" {
		return nil, errorf(op.pos, "bool values only support == and !=")
	}
	return compareNode{op: op.literal, left: left, right: right}, nil
}

func comparableTypes(a, b table.Type) bool {
	if a.Numeric() && b.Numeric() {
		return true
	}
	return a == b
}

// coerceLiteral converts lit to a value comparable with col.
func coerceLiteral(col, lit operand) (operand, error) {
	switch {
	case col.typ.Numeric() && lit.typ.Numeric():
		return lit, nil
	case col.typ == table.TypeTimestamp && lit.typ == table.TypeString:
		ts, err := table.ParseTimestamp(lit.value.(string))
		if err != nil {
			return operand{}, errorf(lit.pos, "%q is not a valid timestamp for column %q", lit.value, col.name)
		}
		return operand{pos: lit.pos, col: -1, typ: table.TypeTimestamp, value: ts}, nil
	case col.typ == lit.typ:
		return lit, nil
	}
	return operand{}, errorf(lit.pos, "cannot compare %s column %q with %s literal", col.typ, col.name, lit.typ)
}

func numberLiteral(tok token) (operand, error) {
	if !strings.ContainsAny(tok.literal, ".eE") {
		if v, err := strconv.ParseInt(tok.literal, 10, 64); err == nil {
			return operand{pos: tok.pos, col: -1, typ: table.TypeInt, value: v}, nil
		}
	}
	v, err := strconv.ParseFloat(tok.literal, 64)
	if err != nil {
		return operand{}, errorf(tok.pos, "invalid number %q", tok.literal)
	}
	return operand{pos: tok.pos, col: -1, typ: table.TypeFloat, value: v}, nil
}

func (p *parser) column(name string, pos int) (operand, error) {
	ref, ok := p.fields[name]
	if !ok {
		return operand{}, &Error{Pos: pos, Column: name, Msg: "unknown column " + strconv.Quote(name)}
	}
	seen := false
	for _, existing := range p.refs {
		if existing == name {
			seen = true
			break
		}
	}
	if !seen {
		p.refs = append(p.refs, name)
	}
	return operand{pos: pos, col: ref.index, name: name, typ: ref.typ}, nil
}
