package expr

import (
	"strings"

	"github.com/duckmesh/tableagent/internal/table"
)

// Row gives positional access to the values of one table row.
type Row interface {
	Value(col int) any
}

type node interface {
	eval(row Row) bool
}

type andNode struct {
	left, right node
}

func (n andNode) eval(row Row) bool {
	return n.left.eval(row) && n.right.eval(row)
}

type orNode struct {
	left, right node
}

func (n orNode) eval(row Row) bool {
	return n.left.eval(row) || n.right.eval(row)
}

type notNode struct {
	inner node
}

func (n notNode) eval(row Row) bool {
	return !n.inner.eval(row)
}

type constNode struct {
	value bool
}

func (n constNode) eval(Row) bool {
	return n.value
}

// operand is either a column reference (col >= 0) or a literal value
// already converted to typ.
type operand struct {
	pos   int
	col   int
	name  string
	typ   table.Type
	value any
	null  bool
}

func (o operand) isColumn() bool {
	return o.col >= 0
}

func (o operand) resolve(row Row) any {
	if o.col >= 0 {
		return row.Value(o.col)
	}
	return o.value
}

type compareNode struct {
	op          string
	left, right operand
}

func (n compareNode) eval(row Row) bool {
	lv := n.left.resolve(row)
	rv := n.right.resolve(row)
	if lv == nil || rv == nil {
		return false
	}
	cmp, ok := table.Compare(lv, rv)
	if !ok {
		return false
	}
	switch n.op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

type boolColumnNode struct {
	col int
}

func (n boolColumnNode) eval(row Row) bool {
	v, ok := row.Value(n.col).(bool)
	return ok && v
}

type nullNode struct {
	col    int
	negate bool
}

func (n nullNode) eval(row Row) bool {
	isNull := row.Value(n.col) == nil
	if n.negate {
		return !isNull
	}
	return isNull
}

type inNode struct {
	col    int
	values []any
	negate bool
}

func (n inNode) eval(row Row) bool {
	v := row.Value(n.col)
	if v == nil {
		return false
	}
	found := false
	for _, candidate := range n.values {
		if cmp, ok := table.Compare(v, candidate); ok && cmp == 0 {
			found = true
			break
		}
	}
	if n.negate {
		return !found
	}
	return found
}

type stringMatchNode struct {
	col    int
	method string
	arg    string
}

func (n stringMatchNode) eval(row Row) bool {
	v, ok := row.Value(n.col).(string)
	if !ok {
		return false
	}
	switch n.method {
	case "contains":
		return strings.Contains(v, n.arg)
	case "starts_with":
		return strings.HasPrefix(v, n.arg)
	case "ends_with":
		return strings.HasSuffix(v, n.arg)
	}
	return false
}
