package expr

import (
	"errors"
	"fmt"
)

var ErrInvalidExpression = errors.New("invalid expression")

// Error describes why a filter expression was rejected. Column is set when
// the expression referenced a column outside the known schema.
type Error struct {
	Pos    int
	Column string
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid expression at offset %d: %s", e.Pos, e.Msg)
}

func (e *Error) Unwrap() error {
	return ErrInvalidExpression
}

func errorf(pos int, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
