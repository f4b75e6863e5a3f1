package query

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownColumn     = errors.New("unknown column")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrTypeMismatch      = errors.New("type mismatch")
)

type ErrorKind string

const (
	KindUnknownColumn     ErrorKind = "UNKNOWN_COLUMN"
	KindInvalidExpression ErrorKind = "INVALID_EXPRESSION"
	KindTypeMismatch      ErrorKind = "TYPE_MISMATCH"
)

// Error is returned by Execute for requests the engine refuses to run.
type Error struct {
	Kind   ErrorKind
	Column string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnknownColumn:
		return e.Kind == KindUnknownColumn
	case ErrInvalidExpression:
		return e.Kind == KindInvalidExpression
	case ErrTypeMismatch:
		return e.Kind == KindTypeMismatch
	}
	return false
}
