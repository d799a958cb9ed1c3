package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrParse              = errors.New("parse error")
	ErrTimeout            = errors.New("alignment budget exhausted")
	ErrInvariant          = errors.New("invariant violated")
	ErrUnsupportedPattern = errors.New("unsupported pattern")
)

// ParseError points at the offending position of a textual tree or log.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at %d: %s", e.Input, e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// TimeoutError is returned together with a {Timeout: true} alignment result.
type TimeoutError struct {
	Stage   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Stage, e.Elapsed)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// InvariantError is fatal: callers must not try to recover from it.
type InvariantError struct {
	Where string
	Msg   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Where, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

type UnsupportedPatternError struct {
	PatternID int
	NodeID    int
	Msg       string
}

func (e *UnsupportedPatternError) Error() string {
	return fmt.Sprintf("pattern %d, node %d: %s", e.PatternID, e.NodeID, e.Msg)
}

func (e *UnsupportedPatternError) Unwrap() error { return ErrUnsupportedPattern }

func Invariant(where, format string, args ...any) error {
	return &InvariantError{Where: where, Msg: fmt.Sprintf(format, args...)}
}
