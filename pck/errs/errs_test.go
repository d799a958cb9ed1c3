package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypedErrors_UnwrapToSentinels(t *testing.T) {
	var err error = &ParseError{Input: "->(a", Pos: 4, Msg: "missing )"}
	require.True(t, errors.Is(err, ErrParse))
	require.Contains(t, err.Error(), "at 4")

	err = fmt.Errorf("align trace 3: %w", &TimeoutError{Stage: "prefix alignment", Elapsed: time.Second})
	require.True(t, errors.Is(err, ErrTimeout))
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "prefix alignment", te.Stage)

	err = Invariant("freeze", "subtrees %d and %d overlap", 1, 2)
	require.True(t, errors.Is(err, ErrInvariant))
	require.Equal(t, "freeze: subtrees 1 and 2 overlap", err.Error())

	err = &UnsupportedPatternError{PatternID: 7, NodeID: 2, Msg: "sequence without children"}
	require.True(t, errors.Is(err, ErrUnsupportedPattern))
	require.Contains(t, err.Error(), "pattern 7, node 2")
}
