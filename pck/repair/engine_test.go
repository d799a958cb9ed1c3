package repair

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"github.com/stretchr/testify/require"
)

const loopTree = "→('a', *(×(→('a', 'b'), →('c', 'd')), τ), →('e', 'f'))"

func requireReplays(t *testing.T, e *Engine, tree *process_tree.Tree, log event_log.Log) {
	t.Helper()
	for _, tr := range log {
		ok, err := e.Aligner().Fits(context.Background(), tree, tr)
		require.NoError(t, err)
		require.True(t, ok, "%s does not replay %s", tree, tr)
	}
}

func TestRepair_FittingTraceKeepsTree(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	e := New(config.RepairOptions{})
	out, err := e.Repair(context.Background(), tree, nil, event_log.NewTrace("a", "c", "d", "e", "f"))
	require.NoError(t, err)
	require.Same(t, tree, out)
	require.Equal(t, loopTree, out.String())
}

func TestRepair_RepeatedActivity(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	log := event_log.Log{
		event_log.NewTrace("a", "b", "c", "d", "a", "b", "e", "f"),
		event_log.NewTrace("a", "b", "b", "c", "d", "a", "b", "e", "f"),
	}
	for _, opts := range []config.RepairOptions{
		{},
		{TryPullingLCADown: true},
		{PoolSize: 4},
	} {
		e := New(opts)
		out, err := e.AddTraces(context.Background(), tree, log)
		require.NoError(t, err)
		requireReplays(t, e, out, log)
		require.Equal(t, loopTree, tree.String(), "input tree must stay untouched")
	}
}

func TestRepair_ArtificialStartEnd(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	previous := event_log.Log{
		event_log.NewTrace("a", "c", "d", "a", "b", "e", "f"),
		event_log.NewTrace("a", "a", "b", "e", "f"),
	}
	tr := event_log.NewTrace("WRENCH", "a", "c", "d", "a", "b", "e", "f", "WRENCH", "WRENCH")
	e := New(config.RepairOptions{AddArtificialStartEnd: true})

	out, err := e.Repair(context.Background(), tree, previous, tr)
	require.NoError(t, err)
	requireReplays(t, e, out, append(previous, tr))
	require.Contains(t, out.String(), "×(τ, 'WRENCH')")
	require.Contains(t, out.String(), "*(τ, 'WRENCH')")
	require.NotContains(t, out.String(), event_log.ArtificialStart)
}

func TestRepair_Fragments(t *testing.T) {
	cases := []struct {
		tree  string
		trace event_log.Trace
		want  string
	}{
		{"→('a', 'b', 'c')", event_log.NewFragment(event_log.Infix, "b", "x", "c"), "→('a', 'b', ×(τ, 'x'), 'c')"},
		{"→('a', 'b', 'c')", event_log.NewFragment(event_log.Prefix, "a", "x"), "→('a', ×(τ, 'x'), 'b', 'c')"},
	}
	e := New(config.RepairOptions{})
	for _, c := range cases {
		out, err := e.Repair(context.Background(), process_tree.MustParse(c.tree), nil, c.trace)
		require.NoError(t, err)
		require.Equal(t, c.want, out.String(), c.trace.String())
		requireReplays(t, e, out, event_log.Log{c.trace, event_log.NewTrace("a", "b", "c")})
	}
}

func TestRepair_OptionalFallbacks(t *testing.T) {
	cases := []struct {
		tree  string
		trace event_log.Trace
		want  string
	}{
		{"→('a', 'b')", event_log.NewTrace("x", "a", "b"), "→(×('x', τ), 'a', 'b')"},
		{"→('a', 'b')", event_log.NewTrace("b"), "→(×('a', τ), 'b')"},
	}
	e := New(config.RepairOptions{})
	for _, c := range cases {
		out, err := e.Repair(context.Background(), process_tree.MustParse(c.tree), nil, c.trace)
		require.NoError(t, err)
		require.Equal(t, c.want, out.String(), c.trace.String())
	}
}

func TestAddTraces_KeepsPreviousTraces(t *testing.T) {
	log := event_log.Log{
		event_log.NewTrace("a", "b"),
		event_log.NewTrace("a", "c", "b"),
		event_log.NewTrace("b", "a"),
		event_log.NewFragment(event_log.Infix, "c", "d"),
		event_log.NewTrace("a", "c", "c", "b"),
	}
	e := New(config.RepairOptions{MaxIterations: 20})
	out, err := e.AddTraces(context.Background(), process_tree.MustParse("→('a', 'b')"), log)
	require.NoError(t, err)
	requireReplays(t, e, out, log)
}

func TestRepair_Timeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(config.RepairOptions{})
	_, err := e.Repair(ctx, process_tree.MustParse(loopTree), nil, event_log.NewTrace("x"))
	require.True(t, errors.Is(err, errs.ErrTimeout))
}

func TestRepair_RepeatedActivityBecomesSubLoop(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	log := event_log.Log{
		event_log.NewTrace("a", "b", "c", "d", "a", "b", "e", "f"),
		event_log.NewTrace("a", "b", "b", "c", "d", "a", "b", "e", "f"),
	}
	e := New(config.RepairOptions{})
	out, err := e.AddTraces(context.Background(), tree, log)
	require.NoError(t, err)
	requireReplays(t, e, out, log)

	// a loop nested in the original loop that runs b twice on its own
	found := false
	for _, n := range out.Preorder(out.Root()) {
		if out.IsLeaf(n) || out.Op(n) != process_tree.Loop || !out.HasLoopAncestor(n) {
			continue
		}
		ok, err := e.Aligner().Fits(context.Background(), out.Subtree(n), event_log.NewTrace("b", "b"))
		require.NoError(t, err)
		found = found || ok
	}
	require.True(t, found, out.String())
}

func TestRepair_InfixOfUnknownActivity(t *testing.T) {
	cases := []struct {
		tree  string
		trace event_log.Trace
	}{
		{"→('a', 'b', 'c')", event_log.NewFragment(event_log.Infix, "x")},
		{"→('a', 'b', 'c')", event_log.NewFragment(event_log.Infix, "x", "b")},
		{"→('a', 'b', 'c')", event_log.NewFragment(event_log.Postfix, "x")},
	}
	e := New(config.RepairOptions{})
	for _, c := range cases {
		out, err := e.Repair(context.Background(), process_tree.MustParse(c.tree), nil, c.trace)
		require.NoError(t, err, c.trace.String())
		requireReplays(t, e, out, event_log.Log{c.trace, event_log.NewTrace("a", "b", "c")})
	}
}

func TestRepair_FragmentWithoutAnchors(t *testing.T) {
	tree := process_tree.MustParse("×(τ, 'a')")
	tr := event_log.NewFragment(event_log.Infix, "x")
	e := New(config.RepairOptions{})

	out, err := e.Repair(context.Background(), tree, nil, tr)
	require.NoError(t, err)
	require.Equal(t, process_tree.Parallel, out.Op(out.Root()), out.String())
	requireReplays(t, e, out, event_log.Log{tr, event_log.NewTrace("a"), event_log.NewTrace()})
}

func TestAddTraces_LPTimeout(t *testing.T) {
	tree := process_tree.MustParse("×(∧(→('d', 'c', 'a'), 'd', →('c', 'd')), 'a', ∧(×('b', 'a'), 'a', *('a', 'b')))")
	log := event_log.Log{
		event_log.NewTrace("c"),
		event_log.NewTrace("b", "b", "a", "b", "d"),
		event_log.NewTrace("d", "c", "b", "c"),
	}
	e := New(config.RepairOptions{Alignment: config.AlignmentOptions{Timeout: time.Second}})

	done := make(chan error, 1)
	go func() {
		_, err := e.AddTraces(context.Background(), tree, log)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			require.True(t, errors.Is(err, errs.ErrTimeout), err.Error())
		}
	case <-time.After(time.Minute):
		t.Fatal("AddTraces did not return")
	}
}
