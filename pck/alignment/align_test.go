package alignment

import (
	"context"
	"errors"
	"testing"

	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"github.com/stretchr/testify/require"
)

const loopTree = "→('a', *(×(→('a', 'b'), →('c', 'd')), τ), →('e', 'f'))"

func visibleMoves(r *Result) []Move {
	var out []Move
	for _, m := range r.Moves {
		if !m.IsTauMove() {
			out = append(out, m)
		}
	}
	return out
}

func TestAlign_FittingTrace(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	res, err := New(config.AlignmentOptions{}).Align(context.Background(), petri_net.FromTree(tree),
		[]string{"a", "a", "b", "c", "d", "e", "f"})
	require.NoError(t, err)
	require.True(t, res.IsFitting())
	require.Less(t, res.Cost, StdModelLogMoveCost)
	require.Equal(t, -1, res.FirstDeviation())
	for _, m := range visibleMoves(res) {
		require.True(t, m.IsSync(), m.String())
		require.True(t, tree.IsVisibleLeaf(m.Node()))
		require.Equal(t, m.LogLabel, tree.Label(m.Node()))
	}
	require.True(t, res.EndMarking.Equal(petri_net.FromTree(tree).Final))
}

func TestAlign_Deviations(t *testing.T) {
	tree := process_tree.MustParse("→('a', ×('b', 'c'))")
	res, err := New(config.AlignmentOptions{}).Align(context.Background(), petri_net.FromTree(tree), []string{"a", "d"})
	require.NoError(t, err)
	require.False(t, res.IsFitting())
	require.GreaterOrEqual(t, res.Cost, 2*StdModelLogMoveCost)
	require.Less(t, res.Cost, 3*StdModelLogMoveCost)

	var logMoves, modelMoves int
	for _, m := range visibleMoves(res) {
		switch {
		case m.IsLogMove():
			logMoves++
			require.Equal(t, "d", m.LogLabel)
			require.Equal(t, 1, m.TraceIndex)
		case m.IsVisibleModelMove():
			modelMoves++
			require.Contains(t, []string{"b", "c"}, m.ModelLabel)
		}
	}
	require.Equal(t, 1, logMoves)
	require.Equal(t, 1, modelMoves)
	require.Len(t, res.Labels(), 3)
	require.Equal(t, "a", res.Labels()[0])
}

func TestAlign_AStarMatchesDijkstra(t *testing.T) {
	cases := []struct {
		tree  string
		trace []string
	}{
		{loopTree, []string{"a", "b", "b", "c", "d", "a", "b", "e", "f"}},
		{loopTree, []string{"a", "e", "f"}},
		{"∧(→('a', 'b', 'c'), →('d', 'e', 'f'))", []string{"d", "a", "b", "f", "e", "c"}},
		{"×(→('a', 'b'), ∧('c', *('d', τ)))", []string{"d", "c", "d", "x"}},
		{"FT('a', 'b')", []string{"b", "b", "a", "c"}},
	}
	astar := New(config.AlignmentOptions{})
	dijkstra := New(config.AlignmentOptions{UseDijkstra: true})
	for _, c := range cases {
		net := petri_net.FromTree(process_tree.MustParse(c.tree))
		r1, err := astar.Align(context.Background(), net, c.trace)
		require.NoError(t, err)
		r2, err := dijkstra.Align(context.Background(), net, c.trace)
		require.NoError(t, err)
		require.Equal(t, r2.Cost, r1.Cost, c.tree)

		sum := 0
		for _, m := range r1.Moves {
			sum += m.Cost
		}
		require.Equal(t, r1.Cost, sum)
	}
}

func TestAlignPrefix(t *testing.T) {
	tree := process_tree.MustParse("→('a', 'b', 'c')")
	net := petri_net.FromTree(tree)
	a := New(config.AlignmentOptions{})

	res, err := a.AlignPrefix(context.Background(), net, []string{"a", "b"})
	require.NoError(t, err)
	require.True(t, res.IsFitting())
	require.False(t, res.EndMarking.Equal(net.Final))

	full, err := a.Align(context.Background(), net, []string{"a", "b"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, full.Cost, StdModelLogMoveCost)

	res, err = a.AlignTrace(context.Background(), tree, event_log.NewFragment(event_log.Prefix, "b"))
	require.NoError(t, err)
	require.False(t, res.IsFitting())
}

func TestAlignInfix_ParallelModel(t *testing.T) {
	tree := process_tree.MustParse("∧(→('a', 'b', 'c'), →('d', 'e', 'f'))")
	for _, opts := range []config.AlignmentOptions{
		{},
		{UseDijkstra: true},
		{ReduceTree: true},
		{InfixStrategy: config.InfixBaseline},
	} {
		res, err := New(opts).AlignInfix(context.Background(), tree, []string{"a", "b", "e"})
		require.NoError(t, err)
		require.Less(t, res.Cost, StdModelLogMoveCost)
		var synced []string
		for _, m := range res.Moves {
			if m.IsSync() {
				synced = append(synced, m.LogLabel)
			}
		}
		require.Equal(t, []string{"a", "b", "e"}, synced)
		require.NotNil(t, res.StartMarking)
		require.NotNil(t, res.Net)
		require.Greater(t, res.AddedTauTransitions, 0)
		for _, m := range res.Moves {
			if m.Transition != nil {
				require.NotEqual(t, "infix_start", m.Transition.Name)
			}
		}
	}
}

func TestAlignInfix_MiddleOfSequence(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	a := New(config.AlignmentOptions{})
	res, err := a.AlignInfix(context.Background(), tree, []string{"d", "a", "b"})
	require.NoError(t, err)
	require.True(t, res.IsFitting())

	res, err = a.AlignInfix(context.Background(), tree, []string{"b", "e", "x"})
	require.NoError(t, err)
	require.False(t, res.IsFitting())
	require.Less(t, res.Cost, 2*StdModelLogMoveCost)
}

func TestAlignInfix_LogMovesOnly(t *testing.T) {
	tree := process_tree.MustParse("→('a', 'b', 'c')")
	net := petri_net.FromTree(tree)
	for _, opts := range []config.AlignmentOptions{
		{},
		{UseDijkstra: true},
		{InfixStrategy: config.InfixBaseline},
	} {
		res, err := New(opts).AlignInfix(context.Background(), tree, []string{"x"})
		require.NoError(t, err)
		moves := visibleMoves(res)
		require.Len(t, moves, 1)
		require.True(t, moves[0].IsLogMove())
		require.Equal(t, "x", moves[0].LogLabel)
		require.True(t, res.StartMarking.Equal(net.Initial))
	}
}

func TestAlignInfix_LogMoveBeforeStart(t *testing.T) {
	tree := process_tree.MustParse("→('a', 'b', 'c')")
	res, err := New(config.AlignmentOptions{}).AlignInfix(context.Background(), tree, []string{"x", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "b", "c"}, res.Labels())
	require.True(t, visibleMoves(res)[0].IsLogMove())
	require.False(t, res.StartMarking.Equal(petri_net.FromTree(tree).Initial))
	for _, m := range res.Moves {
		if m.Transition != nil {
			require.NotEqual(t, "infix_start", m.Transition.Name)
		}
	}
}

func TestAlignPostfix(t *testing.T) {
	tree := process_tree.MustParse("→('a', 'b', 'c')")
	a := New(config.AlignmentOptions{})

	res, err := a.AlignPostfix(context.Background(), tree, []string{"b", "c"})
	require.NoError(t, err)
	require.True(t, res.IsFitting())
	require.True(t, res.EndMarking.Equal(petri_net.FromTree(tree).Final))

	res, err = a.AlignPostfix(context.Background(), tree, []string{"a", "b"})
	require.NoError(t, err)
	require.False(t, res.IsFitting())
	require.GreaterOrEqual(t, res.Cost, StdModelLogMoveCost)

	res, err = New(config.AlignmentOptions{InfixStrategy: config.InfixBaseline}).AlignPostfix(context.Background(), tree, []string{"a", "b"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Cost, StdModelLogMoveCost)
}

func TestAlign_Timeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree := process_tree.MustParse(loopTree)
	a := New(config.AlignmentOptions{})

	res, err := a.Align(ctx, petri_net.FromTree(tree), []string{"a", "e", "f"})
	require.True(t, errors.Is(err, errs.ErrTimeout))
	require.True(t, res.Timeout)
	require.False(t, res.IsFitting())

	res, err = a.AlignInfix(ctx, tree, []string{"e"})
	require.True(t, errors.Is(err, errs.ErrTimeout))
	require.True(t, res.Timeout)
}

func TestModelPath(t *testing.T) {
	tree := process_tree.MustParse("→('a', ×('b', →('c', 'd')))")
	net := petri_net.FromTree(tree)
	res, err := New(config.AlignmentOptions{}).ModelPath(context.Background(), net, net.Initial, net.Final)
	require.NoError(t, err)
	var labels []string
	for _, m := range visibleMoves(res) {
		require.True(t, m.IsVisibleModelMove())
		labels = append(labels, m.ModelLabel)
	}
	require.Equal(t, []string{"a", "b"}, labels)
}

func TestPool_PreservesOrder(t *testing.T) {
	tree := process_tree.MustParse(loopTree)
	log := event_log.Log{
		event_log.NewTrace("a", "a", "b", "e", "f"),
		event_log.NewTrace("a", "x", "e", "f"),
		event_log.NewFragment(event_log.Infix, "c", "d"),
		event_log.NewTrace("a", "c", "d", "a", "b", "e", "f"),
		event_log.NewFragment(event_log.Postfix, "e", "f"),
	}
	want := []bool{true, false, true, true, true}
	for _, size := range []int{1, 3} {
		results := NewPool(New(config.AlignmentOptions{}), size).AlignLog(context.Background(), tree, log)
		require.Len(t, results, len(log))
		for i, r := range results {
			require.NoError(t, r.Error)
			require.True(t, r.Trace.Equal(log[i]))
			require.Equal(t, want[i], r.Result.IsFitting(), r.Trace.String())
		}
	}
}

func TestFitness(t *testing.T) {
	require.Equal(t, 1.0, Fitness(&Result{}, 3, 2))
	require.Equal(t, 0.0, Fitness(&Result{Timeout: true}, 3, 2))
	require.InDelta(t, 0.5, Fitness(&Result{Cost: StdModelLogMoveCost}, 1, StdModelLogMoveCost), 1e-9)
}
