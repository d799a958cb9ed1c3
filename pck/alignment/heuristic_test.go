package alignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// stallingTree sends the solver into long degenerate pivoting on the trace <a, d, a>.
const stallingTree = "→(→(×('d', 'd', τ), →('c', 'd'), ∧('c', 'a')), ×(→('d', 'c', 'd'), ∧('c', 'a', 'a'), →('c', 'd', 'b')))"

func TestSimplex_ReadBudget(t *testing.T) {
	a := mat.NewDense(1, 3, []float64{1, 1, 1})
	_, _, err := simplex([]float64{1, 2, 100}, &boundedMatrix{m: a, ctx: context.Background(), limit: 100}, []float64{2}, []int{2})
	require.NoError(t, err)

	_, _, err = simplex([]float64{1, 2, 100}, &boundedMatrix{m: a, ctx: context.Background(), limit: 1}, []float64{2}, []int{2})
	require.True(t, errors.Is(err, errLPBudget))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = simplex([]float64{1, 2, 100}, &boundedMatrix{m: a, ctx: ctx, limit: 100}, []float64{2}, []int{2})
	require.True(t, errors.Is(err, errLPBudget))
}

func TestLPHeuristic_Admissible(t *testing.T) {
	tree := process_tree.MustParse(stallingTree)
	net := petri_net.FromTree(tree)
	trace := []string{"a", "d", "a"}

	exact, err := New(config.AlignmentOptions{UseDijkstra: true}).AlignPrefix(context.Background(), net, trace)
	require.NoError(t, err)

	pr := newProduct(net, trace)
	lh := newLPHeuristic(pr, pr.marking(net.Final, len(trace)), true)
	est := lh.solve(context.Background(), time.Time{}, pr.marking(net.Initial, 0))
	require.LessOrEqual(t, est.h, exact.Cost)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, estimate{}, lh.solve(ctx, time.Time{}, pr.marking(net.Initial, 0)))
	require.Equal(t, estimate{}, lh.solve(context.Background(), time.Now().Add(-time.Second), pr.marking(net.Initial, 0)))
}

func TestAlignPrefix_TimeoutDuringHeuristic(t *testing.T) {
	net := petri_net.FromTree(process_tree.MustParse(stallingTree))
	trace := []string{"a", "d", "a"}

	exact, err := New(config.AlignmentOptions{UseDijkstra: true}).AlignPrefix(context.Background(), net, trace)
	require.NoError(t, err)

	started := time.Now()
	res, err := New(config.AlignmentOptions{Timeout: time.Second}).AlignPrefix(context.Background(), net, trace)
	require.Less(t, time.Since(started), 10*time.Second)
	if err != nil {
		require.True(t, errors.Is(err, errs.ErrTimeout), err.Error())
		return
	}
	require.Equal(t, exact.Cost, res.Cost)
}
