package pattern_mining

import (
	"context"
	"errors"
	"testing"

	"github.com/jtomasevic/treemine/pck/concurrency_tree"
	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/stretchr/testify/require"
)

var strategies = []config.Strategy{config.Rightmost, config.Combination}

func TestMine_RepeatedActivity(t *testing.T) {
	trees := []*concurrency_tree.Tree{concurrency_tree.FromVariant([]string{"a", "a", "a", "a"}, 8)}
	want := []string{
		"'a'",
		"'a' … 'a'",
		"→('a', 'a')",
		"'a' … →('a', 'a')",
		"→('a', 'a') … 'a'",
		"→('a', 'a', 'a')",
		"→('a', 'a', 'a', 'a')",
	}
	for _, st := range strategies {
		res, err := New(config.MiningOptions{MinSupport: 1, Strategy: st}).Mine(context.Background(), trees)
		require.NoError(t, err)
		require.Equal(t, want, res.Keys(), st)
		for _, p := range res.All() {
			require.Equal(t, 1, p.Support, p.String())
		}

		res, err = New(config.MiningOptions{MinSupport: 8, Frequency: config.TraceTransaction, Strategy: st}).Mine(context.Background(), trees)
		require.NoError(t, err)
		require.Equal(t, want, res.Keys(), st)
		for _, p := range res.All() {
			require.Equal(t, 8, p.Support, p.String())
		}
	}
}

func TestMine_OccurrenceFrequency(t *testing.T) {
	trees := []*concurrency_tree.Tree{concurrency_tree.FromVariant([]string{"a", "a", "a", "a"}, 8)}

	res, err := New(config.MiningOptions{MinSupport: 2, Frequency: config.VariantOccurrence}).Mine(context.Background(), trees)
	require.NoError(t, err)
	require.Equal(t, []string{"'a'", "'a' … 'a'"}, res.Keys())
	require.Equal(t, 4, res[1][0].Support)
	require.Equal(t, 3, res[2][0].Support)

	// every root combination counts once per trace of the variant
	res, err = New(config.MiningOptions{MinSupport: 2, Frequency: config.TraceOccurrence}).Mine(context.Background(), trees)
	require.NoError(t, err)
	require.Len(t, res.Keys(), 7)
	supports := map[string]int{}
	for _, p := range res.All() {
		supports[p.Key()] = p.Support
	}
	require.Equal(t, map[string]int{
		"'a'":                   32,
		"'a' … 'a'":             24,
		"→('a', 'a')":           8,
		"'a' … →('a', 'a')":     8,
		"→('a', 'a') … 'a'":     8,
		"→('a', 'a', 'a')":      8,
		"→('a', 'a', 'a', 'a')": 8,
	}, supports)

	res, err = New(config.MiningOptions{MinSupport: 9, Frequency: config.TraceOccurrence}).Mine(context.Background(), trees)
	require.NoError(t, err)
	require.Equal(t, []string{"'a'", "'a' … 'a'"}, res.Keys())
}

func concurrentTrees() []*concurrency_tree.Tree {
	return []*concurrency_tree.Tree{
		concurrency_tree.MustParse("→('x', ∧('a', 'b'), 'y')"),
		concurrency_tree.MustParse("→('x', ∧('b', 'a', 'c'))"),
		concurrency_tree.MustParse("→('x', 'a', 'y')"),
	}
}

func TestMine_StrategiesAgree(t *testing.T) {
	trees := concurrentTrees()
	for _, minSup := range []int{1, 2, 3} {
		rm, err := New(config.MiningOptions{MinSupport: minSup}).MineRightmost(context.Background(), trees)
		require.NoError(t, err)
		cb, err := New(config.MiningOptions{MinSupport: minSup}).MineCombination(context.Background(), trees)
		require.NoError(t, err)
		require.Equal(t, rm.Keys(), cb.Keys(), "min support %d", minSup)
	}

	res, err := New(config.MiningOptions{MinSupport: 2}).Mine(context.Background(), trees)
	require.NoError(t, err)
	require.Contains(t, res.Keys(), "∧('a', 'b')")
	require.Contains(t, res.Keys(), "→('x', ∧('a', 'b'))")
	require.Contains(t, res.Keys(), "'x' … 'y'")
	require.Contains(t, res.Keys(), "'x' … 'a'")

	res, err = New(config.MiningOptions{MinSupport: 3}).Mine(context.Background(), trees)
	require.NoError(t, err)
	require.NotContains(t, res.Keys(), "'x' … 'a'", "the third tree has x right before a")
	require.Contains(t, res.Keys(), "'x'")
}

func TestMine_SupportMatchesOccurrences(t *testing.T) {
	trees := concurrentTrees()
	for _, freq := range []config.Frequency{config.VariantTransaction, config.VariantOccurrence} {
		m := New(config.MiningOptions{MinSupport: 1, Frequency: freq, MaxSize: 5})
		res, s, err := m.mine(context.Background(), trees, true)
		require.NoError(t, err)
		require.NotZero(t, res.Len())
		for _, p := range res.All() {
			support := 0
			for i, tree := range trees {
				occs, err := Match(p, tree)
				require.NoError(t, err)
				require.Len(t, s.store.Get(p)[i], len(occs), "%s in tree %d", p, i)
				support += s.store.treeSupport(p, i, occs)
			}
			require.Equal(t, support, p.Support, p.String())
			require.LessOrEqual(t, p.Size(), 5)
		}
	}
}

func TestMine_AprioriSound(t *testing.T) {
	trees := concurrentTrees()
	res, err := New(config.MiningOptions{MinSupport: 2}).Mine(context.Background(), trees)
	require.NoError(t, err)
	for _, p := range res.All() {
		require.GreaterOrEqual(t, p.Support, 2)
		for i := 0; i < p.SubPatterns() && p.SubPatterns() > 1; i++ {
			require.Contains(t, res.Keys(), p.withoutSub(i).Key(), "%s without part %d", p, i)
		}
	}
}

func TestMineClosedMaximal(t *testing.T) {
	trees := []*concurrency_tree.Tree{
		concurrency_tree.FromVariant([]string{"a", "b", "c"}, 1),
		concurrency_tree.FromVariant([]string{"a", "b"}, 1),
	}
	for _, st := range strategies {
		closed, maximal, err := New(config.MiningOptions{MinSupport: 1, Strategy: st}).MineClosedMaximal(context.Background(), trees)
		require.NoError(t, err)
		require.Equal(t, []string{"→('a', 'b')", "→('a', 'b', 'c')"}, closed.Keys(), st)
		require.Equal(t, []string{"→('a', 'b', 'c')"}, maximal.Keys(), st)
	}

	res, err := New(config.MiningOptions{MinSupport: 1, ClosedMaximal: true}).Mine(context.Background(), trees)
	require.NoError(t, err)
	require.Equal(t, []string{"→('a', 'b')", "→('a', 'b', 'c')"}, res.Keys())

	single := []*concurrency_tree.Tree{concurrency_tree.FromVariant([]string{"a", "a", "a", "a"}, 8)}
	closed, maximal, err := New(config.MiningOptions{MinSupport: 1}).MineClosedMaximal(context.Background(), single)
	require.NoError(t, err)
	require.Equal(t, []string{"→('a', 'a', 'a', 'a')"}, closed.Keys())
	require.Equal(t, []string{"→('a', 'a', 'a', 'a')"}, maximal.Keys())
}

// closedMaximalByContainment judges every mined pattern against all larger
// mined patterns.
func closedMaximalByContainment(t *testing.T, res Result) (closed, maximal []string) {
	all := res.All()
	for _, p := range all {
		same, frequent := false, false
		for _, q := range all {
			if q.Size() <= p.Size() {
				continue
			}
			ok, err := Contained(p, q)
			require.NoError(t, err)
			if ok {
				frequent = true
				same = same || q.Support == p.Support
			}
		}
		if !same {
			closed = append(closed, p.Key())
		}
		if !frequent {
			maximal = append(maximal, p.Key())
		}
	}
	return closed, maximal
}

func TestMineClosedMaximal_MatchesContainment(t *testing.T) {
	fixtures := [][]*concurrency_tree.Tree{
		concurrentTrees(),
		{
			concurrency_tree.MustParse("→('b', ∧('c', 'b', 'c'), ∧('a', 'a', 'a'))"),
			concurrency_tree.MustParse("∧('b', 'c')"),
			concurrency_tree.MustParse("→('c', 'a')"),
		},
		{
			concurrency_tree.FromVariant([]string{"a", "b", "a", "c"}, 3),
			concurrency_tree.FromVariant([]string{"a", "c"}, 2),
		},
	}
	frequencies := []config.Frequency{
		config.VariantTransaction,
		config.VariantOccurrence,
		config.TraceTransaction,
		config.TraceOccurrence,
	}
	for i, trees := range fixtures {
		for _, f := range frequencies {
			opts := config.MiningOptions{MinSupport: 2, MaxSize: 5, Frequency: f}
			res, err := New(opts).Mine(context.Background(), trees)
			require.NoError(t, err)
			wantClosed, wantMaximal := closedMaximalByContainment(t, res)

			closed, maximal, err := New(opts).MineClosedMaximal(context.Background(), trees)
			require.NoError(t, err)
			require.Equal(t, wantClosed, closed.Keys(), "fixture %d %s", i, f)
			require.Equal(t, wantMaximal, maximal.Keys(), "fixture %d %s", i, f)
		}
	}
}

func TestMineClosedMaximal_UnminedSuperpattern(t *testing.T) {
	trees := []*concurrency_tree.Tree{
		concurrency_tree.MustParse("→('b', ∧('c', 'b', 'c'), ∧('a', 'a', 'a'))"),
		concurrency_tree.MustParse("∧('b', 'c')"),
		concurrency_tree.MustParse("→('c', 'a')"),
	}
	opts := config.MiningOptions{MinSupport: 2, MaxSize: 5, Frequency: config.VariantOccurrence}
	closed, maximal, err := New(opts).MineClosedMaximal(context.Background(), trees)
	require.NoError(t, err)
	// ∧('b', 'c', 'c') … 'a' occurs often enough but is never mined
	require.Contains(t, closed.Keys(), "∧('b', 'c') … 'a'")
	require.Contains(t, maximal.Keys(), "∧('b', 'c') … 'a'")
}

func TestBlanket_ParentOperator(t *testing.T) {
	trees := []*concurrency_tree.Tree{
		concurrency_tree.MustParse("∧('a', 'b')"),
		concurrency_tree.MustParse("→('x', ∧('b', 'a'))"),
	}
	res, s, err := New(config.MiningOptions{MinSupport: 2}).mine(context.Background(), trees, true)
	require.NoError(t, err)
	mined := map[string]*Pattern{}
	for _, p := range res.All() {
		mined[p.Key()] = p
	}
	require.Contains(t, mined, "∧('a', 'b')")

	// only a parent operator extends a single leaf inside a parallel node
	same, frequent := s.blanket(mined["'a'"], mined)
	require.True(t, same)
	require.True(t, frequent)

	delete(mined, "∧('a', 'b')")
	same, frequent = s.blanket(mined["'a'"], mined)
	require.False(t, same)
	require.False(t, frequent)
}

func TestExtendedKey(t *testing.T) {
	p := leaf("a").withFollower(concurrency_tree.Leaf, "c")
	cases := []struct {
		l    locus
		want string
	}{
		{locus{kind: locusFollower, at: 0, label: "x"}, "'x' … 'a' … 'c'"},
		{locus{kind: locusFollower, at: 2, label: "x"}, "'a' … 'c' … 'x'"},
		{locus{kind: locusParent, at: 0, op: concurrency_tree.Parallel, label: "Z"}, "∧('Z', 'a') … 'c'"},
		{locus{kind: locusParent, at: 1, op: concurrency_tree.Sequence, first: true, label: "b"}, "'a' … →('b', 'c')"},
		{locus{kind: locusParent, at: 1, op: concurrency_tree.Sequence, label: "d"}, "'a' … →('c', 'd')"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, p.extendedKey(c.l))
	}

	seq := seedPattern(concurrency_tree.Sequence, "").withChild(0, concurrency_tree.Leaf, "b").withChild(0, concurrency_tree.Leaf, "c")
	require.Equal(t, "→('a', 'b', 'c')", seq.extendedKey(locus{kind: locusLeft, at: 0, label: "a"}))
	require.Equal(t, "→('b', 'c', 'd')", seq.extendedKey(locus{kind: locusRight, at: 0, label: "d"}))

	par := seedPattern(concurrency_tree.Parallel, "").withChild(0, concurrency_tree.Leaf, "c")
	require.Equal(t, "∧('a', 'c')", par.extendedKey(locus{kind: locusChild, at: 0, label: "a"}))
}

func TestOccurrenceStore_EarlyTermination(t *testing.T) {
	trees := concurrentTrees()
	s := NewOccurrenceStore(trees, config.VariantTransaction, 3)
	x := leaf("x")
	require.True(t, s.Seed(x))
	require.Equal(t, 3, x.Support)

	y := x.withFollower(concurrency_tree.Leaf, "y")
	ok, err := s.Extend(y)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, y.Support)
	require.Nil(t, s.Get(y))

	c := leaf("c")
	require.False(t, s.Seed(c))
}

func TestMine_Timeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(config.MiningOptions{}).Mine(ctx, concurrentTrees())
	require.True(t, errors.Is(err, errs.ErrTimeout))
}
