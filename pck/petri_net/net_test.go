package petri_net

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"github.com/stretchr/testify/require"
)

// accepts explores (marking, position) pairs, letting silent transitions
// fire freely, and reports whether the labels lead to the final marking.
func accepts(net *Net, labels ...string) bool {
	type state struct {
		m   Marking
		pos int
	}
	seen := map[string]bool{}
	queue := []state{{net.Initial, 0}}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		key := s.m.Key() + "|" + strconv.Itoa(s.pos)
		if seen[key] {
			continue
		}
		seen[key] = true
		if s.pos == len(labels) && s.m.Equal(net.Final) {
			return true
		}
		for _, t := range net.EnabledTransitions(s.m) {
			switch {
			case t.Silent:
				queue = append(queue, state{net.Fire(s.m, t), s.pos})
			case s.pos < len(labels) && t.Label == labels[s.pos]:
				queue = append(queue, state{net.Fire(s.m, t), s.pos + 1})
			}
		}
	}
	return false
}

func TestFromTree_Language(t *testing.T) {
	tree := process_tree.MustParse("→('a', *(×(→('a', 'b'), →('c', 'd')), τ), ∧('e', 'f'))")
	net := FromTree(tree)

	require.True(t, accepts(net, "a", "a", "b", "e", "f"))
	require.True(t, accepts(net, "a", "c", "d", "a", "b", "f", "e"))
	require.False(t, accepts(net, "a", "e", "f"))
	require.False(t, accepts(net, "a", "a", "b", "b", "e", "f"))
	require.False(t, accepts(net, "a", "a", "b", "e"))
}

func TestFromTree_FallthroughAndEmptyTree(t *testing.T) {
	net := FromTree(process_tree.MustParse("FT('a', 'b')"))
	require.True(t, accepts(net))
	require.True(t, accepts(net, "b", "a", "b"))

	net = FromTree(process_tree.New())
	require.True(t, accepts(net))
	require.False(t, accepts(net, "a"))
}

func TestFromTree_BorderedOrigins(t *testing.T) {
	tree := process_tree.MustParse("→('a', ×('b', τ))")
	net := FromTree(tree)
	root := tree.Root()
	xor := tree.Child(root, 1)

	var statuses []Status
	for _, tr := range net.TransitionsOf(xor) {
		statuses = append(statuses, tr.Origin.Status)
		require.True(t, tr.Silent)
	}
	require.ElementsMatch(t, []Status{Active, Closed}, statuses)

	leaf := net.TransitionsOf(tree.Child(root, 0))
	require.Len(t, leaf, 1)
	require.Equal(t, "a", leaf[0].Label)
	require.Equal(t, Leaf, leaf[0].Origin.Status)

	for _, n := range tree.Preorder(root) {
		_, ok := net.NodePlaces[n]
		require.True(t, ok, tree.Describe(n))
	}
	require.Equal(t, [2]int{0, 1}, net.NodePlaces[root])
}

func TestNet_FireAndIncidence(t *testing.T) {
	net := FromTree(process_tree.MustParse("'a'"))
	require.Len(t, net.Transitions, 1)
	tr := net.Transitions[0]
	require.True(t, net.Enabled(net.Initial, tr))
	m := net.Fire(net.Initial, tr)
	require.True(t, m.Equal(net.Final))
	require.Equal(t, Marking{1, 0}, net.Initial, "fire must not mutate its input")
	require.Equal(t, [][]int{{-1}, {1}}, net.Incidence())
	require.True(t, Marking{1, 1}.Covers(net.Final))
	require.False(t, net.Initial.Covers(net.Final))
}

func TestReachable(t *testing.T) {
	net := FromTree(process_tree.MustParse("∧('a', 'b')"))
	ms, err := net.Reachable(context.Background(), net.Initial, time.Time{}, 0)
	require.NoError(t, err)
	// source, after active, a done, b done, both done, sink
	require.Len(t, ms, 6)

	ms, err = net.Reachable(context.Background(), net.Initial, time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, ms, 3)

	_, err = net.Reachable(context.Background(), net.Initial, time.Now().Add(-time.Second), 0)
	require.True(t, errors.Is(err, errs.ErrTimeout))
}

func TestTraceNet(t *testing.T) {
	net := TraceNet([]string{"a", "b"})
	require.Len(t, net.Places, 3)
	require.True(t, accepts(net, "a", "b"))
	require.False(t, accepts(net, "b", "a"))
}

func TestClone_IsIndependent(t *testing.T) {
	net := FromTree(process_tree.MustParse("→('a', 'b')"))
	cp := net.Clone()
	p := cp.AddPlace("extra")
	cp.AddOutputArc(cp.Transitions[0], p)
	require.Len(t, net.Places, len(cp.Places)-1)
	require.NotEqual(t, len(net.Transitions[0].Post), len(cp.Transitions[0].Post))
}
