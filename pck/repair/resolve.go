package repair

import (
	"context"
	"fmt"

	"github.com/jtomasevic/treemine/pck/discovery"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

type resolution string

const (
	resolvedFitting       resolution = "fitting"
	resolvedPullDown      resolution = "pull_down"
	resolvedGap           resolution = "gap"
	resolvedLCA           resolution = "lca"
	resolvedFragmentLeaf  resolution = "fragment_leaf"
	resolvedNotEnclosed   resolution = "not_enclosed"
	resolvedOptionalLeaf  resolution = "optional_leaf"
	resolvedOptionalEvent resolution = "optional_event"
	resolvedLastResort    resolution = "last_resort"
)

// step aligns tr, picks the first deviation and changes t around it.
func (e *Engine) step(ctx context.Context, t *process_tree.Tree, previous event_log.Log, tr event_log.Trace) (resolution, error) {
	a, err := e.alignCompleted(ctx, t, tr)
	if err != nil {
		return "", err
	}
	d := a.firstDeviation()
	if d < 0 {
		return resolvedFitting, nil
	}

	left, right := -1, -1
	for i := d - 1; i >= 0; i-- {
		if a.anchor(i) {
			left = i
			break
		}
	}
	for i := d + 1; i < len(a.moves); i++ {
		if a.anchor(i) {
			right = i
			break
		}
	}

	switch {
	case left >= 0 && right >= 0:
		return e.resolveEnclosed(ctx, t, previous, a, d, left, right)
	case tr.Kind != event_log.Full && (left >= 0 || right >= 0):
		resolveFragmentLeaf(t, a, left, right)
		return resolvedFragmentLeaf, nil
	case tr.Kind != event_log.Full:
		wrapParallel(t, discovery.Build(t, [][]string{tr.Activities, {}}))
		return resolvedNotEnclosed, nil
	}
	return resolveOptional(t, a, d, left, right), nil
}

// resolveEnclosed rediscovers the subtree spanned by the two anchors around
// the deviation.
func (e *Engine) resolveEnclosed(ctx context.Context, t *process_tree.Tree, previous event_log.Log,
	a *aligned, d, left, right int) (resolution, error) {
	l, r := a.moves[left].Node(), a.moves[right].Node()
	lca := t.LCA(l, r)
	if lca == process_tree.None {
		return "", fmt.Errorf("repair: anchors %s and %s share no ancestor", t.Describe(l), t.Describe(r))
	}
	if insertGap(t, a, lca, l, r, left, right) {
		return resolvedGap, nil
	}
	if e.opts.TryPullingLCADown && pullDown(t, lca, l, r) {
		return resolvedPullDown, nil
	}

	act, clo := left, right
	if !t.IsLeaf(lca) {
		act, clo = -1, -1
		for i := left; i >= 0; i-- {
			if m := a.moves[i]; m.Node() == lca && m.Status() == petri_net.Active {
				act = i
				break
			}
		}
		for i := right; i < len(a.moves); i++ {
			if m := a.moves[i]; m.Node() == lca && m.Status() == petri_net.Closed {
				clo = i
				break
			}
		}
		if act < 0 || clo < 0 {
			act, clo = left, right
		}
	}

	sub, err := e.subLog(ctx, t, previous, lca)
	if err != nil {
		return "", err
	}
	sub = append(sub, executions(t, a, lca, 0, d)...)
	sub = append(sub, spanLabels(t, a, lca, act, clo))

	e.log.Debug("rediscovering subtree",
		"node", t.Describe(lca),
		"sublog", len(sub),
	)
	t.Replace(lca, discovery.Build(t, sub))
	return resolvedLCA, nil
}

// subLog collects every execution of n in the alignments of the previous
// traces.
func (e *Engine) subLog(ctx context.Context, t *process_tree.Tree, previous event_log.Log, n process_tree.NodeID) ([][]string, error) {
	var out [][]string
	for _, lr := range e.pool.AlignLog(ctx, t, previous) {
		if lr.Error != nil {
			return nil, lr.Error
		}
		a, err := e.complete(ctx, t, lr.Trace, lr.Result)
		if err != nil {
			return nil, err
		}
		out = append(out, executions(t, a, n, 0, len(a.moves))...)
	}
	return out, nil
}

// insertGap handles log moves sitting between two neighbouring children of a
// sequence by inserting an optional subtree between them.
func insertGap(t *process_tree.Tree, a *aligned, lca, l, r process_tree.NodeID, left, right int) bool {
	if t.Op(lca) != process_tree.Sequence || t.IsLeaf(lca) {
		return false
	}
	cl, cr := t.ChildOnPath(lca, l), t.ChildOnPath(lca, r)
	if cl == process_tree.None || cr == process_tree.None || t.Index(cr) != t.Index(cl)+1 {
		return false
	}
	var gap []string
	for i := left + 1; i < right; i++ {
		m := a.moves[i]
		switch {
		case m.IsLogMove():
			gap = append(gap, m.LogLabel)
		case m.IsTauMove():
		default:
			return false
		}
	}
	if len(gap) == 0 {
		return false
	}
	t.InsertChild(lca, t.Index(cr), discovery.Build(t, [][]string{{}, gap}))
	return true
}

// pullDown groups the children of lca holding l and r under a new node of
// the same operator so that the next LCA is smaller.
func pullDown(t *process_tree.Tree, lca, l, r process_tree.NodeID) bool {
	n := t.NumChildren(lca)
	if n <= 2 {
		return false
	}
	cl, cr := t.ChildOnPath(lca, l), t.ChildOnPath(lca, r)
	if cl == process_tree.None || cr == process_tree.None || cl == cr {
		return false
	}
	i, j := t.Index(cl), t.Index(cr)
	if i > j {
		i, j = j, i
	}
	children := append([]process_tree.NodeID(nil), t.Children(lca)...)
	var grouped []process_tree.NodeID
	switch op := t.Op(lca); op {
	case process_tree.Sequence:
		if j-i+1 == n {
			return false
		}
		grouped = children[i : j+1]
	case process_tree.Xor, process_tree.Parallel:
		grouped = []process_tree.NodeID{children[i], children[j]}
	default:
		return false
	}
	group := t.NewOperator(t.Op(lca))
	t.Replace(children[i], group)
	for _, c := range grouped {
		t.AddChild(group, c)
	}
	return true
}

// resolveFragmentLeaf rediscovers the one anchor leaf of a fragment together
// with the deviating moves on its open side.
func resolveFragmentLeaf(t *process_tree.Tree, a *aligned, left, right int) {
	idx, lo, hi := left, left+1, len(a.moves)
	if left < 0 {
		idx, lo, hi = right, 0, right
	}
	leaf := a.moves[idx].Node()
	var slice []string
	for i := lo; i < hi; i++ {
		if lbl, ok := a.label(i); ok {
			slice = append(slice, lbl)
		}
	}
	if left >= 0 {
		slice = append([]string{t.Label(leaf)}, slice...)
	} else {
		slice = append(slice, t.Label(leaf))
	}
	t.Replace(leaf, discovery.Build(t, [][]string{slice, {t.Label(leaf)}}))
}

// resolveOptional handles a complete trace whose deviation has an anchor on
// at most one side.
func resolveOptional(t *process_tree.Tree, a *aligned, d, left, right int) resolution {
	m := a.moves[d]
	if m.IsVisibleModelMove() {
		leaf := m.Node()
		x := t.NewOperator(process_tree.Xor)
		t.Replace(leaf, x)
		t.AddChild(x, leaf)
		t.AddChild(x, t.NewTau())
		return resolvedOptionalLeaf
	}

	optional := t.NewOperator(process_tree.Xor, t.NewLeaf(m.LogLabel), t.NewTau())
	seq := t.NewOperator(process_tree.Sequence)
	switch {
	case right >= 0:
		anchor := a.moves[right].Node()
		t.Replace(anchor, seq)
		t.AddChild(seq, optional)
		t.AddChild(seq, anchor)
	case left >= 0:
		anchor := a.moves[left].Node()
		t.Replace(anchor, seq)
		t.AddChild(seq, anchor)
		t.AddChild(seq, optional)
	default:
		root := t.Root()
		t.SetRoot(seq)
		t.AddChild(seq, optional)
		t.AddChild(seq, root)
	}
	return resolvedOptionalEvent
}
