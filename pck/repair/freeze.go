package repair

import (
	"context"

	"github.com/google/uuid"
	"github.com/jtomasevic/treemine/pck/alignment"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/observability"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const frozenLabelPrefix = "frozen-"

// firingPattern is the set of possible execution counts of a frozen subtree
// inside the subtree it is spliced into.
type firingPattern string

const (
	firedOnce         firingPattern = "once"
	firedOptional     firingPattern = "optional"
	firedRepeated     firingPattern = "repeated"
	firedOptionalLoop firingPattern = "optional_loop"
	firedMissing      firingPattern = "missing"

	// spliced as an optional loop in parallel to the whole tree
	firedAtRoot firingPattern = "root_level"
)

type frozenSubtree struct {
	root      process_tree.NodeID
	members   process_tree.NodeSet
	activated string
	closed    string
}

// RepairFrozen repairs the tree like Repair but keeps the given subtrees
// structurally identical. The returned ids locate the frozen subtrees in the
// repaired tree; a subtree the repair dropped is missing from them unless
// AddMissingFrozenSubtreesAtRootLevel is set.
func (e *Engine) RepairFrozen(ctx context.Context, tree *process_tree.Tree, frozen []process_tree.NodeID,
	previous event_log.Log, tr event_log.Trace) (*process_tree.Tree, []process_tree.NodeID, error) {
	ctx, span := repairTracer.Start(ctx, "Engine.RepairFrozen",
		trace.WithAttributes(
			attribute.String("trace", tr.String()),
			attribute.Int("frozen", len(frozen)),
		),
	)
	defer span.End()

	if err := validateFrozen(tree, frozen); err != nil {
		return nil, nil, err
	}
	if len(frozen) == 0 {
		out, err := e.Repair(ctx, tree, previous, tr)
		return out, nil, err
	}

	original := tree.Copy()
	if e.opts.AddArtificialStartEnd {
		process_tree.WrapArtificialStartEnd(original)
		previous = previous.WithArtificialStartEnd()
		tr = event_log.AddArtificialStartEnd(tr)
	}
	subs := make([]*frozenSubtree, len(frozen))
	for i, f := range frozen {
		id := uuid.NewString()
		subs[i] = &frozenSubtree{
			root:      f,
			members:   process_tree.NewNodeSet(original.Preorder(f)...),
			activated: frozenLabelPrefix + id + "-activated",
			closed:    frozenLabelPrefix + id + "-closed",
		}
	}

	all := append(previous.Clone(), tr)
	moves := make([][]alignment.Move, len(all))
	for i, lr := range e.pool.AlignLog(ctx, original, all) {
		if lr.Error != nil {
			return nil, nil, lr.Error
		}
		moves[i] = lr.Result.Moves
	}
	everySentinel := func(int) bool { return true }
	projected := projectLog(all, moves, subs, everySentinel)

	t := original.Copy()
	for _, s := range subs {
		t.Replace(s.root, t.NewOperator(process_tree.Sequence, t.NewLeaf(s.activated), t.NewLeaf(s.closed)))
	}
	if err := e.repairLoop(ctx, t, projected[:len(previous)], projected[len(previous)]); err != nil {
		return nil, nil, err
	}

	var roots []process_tree.NodeID
	for i, s := range subs {
		g := t.Graft(original, s.root)
		sentinels := append(t.LeavesWithLabel(t.Root(), s.activated), t.LeavesWithLabel(t.Root(), s.closed)...)
		if len(sentinels) == 0 {
			if !e.opts.AddMissingFrozenSubtreesAtRootLevel {
				e.log.Warn("frozen subtree dropped by the repair", "subtree", original.Format(s.root))
				continue
			}
			wrapParallel(t, t.NewOperator(process_tree.Xor, t.NewTau(), g))
			roots = append(roots, g)
			observability.FrozenReinsertionsTotal.WithLabelValues(string(firedMissing)).Inc()
			continue
		}

		lca := tighten(t, t.LCA(sentinels...), sentinels)
		pattern, err := e.firing(ctx, t, lca, s)
		if err != nil {
			return nil, nil, err
		}
		expanded := projectLog(all, moves, subs, func(k int) bool { return k > i })
		candidate, ok, err := e.splice(ctx, t, lca, g, sentinels, pattern, expanded)
		if err != nil {
			return nil, nil, err
		}
		if !ok && pattern != firedOptionalLoop {
			pattern = firedOptionalLoop
			candidate, ok, err = e.splice(ctx, t, lca, g, sentinels, pattern, expanded)
			if err != nil {
				return nil, nil, err
			}
		}
		if !ok {
			e.log.Warn("frozen subtree does not replay every trace after splicing, adding it at root level",
				"subtree", original.Format(s.root),
				"pattern", string(pattern),
			)
			lca, pattern = t.Root(), firedAtRoot
			candidate, ok, err = e.splice(ctx, t, lca, g, sentinels, pattern, expanded)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				return nil, nil, errs.Invariant("repair.frozen", "frozen subtree %s does not replay every trace after splicing",
					original.Format(s.root))
			}
		}
		e.log.Debug("frozen subtree spliced",
			"subtree", original.Format(s.root),
			"pattern", string(pattern),
			"at", candidate.Describe(lca),
		)
		observability.FrozenReinsertionsTotal.WithLabelValues(string(pattern)).Inc()
		t = candidate
		roots = append(roots, g)
	}

	keep := process_tree.NewNodeSet(roots...)
	process_tree.Reduce(t, keep)
	if e.opts.AddArtificialStartEnd {
		process_tree.StripArtificialStartEnd(t, keep)
	}
	span.AddEvent("repaired", trace.WithAttributes(attribute.String("tree", t.String())))
	return compactKeeping(t, roots)
}

func validateFrozen(t *process_tree.Tree, frozen []process_tree.NodeID) error {
	for i, f := range frozen {
		if !t.Contains(f) {
			return errs.Invariant("repair.frozen", "node %d is not part of the tree", f)
		}
		for _, g := range frozen[:i] {
			if t.IsAncestor(f, g) || t.IsAncestor(g, f) {
				return errs.Invariant("repair.frozen", "frozen subtrees %s and %s overlap", t.Describe(f), t.Describe(g))
			}
		}
	}
	return nil
}

// projectLog rewrites every trace through its alignment on the original
// tree. Frozen subtrees selected by sentinel collapse into their two
// sentinel activities, the others contribute the activities they executed.
func projectLog(log event_log.Log, moves [][]alignment.Move, subs []*frozenSubtree, sentinel func(int) bool) event_log.Log {
	out := make(event_log.Log, len(log))
	for i, tr := range log {
		acts := []string{}
		for _, m := range moves[i] {
			k := owner(subs, m.Node())
			if k < 0 || !sentinel(k) {
				if m.IsSync() || m.IsLogMove() {
					acts = append(acts, m.LogLabel)
				}
				continue
			}
			s := subs[k]
			if m.Node() != s.root {
				continue
			}
			switch m.Status() {
			case petri_net.Active:
				acts = append(acts, s.activated)
			case petri_net.Closed:
				acts = append(acts, s.closed)
			case petri_net.Leaf:
				if m.IsSync() {
					acts = append(acts, s.activated, s.closed)
				}
			}
		}
		out[i] = event_log.NewFragment(tr.Kind, acts...)
	}
	return out
}

func owner(subs []*frozenSubtree, n process_tree.NodeID) int {
	if n == process_tree.None {
		return -1
	}
	for i, s := range subs {
		if s.members.Has(n) {
			return i
		}
	}
	return -1
}

// tighten groups the children of a sequence holding the sentinels so that
// the splice point covers nothing else.
func tighten(t *process_tree.Tree, lca process_tree.NodeID, sentinels []process_tree.NodeID) process_tree.NodeID {
	if t.IsLeaf(lca) || t.Op(lca) != process_tree.Sequence {
		return lca
	}
	lo, hi := t.NumChildren(lca), -1
	for _, s := range sentinels {
		idx := t.Index(t.ChildOnPath(lca, s))
		lo, hi = min(lo, idx), max(hi, idx)
	}
	if lo == 0 && hi == t.NumChildren(lca)-1 {
		return lca
	}
	span := append([]process_tree.NodeID(nil), t.Children(lca)[lo:hi+1]...)
	group := t.NewOperator(process_tree.Sequence)
	t.Replace(span[0], group)
	for _, c := range span {
		t.AddChild(group, c)
	}
	return group
}

// firing checks whether the sentinel pair can run zero, one or two times in
// the subtree at n, every other activity silenced.
func (e *Engine) firing(ctx context.Context, t *process_tree.Tree, n process_tree.NodeID, s *frozenSubtree) (firingPattern, error) {
	silenced := t.Subtree(n)
	for _, l := range silenced.Leaves(silenced.Root()) {
		if lbl := silenced.Label(l); silenced.IsVisibleLeaf(l) && lbl != s.activated && lbl != s.closed {
			silenced.MakeTau(l)
		}
	}
	var counts [3]bool
	for k := range counts {
		var acts []string
		for j := 0; j < k; j++ {
			acts = append(acts, s.activated, s.closed)
		}
		ok, err := e.aligner.Fits(ctx, silenced, event_log.NewTrace(acts...))
		if err != nil {
			return "", err
		}
		counts[k] = ok
	}
	zero, one, many := counts[0], counts[1], counts[2]
	switch {
	case one && !zero && !many:
		return firedOnce, nil
	case one && zero && !many:
		return firedOptional, nil
	case one && many && !zero:
		return firedRepeated, nil
	}
	return firedOptionalLoop, nil
}

// splice puts the grafted subtree g in parallel to n on a copy of t, wrapped
// according to the pattern, and checks the copy against the traces.
func (e *Engine) splice(ctx context.Context, t *process_tree.Tree, n, g process_tree.NodeID,
	sentinels []process_tree.NodeID, pattern firingPattern, traces event_log.Log) (*process_tree.Tree, bool, error) {
	c := t.Copy()
	wrapped := g
	switch pattern {
	case firedOptional:
		wrapped = c.NewOperator(process_tree.Xor, c.NewTau(), g)
	case firedRepeated:
		wrapped = c.NewOperator(process_tree.Loop, g, c.NewTau())
	case firedOptionalLoop, firedAtRoot:
		wrapped = c.NewOperator(process_tree.Loop, c.NewTau(), g)
	}
	par := c.NewOperator(process_tree.Parallel)
	c.Replace(n, par)
	c.AddChild(par, n)
	c.AddChild(par, wrapped)
	for _, l := range sentinels {
		c.MakeTau(l)
	}

	for _, tr := range traces {
		ok, err := e.aligner.Fits(ctx, c, tr)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return c, false, nil
		}
	}
	return c, true, nil
}

// compactKeeping compacts the tree and maps the given nodes to their new ids.
// Compact numbers nodes in preorder.
func compactKeeping(t *process_tree.Tree, nodes []process_tree.NodeID) (*process_tree.Tree, []process_tree.NodeID, error) {
	pos := map[process_tree.NodeID]int{}
	for i, n := range t.Preorder(t.Root()) {
		pos[n] = i
	}
	out := make([]process_tree.NodeID, 0, len(nodes))
	for _, n := range nodes {
		i, ok := pos[n]
		if !ok {
			return nil, nil, errs.Invariant("repair.frozen", "frozen subtree %d left the tree", n)
		}
		out = append(out, process_tree.NodeID(i))
	}
	return t.Compact(), out, nil
}
