package repair

import (
	"context"

	"github.com/jtomasevic/treemine/pck/alignment"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

// aligned is an alignment completed into a run from the initial to the final
// marking. Moves in [from, to) come from the trace, the others are model
// moves leading into and out of a fragment.
type aligned struct {
	moves    []alignment.Move
	from, to int
	result   *alignment.Result
}

func (a *aligned) completion(i int) bool { return i < a.from || i >= a.to }

// label returns the activity a move executes in the completed run.
func (a *aligned) label(i int) (string, bool) {
	m := a.moves[i]
	switch {
	case m.IsSync() || m.IsLogMove():
		return m.LogLabel, true
	case m.IsVisibleModelMove() && a.completion(i):
		return m.ModelLabel, true
	}
	return "", false
}

// anchor is a move fixed to a visible leaf of the tree.
func (a *aligned) anchor(i int) bool {
	m := a.moves[i]
	return m.IsSync() || m.IsVisibleModelMove()
}

// firstDeviation is the absolute index of the first deviation, -1 if the
// trace fits.
func (a *aligned) firstDeviation() int {
	d := a.result.FirstDeviation()
	if d < 0 {
		return -1
	}
	return a.from + d
}

func (e *Engine) alignCompleted(ctx context.Context, t *process_tree.Tree, tr event_log.Trace) (*aligned, error) {
	res, err := e.aligner.AlignTrace(ctx, t, tr)
	if err != nil {
		return nil, err
	}
	return e.complete(ctx, t, tr, res)
}

// complete extends a fragment alignment with the cheapest model runs before
// and after it.
func (e *Engine) complete(ctx context.Context, t *process_tree.Tree, tr event_log.Trace, res *alignment.Result) (*aligned, error) {
	net := res.Net
	if net == nil {
		net = petri_net.FromTree(t)
	}
	var before, after []alignment.Move
	if tr.Kind == event_log.Infix || tr.Kind == event_log.Postfix {
		pre, err := e.aligner.ModelPath(ctx, net, net.Initial, res.StartMarking)
		if err != nil {
			return nil, err
		}
		before = pre.Moves
	}
	if tr.Kind == event_log.Prefix || tr.Kind == event_log.Infix {
		suf, err := e.aligner.ModelPath(ctx, net, res.EndMarking, net.Final)
		if err != nil {
			return nil, err
		}
		after = suf.Moves
	}
	moves := make([]alignment.Move, 0, len(before)+len(res.Moves)+len(after))
	moves = append(moves, before...)
	moves = append(moves, res.Moves...)
	moves = append(moves, after...)
	return &aligned{
		moves:  moves,
		from:   len(before),
		to:     len(before) + len(res.Moves),
		result: res,
	}, nil
}

// inside reports whether move i executes within node n: every log move does,
// model moves only when they belong to n's subtree.
func inside(t *process_tree.Tree, a *aligned, i int, n process_tree.NodeID) bool {
	m := a.moves[i]
	if m.IsLogMove() {
		return true
	}
	node := m.Node()
	return node != process_tree.None && t.Contains(node) && t.IsAncestor(n, node)
}

// spanLabels collects the labels executed inside n between moves lo and hi,
// both included.
func spanLabels(t *process_tree.Tree, a *aligned, n process_tree.NodeID, lo, hi int) []string {
	out := []string{}
	for i := lo; i <= hi && i < len(a.moves); i++ {
		if !inside(t, a, i, n) {
			continue
		}
		if l, ok := a.label(i); ok {
			out = append(out, l)
		}
	}
	return out
}

// executions returns one label sequence per completed execution of n among
// the moves [lo, hi).
func executions(t *process_tree.Tree, a *aligned, n process_tree.NodeID, lo, hi int) [][]string {
	var out [][]string
	if t.IsLeaf(n) {
		for i := lo; i < hi; i++ {
			if a.moves[i].Node() != n {
				continue
			}
			if l, ok := a.label(i); ok {
				out = append(out, []string{l})
			} else if a.moves[i].IsModelMove() {
				out = append(out, []string{})
			}
		}
		return out
	}
	open := false
	var cur []string
	for i := lo; i < hi; i++ {
		m := a.moves[i]
		if m.Node() == n {
			switch m.Status() {
			case petri_net.Active:
				open, cur = true, []string{}
			case petri_net.Closed:
				if open {
					out = append(out, cur)
				}
				open = false
			}
			continue
		}
		if !open || !inside(t, a, i, n) {
			continue
		}
		if l, ok := a.label(i); ok {
			cur = append(cur, l)
		}
	}
	return out
}
