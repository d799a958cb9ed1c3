package concurrency_tree

import (
	"github.com/jtomasevic/treemine/pck/errs"
)

// EFDict maps every node id to the smallest id of a node eventually
// following it. Size() stands for no such node.
func (t *Tree) EFDict() []int { return t.efDict }

// MinFollower is the ef-dict entry of n.
func (t *Tree) MinFollower(n *Node) int { return t.efDict[n.ID] }

// span is a preorder id range of eventually-following nodes. The spans of a
// node are ascending and share their tails with the spans of its ancestors.
type span struct {
	lo, hi int
	next   *span
}

func prependSpan(lo, hi int, next *span) *span {
	if lo > hi {
		return next
	}
	if next != nil && next.lo == hi+1 {
		return &span{lo: lo, hi: next.hi, next: next.next}
	}
	return &span{lo: lo, hi: hi, next: next}
}

// computeEFDict sweeps the nodes once in preorder. Every sequence node hands
// the subtrees right of a child to that child's descendants; the child itself
// skips its direct successor, which only directly follows it.
func (t *Tree) computeEFDict() {
	none := len(t.Nodes)
	last := make([]int, none)
	for i := none - 1; i >= 0; i-- {
		n := t.Nodes[i]
		last[i] = i
		if len(n.Children) > 0 {
			last[i] = last[n.Children[len(n.Children)-1].ID]
		}
	}

	t.efDict = make([]int, none)
	t.followers = make([]*span, none)
	// inherited[n] holds the followers every node strictly below n gets
	// from n and its ancestors.
	inherited := make([]*span, none)
	for _, n := range t.Nodes {
		var up *span
		if n.Parent != nil {
			up = inherited[n.Parent.ID]
		}
		own, below := up, up
		if p := n.Parent; p != nil && p.Op == Sequence && n.RSib != nil {
			own = prependSpan(n.RSib.ID+1, last[p.ID], up)
			below = prependSpan(n.RSib.ID, last[p.ID], up)
		}
		inherited[n.ID] = below
		t.followers[n.ID] = own
		t.efDict[n.ID] = none
		if own != nil {
			t.efDict[n.ID] = own.lo
		}
	}
}

// EF reports whether v eventually follows u: their lowest common ancestor is
// a sequence holding v in a later child than u, and u and v are not two
// neighbouring children of it.
func (t *Tree) EF(u, v *Node) (bool, error) {
	for _, n := range []*Node{u, v} {
		if n.Op == Sequence && len(n.Children) == 0 {
			return false, &errs.UnsupportedPatternError{PatternID: -1, NodeID: n.ID, Msg: "eventually-follows on a sequence without children"}
		}
	}
	if v.ID < t.efDict[u.ID] {
		return false, nil
	}
	for s := t.followers[u.ID]; s != nil && s.lo <= v.ID; s = s.next {
		if v.ID <= s.hi {
			return true, nil
		}
	}
	return false, nil
}
