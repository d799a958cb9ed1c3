package petri_net

import (
	"fmt"

	"github.com/jtomasevic/treemine/pck/process_tree"
)

// FromTree translates the whole tree into a transition-bordered net.
func FromTree(t *process_tree.Tree) *Net {
	return FromSubtree(t, t.Root())
}

// FromSubtree translates the subtree rooted at root. Every operator gets an
// active and a closed transition around its sub-net and every leaf a single
// transition. Origins keep the NodeIDs of t.
func FromSubtree(t *process_tree.Tree, root process_tree.NodeID) *Net {
	net := New("tree")
	source := net.AddPlace("source")
	sink := net.AddPlace("sink")
	b := &translator{tree: t, net: net}
	if root == process_tree.None {
		tr := net.AddTransition("empty", "", Origin{Node: process_tree.None})
		net.AddInputArc(source, tr)
		net.AddOutputArc(tr, sink)
	} else {
		b.build(root, source, sink)
	}
	net.Initial = net.Marking(source.ID)
	net.Final = net.Marking(sink.ID)
	return net
}

type translator struct {
	tree *process_tree.Tree
	net  *Net
}

func (b *translator) place(node process_tree.NodeID, role string) *Place {
	return b.net.AddPlace(fmt.Sprintf("n%d.%s", node, role))
}

func (b *translator) transition(node process_tree.NodeID, status Status, label string) *Transition {
	return b.net.AddTransition(fmt.Sprintf("n%d.%s", node, status), label, Origin{Node: node, Status: status})
}

func (b *translator) build(n process_tree.NodeID, in, out *Place) {
	b.net.NodePlaces[n] = [2]int{in.ID, out.ID}
	t := b.tree

	if t.IsLeaf(n) {
		label := ""
		if t.IsVisibleLeaf(n) {
			label = t.Label(n)
		}
		tr := b.transition(n, Leaf, label)
		b.net.AddInputArc(in, tr)
		b.net.AddOutputArc(tr, out)
		return
	}

	active := b.transition(n, Active, "")
	closed := b.transition(n, Closed, "")
	b.net.AddInputArc(in, active)
	b.net.AddOutputArc(closed, out)
	children := t.Children(n)

	if t.Op(n) == process_tree.Parallel {
		for i, c := range children {
			ci := b.place(n, fmt.Sprintf("in%d", i))
			co := b.place(n, fmt.Sprintf("out%d", i))
			b.net.AddOutputArc(active, ci)
			b.net.AddInputArc(co, closed)
			b.build(c, ci, co)
		}
		if len(children) == 0 {
			p := b.place(n, "body")
			b.net.AddOutputArc(active, p)
			b.net.AddInputArc(p, closed)
		}
		return
	}

	start := b.place(n, "start")
	b.net.AddOutputArc(active, start)
	if len(children) == 0 || t.Op(n) == process_tree.Fallthrough {
		// flower: any child, any number of times
		for _, c := range children {
			b.build(c, start, start)
		}
		b.net.AddInputArc(start, closed)
		return
	}

	end := b.place(n, "end")
	b.net.AddInputArc(end, closed)
	switch t.Op(n) {
	case process_tree.Sequence:
		cur := start
		for i, c := range children {
			next := end
			if i < len(children)-1 {
				next = b.place(n, fmt.Sprintf("p%d", i+1))
			}
			b.build(c, cur, next)
			cur = next
		}
	case process_tree.Xor:
		for _, c := range children {
			b.build(c, start, end)
		}
	case process_tree.Loop:
		b.build(children[0], start, end)
		for _, redo := range children[1:] {
			b.build(redo, end, start)
		}
	}
}
