package process_tree

import "github.com/jtomasevic/treemine/pck/event_log"

// WrapArtificialStartEnd turns T into →(start, T, end).
func WrapArtificialStartEnd(t *Tree) {
	if t.root == None {
		return
	}
	old := t.root
	seq := t.NewOperator(Sequence)
	t.SetRoot(seq)
	t.AddChild(seq, t.NewLeaf(event_log.ArtificialStart))
	t.AddChild(seq, old)
	t.AddChild(seq, t.NewLeaf(event_log.ArtificialEnd))
}

// StripArtificialStartEnd silences the boundary leaves and reduces the tree.
func StripArtificialStartEnd(t *Tree, frozen NodeSet) {
	for _, l := range t.Leaves(t.root) {
		if lbl := t.Label(l); t.IsVisibleLeaf(l) && (lbl == event_log.ArtificialStart || lbl == event_log.ArtificialEnd) {
			t.MakeTau(l)
		}
	}
	Reduce(t, frozen)
}

// LeavesWithLabel returns all visible leaves below n labelled label.
func (t *Tree) LeavesWithLabel(n NodeID, label string) []NodeID {
	var out []NodeID
	for _, l := range t.Leaves(n) {
		if t.IsVisibleLeaf(l) && t.Label(l) == label {
			out = append(out, l)
		}
	}
	return out
}
