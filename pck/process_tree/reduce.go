package process_tree

// NodeSet is a set of nodes by identity.
type NodeSet map[NodeID]struct{}

func NewNodeSet(ids ...NodeID) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s NodeSet) Has(n NodeID) bool {
	_, ok := s[n]
	return ok
}

// Reduce applies language-preserving rewrites until nothing changes.
// Subtrees rooted at a frozen node are never entered or altered.
func Reduce(t *Tree, frozen NodeSet) {
	if t.root == None {
		return
	}
	for t.reducePass(t.root, frozen) {
	}
}

func (t *Tree) reducePass(n NodeID, frozen NodeSet) bool {
	if frozen.Has(n) || t.IsLeaf(n) {
		return false
	}
	changed := false
	for _, c := range append([]NodeID(nil), t.nodes[n].children...) {
		if t.reducePass(c, frozen) {
			changed = true
		}
	}
	if t.reduceNode(n, frozen) {
		changed = true
	}
	return changed
}

func (t *Tree) reduceNode(n NodeID, frozen NodeSet) bool {
	op := t.nodes[n].op
	switch op {
	case Loop:
		return t.reduceLoop(n)
	case Sequence, Xor, Parallel:
	default:
		return false
	}

	changed := t.flatten(n, frozen)

	switch op {
	case Xor:
		if t.dropRedundantTaus(n, frozen) {
			changed = true
		}
		if t.tauLoopIdentity(n, frozen) {
			return true
		}
	case Sequence, Parallel:
		if t.allTau(n) {
			t.MakeTau(n)
			return true
		}
		if t.dropTaus(n, frozen) {
			changed = true
		}
	}

	switch len(t.nodes[n].children) {
	case 0:
		t.MakeTau(n)
		return true
	case 1:
		t.Replace(n, t.nodes[n].children[0])
		return true
	}
	return changed
}

// flatten merges children carrying the same operator (associativity).
func (t *Tree) flatten(n NodeID, frozen NodeSet) bool {
	op := t.nodes[n].op
	var out []NodeID
	changed := false
	for _, c := range t.nodes[n].children {
		if t.nodes[c].op == op && !frozen.Has(c) {
			out = append(out, t.nodes[c].children...)
			changed = true
			continue
		}
		out = append(out, c)
	}
	if changed {
		t.SetChildren(n, out)
	}
	return changed
}

func (t *Tree) allTau(n NodeID) bool {
	cs := t.nodes[n].children
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !t.IsTau(c) {
			return false
		}
	}
	return true
}

func (t *Tree) dropTaus(n NodeID, frozen NodeSet) bool {
	var out []NodeID
	for _, c := range t.nodes[n].children {
		if t.IsTau(c) && !frozen.Has(c) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == len(t.nodes[n].children) {
		return false
	}
	t.SetChildren(n, out)
	return true
}

func (t *Tree) dropRedundantTaus(n NodeID, frozen NodeSet) bool {
	var out []NodeID
	seenTau := false
	for _, c := range t.nodes[n].children {
		if t.IsTau(c) && !frozen.Has(c) {
			if seenTau {
				continue
			}
			seenTau = true
		}
		out = append(out, c)
	}
	if len(out) == len(t.nodes[n].children) {
		return false
	}
	t.SetChildren(n, out)
	return true
}

// tauLoopIdentity rewrites ×(τ, *(T, τ)) and ×(τ, *(τ, T)) into *(τ, T).
func (t *Tree) tauLoopIdentity(n NodeID, frozen NodeSet) bool {
	cs := t.nodes[n].children
	if len(cs) != 2 {
		return false
	}
	tau, loop := cs[0], cs[1]
	if !t.IsTau(tau) {
		tau, loop = loop, tau
	}
	if !t.IsTau(tau) || t.nodes[loop].op != Loop || frozen.Has(loop) || len(t.nodes[loop].children) != 2 {
		return false
	}
	do, redo := t.nodes[loop].children[0], t.nodes[loop].children[1]
	switch {
	case t.IsTau(do):
	case t.IsTau(redo):
		t.SetChildren(loop, []NodeID{t.NewTau(), do})
	default:
		return false
	}
	t.Replace(n, loop)
	return true
}

// reduceLoop normalizes *(do, r1, r2, ...) into *(do, ×(r1, r2, ...)).
func (t *Tree) reduceLoop(n NodeID) bool {
	cs := t.nodes[n].children
	switch {
	case len(cs) == 0:
		t.MakeTau(n)
		return true
	case len(cs) == 1:
		t.AddChild(n, t.NewTau())
		return true
	case len(cs) >= 3:
		redo := append([]NodeID(nil), cs[1:]...)
		x := t.NewOperator(Xor)
		t.SetChildren(n, []NodeID{cs[0], x})
		for _, r := range redo {
			t.AddChild(x, r)
		}
		return true
	}
	return false
}
