package process_tree

import "fmt"

type Operator int

const (
	Leaf Operator = iota
	Sequence
	Xor
	Parallel
	Loop
	Fallthrough
)

func (o Operator) Symbol() string {
	switch o {
	case Sequence:
		return "→"
	case Xor:
		return "×"
	case Parallel:
		return "∧"
	case Loop:
		return "*"
	case Fallthrough:
		return "FT"
	default:
		return ""
	}
}

func (o Operator) String() string {
	switch o {
	case Sequence:
		return "sequence"
	case Xor:
		return "xor"
	case Parallel:
		return "parallel"
	case Loop:
		return "loop"
	case Fallthrough:
		return "fallthrough"
	default:
		return "leaf"
	}
}

// Tau is the printed form of a silent leaf.
const Tau = "τ"

// NodeID is the arena index of a node. It is the node's identity: two nodes
// with equal structure are still different nodes.
type NodeID int

const None NodeID = -1

type node struct {
	op       Operator
	label    string
	silent   bool
	parent   NodeID
	children []NodeID
	preorder int
}

// Tree is an arena of nodes. Detached nodes stay in the arena but are no
// longer reachable from the root.
type Tree struct {
	nodes []node
	root  NodeID
}

func New() *Tree {
	return &Tree{root: None}
}

func (t *Tree) add(n node) NodeID {
	n.parent = None
	n.preorder = -1
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) NewOperator(op Operator, children ...NodeID) NodeID {
	id := t.add(node{op: op})
	for _, c := range children {
		t.AddChild(id, c)
	}
	return id
}

func (t *Tree) NewLeaf(label string) NodeID {
	return t.add(node{op: Leaf, label: label})
}

func (t *Tree) NewTau() NodeID {
	return t.add(node{op: Leaf, silent: true})
}

func (t *Tree) Root() NodeID { return t.root }

func (t *Tree) SetRoot(n NodeID) {
	if n != None {
		t.detachFromParent(n)
	}
	t.root = n
}

func (t *Tree) valid(n NodeID) bool { return n >= 0 && int(n) < len(t.nodes) }

func (t *Tree) Op(n NodeID) Operator { return t.nodes[n].op }

func (t *Tree) Label(n NodeID) string { return t.nodes[n].label }

func (t *Tree) IsLeaf(n NodeID) bool { return t.nodes[n].op == Leaf }

func (t *Tree) IsTau(n NodeID) bool { return t.nodes[n].op == Leaf && t.nodes[n].silent }

func (t *Tree) IsVisibleLeaf(n NodeID) bool { return t.nodes[n].op == Leaf && !t.nodes[n].silent }

func (t *Tree) Parent(n NodeID) NodeID { return t.nodes[n].parent }

// Children returns the ordered children. The slice must not be modified.
func (t *Tree) Children(n NodeID) []NodeID { return t.nodes[n].children }

func (t *Tree) NumChildren(n NodeID) int { return len(t.nodes[n].children) }

func (t *Tree) Child(n NodeID, i int) NodeID { return t.nodes[n].children[i] }

// Index is the position of n among its parent's children, -1 for the root.
func (t *Tree) Index(n NodeID) int {
	p := t.nodes[n].parent
	if p == None {
		return -1
	}
	for i, c := range t.nodes[p].children {
		if c == n {
			return i
		}
	}
	return -1
}

func (t *Tree) SetLabel(n NodeID, label string) {
	t.nodes[n].label = label
	t.nodes[n].silent = false
}

// MakeTau turns a leaf into a silent leaf.
func (t *Tree) MakeTau(n NodeID) {
	t.nodes[n].op = Leaf
	t.nodes[n].label = ""
	t.nodes[n].silent = true
	for _, c := range t.nodes[n].children {
		t.nodes[c].parent = None
	}
	t.nodes[n].children = nil
}

func (t *Tree) AddChild(parent, child NodeID) {
	t.InsertChild(parent, len(t.nodes[parent].children), child)
}

func (t *Tree) InsertChild(parent NodeID, at int, child NodeID) {
	t.detachFromParent(child)
	if t.root == child {
		t.root = None
	}
	cs := t.nodes[parent].children
	if at < 0 || at > len(cs) {
		at = len(cs)
	}
	cs = append(cs, None)
	copy(cs[at+1:], cs[at:])
	cs[at] = child
	t.nodes[parent].children = cs
	t.nodes[child].parent = parent
}

func (t *Tree) RemoveChild(parent, child NodeID) {
	cs := t.nodes[parent].children
	for i, c := range cs {
		if c == child {
			t.nodes[parent].children = append(cs[:i:i], cs[i+1:]...)
			t.nodes[child].parent = None
			return
		}
	}
}

func (t *Tree) detachFromParent(n NodeID) {
	if p := t.nodes[n].parent; p != None {
		t.RemoveChild(p, n)
	}
}

// Detach unlinks n from its parent (or from the root slot).
func (t *Tree) Detach(n NodeID) {
	if t.root == n {
		t.root = None
		return
	}
	t.detachFromParent(n)
}

// Replace puts repl in the position of old. old becomes detached.
func (t *Tree) Replace(old, repl NodeID) {
	if old == repl {
		return
	}
	t.detachFromParent(repl)
	if t.root == repl {
		t.root = None
	}
	p := t.nodes[old].parent
	if p == None {
		if t.root == old {
			t.root = repl
		}
		return
	}
	for i, c := range t.nodes[p].children {
		if c == old {
			t.nodes[p].children[i] = repl
			break
		}
	}
	t.nodes[repl].parent = p
	t.nodes[old].parent = None
}

// SetChildren replaces the full child list of n.
func (t *Tree) SetChildren(n NodeID, children []NodeID) {
	for _, c := range t.nodes[n].children {
		t.nodes[c].parent = None
	}
	t.nodes[n].children = nil
	for _, c := range children {
		t.AddChild(n, c)
	}
}

// Copy returns a deep copy that keeps every NodeID valid and identical.
func (t *Tree) Copy() *Tree {
	out := &Tree{root: t.root, nodes: make([]node, len(t.nodes))}
	for i, n := range t.nodes {
		n.children = append([]NodeID(nil), n.children...)
		out.nodes[i] = n
	}
	return out
}

// Graft copies the subtree of src rooted at n into t and returns the new root.
// The copy is unattached.
func (t *Tree) Graft(src *Tree, n NodeID) NodeID {
	sn := src.nodes[n]
	id := t.add(node{op: sn.op, label: sn.label, silent: sn.silent})
	for _, c := range sn.children {
		t.AddChild(id, t.Graft(src, c))
	}
	return id
}

// Subtree returns a compact standalone copy of the subtree rooted at n.
func (t *Tree) Subtree(n NodeID) *Tree {
	out := New()
	out.root = out.Graft(t, n)
	return out
}

// Compact drops unreachable nodes. NodeIDs are renumbered.
func (t *Tree) Compact() *Tree {
	if t.root == None {
		return New()
	}
	return t.Subtree(t.root)
}

// Contains reports whether n is reachable from the root.
func (t *Tree) Contains(n NodeID) bool {
	if !t.valid(n) || t.root == None {
		return false
	}
	for cur := n; cur != None; cur = t.nodes[cur].parent {
		if cur == t.root {
			return true
		}
	}
	return false
}

// Preorder lists the subtree rooted at n in preorder.
func (t *Tree) Preorder(n NodeID) []NodeID {
	var out []NodeID
	var walk func(NodeID)
	walk = func(x NodeID) {
		out = append(out, x)
		for _, c := range t.nodes[x].children {
			walk(c)
		}
	}
	if n != None {
		walk(n)
	}
	return out
}

// AssignPreorderIDs numbers the reachable nodes 0..n-1 in preorder.
func (t *Tree) AssignPreorderIDs() {
	for i := range t.nodes {
		t.nodes[i].preorder = -1
	}
	for i, n := range t.Preorder(t.root) {
		t.nodes[n].preorder = i
	}
}

func (t *Tree) PreorderID(n NodeID) int { return t.nodes[n].preorder }

func (t *Tree) Size() int { return len(t.Preorder(t.root)) }

// Leaves lists the leaves below n from left to right.
func (t *Tree) Leaves(n NodeID) []NodeID {
	var out []NodeID
	for _, x := range t.Preorder(n) {
		if t.IsLeaf(x) {
			out = append(out, x)
		}
	}
	return out
}

func (t *Tree) VisibleLabels(n NodeID) []string {
	var out []string
	for _, x := range t.Leaves(n) {
		if t.IsVisibleLeaf(x) {
			out = append(out, t.nodes[x].label)
		}
	}
	return out
}

func (t *Tree) Depth(n NodeID) int {
	d := 0
	for cur := t.nodes[n].parent; cur != None; cur = t.nodes[cur].parent {
		d++
	}
	return d
}

// IsAncestor reports whether a is n or one of its ancestors.
func (t *Tree) IsAncestor(a, n NodeID) bool {
	for cur := n; cur != None; cur = t.nodes[cur].parent {
		if cur == a {
			return true
		}
	}
	return false
}

// LCA intersects the parent chains of the given nodes by identity.
func (t *Tree) LCA(nodes ...NodeID) NodeID {
	if len(nodes) == 0 {
		return None
	}
	lca := nodes[0]
	for _, n := range nodes[1:] {
		chain := make(map[NodeID]struct{})
		for cur := lca; cur != None; cur = t.nodes[cur].parent {
			chain[cur] = struct{}{}
		}
		found := None
		for cur := n; cur != None; cur = t.nodes[cur].parent {
			if _, ok := chain[cur]; ok {
				found = cur
				break
			}
		}
		if found == None {
			return None
		}
		lca = found
	}
	return lca
}

// ChildOnPath returns the child of ancestor whose subtree contains n.
func (t *Tree) ChildOnPath(ancestor, n NodeID) NodeID {
	for cur := n; cur != None; cur = t.nodes[cur].parent {
		if t.nodes[cur].parent == ancestor {
			return cur
		}
	}
	return None
}

// HasLoopAncestor reports whether some proper ancestor of n is a loop.
func (t *Tree) HasLoopAncestor(n NodeID) bool {
	for cur := t.nodes[n].parent; cur != None; cur = t.nodes[cur].parent {
		if t.nodes[cur].op == Loop {
			return true
		}
	}
	return false
}

// Equal compares the subtree a of t with the subtree b of o structurally.
func (t *Tree) Equal(a NodeID, o *Tree, b NodeID) bool {
	na, nb := t.nodes[a], o.nodes[b]
	if na.op != nb.op || na.silent != nb.silent || na.label != nb.label || len(na.children) != len(nb.children) {
		return false
	}
	for i := range na.children {
		if !t.Equal(na.children[i], o, nb.children[i]) {
			return false
		}
	}
	return true
}

// EqualTree compares two whole trees structurally.
func EqualTree(a, b *Tree) bool {
	if a.root == None || b.root == None {
		return a.root == b.root
	}
	return a.Equal(a.root, b, b.root)
}

func (t *Tree) Describe(n NodeID) string {
	if n == None {
		return "<none>"
	}
	return fmt.Sprintf("%s#%d", t.Format(n), n)
}
