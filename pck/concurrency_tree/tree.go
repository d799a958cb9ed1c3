package concurrency_tree

import (
	"strings"

	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

// Operator of a concurrency tree node. Concurrency trees have no choice, no
// loop and no silent leaves.
type Operator int

const (
	Leaf Operator = iota
	Sequence
	Parallel
	Fallthrough
)

func (o Operator) Symbol() string {
	switch o {
	case Sequence:
		return "→"
	case Parallel:
		return "∧"
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
	case Parallel:
		return "parallel"
	case Fallthrough:
		return "fallthrough"
	default:
		return "leaf"
	}
}

type Node struct {
	// ID is the preorder position, BFSID the breadth-first one.
	ID       int
	BFSID    int
	Depth    int
	Parent   *Node
	Children []*Node
	// RSib is the next sibling, nil for the last child.
	RSib  *Node
	Label string
	Op    Operator
}

func NewLeaf(label string) *Node { return &Node{Label: label, Op: Leaf} }

func NewOperator(op Operator, children ...*Node) *Node {
	return &Node{Op: op, Children: children}
}

func (n *Node) IsLeaf() bool { return n.Op == Leaf }

// Symbol is the label of a leaf and the operator symbol otherwise.
func (n *Node) Symbol() string {
	if n.IsLeaf() {
		return n.Label
	}
	return n.Op.Symbol()
}

func (n *Node) String() string {
	var b strings.Builder
	n.format(&b)
	return b.String()
}

func (n *Node) format(b *strings.Builder) {
	if n.IsLeaf() {
		b.WriteByte('\'')
		b.WriteString(n.Label)
		b.WriteByte('\'')
		return
	}
	b.WriteString(n.Op.Symbol())
	b.WriteByte('(')
	for i, c := range n.Children {
		if i > 0 {
			b.WriteString(", ")
		}
		c.format(b)
	}
	b.WriteByte(')')
}

// Last is the highest preorder id inside the subtree of n.
func (n *Node) Last() int {
	cur := n
	for len(cur.Children) > 0 {
		cur = cur.Children[len(cur.Children)-1]
	}
	return cur.ID
}

// IsAncestor reports whether other is n or lies below it.
func (n *Node) IsAncestor(other *Node) bool {
	return n.ID <= other.ID && other.ID <= n.Last()
}

// Tree is a concurrency tree of one variant. NTraces is the number of traces
// sharing the variant.
type Tree struct {
	Root    *Node
	Nodes   []*Node
	NTraces int

	efDict    []int
	followers []*span
}

// New numbers the nodes below root and precomputes the ef-dict.
func New(root *Node, nTraces int) *Tree {
	t := &Tree{Root: root, NTraces: nTraces}
	if root == nil {
		return t
	}
	var walk func(n, parent *Node, depth int)
	walk = func(n, parent *Node, depth int) {
		n.ID = len(t.Nodes)
		n.Parent = parent
		n.Depth = depth
		n.RSib = nil
		t.Nodes = append(t.Nodes, n)
		for i, c := range n.Children {
			walk(c, n, depth+1)
			if i > 0 {
				n.Children[i-1].RSib = c
			}
		}
	}
	walk(root, nil, 0)

	queue := []*Node{root}
	for bfs := 0; len(queue) > 0; bfs++ {
		n := queue[0]
		queue = queue[1:]
		n.BFSID = bfs
		queue = append(queue, n.Children...)
	}
	t.computeEFDict()
	return t
}

func (t *Tree) String() string {
	if t.Root == nil {
		return ""
	}
	return t.Root.String()
}

func (t *Tree) Size() int { return len(t.Nodes) }

// Parse reads the textual process-tree form restricted to →, ∧ and
// fallthrough operators with visible leaves.
func Parse(s string) (*Tree, error) {
	pt, err := process_tree.Parse(s)
	if err != nil {
		return nil, err
	}
	root, err := convert(pt, pt.Root(), s)
	if err != nil {
		return nil, err
	}
	return New(root, 1), nil
}

func MustParse(s string) *Tree {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FromProcessTree converts a process tree without choices, loops or silent
// leaves.
func FromProcessTree(pt *process_tree.Tree, nTraces int) (*Tree, error) {
	root, err := convert(pt, pt.Root(), pt.String())
	if err != nil {
		return nil, err
	}
	return New(root, nTraces), nil
}

func convert(pt *process_tree.Tree, n process_tree.NodeID, input string) (*Node, error) {
	if n == process_tree.None {
		return nil, nil
	}
	if pt.IsLeaf(n) {
		if pt.IsTau(n) {
			return nil, &errs.ParseError{Input: input, Msg: "silent leaf in concurrency tree"}
		}
		return NewLeaf(pt.Label(n)), nil
	}
	var op Operator
	switch pt.Op(n) {
	case process_tree.Sequence:
		op = Sequence
	case process_tree.Parallel:
		op = Parallel
	case process_tree.Fallthrough:
		op = Fallthrough
	default:
		return nil, &errs.ParseError{Input: input, Msg: pt.Op(n).String() + " operator in concurrency tree"}
	}
	out := NewOperator(op)
	for _, c := range pt.Children(n) {
		child, err := convert(pt, c, input)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}

// FromVariant builds →(a1, ..., an) for a trace, a single leaf for a
// one-activity trace and an empty tree for the empty trace.
func FromVariant(activities []string, nTraces int) *Tree {
	switch len(activities) {
	case 0:
		return New(nil, nTraces)
	case 1:
		return New(NewLeaf(activities[0]), nTraces)
	}
	root := NewOperator(Sequence)
	for _, a := range activities {
		root.Children = append(root.Children, NewLeaf(a))
	}
	return New(root, nTraces)
}

// FromLog turns every non-empty variant of the log into a tree.
func FromLog(log event_log.Log) []*Tree {
	var out []*Tree
	for _, v := range log.Variants() {
		if len(v.Trace.Activities) == 0 {
			continue
		}
		out = append(out, FromVariant(v.Trace.Activities, v.Count))
	}
	return out
}
