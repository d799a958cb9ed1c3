package pattern_mining

import (
	"slices"
	"strings"

	"github.com/jtomasevic/treemine/pck/concurrency_tree"
)

// Extension tells how a pattern was derived from its predecessor.
type Extension int

const (
	ExtSeed Extension = iota
	// ExtInner adds a child to a node on the rightmost path of the last
	// sub-pattern.
	ExtInner
	// ExtEF appends a single-node sub-pattern that eventually follows the
	// last one.
	ExtEF
	// ExtWrap puts the last sub-pattern under a new sequence root.
	ExtWrap
	// ExtCombination concatenates a prefix pattern and an infix pattern.
	ExtCombination
)

func (e Extension) String() string {
	switch e {
	case ExtInner:
		return "inner"
	case ExtEF:
		return "ef"
	case ExtWrap:
		return "wrap"
	case ExtCombination:
		return "combination"
	default:
		return "seed"
	}
}

type PatternNode struct {
	Op    concurrency_tree.Operator
	Label string
	// Parent is -1 for sub-pattern roots.
	Parent   int
	Children []int
}

func (n PatternNode) IsLeaf() bool { return n.Op == concurrency_tree.Leaf }

func (n PatternNode) Symbol() string {
	if n.IsLeaf() {
		return n.Label
	}
	return n.Op.Symbol()
}

// Pattern is an ordered list of sub-patterns where each one eventually
// follows the previous. Nodes hold all sub-patterns in preorder and Roots
// indexes their roots.
type Pattern struct {
	ID          int
	Nodes       []PatternNode
	Roots       []int
	Support     int
	Predecessor *Pattern
	Extension   Extension
}

func (p *Pattern) Size() int { return len(p.Nodes) }

// SubPatterns is the number of sub-patterns; a pattern without
// eventually-follows parts has one.
func (p *Pattern) SubPatterns() int { return len(p.Roots) }

// subRange is the half-open node range of sub-pattern i.
func (p *Pattern) subRange(i int) (int, int) {
	end := len(p.Nodes)
	if i+1 < len(p.Roots) {
		end = p.Roots[i+1]
	}
	return p.Roots[i], end
}

func (p *Pattern) last() int { return len(p.Roots) - 1 }

// Valid reports whether every operator node has at least two children.
// Patterns that are not valid only serve as growth states.
func (p *Pattern) Valid() bool {
	for i := range p.Roots {
		if !p.subValid(i) {
			return false
		}
	}
	return true
}

func (p *Pattern) subValid(i int) bool {
	lo, hi := p.subRange(i)
	for k := lo; k < hi; k++ {
		if !p.Nodes[k].IsLeaf() && len(p.Nodes[k].Children) < 2 {
			return false
		}
	}
	return true
}

// rightmostPath lists the nodes from the last root down to the last node.
func (p *Pattern) rightmostPath() []int {
	path := []int{p.Roots[p.last()]}
	for n := p.Nodes[path[0]]; len(n.Children) > 0; n = p.Nodes[path[len(path)-1]] {
		path = append(path, n.Children[len(n.Children)-1])
	}
	return path
}

// leftBoundary is the node a predecessor sub-pattern has to be followed by:
// the first child of a sequence root, the root itself otherwise.
func (p *Pattern) leftBoundary(i int) int {
	r := p.Roots[i]
	if n := p.Nodes[r]; n.Op == concurrency_tree.Sequence && len(n.Children) > 0 {
		return n.Children[0]
	}
	return r
}

func (p *Pattern) rightBoundary(i int) int {
	r := p.Roots[i]
	if n := p.Nodes[r]; n.Op == concurrency_tree.Sequence && len(n.Children) > 0 {
		return n.Children[len(n.Children)-1]
	}
	return r
}

func (p *Pattern) clone() *Pattern {
	c := &Pattern{
		Nodes: make([]PatternNode, len(p.Nodes)),
		Roots: slices.Clone(p.Roots),
	}
	for i, n := range p.Nodes {
		n.Children = slices.Clone(n.Children)
		c.Nodes[i] = n
	}
	return c
}

func seedPattern(op concurrency_tree.Operator, label string) *Pattern {
	return &Pattern{
		Nodes:     []PatternNode{{Op: op, Label: label, Parent: -1}},
		Roots:     []int{0},
		Extension: ExtSeed,
	}
}

// withChild adds a node as the last child of q. q lies on the rightmost path
// so the new node is last in preorder.
func (p *Pattern) withChild(q int, op concurrency_tree.Operator, label string) *Pattern {
	c := p.clone()
	c.Nodes = append(c.Nodes, PatternNode{Op: op, Label: label, Parent: q})
	c.Nodes[q].Children = append(c.Nodes[q].Children, len(c.Nodes)-1)
	c.Predecessor, c.Extension = p, ExtInner
	return c
}

func (p *Pattern) withFollower(op concurrency_tree.Operator, label string) *Pattern {
	c := p.clone()
	c.Nodes = append(c.Nodes, PatternNode{Op: op, Label: label, Parent: -1})
	c.Roots = append(c.Roots, len(c.Nodes)-1)
	c.Predecessor, c.Extension = p, ExtEF
	return c
}

// wrapped inserts a sequence node at the position of the last root and makes
// the old root its only child.
func (p *Pattern) wrapped() *Pattern {
	c := p.clone()
	r := c.Roots[c.last()]
	shift := func(i int) int {
		if i >= r {
			return i + 1
		}
		return i
	}
	for k := r; k < len(c.Nodes); k++ {
		if c.Nodes[k].Parent >= 0 {
			c.Nodes[k].Parent = shift(c.Nodes[k].Parent)
		}
		for j, ch := range c.Nodes[k].Children {
			c.Nodes[k].Children[j] = shift(ch)
		}
	}
	c.Nodes = slices.Insert(c.Nodes, r, PatternNode{Op: concurrency_tree.Sequence, Parent: -1, Children: []int{r + 1}})
	c.Nodes[r+1].Parent = r
	c.Predecessor, c.Extension = p, ExtWrap
	return c
}

// concat appends the sub-patterns of q after those of p.
func concat(p, q *Pattern) *Pattern {
	c := p.clone()
	off := len(c.Nodes)
	for _, n := range q.Nodes {
		if n.Parent >= 0 {
			n.Parent += off
		}
		children := make([]int, len(n.Children))
		for j, ch := range n.Children {
			children[j] = ch + off
		}
		n.Children = children
		c.Nodes = append(c.Nodes, n)
	}
	for _, r := range q.Roots {
		c.Roots = append(c.Roots, r+off)
	}
	c.Predecessor, c.Extension = p, ExtCombination
	return c
}

// withoutSub drops sub-pattern i.
func (p *Pattern) withoutSub(i int) *Pattern {
	lo, hi := p.subRange(i)
	width := hi - lo
	c := &Pattern{}
	fix := func(k int) int {
		if k >= hi {
			return k - width
		}
		return k
	}
	for k, n := range p.Nodes {
		if k >= lo && k < hi {
			continue
		}
		if n.Parent >= 0 {
			n.Parent = fix(n.Parent)
		}
		children := make([]int, len(n.Children))
		for j, ch := range n.Children {
			children[j] = fix(ch)
		}
		n.Children = children
		c.Nodes = append(c.Nodes, n)
	}
	for j, r := range p.Roots {
		if j != i {
			c.Roots = append(c.Roots, fix(r))
		}
	}
	return c
}

func unordered(op concurrency_tree.Operator) bool {
	return op == concurrency_tree.Parallel || op == concurrency_tree.Fallthrough
}

// String prints the sub-patterns in the tree notation separated by "…".
func (p *Pattern) String() string {
	return p.format(false)
}

// Key is String with the children of parallel and fallthrough nodes sorted,
// equal for patterns that only differ in their order.
func (p *Pattern) Key() string {
	return p.format(true)
}

func (p *Pattern) format(canonical bool) string {
	parts := make([]string, len(p.Roots))
	for i, r := range p.Roots {
		parts[i] = p.formatNode(r, canonical)
	}
	return strings.Join(parts, " … ")
}

func (p *Pattern) formatNode(i int, canonical bool) string {
	n := p.Nodes[i]
	if n.IsLeaf() {
		return "'" + n.Label + "'"
	}
	children := make([]string, len(n.Children))
	for k, c := range n.Children {
		children[k] = p.formatNode(c, canonical)
	}
	if canonical && unordered(n.Op) {
		slices.Sort(children)
	}
	return n.Op.Symbol() + "(" + strings.Join(children, ", ") + ")"
}

// Tree renders a pattern as a concurrency tree. Sub-patterns become the
// children of a sequence root, a sequence sub-pattern contributing its
// children, separated by marker leaves so that nothing spans two of them.
// The tree of a pattern contains exactly the patterns contained in it.
func (p *Pattern) Tree() *concurrency_tree.Tree {
	if len(p.Roots) == 1 && p.Nodes[p.Roots[0]].Op != concurrency_tree.Sequence {
		return concurrency_tree.New(p.node(p.Roots[0]), 1)
	}
	root := concurrency_tree.NewOperator(concurrency_tree.Sequence)
	for i, r := range p.Roots {
		if i > 0 {
			root.Children = append(root.Children, concurrency_tree.NewLeaf(efMarker))
		}
		if n := p.Nodes[r]; n.Op == concurrency_tree.Sequence {
			for _, c := range n.Children {
				root.Children = append(root.Children, p.node(c))
			}
			continue
		}
		root.Children = append(root.Children, p.node(r))
	}
	return concurrency_tree.New(root, 1)
}

const efMarker = "\x00ef"

func (p *Pattern) node(i int) *concurrency_tree.Node {
	n := p.Nodes[i]
	if n.IsLeaf() {
		return concurrency_tree.NewLeaf(n.Label)
	}
	out := concurrency_tree.NewOperator(n.Op)
	for _, c := range n.Children {
		out.Children = append(out.Children, p.node(c))
	}
	return out
}
