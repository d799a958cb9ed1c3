package pattern_mining

import (
	"github.com/jtomasevic/treemine/pck/concurrency_tree"
)

// Occurrence maps every node of a pattern to a node of one tree.
type Occurrence struct {
	Nodes []*concurrency_tree.Node
}

func (o Occurrence) roots(p *Pattern) []*concurrency_tree.Node {
	out := make([]*concurrency_tree.Node, len(p.Roots))
	for i, r := range p.Roots {
		out[i] = o.Nodes[r]
	}
	return out
}

// rootCombo identifies the data nodes the sub-pattern roots are mapped to.
func rootCombo(p *Pattern, o Occurrence) uint64 {
	h := newHash()
	for _, n := range o.roots(p) {
		writeInt64(h, n.ID)
	}
	return h.Sum64()
}

func symbolMatches(n PatternNode, d *concurrency_tree.Node) bool {
	if n.IsLeaf() {
		return d.IsLeaf() && d.Label == n.Label
	}
	return n.Op == d.Op
}

// Match finds every occurrence of p in t from scratch. Mining grows
// occurrences incrementally; Match backs containment checks.
func Match(p *Pattern, t *concurrency_tree.Tree) ([]Occurrence, error) {
	var out []Occurrence
	err := matchAll(p, t, func(o Occurrence) bool {
		out = append(out, o)
		return true
	})
	return out, err
}

// Contains reports whether p occurs in t.
func Contains(p *Pattern, t *concurrency_tree.Tree) (bool, error) {
	found := false
	err := matchAll(p, t, func(Occurrence) bool {
		found = true
		return false
	})
	return found, err
}

func matchAll(p *Pattern, t *concurrency_tree.Tree, yield func(Occurrence) bool) error {
	m := make([]*concurrency_tree.Node, len(p.Nodes))
	var efErr error

	var sub func(i int) bool
	sub = func(i int) bool {
		if i == len(p.Roots) {
			return yield(Occurrence{Nodes: append([]*concurrency_tree.Node(nil), m...)})
		}
		for _, d := range t.Nodes {
			more := embed(p, p.Roots[i], d, m, func() bool {
				if i > 0 {
					ok, err := t.EF(m[p.rightBoundary(i-1)], m[p.leftBoundary(i)])
					if err != nil {
						efErr = err
						return false
					}
					if !ok {
						return true
					}
				}
				return sub(i + 1)
			})
			if !more {
				return false
			}
		}
		return true
	}
	sub(0)
	return efErr
}

// embed maps the pattern subtree at i onto the data subtree at d in every
// possible way, calling next after each complete mapping. It returns false
// as soon as next does.
func embed(p *Pattern, i int, d *concurrency_tree.Node, m []*concurrency_tree.Node, next func() bool) bool {
	n := p.Nodes[i]
	if !symbolMatches(n, d) {
		return true
	}
	m[i] = d
	if len(n.Children) == 0 {
		return next()
	}
	if n.Op == concurrency_tree.Sequence {
		for start := 0; start+len(n.Children) <= len(d.Children); start++ {
			var child func(k int) bool
			child = func(k int) bool {
				if k == len(n.Children) {
					return next()
				}
				return embed(p, n.Children[k], d.Children[start+k], m, func() bool { return child(k + 1) })
			}
			if !child(0) {
				return false
			}
		}
		return true
	}

	used := make([]bool, len(d.Children))
	var child func(k int) bool
	child = func(k int) bool {
		if k == len(n.Children) {
			return next()
		}
		for j, dc := range d.Children {
			if used[j] {
				continue
			}
			used[j] = true
			more := embed(p, n.Children[k], dc, m, func() bool { return child(k + 1) })
			used[j] = false
			if !more {
				return false
			}
		}
		return true
	}
	return child(0)
}

// Contained reports whether p is a sub-pattern of q.
func Contained(p, q *Pattern) (bool, error) {
	return Contains(p, q.Tree())
}
