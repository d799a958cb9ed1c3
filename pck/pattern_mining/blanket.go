package pattern_mining

import (
	"context"
	"slices"
	"strings"

	"github.com/jtomasevic/treemine/pck/concurrency_tree"
	"go.opentelemetry.io/otel/attribute"
)

// MineClosedMaximal mines the frequent patterns and keeps the closed ones,
// without a frequent superpattern of equal support, and the maximal ones,
// without a frequent superpattern. Both are judged against the mined set.
//
// The blanket of a pattern settles most of them. Patterns it leaves open are
// decided by scanning the larger mined patterns for containment, which is
// the authoritative path.
func (m *Miner) MineClosedMaximal(ctx context.Context, trees []*concurrency_tree.Tree) (closed, maximal Result, err error) {
	res, s, err := m.mine(ctx, trees, true)
	if err != nil {
		return nil, nil, err
	}
	ctx, span := miningTracer.Start(ctx, "Miner.MineClosedMaximal")
	defer span.End()

	all := res.All()
	mined := make(map[string]*Pattern, len(all))
	for _, p := range all {
		mined[p.Key()] = p
	}
	closed, maximal = Result{}, Result{}
	decided := 0
	for _, p := range all {
		if err := s.interrupted(ctx); err != nil {
			return nil, nil, err
		}
		same, frequent := s.blanket(p, mined)
		if same || frequent {
			decided++
		}
		if !same {
			for _, q := range all {
				if q.Size() <= p.Size() || (frequent && q.Support != p.Support) {
					continue
				}
				ok, err := Contained(p, q)
				if err != nil {
					return nil, nil, err
				}
				if ok {
					frequent = true
					same = same || q.Support == p.Support
					if same {
						break
					}
				}
			}
		}
		if !same {
			closed[p.Size()] = append(closed[p.Size()], p)
		}
		if !frequent {
			maximal[p.Size()] = append(maximal[p.Size()], p)
		}
	}
	span.SetAttributes(
		attribute.Int("closed", closed.Len()),
		attribute.Int("maximal", maximal.Len()),
		attribute.Int("decided_by_blanket", decided),
	)
	m.log.Debug("closed and maximal patterns",
		"frequent", len(all),
		"closed", closed.Len(),
		"maximal", maximal.Len(),
		"decided_by_blanket", decided,
	)
	return closed, maximal, nil
}

type locusKind byte

const (
	// a leaf right after the last child of a sequence node
	locusRight locusKind = iota
	// a leaf right before the first child of a sequence node
	locusLeft
	// a further leaf child of a parallel or fallthrough node
	locusChild
	// a new leaf sub-pattern in front of sub-pattern at, or after the last
	// one when at equals their number
	locusFollower
	// sub-pattern at moves under a new parent node of operator op together
	// with a sibling leaf, before it when first is set
	locusParent
)

// locus is an extension of a pattern by a leaf, or by a parent operator
// holding a leaf.
type locus struct {
	kind  locusKind
	at    int
	op    concurrency_tree.Operator
	first bool
	label string
}

// blanket looks up the superpatterns admitted by the occurrences of p in the
// mined set. A mined one of equal support makes p not closed, any mined one
// makes it not maximal.
func (s *search) blanket(p *Pattern, mined map[string]*Pattern) (sameSupport, frequentSuper bool) {
	if s.m.opts.MaxSize > 0 && p.Size() >= s.m.opts.MaxSize {
		return false, false
	}
	seen := map[locus]bool{}
	for tree, occs := range s.store.Get(p) {
		t := s.store.trees[tree]
		for _, o := range occs {
			for _, l := range s.loci(p, t, o) {
				if seen[l] {
					continue
				}
				seen[l] = true
				q, ok := mined[p.extendedKey(l)]
				if !ok {
					continue
				}
				frequentSuper = true
				if q.Support == p.Support {
					return true, true
				}
			}
		}
	}
	return false, frequentSuper
}

func (s *search) loci(p *Pattern, t *concurrency_tree.Tree, o Occurrence) []locus {
	var out []locus
	owner := make([]int, len(p.Nodes))
	for i := range p.Roots {
		lo, hi := p.subRange(i)
		for k := lo; k < hi; k++ {
			owner[k] = i
		}
	}
	ef := func(u, v *concurrency_tree.Node) bool {
		ok, err := t.EF(u, v)
		return err == nil && ok
	}
	// follows reports whether the sub-pattern at keeps its neighbours with
	// first and last as its new boundaries.
	follows := func(at int, first, last *concurrency_tree.Node) bool {
		return (at == 0 || ef(o.Nodes[p.rightBoundary(at-1)], first)) &&
			(at == p.last() || ef(last, o.Nodes[p.leftBoundary(at+1)]))
	}

	for q, n := range p.Nodes {
		if len(n.Children) == 0 {
			continue
		}
		switch {
		case n.Op == concurrency_tree.Sequence:
			sub := owner[q]
			isRoot := p.Roots[sub] == q
			if next := o.Nodes[n.Children[len(n.Children)-1]].RSib; next != nil && next.IsLeaf() {
				if !isRoot || sub == p.last() || ef(next, o.Nodes[p.leftBoundary(sub+1)]) {
					out = append(out, locus{kind: locusRight, at: q, label: next.Label})
				}
			}
			if prev := leftSibling(o.Nodes[n.Children[0]]); prev != nil && prev.IsLeaf() {
				if !isRoot || sub == 0 || ef(o.Nodes[p.rightBoundary(sub-1)], prev) {
					out = append(out, locus{kind: locusLeft, at: q, label: prev.Label})
				}
			}
		case unordered(n.Op):
			d := o.Nodes[q]
			for _, c := range d.Children {
				if !c.IsLeaf() || mapsTo(o, n.Children, c) {
					continue
				}
				out = append(out, locus{kind: locusChild, at: q, label: c.Label})
			}
		}
	}

	if s.m.opts.MaxSize == 0 || p.Size()+2 <= s.m.opts.MaxSize {
		for i, r := range p.Roots {
			d := o.Nodes[r]
			parent := d.Parent
			if parent == nil {
				continue
			}
			switch {
			case parent.Op == concurrency_tree.Sequence && p.Nodes[r].Op != concurrency_tree.Sequence:
				if next := d.RSib; next != nil && next.IsLeaf() && follows(i, d, next) {
					out = append(out, locus{kind: locusParent, at: i, op: parent.Op, label: next.Label})
				}
				if prev := leftSibling(d); prev != nil && prev.IsLeaf() && follows(i, prev, d) {
					out = append(out, locus{kind: locusParent, at: i, op: parent.Op, first: true, label: prev.Label})
				}
			case unordered(parent.Op):
				if !follows(i, parent, parent) {
					continue
				}
				for _, c := range parent.Children {
					if c != d && c.IsLeaf() {
						out = append(out, locus{kind: locusParent, at: i, op: parent.Op, label: c.Label})
					}
				}
			}
		}
	}

	for _, v := range t.Nodes {
		if !v.IsLeaf() {
			continue
		}
		for at := 0; at <= len(p.Roots); at++ {
			after := at == 0 || ef(o.Nodes[p.rightBoundary(at-1)], v)
			before := at == len(p.Roots) || ef(v, o.Nodes[p.leftBoundary(at)])
			if after && before {
				out = append(out, locus{kind: locusFollower, at: at, label: v.Label})
			}
		}
	}
	return out
}

// extendedKey is the key of p extended at l.
func (p *Pattern) extendedKey(l locus) string {
	leaf := "'" + l.label + "'"
	var parts []string
	for i, r := range p.Roots {
		if l.kind == locusFollower && l.at == i {
			parts = append(parts, leaf)
		}
		sub := p.formatExtended(r, l, leaf)
		if l.kind == locusParent && l.at == i {
			children := []string{sub, leaf}
			switch {
			case unordered(l.op):
				slices.Sort(children)
			case l.first:
				children[0], children[1] = leaf, sub
			}
			sub = l.op.Symbol() + "(" + strings.Join(children, ", ") + ")"
		}
		parts = append(parts, sub)
	}
	if l.kind == locusFollower && l.at == len(p.Roots) {
		parts = append(parts, leaf)
	}
	return strings.Join(parts, " … ")
}

func (p *Pattern) formatExtended(i int, l locus, leaf string) string {
	n := p.Nodes[i]
	if n.IsLeaf() {
		return "'" + n.Label + "'"
	}
	children := make([]string, 0, len(n.Children)+1)
	for _, c := range n.Children {
		children = append(children, p.formatExtended(c, l, leaf))
	}
	if i == l.at {
		switch l.kind {
		case locusRight, locusChild:
			children = append(children, leaf)
		case locusLeft:
			children = append([]string{leaf}, children...)
		}
	}
	if unordered(n.Op) {
		slices.Sort(children)
	}
	return n.Op.Symbol() + "(" + strings.Join(children, ", ") + ")"
}

func mapsTo(o Occurrence, nodes []int, d *concurrency_tree.Node) bool {
	for _, n := range nodes {
		if o.Nodes[n] == d {
			return true
		}
	}
	return false
}

func leftSibling(n *concurrency_tree.Node) *concurrency_tree.Node {
	if n.Parent == nil {
		return nil
	}
	var prev *concurrency_tree.Node
	for _, c := range n.Parent.Children {
		if c == n {
			return prev
		}
		prev = c
	}
	return nil
}
