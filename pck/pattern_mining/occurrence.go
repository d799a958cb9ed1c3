package pattern_mining

import (
	"errors"
	"slices"
	"sort"

	"github.com/jtomasevic/treemine/pck/concurrency_tree"
	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/observability"
)

// OccurrenceStore keeps the occurrence lists of the patterns still being
// extended, per tree index.
type OccurrenceStore struct {
	trees      []*concurrency_tree.Tree
	frequency  config.Frequency
	minSupport int
	lists      map[*Pattern]map[int][]Occurrence
	// bySymbol lists the nodes of each tree per symbol in preorder.
	bySymbol []map[string][]*concurrency_tree.Node
}

func NewOccurrenceStore(trees []*concurrency_tree.Tree, frequency config.Frequency, minSupport int) *OccurrenceStore {
	s := &OccurrenceStore{
		trees:      trees,
		frequency:  frequency,
		minSupport: minSupport,
		lists:      map[*Pattern]map[int][]Occurrence{},
		bySymbol:   make([]map[string][]*concurrency_tree.Node, len(trees)),
	}
	for i, t := range trees {
		s.bySymbol[i] = map[string][]*concurrency_tree.Node{}
		for _, n := range t.Nodes {
			s.bySymbol[i][n.Symbol()] = append(s.bySymbol[i][n.Symbol()], n)
		}
	}
	return s
}

// Alphabet lists the symbols of all trees: labels first, then operators.
func (s *OccurrenceStore) Alphabet() []PatternNode {
	type symbol struct {
		op    concurrency_tree.Operator
		label string
	}
	seen := map[symbol]bool{}
	for _, t := range s.trees {
		for _, n := range t.Nodes {
			seen[symbol{op: n.Op, label: n.Label}] = true
		}
	}
	out := make([]PatternNode, 0, len(seen))
	for sym := range seen {
		out = append(out, PatternNode{Op: sym.op, Label: sym.label})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Op != out[j].Op {
			return out[i].Op < out[j].Op
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func (s *OccurrenceStore) Get(p *Pattern) map[int][]Occurrence { return s.lists[p] }

func (s *OccurrenceStore) Discard(p *Pattern) { delete(s.lists, p) }

// Retain drops the lists of every pattern keep rejects.
func (s *OccurrenceStore) Retain(keep func(*Pattern) bool) {
	for p := range s.lists {
		if !keep(p) {
			delete(s.lists, p)
		}
	}
}

func (s *OccurrenceStore) weight(tree int) int {
	if s.frequency.WeighsTraces() {
		return s.trees[tree].NTraces
	}
	return 1
}

// support of p in a single tree under the configured frequency.
func (s *OccurrenceStore) treeSupport(p *Pattern, tree int, occs []Occurrence) int {
	if len(occs) == 0 {
		return 0
	}
	if s.frequency.IsTransaction() {
		return s.weight(tree)
	}
	combos := map[uint64]struct{}{}
	for _, o := range occs {
		combos[rootCombo(p, o)] = struct{}{}
	}
	return len(combos) * s.weight(tree)
}

// Seed computes the occurrences of a single-node pattern.
func (s *OccurrenceStore) Seed(p *Pattern) bool {
	n := p.Nodes[0]
	return s.fill(p, allTrees(len(s.trees)), func(tree int, emit func(Occurrence)) error {
		for _, d := range s.bySymbol[tree][n.Symbol()] {
			if symbolMatches(n, d) {
				emit(Occurrence{Nodes: []*concurrency_tree.Node{d}})
			}
		}
		return nil
	}) == nil && p.Support >= s.minSupport
}

// Extend derives the occurrences of p from those of its predecessor and
// stores them when p is frequent.
func (s *OccurrenceStore) Extend(p *Pattern) (bool, error) {
	pred := s.lists[p.Predecessor]
	if pred == nil {
		return false, errs.Invariant("pattern_mining.occurrences", "no occurrences for the predecessor of %s", p)
	}
	var grow func(tree int, o Occurrence, emit func(Occurrence)) error
	switch p.Extension {
	case ExtInner:
		grow = s.growInner(p)
	case ExtEF:
		grow = s.growFollower(p)
	case ExtWrap:
		grow = s.growWrap(p)
	default:
		return false, errs.Invariant("pattern_mining.occurrences", "cannot extend %s by %s", p, p.Extension)
	}
	err := s.fill(p, sortedTrees(pred), func(tree int, emit func(Occurrence)) error {
		for _, o := range pred[tree] {
			if err := grow(tree, o, emit); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errTerminated) {
		return false, nil
	}
	return err == nil && p.Support >= s.minSupport, err
}

// Combine joins the occurrences of an infix pattern to those of a prefix
// where the infix eventually follows.
func (s *OccurrenceStore) Combine(p, prefix, infix *Pattern) (bool, error) {
	left, right := s.lists[prefix], s.lists[infix]
	var trees []int
	for _, t := range sortedTrees(left) {
		if len(right[t]) > 0 {
			trees = append(trees, t)
		}
	}
	u := prefix.rightBoundary(prefix.last())
	v := infix.leftBoundary(0)
	err := s.fill(p, trees, func(tree int, emit func(Occurrence)) error {
		for _, a := range left[tree] {
			for _, b := range right[tree] {
				ok, err := s.trees[tree].EF(a.Nodes[u], b.Nodes[v])
				if err != nil {
					return withPattern(err, p)
				}
				if ok {
					emit(Occurrence{Nodes: slices.Concat(a.Nodes, b.Nodes)})
				}
			}
		}
		return nil
	})
	if errors.Is(err, errTerminated) {
		return false, nil
	}
	return err == nil && p.Support >= s.minSupport, err
}

var errTerminated = errors.New("support can no longer reach the threshold")

// fill runs the producer on every tree and sets the support of p. Under
// transaction frequencies it stops as soon as the trees left cannot lift the
// support to the threshold.
func (s *OccurrenceStore) fill(p *Pattern, trees []int, produce func(tree int, emit func(Occurrence)) error) error {
	budget := 0
	for _, t := range trees {
		budget += s.weight(t)
	}
	lists := map[int][]Occurrence{}
	p.Support = 0
	for _, t := range trees {
		var occs []Occurrence
		if err := produce(t, func(o Occurrence) { occs = append(occs, o) }); err != nil {
			return err
		}
		budget -= s.weight(t)
		if len(occs) > 0 {
			lists[t] = occs
			p.Support += s.treeSupport(p, t, occs)
		}
		if s.frequency.IsTransaction() && p.Support+budget < s.minSupport {
			p.Support = 0
			observability.OccurrenceListsDiscardedTotal.Inc()
			return errTerminated
		}
	}
	if p.Support >= s.minSupport {
		s.lists[p] = lists
	}
	return nil
}

func (s *OccurrenceStore) growInner(p *Pattern) func(int, Occurrence, func(Occurrence)) error {
	added := len(p.Nodes) - 1
	n := p.Nodes[added]
	q := n.Parent
	siblings := p.Nodes[q].Children[:len(p.Nodes[q].Children)-1]
	sequence := p.Nodes[q].Op == concurrency_tree.Sequence

	return func(_ int, o Occurrence, emit func(Occurrence)) error {
		d := o.Nodes[q]
		var cands []*concurrency_tree.Node
		switch {
		case sequence && len(siblings) > 0:
			if next := o.Nodes[siblings[len(siblings)-1]].RSib; next != nil {
				cands = []*concurrency_tree.Node{next}
			}
		case sequence:
			cands = d.Children
		default:
			for _, c := range d.Children {
				if !slices.ContainsFunc(siblings, func(sib int) bool { return o.Nodes[sib] == c }) {
					cands = append(cands, c)
				}
			}
		}
		for _, c := range cands {
			if symbolMatches(n, c) {
				emit(Occurrence{Nodes: append(slices.Clone(o.Nodes), c)})
			}
		}
		return nil
	}
}

func (s *OccurrenceStore) growFollower(p *Pattern) func(int, Occurrence, func(Occurrence)) error {
	added := len(p.Nodes) - 1
	n := p.Nodes[added]
	u := p.Predecessor.rightBoundary(p.Predecessor.last())

	return func(tree int, o Occurrence, emit func(Occurrence)) error {
		t := s.trees[tree]
		from := o.Nodes[u]
		cands := s.bySymbol[tree][n.Symbol()]
		lo := t.MinFollower(from)
		start := sort.Search(len(cands), func(i int) bool { return cands[i].ID >= lo })
		for _, v := range cands[start:] {
			ok, err := t.EF(from, v)
			if err != nil {
				return withPattern(err, p)
			}
			if ok && symbolMatches(n, v) {
				emit(Occurrence{Nodes: append(slices.Clone(o.Nodes), v)})
			}
		}
		return nil
	}
}

func (s *OccurrenceStore) growWrap(p *Pattern) func(int, Occurrence, func(Occurrence)) error {
	r := p.Roots[p.last()]
	return func(_ int, o Occurrence, emit func(Occurrence)) error {
		parent := o.Nodes[r].Parent
		if parent == nil || parent.Op != concurrency_tree.Sequence {
			return nil
		}
		emit(Occurrence{Nodes: slices.Insert(slices.Clone(o.Nodes), r, parent)})
		return nil
	}
}

func withPattern(err error, p *Pattern) error {
	var up *errs.UnsupportedPatternError
	if errors.As(err, &up) {
		return &errs.UnsupportedPatternError{PatternID: p.ID, NodeID: up.NodeID, Msg: up.Msg}
	}
	return err
}

func allTrees(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func sortedTrees(lists map[int][]Occurrence) []int {
	out := make([]int, 0, len(lists))
	for t := range lists {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
