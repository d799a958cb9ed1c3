package alignment

import (
	"slices"

	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

type moveKind int

const (
	syncMove moveKind = iota
	logMove
	modelMove
)

type productTransition struct {
	id       int
	kind     moveKind
	model    *petri_net.Transition
	traceIdx int
	label    string
	cost     int
	pre      []int
	post     []int
}

func (t *productTransition) move() Move {
	switch t.kind {
	case syncMove:
		return Move{LogLabel: t.label, ModelLabel: t.label, Transition: t.model, TraceIndex: t.traceIdx, Cost: t.cost}
	case logMove:
		return Move{LogLabel: t.label, ModelLabel: Skip, TraceIndex: t.traceIdx, Cost: t.cost}
	}
	label := t.label
	if t.model.Silent {
		label = process_tree.Tau
	}
	return Move{LogLabel: Skip, ModelLabel: label, Transition: t.model, TraceIndex: -1, Cost: t.cost}
}

// product is the synchronous product of a model net and a trace net. Model
// places come first, trace place i sits at offset+i.
type product struct {
	model       *petri_net.Net
	offset      int
	traceLen    int
	transitions []*productTransition
	// consumers[p] lists the transitions with p in their preset
	consumers [][]int
}

func newProduct(model *petri_net.Net, trace []string) *product {
	pr := &product{model: model, offset: len(model.Places), traceLen: len(trace)}
	add := func(t *productTransition) {
		t.id = len(pr.transitions)
		pr.transitions = append(pr.transitions, t)
	}
	for _, mt := range model.Transitions {
		cost := StdModelLogMoveCost
		if mt.Silent {
			cost = TauMoveCost
		}
		add(&productTransition{kind: modelMove, model: mt, traceIdx: -1, label: mt.Label, cost: cost,
			pre: mt.Pre, post: mt.Post})
	}
	for i, a := range trace {
		tp, tq := pr.offset+i, pr.offset+i+1
		add(&productTransition{kind: logMove, traceIdx: i, label: a, cost: StdModelLogMoveCost,
			pre: []int{tp}, post: []int{tq}})
		for _, mt := range model.Transitions {
			if mt.Silent || mt.Label != a {
				continue
			}
			add(&productTransition{kind: syncMove, model: mt, traceIdx: i, label: a, cost: SyncMoveCost,
				pre: append(append([]int(nil), mt.Pre...), tp), post: append(append([]int(nil), mt.Post...), tq)})
		}
	}
	pr.consumers = make([][]int, pr.numPlaces())
	for _, t := range pr.transitions {
		for _, p := range t.pre {
			pr.consumers[p] = append(pr.consumers[p], t.id)
		}
	}
	return pr
}

func (pr *product) numPlaces() int { return pr.offset + pr.traceLen + 1 }

// marking joins a model marking with a token on trace place pos.
func (pr *product) marking(model petri_net.Marking, pos int) petri_net.Marking {
	m := make(petri_net.Marking, pr.numPlaces())
	copy(m, model)
	m[pr.offset+pos] = 1
	return m
}

func (pr *product) modelPart(m petri_net.Marking) petri_net.Marking {
	return append(petri_net.Marking(nil), m[:pr.offset]...)
}

func (pr *product) traceDone(m petri_net.Marking) bool {
	return m[pr.offset+pr.traceLen] > 0
}

// enabled lists the transitions enabled in m, in transition order.
func (pr *product) enabled(m petri_net.Marking) []*productTransition {
	seen := make(map[int]struct{})
	var ids []int
	for p, c := range m {
		if c == 0 {
			continue
		}
		for _, id := range pr.consumers[p] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if pr.isEnabled(m, pr.transitions[id]) {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	out := make([]*productTransition, len(ids))
	for i, id := range ids {
		out[i] = pr.transitions[id]
	}
	return out
}

func (pr *product) isEnabled(m petri_net.Marking, t *productTransition) bool {
	for _, p := range t.pre {
		if m[p] == 0 {
			return false
		}
	}
	return true
}

func (pr *product) fire(m petri_net.Marking, t *productTransition) petri_net.Marking {
	out := m.Clone()
	for _, p := range t.pre {
		out[p]--
	}
	for _, p := range t.post {
		out[p]++
	}
	return out
}

// column is the incidence column of t.
func (pr *product) column(t *productTransition) map[int]int {
	col := make(map[int]int, len(t.pre)+len(t.post))
	for _, p := range t.pre {
		col[p]--
	}
	for _, p := range t.post {
		col[p]++
	}
	return col
}
