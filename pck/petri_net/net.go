package petri_net

import (
	"encoding/binary"
	"fmt"

	"github.com/jtomasevic/treemine/pck/process_tree"
)

// Status tells which border of a tree node a transition represents.
type Status int

const (
	Leaf Status = iota
	Active
	Closed
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "leaf"
	}
}

// Origin links a transition back to the tree node that produced it.
// Node is process_tree.None for helper transitions.
type Origin struct {
	Node   process_tree.NodeID
	Status Status
}

type Place struct {
	ID   int
	Name string
}

type Transition struct {
	ID     int
	Name   string
	Label  string
	Silent bool
	Origin Origin
	Pre    []int
	Post   []int
}

func (t *Transition) String() string {
	if t.Silent {
		return t.Name + "(τ)"
	}
	return t.Name + "(" + t.Label + ")"
}

// Arc is a directed edge. ToTransition is true for place -> transition.
type Arc struct {
	Place        int
	Transition   int
	ToTransition bool
}

type Net struct {
	Name        string
	Places      []*Place
	Transitions []*Transition
	Arcs        []Arc
	Initial     Marking
	Final       Marking
	// NodePlaces holds, per tree node, the place before and after its sub-net.
	NodePlaces map[process_tree.NodeID][2]int
}

func New(name string) *Net {
	return &Net{Name: name, NodePlaces: make(map[process_tree.NodeID][2]int)}
}

func (n *Net) AddPlace(name string) *Place {
	p := &Place{ID: len(n.Places), Name: name}
	n.Places = append(n.Places, p)
	return p
}

// AddTransition adds a transition. An empty label makes it silent.
func (n *Net) AddTransition(name, label string, origin Origin) *Transition {
	t := &Transition{
		ID:     len(n.Transitions),
		Name:   name,
		Label:  label,
		Silent: label == "",
		Origin: origin,
	}
	n.Transitions = append(n.Transitions, t)
	return t
}

// AddInputArc adds p -> t. Duplicate arcs are ignored.
func (n *Net) AddInputArc(p *Place, t *Transition) {
	for _, x := range t.Pre {
		if x == p.ID {
			return
		}
	}
	t.Pre = append(t.Pre, p.ID)
	n.Arcs = append(n.Arcs, Arc{Place: p.ID, Transition: t.ID, ToTransition: true})
}

// AddOutputArc adds t -> p. Duplicate arcs are ignored.
func (n *Net) AddOutputArc(t *Transition, p *Place) {
	for _, x := range t.Post {
		if x == p.ID {
			return
		}
	}
	t.Post = append(t.Post, p.ID)
	n.Arcs = append(n.Arcs, Arc{Place: p.ID, Transition: t.ID})
}

// Marking puts one token on each of the given places.
func (n *Net) Marking(places ...int) Marking {
	m := make(Marking, len(n.Places))
	for _, p := range places {
		m[p]++
	}
	return m
}

func (n *Net) Enabled(m Marking, t *Transition) bool {
	for _, p := range t.Pre {
		if p >= len(m) || m[p] == 0 {
			return false
		}
	}
	return true
}

// Fire returns the marking reached by firing t. m is left untouched.
func (n *Net) Fire(m Marking, t *Transition) Marking {
	out := m.Grow(len(n.Places))
	for _, p := range t.Pre {
		out[p]--
	}
	for _, p := range t.Post {
		out[p]++
	}
	return out
}

func (n *Net) EnabledTransitions(m Marking) []*Transition {
	var out []*Transition
	for _, t := range n.Transitions {
		if n.Enabled(m, t) {
			out = append(out, t)
		}
	}
	return out
}

// Incidence returns the place x transition incidence matrix.
func (n *Net) Incidence() [][]int {
	c := make([][]int, len(n.Places))
	for i := range c {
		c[i] = make([]int, len(n.Transitions))
	}
	for _, t := range n.Transitions {
		for _, p := range t.Pre {
			c[p][t.ID]--
		}
		for _, p := range t.Post {
			c[p][t.ID]++
		}
	}
	return c
}

// Clone copies places and transitions. Markings are resized copies.
func (n *Net) Clone() *Net {
	out := New(n.Name)
	for _, p := range n.Places {
		cp := *p
		out.Places = append(out.Places, &cp)
	}
	for _, t := range n.Transitions {
		ct := *t
		ct.Pre = append([]int(nil), t.Pre...)
		ct.Post = append([]int(nil), t.Post...)
		out.Transitions = append(out.Transitions, &ct)
	}
	out.Arcs = append([]Arc(nil), n.Arcs...)
	out.Initial = n.Initial.Clone()
	out.Final = n.Final.Clone()
	for k, v := range n.NodePlaces {
		out.NodePlaces[k] = v
	}
	return out
}

// TransitionsOf returns the transitions produced by a tree node.
func (n *Net) TransitionsOf(node process_tree.NodeID) []*Transition {
	var out []*Transition
	for _, t := range n.Transitions {
		if t.Origin.Node == node && node != process_tree.None {
			out = append(out, t)
		}
	}
	return out
}

// Marking is a token count per place, indexed by place id.
type Marking []int

func (m Marking) Clone() Marking {
	return append(Marking(nil), m...)
}

// Grow returns a copy with at least size entries.
func (m Marking) Grow(size int) Marking {
	if size < len(m) {
		size = len(m)
	}
	out := make(Marking, size)
	copy(out, m)
	return out
}

// Key is a canonical map key. Trailing empty places do not change it.
func (m Marking) Key() string {
	end := len(m)
	for end > 0 && m[end-1] == 0 {
		end--
	}
	buf := make([]byte, 0, end)
	for _, c := range m[:end] {
		buf = binary.AppendUvarint(buf, uint64(c))
	}
	return string(buf)
}

func (m Marking) Equal(o Marking) bool { return m.Key() == o.Key() }

func (m Marking) IsEmpty() bool {
	for _, c := range m {
		if c != 0 {
			return false
		}
	}
	return true
}

// Covers reports whether every place marked in o is marked at least as often in m.
func (m Marking) Covers(o Marking) bool {
	for p, c := range o {
		if c > 0 && (p >= len(m) || m[p] < c) {
			return false
		}
	}
	return true
}

// Places lists the marked place ids, a place repeated per token.
func (m Marking) Places() []int {
	var out []int
	for p, c := range m {
		for i := 0; i < c; i++ {
			out = append(out, p)
		}
	}
	return out
}

func (m Marking) String() string {
	return fmt.Sprint(m.Places())
}
