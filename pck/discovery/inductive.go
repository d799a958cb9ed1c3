package discovery

import (
	"sort"

	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

// Discover mines a process tree that replays every trace of the log.
// The result only depends on the multiset of traces.
func Discover(log event_log.Log) *process_tree.Tree {
	t := process_tree.New()
	t.SetRoot(Build(t, Activities(log)))
	return t
}

// Activities drops the kinds of the traces.
func Activities(log event_log.Log) [][]string {
	out := make([][]string, len(log))
	for i, tr := range log {
		out[i] = tr.Activities
	}
	return out
}

// Build mines the traces into t and returns the unattached root.
func Build(t *process_tree.Tree, traces [][]string) process_tree.NodeID {
	return (&miner{tree: t}).mine(traces)
}

type miner struct {
	tree *process_tree.Tree
}

func (m *miner) mine(traces [][]string) process_tree.NodeID {
	t := m.tree
	var nonEmpty [][]string
	for _, tr := range traces {
		if len(tr) > 0 {
			nonEmpty = append(nonEmpty, tr)
		}
	}
	if len(nonEmpty) == 0 {
		return t.NewTau()
	}
	if len(nonEmpty) < len(traces) {
		return t.NewOperator(process_tree.Xor, t.NewTau(), m.mine(nonEmpty))
	}

	d := newDFG(nonEmpty)
	if len(d.acts) == 1 {
		a := d.acts[0]
		for _, tr := range nonEmpty {
			if len(tr) > 1 {
				return t.NewOperator(process_tree.Loop, t.NewLeaf(a), t.NewTau())
			}
		}
		return t.NewLeaf(a)
	}

	if groups := d.xorCut(); len(groups) > 1 {
		return m.split(process_tree.Xor, groups, projectXor(nonEmpty, groups))
	}
	if groups := d.sequenceCut(); len(groups) > 1 {
		return m.split(process_tree.Sequence, groups, projectSequence(nonEmpty, groups))
	}
	if groups := d.parallelCut(); len(groups) > 1 {
		return m.split(process_tree.Parallel, groups, projectParallel(nonEmpty, groups))
	}
	if groups := d.loopCut(); len(groups) > 1 {
		logs := projectLoop(nonEmpty, groups)
		do := m.mine(logs[0])
		if len(groups) == 2 {
			return t.NewOperator(process_tree.Loop, do, m.mine(logs[1]))
		}
		redo := t.NewOperator(process_tree.Xor)
		for _, l := range logs[1:] {
			t.AddChild(redo, m.mine(l))
		}
		return t.NewOperator(process_tree.Loop, do, redo)
	}

	if a, ok := oncePerTrace(nonEmpty, d.acts); ok {
		rest := make([][]string, len(nonEmpty))
		for i, tr := range nonEmpty {
			rest[i] = without(tr, a)
		}
		return t.NewOperator(process_tree.Parallel, t.NewLeaf(a), m.mine(rest))
	}

	// flower model
	choice := t.NewOperator(process_tree.Xor)
	for _, a := range d.acts {
		t.AddChild(choice, t.NewLeaf(a))
	}
	return t.NewOperator(process_tree.Loop, t.NewTau(), choice)
}

func (m *miner) split(op process_tree.Operator, groups [][]string, logs [][][]string) process_tree.NodeID {
	n := m.tree.NewOperator(op)
	for i := range groups {
		m.tree.AddChild(n, m.mine(logs[i]))
	}
	return n
}

func oncePerTrace(traces [][]string, acts []string) (string, bool) {
	for _, a := range acts {
		ok := true
		for _, tr := range traces {
			n := 0
			for _, x := range tr {
				if x == a {
					n++
				}
			}
			if n != 1 {
				ok = false
				break
			}
		}
		if ok {
			return a, true
		}
	}
	return "", false
}

func without(tr []string, a string) []string {
	out := make([]string, 0, len(tr))
	for _, x := range tr {
		if x != a {
			out = append(out, x)
		}
	}
	return out
}

// dfg is the directly-follows graph of a log.
type dfg struct {
	acts   []string
	index  map[string]int
	edges  [][]bool
	starts []bool
	ends   []bool
}

func newDFG(traces [][]string) *dfg {
	set := map[string]struct{}{}
	for _, tr := range traces {
		for _, a := range tr {
			set[a] = struct{}{}
		}
	}
	d := &dfg{index: make(map[string]int, len(set))}
	for a := range set {
		d.acts = append(d.acts, a)
	}
	sort.Strings(d.acts)
	for i, a := range d.acts {
		d.index[a] = i
	}
	n := len(d.acts)
	d.edges = make([][]bool, n)
	for i := range d.edges {
		d.edges[i] = make([]bool, n)
	}
	d.starts = make([]bool, n)
	d.ends = make([]bool, n)
	for _, tr := range traces {
		d.starts[d.index[tr[0]]] = true
		d.ends[d.index[tr[len(tr)-1]]] = true
		for i := 1; i < len(tr); i++ {
			d.edges[d.index[tr[i-1]]][d.index[tr[i]]] = true
		}
	}
	return d
}

// reach is the transitive closure of the edges.
func (d *dfg) reach() [][]bool {
	n := len(d.acts)
	r := make([][]bool, n)
	for i := range r {
		r[i] = append([]bool(nil), d.edges[i]...)
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if !r[i][k] {
				continue
			}
			for j := 0; j < n; j++ {
				if r[k][j] {
					r[i][j] = true
				}
			}
		}
	}
	return r
}

func (d *dfg) groups(uf *unionFind, members []int) [][]string {
	byRoot := map[int][]string{}
	var roots []int
	for _, i := range members {
		r := uf.find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], d.acts[i])
	}
	out := make([][]string, 0, len(roots))
	for _, r := range roots {
		out = append(out, byRoot[r])
	}
	return out
}

func (d *dfg) all() []int {
	out := make([]int, len(d.acts))
	for i := range out {
		out[i] = i
	}
	return out
}

// xorCut splits the activities into weakly connected components.
func (d *dfg) xorCut() [][]string {
	uf := newUnionFind(len(d.acts))
	for i := range d.edges {
		for j, ok := range d.edges[i] {
			if ok {
				uf.union(i, j)
			}
		}
	}
	return d.groups(uf, d.all())
}

// sequenceCut groups activities that reach each other or are unrelated and
// orders the groups so that every earlier activity reaches every later one
// and never the other way round.
func (d *dfg) sequenceCut() [][]string {
	r := d.reach()
	n := len(d.acts)
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if r[i][j] == r[j][i] {
				uf.union(i, j)
			}
		}
	}
	groups := d.groups(uf, d.all())
	if len(groups) < 2 {
		return nil
	}
	sort.SliceStable(groups, func(x, y int) bool {
		return r[d.index[groups[x][0]]][d.index[groups[y][0]]]
	})
	for x := 0; x < len(groups); x++ {
		for y := x + 1; y < len(groups); y++ {
			for _, a := range groups[x] {
				for _, b := range groups[y] {
					i, j := d.index[a], d.index[b]
					if !r[i][j] || r[j][i] {
						return nil
					}
				}
			}
		}
	}
	return groups
}

// parallelCut splits on components of the graph linking activities that are
// not directly connected in both directions. Every group needs a start and
// an end activity.
func (d *dfg) parallelCut() [][]string {
	n := len(d.acts)
	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !d.edges[i][j] || !d.edges[j][i] {
				uf.union(i, j)
			}
		}
	}
	groups := d.groups(uf, d.all())
	if len(groups) < 2 {
		return nil
	}
	for _, g := range groups {
		var hasStart, hasEnd bool
		for _, a := range g {
			hasStart = hasStart || d.starts[d.index[a]]
			hasEnd = hasEnd || d.ends[d.index[a]]
		}
		if !hasStart || !hasEnd {
			return nil
		}
	}
	return groups
}

// loopCut returns the body first and then the redo groups. A component
// outside the start and end activities is a redo part when it is entered
// only from end activities and left only towards start activities.
func (d *dfg) loopCut() [][]string {
	n := len(d.acts)
	inDo := make([]bool, n)
	for i := 0; i < n; i++ {
		inDo[i] = d.starts[i] || d.ends[i]
	}
	uf := newUnionFind(n)
	var rest []int
	for i := 0; i < n; i++ {
		if inDo[i] {
			continue
		}
		rest = append(rest, i)
		for j := 0; j < n; j++ {
			if !inDo[j] && (d.edges[i][j] || d.edges[j][i]) {
				uf.union(i, j)
			}
		}
	}
	if len(rest) == 0 {
		return nil
	}

	var redo [][]string
	var do []string
	for _, g := range d.groups(uf, rest) {
		ok, entered, left := true, false, false
		for _, a := range g {
			i := d.index[a]
			for j := 0; j < n; j++ {
				if !inDo[j] {
					continue
				}
				if d.edges[j][i] {
					entered = true
					if !d.ends[j] {
						ok = false
					}
				}
				if d.edges[i][j] {
					left = true
					if !d.starts[j] {
						ok = false
					}
				}
			}
		}
		if ok && entered && left {
			redo = append(redo, g)
		} else {
			do = append(do, g...)
		}
	}
	if len(redo) == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		if inDo[i] {
			do = append(do, d.acts[i])
		}
	}
	sort.Strings(do)
	return append([][]string{do}, redo...)
}

func groupOf(groups [][]string) map[string]int {
	out := map[string]int{}
	for i, g := range groups {
		for _, a := range g {
			out[a] = i
		}
	}
	return out
}

func projectXor(traces [][]string, groups [][]string) [][][]string {
	idx := groupOf(groups)
	logs := make([][][]string, len(groups))
	for _, tr := range traces {
		g := idx[tr[0]]
		logs[g] = append(logs[g], tr)
	}
	return logs
}

func projectSequence(traces [][]string, groups [][]string) [][][]string {
	idx := groupOf(groups)
	logs := make([][][]string, len(groups))
	for _, tr := range traces {
		parts := make([][]string, len(groups))
		for _, a := range tr {
			g := idx[a]
			parts[g] = append(parts[g], a)
		}
		for g := range groups {
			logs[g] = append(logs[g], parts[g])
		}
	}
	return logs
}

func projectParallel(traces [][]string, groups [][]string) [][][]string {
	return projectSequence(traces, groups)
}

// projectLoop cuts every trace into alternating body and redo segments.
func projectLoop(traces [][]string, groups [][]string) [][][]string {
	idx := groupOf(groups)
	logs := make([][][]string, len(groups))
	for _, tr := range traces {
		cur := -1
		var seg []string
		flush := func() {
			if cur >= 0 {
				logs[cur] = append(logs[cur], seg)
			}
			seg = nil
		}
		for _, a := range tr {
			g := idx[a]
			if g != cur && (g == 0 || cur == 0 || cur == -1) {
				flush()
				cur = g
			}
			seg = append(seg, a)
		}
		flush()
	}
	return logs
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
