package alignment

import (
	"context"
	"slices"
	"time"

	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

// AlignInfix aligns a trace that may start and stop anywhere in the model.
func (a *Aligner) AlignInfix(ctx context.Context, tree *process_tree.Tree, activities []string) (*Result, error) {
	if a.opts.InfixStrategy == config.InfixBaseline {
		return a.AlignInfixBaseline(ctx, tree, activities, false)
	}
	return a.alignFragment(ctx, tree, activities, false)
}

// AlignPostfix aligns a trace that may start anywhere but must end in the
// final marking.
func (a *Aligner) AlignPostfix(ctx context.Context, tree *process_tree.Tree, activities []string) (*Result, error) {
	if a.opts.InfixStrategy == config.InfixBaseline {
		return a.AlignInfixBaseline(ctx, tree, activities, true)
	}
	return a.alignFragment(ctx, tree, activities, true)
}

// AlignInfixBaseline starts the alignment from every reachable marking.
func (a *Aligner) AlignInfixBaseline(ctx context.Context, tree *process_tree.Tree, activities []string, postfix bool) (*Result, error) {
	started := time.Now()
	deadline := a.deadline(started)
	net := petri_net.FromTree(tree)
	starts, err := net.Reachable(ctx, net.Initial, deadline, a.opts.MaxReachableMarkings)
	if err != nil {
		return &Result{Timeout: true}, err
	}
	return a.alignFromStarts(ctx, net, starts, activities, postfix, started, deadline)
}

func (a *Aligner) alignFragment(ctx context.Context, tree *process_tree.Tree, activities []string, postfix bool) (*Result, error) {
	started := time.Now()
	deadline := a.deadline(started)
	acts := make(map[string]bool, len(activities))
	for _, x := range activities {
		acts[x] = true
	}
	root := tree.Root()
	if !postfix && a.opts.ReduceTree {
		root = fragmentRoot(tree, acts)
	}
	net := petri_net.FromSubtree(tree, root)
	gen := &startMarkingGenerator{
		ctx:      ctx,
		tree:     tree,
		net:      net,
		acts:     acts,
		deadline: deadline,
		limit:    a.opts.MaxStartMarkings,
		started:  started,
	}
	starts, err := gen.generate(root)
	if err != nil {
		return &Result{Timeout: true}, err
	}
	return a.alignFromStarts(ctx, net, starts, activities, postfix, started, deadline)
}

// fragmentRoot is the LCA of all leaves matching an activity of the trace,
// unless a loop above it could repeat the fragment.
func fragmentRoot(tree *process_tree.Tree, acts map[string]bool) process_tree.NodeID {
	var matching []process_tree.NodeID
	for _, l := range tree.Leaves(tree.Root()) {
		if tree.IsVisibleLeaf(l) && acts[tree.Label(l)] {
			matching = append(matching, l)
		}
	}
	if len(matching) == 0 {
		return tree.Root()
	}
	lca := tree.LCA(matching...)
	if lca == process_tree.None || tree.HasLoopAncestor(lca) {
		return tree.Root()
	}
	return lca
}

// alignFromStarts adds a fresh start place with one τ transition per start
// marking, aligns from it and strips that τ from the result.
func (a *Aligner) alignFromStarts(ctx context.Context, net *petri_net.Net, starts []petri_net.Marking,
	activities []string, postfix bool, started, deadline time.Time) (*Result, error) {
	ext := net.Clone()
	startPlace := ext.AddPlace("infix_start")
	added := make(map[*petri_net.Transition]petri_net.Marking, len(starts))
	for _, m := range starts {
		tr := ext.AddTransition("infix_start", "", petri_net.Origin{Node: process_tree.None})
		ext.AddInputArc(startPlace, tr)
		for _, p := range m.Places() {
			ext.AddOutputArc(tr, ext.Places[p])
		}
		added[tr] = m
	}
	ext.Initial = ext.Marking(startPlace.ID)
	ext.Final = net.Final.Grow(len(ext.Places))
	prep := time.Since(started)

	variant := "infix"
	if postfix {
		variant = "postfix"
	}
	res, err := a.run(ctx, variant, ext, activities, ext.Initial, ext.Final, !postfix, deadline)
	if err != nil {
		return res, err
	}
	endMarking := res.EndMarking
	// Log moves may come before the start transition. A run made of log
	// moves only never leaves the start place and stays in the initial
	// marking.
	res.StartMarking, res.EndMarking = net.Initial, net.Initial.Clone()
	if i := slices.IndexFunc(res.Moves, func(m Move) bool { _, ok := added[m.Transition]; return ok }); i >= 0 {
		res.StartMarking = added[res.Moves[i].Transition]
		res.Cost -= res.Moves[i].Cost
		res.Moves = slices.Delete(res.Moves, i, i+1)
		res.EndMarking = endMarking[:len(net.Places)]
	}
	res.PreprocessingDuration = prep
	res.AlignmentDuration = time.Since(started) - prep
	res.AddedTauTransitions = len(starts)
	res.Net = net
	return res, nil
}

// startMarkingGenerator enumerates the markings from which a leaf labelled
// with one of the trace activities can fire next. Inside a parallel operator
// every branch is either entered, not started or finished, and at least one
// branch is entered.
type startMarkingGenerator struct {
	ctx      context.Context
	tree     *process_tree.Tree
	net      *petri_net.Net
	acts     map[string]bool
	deadline time.Time
	limit    int
	started  time.Time
}

func (g *startMarkingGenerator) check() error {
	if g.ctx.Err() != nil || (!g.deadline.IsZero() && time.Now().After(g.deadline)) {
		return &errs.TimeoutError{Stage: "infix preprocessing", Elapsed: time.Since(g.started)}
	}
	return nil
}

func (g *startMarkingGenerator) generate(root process_tree.NodeID) ([]petri_net.Marking, error) {
	out := []petri_net.Marking{g.net.Initial}
	seen := map[string]struct{}{g.net.Initial.Key(): {}}
	if root == process_tree.None {
		return out, nil
	}
	sets, err := g.enter(root)
	if err != nil {
		return nil, err
	}
	for _, s := range sets {
		m := g.net.Marking(s...)
		if _, ok := seen[m.Key()]; ok {
			continue
		}
		seen[m.Key()] = struct{}{}
		out = append(out, m)
		if len(out) >= g.limit {
			break
		}
	}
	return out, nil
}

func (g *startMarkingGenerator) enter(n process_tree.NodeID) ([][]int, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	t := g.tree
	if t.IsLeaf(n) {
		if t.IsVisibleLeaf(n) && g.acts[t.Label(n)] {
			return [][]int{{g.net.NodePlaces[n][0]}}, nil
		}
		return nil, nil
	}
	if t.Op(n) != process_tree.Parallel {
		var out [][]int
		for _, c := range t.Children(n) {
			sets, err := g.enter(c)
			if err != nil {
				return nil, err
			}
			out = append(out, sets...)
		}
		return out, nil
	}

	type combo struct {
		places  []int
		entered bool
	}
	combos := []combo{{}}
	for _, c := range t.Children(n) {
		inner, err := g.enter(c)
		if err != nil {
			return nil, err
		}
		borders := g.net.NodePlaces[c]
		var next []combo
		for _, base := range combos {
			for _, s := range inner {
				next = append(next, combo{places: concat(base.places, s), entered: true})
			}
			next = append(next,
				combo{places: concat(base.places, []int{borders[0]}), entered: base.entered},
				combo{places: concat(base.places, []int{borders[1]}), entered: base.entered},
			)
			if len(next) >= g.limit*4 {
				break
			}
		}
		combos = next
	}
	var out [][]int
	for _, c := range combos {
		if c.entered {
			out = append(out, c.places)
		}
	}
	return out, nil
}

func concat(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
