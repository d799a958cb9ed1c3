package pattern_mining

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jtomasevic/treemine/pck/concurrency_tree"
	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var miningTracer = otel.Tracer("treemine.pattern_mining")

// Result holds the valid frequent patterns by size.
type Result map[int][]*Pattern

// All lists the patterns by size, then by key.
func (r Result) All() []*Pattern {
	sizes := make([]int, 0, len(r))
	for s := range r {
		sizes = append(sizes, s)
	}
	sort.Ints(sizes)
	var out []*Pattern
	for _, s := range sizes {
		out = append(out, r[s]...)
	}
	return out
}

func (r Result) Keys() []string {
	var out []string
	for _, p := range r.All() {
		out = append(out, p.Key())
	}
	return out
}

func (r Result) Len() int {
	n := 0
	for _, ps := range r {
		n += len(ps)
	}
	return n
}

type Miner struct {
	opts   config.MiningOptions
	log    *slog.Logger
	nextID int
}

func New(opts config.MiningOptions) *Miner {
	opts = opts.WithDefaults()
	return &Miner{opts: opts, log: opts.Logger}
}

// Mine runs the configured enumeration strategy. With ClosedMaximal set it
// returns the closed patterns only.
func (m *Miner) Mine(ctx context.Context, trees []*concurrency_tree.Tree) (Result, error) {
	if m.opts.ClosedMaximal {
		closed, _, err := m.MineClosedMaximal(ctx, trees)
		return closed, err
	}
	res, _, err := m.mine(ctx, trees, false)
	return res, err
}

// MineRightmost grows every pattern node by node, eventually-follows parts
// included.
func (m *Miner) MineRightmost(ctx context.Context, trees []*concurrency_tree.Tree) (Result, error) {
	return m.withStrategy(config.Rightmost).Mine(ctx, trees)
}

// MineCombination mines the patterns without eventually-follows parts and
// joins them afterwards.
func (m *Miner) MineCombination(ctx context.Context, trees []*concurrency_tree.Tree) (Result, error) {
	return m.withStrategy(config.Combination).Mine(ctx, trees)
}

func (m *Miner) withStrategy(st config.Strategy) *Miner {
	opts := m.opts
	opts.Strategy = st
	return &Miner{opts: opts, log: m.log}
}

func (m *Miner) mine(ctx context.Context, trees []*concurrency_tree.Tree, keep bool) (Result, *search, error) {
	ctx, span := miningTracer.Start(ctx, "Miner.Mine",
		trace.WithAttributes(
			attribute.Int("trees", len(trees)),
			attribute.String("strategy", string(m.opts.Strategy)),
			attribute.String("frequency", string(m.opts.Frequency)),
			attribute.Int("min_support", m.opts.MinSupport),
		),
	)
	defer span.End()

	s := m.newSearch(trees, keep)
	var err error
	switch m.opts.Strategy {
	case config.Combination:
		err = s.combination(ctx)
	default:
		s.efMoves = true
		err = s.rightmost(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	res := s.result()
	observability.MinedPatternsTotal.WithLabelValues(string(m.opts.Strategy)).Add(float64(res.Len()))
	span.SetAttributes(attribute.Int("patterns", res.Len()))
	m.log.Info("patterns mined",
		"strategy", string(m.opts.Strategy),
		"frequency", string(m.opts.Frequency),
		"patterns", res.Len(),
		"elapsed", time.Since(s.started),
	)
	return res, s, nil
}

// search is the state of one mining run.
type search struct {
	m        *Miner
	store    *OccurrenceStore
	alphabet []PatternNode
	// frequent holds every frequent pattern including growth states.
	frequent map[uint64]*Pattern
	valid    map[uint64]*Pattern
	rel      *relations
	efMoves  bool
	keep     bool
	started  time.Time
}

func (m *Miner) newSearch(trees []*concurrency_tree.Tree, keep bool) *search {
	store := NewOccurrenceStore(trees, m.opts.Frequency, m.opts.MinSupport)
	return &search{
		m:        m,
		store:    store,
		alphabet: store.Alphabet(),
		frequent: map[uint64]*Pattern{},
		valid:    map[uint64]*Pattern{},
		keep:     keep,
		started:  time.Now(),
	}
}

func (s *search) transaction() bool { return s.m.opts.Frequency.IsTransaction() }

func (s *search) interrupted(ctx context.Context) error {
	if ctx.Err() != nil {
		return &errs.TimeoutError{Stage: "pattern mining", Elapsed: time.Since(s.started)}
	}
	return nil
}

func (s *search) assignID(p *Pattern) {
	p.ID = s.m.nextID
	s.m.nextID++
}

func (s *search) record(p *Pattern) {
	fp := Fingerprint(p)
	if _, ok := s.frequent[fp]; !ok {
		s.frequent[fp] = p
	}
	if _, ok := s.valid[fp]; !ok && p.Valid() {
		s.valid[fp] = p
	}
}

func (s *search) result() Result {
	out := Result{}
	for _, p := range s.valid {
		out[p.Size()] = append(out[p.Size()], p)
	}
	for _, ps := range out {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Key() < ps[j].Key() })
	}
	return out
}

// seeds are the frequent single-node patterns. A sequence only enters a
// pattern by wrapping.
func (s *search) seeds() []*Pattern {
	var out []*Pattern
	for _, x := range s.alphabet {
		if x.Op == concurrency_tree.Sequence {
			continue
		}
		p := seedPattern(x.Op, x.Label)
		s.assignID(p)
		if s.store.Seed(p) {
			out = append(out, p)
		}
	}
	return out
}

// rightmost grows patterns one node at a time along the rightmost path.
func (s *search) rightmost(ctx context.Context) error {
	span := trace.SpanFromContext(ctx)
	level := s.seeds()
	for size := 1; len(level) > 0; size++ {
		if err := s.interrupted(ctx); err != nil {
			return err
		}
		for _, p := range level {
			s.record(p)
		}
		span.AddEvent("level", trace.WithAttributes(attribute.Int("size", size), attribute.Int("frequent", len(level))))
		s.m.log.Debug("mining level", "size", size, "frequent", len(level))

		if size == 3 && s.transaction() {
			s.rel = buildRelations(s.frequent)
		}
		if s.m.opts.MaxSize > 0 && size >= s.m.opts.MaxSize {
			break
		}
		next, err := s.extendLevel(level)
		if err != nil {
			return err
		}
		if !s.keep {
			for _, p := range level {
				s.store.Discard(p)
			}
		}
		level = next
	}
	return nil
}

func (s *search) extendLevel(level []*Pattern) ([]*Pattern, error) {
	seen := map[string]bool{}
	var next []*Pattern
	for _, p := range level {
		for _, c := range s.candidates(p) {
			k := c.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			if s.pruned(c) {
				continue
			}
			s.assignID(c)
			ok, err := s.store.Extend(c)
			if err != nil {
				return nil, err
			}
			if ok {
				next = append(next, c)
			}
		}
	}
	observability.MiningCandidates.Set(float64(len(next)))
	return next, nil
}

func (s *search) candidates(p *Pattern) []*Pattern {
	var out []*Pattern
	path := p.rightmostPath()
	for k, q := range path {
		if p.Nodes[q].IsLeaf() || !closedNodes(p, path[k+1:]) {
			continue
		}
		for _, x := range s.alphabet {
			if s.admissibleChild(p, q, x) {
				out = append(out, p.withChild(q, x.Op, x.Label))
			}
		}
	}
	last := p.last()
	if s.efMoves && p.subValid(last) {
		for _, x := range s.alphabet {
			if x.Op != concurrency_tree.Sequence && s.admissibleFollower(p, x) {
				out = append(out, p.withFollower(x.Op, x.Label))
			}
		}
	}
	if p.Nodes[p.Roots[last]].Op != concurrency_tree.Sequence {
		out = append(out, p.wrapped())
	}
	return out
}

// closedNodes reports whether the nodes leaving the rightmost path are
// complete: no operator with fewer than two children.
func closedNodes(p *Pattern, nodes []int) bool {
	for _, n := range nodes {
		if !p.Nodes[n].IsLeaf() && len(p.Nodes[n].Children) < 2 {
			return false
		}
	}
	return true
}

// admissibleChild keeps the children of unordered nodes in canonical order,
// leaves by label before operators, and applies the pair relations.
func (s *search) admissibleChild(p *Pattern, q int, x PatternNode) bool {
	qn := p.Nodes[q]
	if qn.Op == concurrency_tree.Sequence && x.Op == concurrency_tree.Sequence {
		return false
	}
	if len(qn.Children) == 0 {
		return true
	}
	y := p.Nodes[qn.Children[len(qn.Children)-1]]
	if unordered(qn.Op) {
		if !y.IsLeaf() && x.IsLeaf() {
			return false
		}
		if y.IsLeaf() && x.IsLeaf() && x.Label < y.Label {
			return false
		}
	}
	if s.rel == nil || !x.IsLeaf() || !y.IsLeaf() {
		return true
	}
	switch qn.Op {
	case concurrency_tree.Sequence:
		return s.rel.directlyFollows[pair{y.Label, x.Label}]
	case concurrency_tree.Parallel:
		return s.rel.concurrent[pair{y.Label, x.Label}]
	}
	return true
}

func (s *search) admissibleFollower(p *Pattern, x PatternNode) bool {
	y := p.Nodes[p.rightBoundary(p.last())]
	if s.rel == nil || !x.IsLeaf() || !y.IsLeaf() {
		return true
	}
	return s.rel.eventuallyFollows[pair{y.Label, x.Label}]
}

// pruned applies the apriori check under transaction frequencies: every
// pattern obtained by dropping an inner or leading sub-pattern has to be
// frequent.
func (s *search) pruned(c *Pattern) bool {
	if !s.transaction() || len(c.Roots) < 2 {
		return false
	}
	for i := 0; i < c.last(); i++ {
		if _, ok := s.frequent[Fingerprint(c.withoutSub(i))]; !ok {
			return true
		}
	}
	return false
}

type pair struct{ a, b string }

// relations between two activities derived from the frequent patterns of
// size three and below.
type relations struct {
	directlyFollows   map[pair]bool
	eventuallyFollows map[pair]bool
	concurrent        map[pair]bool
}

func buildRelations(frequent map[uint64]*Pattern) *relations {
	r := &relations{
		directlyFollows:   map[pair]bool{},
		eventuallyFollows: map[pair]bool{},
		concurrent:        map[pair]bool{},
	}
	for _, p := range frequent {
		switch {
		case len(p.Roots) == 2 && p.Size() == 2 && p.Nodes[0].IsLeaf() && p.Nodes[1].IsLeaf():
			r.eventuallyFollows[pair{p.Nodes[0].Label, p.Nodes[1].Label}] = true
		case len(p.Roots) == 1 && p.Size() == 3 && p.Nodes[1].IsLeaf() && p.Nodes[2].IsLeaf():
			a, b := p.Nodes[1].Label, p.Nodes[2].Label
			switch p.Nodes[0].Op {
			case concurrency_tree.Sequence:
				r.directlyFollows[pair{a, b}] = true
			case concurrency_tree.Parallel:
				r.concurrent[pair{a, b}] = true
				r.concurrent[pair{b, a}] = true
			}
		}
	}
	return r
}
