package alignment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/observability"
	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var alignmentTracer = otel.Tracer("treemine.alignment")

// Aligner computes optimal alignments. Apart from an optional fit cache it
// holds no state between calls and is safe for concurrent use.
type Aligner struct {
	opts  config.AlignmentOptions
	log   *slog.Logger
	cache *FitCache
}

func New(opts config.AlignmentOptions) *Aligner {
	opts = opts.WithDefaults()
	return &Aligner{opts: opts, log: opts.Logger}
}

func (a *Aligner) Options() config.AlignmentOptions { return a.opts }

func (a *Aligner) deadline(started time.Time) time.Time {
	if a.opts.Timeout <= 0 {
		return time.Time{}
	}
	return started.Add(a.opts.Timeout)
}

// Align aligns a complete trace from the initial to the final marking.
func (a *Aligner) Align(ctx context.Context, net *petri_net.Net, activities []string) (*Result, error) {
	started := time.Now()
	return a.run(ctx, "full", net, activities, net.Initial, net.Final, false, a.deadline(started))
}

// AlignPrefix aligns a trace whose run may stop anywhere in the model.
func (a *Aligner) AlignPrefix(ctx context.Context, net *petri_net.Net, activities []string) (*Result, error) {
	started := time.Now()
	return a.run(ctx, "prefix", net, activities, net.Initial, net.Final, true, a.deadline(started))
}

// ModelPath returns the cheapest run of model moves leading from one
// marking to another.
func (a *Aligner) ModelPath(ctx context.Context, net *petri_net.Net, from, to petri_net.Marking) (*Result, error) {
	started := time.Now()
	return a.run(ctx, "model_path", net, nil, from, to, false, a.deadline(started))
}

// AlignTrace picks the variant matching the kind of the trace.
func (a *Aligner) AlignTrace(ctx context.Context, tree *process_tree.Tree, t event_log.Trace) (*Result, error) {
	switch t.Kind {
	case event_log.Prefix:
		return a.AlignPrefix(ctx, petri_net.FromTree(tree), t.Activities)
	case event_log.Infix:
		return a.AlignInfix(ctx, tree, t.Activities)
	case event_log.Postfix:
		return a.AlignPostfix(ctx, tree, t.Activities)
	default:
		return a.Align(ctx, petri_net.FromTree(tree), t.Activities)
	}
}

// Fits reports whether the trace replays on the tree without visible deviations.
func (a *Aligner) Fits(ctx context.Context, tree *process_tree.Tree, t event_log.Trace) (bool, error) {
	if a.cache != nil {
		return a.cachedFits(ctx, tree, t)
	}
	res, err := a.AlignTrace(ctx, tree, t)
	if err != nil {
		return false, err
	}
	return res.IsFitting(), nil
}

func (a *Aligner) run(ctx context.Context, variant string, net *petri_net.Net, activities []string,
	from, to petri_net.Marking, prefix bool, deadline time.Time) (*Result, error) {
	ctx, span := alignmentTracer.Start(ctx, "Aligner."+variant,
		trace.WithAttributes(
			attribute.Int("trace_length", len(activities)),
			attribute.Int("places", len(net.Places)),
			attribute.Int("transitions", len(net.Transitions)),
			attribute.Bool("heuristic", !a.opts.UseDijkstra),
		),
	)
	defer span.End()
	timer := prometheus.NewTimer(observability.AlignmentDuration.WithLabelValues(variant))
	defer timer.ObserveDuration()
	observability.AlignmentsTotal.WithLabelValues(variant).Inc()

	pr := newProduct(net, activities)
	start := pr.marking(from, 0)
	final := pr.marking(to, len(activities))
	sp := searchParams{
		pr:       pr,
		start:    start,
		deadline: deadline,
		maxH:     a.opts.MaxAllowedHeuristic,
	}
	if prefix {
		sp.isGoal = pr.traceDone
	} else {
		finalKey := final.Key()
		sp.isGoal = func(m petri_net.Marking) bool { return m.Key() == finalKey }
	}
	if !a.opts.UseDijkstra {
		sp.heuristic = newLPHeuristic(pr, final, prefix)
	}

	res, err := search(ctx, sp)
	if err != nil {
		if errors.Is(err, errs.ErrTimeout) {
			observability.AlignmentTimeoutsTotal.WithLabelValues(variant).Inc()
			span.AddEvent("timeout")
			a.log.Debug("alignment timed out", "variant", variant, "states", res.VisitedStates)
		}
		return res, err
	}
	observability.AlignmentVisitedStates.Observe(float64(res.VisitedStates))
	span.AddEvent("aligned", trace.WithAttributes(
		attribute.Int("cost", res.Cost),
		attribute.Int("visited_states", res.VisitedStates),
	))
	return res, nil
}
