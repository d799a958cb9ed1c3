package repair

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jtomasevic/treemine/pck/alignment"
	"github.com/jtomasevic/treemine/pck/config"
	"github.com/jtomasevic/treemine/pck/discovery"
	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/observability"
	"github.com/jtomasevic/treemine/pck/process_tree"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var repairTracer = otel.Tracer("treemine.repair")

// Engine repairs a process tree so that it replays one more trace while
// keeping the traces it already replays.
type Engine struct {
	opts    config.RepairOptions
	aligner *alignment.Aligner
	pool    *alignment.Pool
	log     *slog.Logger
}

func New(opts config.RepairOptions) *Engine {
	opts = opts.WithDefaults()
	// moves must refer to places of the whole tree
	opts.Alignment.ReduceTree = false
	aligner := alignment.New(opts.Alignment).WithFitCache(alignment.NewFitCache())
	return &Engine{
		opts:    opts,
		aligner: aligner,
		pool:    alignment.NewPool(aligner, opts.PoolSize),
		log:     opts.Logger,
	}
}

func (e *Engine) Aligner() *alignment.Aligner { return e.aligner }

// Repair returns a tree replaying every trace of previous and tr. The input
// tree is never modified; it is returned as is when tr already fits.
func (e *Engine) Repair(ctx context.Context, tree *process_tree.Tree, previous event_log.Log, tr event_log.Trace) (*process_tree.Tree, error) {
	ctx, span := repairTracer.Start(ctx, "Engine.Repair",
		trace.WithAttributes(
			attribute.String("trace", tr.String()),
			attribute.Int("previous", len(previous)),
			attribute.Int("tree_size", tree.Size()),
		),
	)
	defer span.End()
	timer := prometheus.NewTimer(observability.RepairDuration)
	defer timer.ObserveDuration()

	fits, err := e.aligner.Fits(ctx, tree, tr)
	if err != nil {
		return nil, err
	}
	if fits {
		observability.RepairIterationsTotal.WithLabelValues(string(resolvedFitting)).Inc()
		span.AddEvent("already_fitting")
		return tree, nil
	}

	t := tree.Copy()
	if e.opts.AddArtificialStartEnd {
		process_tree.WrapArtificialStartEnd(t)
		previous = previous.WithArtificialStartEnd()
		tr = event_log.AddArtificialStartEnd(tr)
	}
	if err := e.repairLoop(ctx, t, previous, tr); err != nil {
		return nil, err
	}
	if e.opts.AddArtificialStartEnd {
		process_tree.StripArtificialStartEnd(t, nil)
	}
	span.AddEvent("repaired", trace.WithAttributes(attribute.String("tree", t.String())))
	return t.Compact(), nil
}

// AddTraces repairs the tree trace by trace.
func (e *Engine) AddTraces(ctx context.Context, tree *process_tree.Tree, log event_log.Log) (*process_tree.Tree, error) {
	cur := tree
	for i, tr := range log {
		next, err := e.Repair(ctx, cur, log[:i], tr)
		if err != nil {
			return nil, fmt.Errorf("trace %d %s: %w", i, tr, err)
		}
		cur = next
	}
	return cur, nil
}

// repairLoop mutates t until tr fits. Previous traces keep fitting after
// every iteration.
func (e *Engine) repairLoop(ctx context.Context, t *process_tree.Tree, previous event_log.Log, tr event_log.Trace) error {
	for iteration := 0; iteration < e.opts.MaxIterations; iteration++ {
		t.AssignPreorderIDs()
		outcome, err := e.step(ctx, t, previous, tr)
		if err != nil {
			return err
		}
		observability.RepairIterationsTotal.WithLabelValues(string(outcome)).Inc()
		e.log.Debug("repair iteration",
			"iteration", iteration,
			"resolution", string(outcome),
			"trace", tr.String(),
			"tree", t.String(),
		)
		switch outcome {
		case resolvedFitting:
			return nil
		case resolvedPullDown:
			continue
		}
		process_tree.Reduce(t, nil)
	}

	fits, err := e.aligner.Fits(ctx, t, tr)
	if err != nil {
		return err
	}
	if fits {
		return nil
	}
	e.log.Warn("repair did not converge, adding the trace as an alternative",
		"trace", tr.String(), "iterations", e.opts.MaxIterations)
	observability.RepairIterationsTotal.WithLabelValues(string(resolvedLastResort)).Inc()
	lastResort(t, tr)
	process_tree.Reduce(t, nil)
	return nil
}

// lastResort puts the trace next to the model: as a choice for complete
// traces, in parallel for fragments.
func lastResort(t *process_tree.Tree, tr event_log.Trace) {
	root := t.Root()
	if tr.Kind == event_log.Full {
		alt := discovery.Build(t, [][]string{tr.Activities})
		x := t.NewOperator(process_tree.Xor)
		t.SetRoot(x)
		t.AddChild(x, root)
		t.AddChild(x, alt)
		return
	}
	wrapParallel(t, discovery.Build(t, [][]string{tr.Activities, {}}))
}

// wrapParallel turns the tree into ∧(T, n).
func wrapParallel(t *process_tree.Tree, n process_tree.NodeID) {
	root := t.Root()
	par := t.NewOperator(process_tree.Parallel)
	t.SetRoot(par)
	t.AddChild(par, root)
	t.AddChild(par, n)
}
