package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treemine_alignments_total",
		Help: "Alignments computed, by variant",
	}, []string{"variant"})

	AlignmentTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treemine_alignment_timeouts_total",
		Help: "Alignments abandoned because their budget elapsed",
	}, []string{"variant"})

	AlignmentVisitedStates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "treemine_alignment_visited_states",
		Help:    "States expanded per alignment",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	AlignmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treemine_alignment_duration_seconds",
		Help:    "Duration of alignment searches",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	}, []string{"variant"})

	LPSolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treemine_lp_solves_total",
		Help: "LP heuristic solves, by outcome",
	}, []string{"outcome"})

	RepairIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treemine_repair_iterations_total",
		Help: "Repair iterations, by resolution",
	}, []string{"resolution"})

	RepairDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "treemine_repair_duration_seconds",
		Help:    "Duration of a single trace repair",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60},
	})

	FrozenReinsertionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treemine_frozen_reinsertions_total",
		Help: "Frozen subtrees spliced back, by firing pattern",
	}, []string{"pattern"})

	MinedPatternsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treemine_mined_patterns_total",
		Help: "Frequent patterns reported, by strategy",
	}, []string{"strategy"})

	MiningCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "treemine_mining_candidates",
		Help: "Candidates of the current mining iteration",
	})

	OccurrenceListsDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "treemine_occurrence_lists_discarded_total",
		Help: "Occurrence lists dropped by early termination",
	})
)
