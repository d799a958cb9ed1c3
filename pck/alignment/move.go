package alignment

import (
	"strings"
	"time"

	"github.com/jtomasevic/treemine/pck/petri_net"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

// Skip marks the missing side of a log or model move.
const Skip = "»"

const (
	StdModelLogMoveCost = 10000
	TauMoveCost         = 1
	SyncMoveCost        = 0
)

// Move is one step of an alignment. Transition is nil for log moves and
// TraceIndex is -1 for model moves.
type Move struct {
	LogLabel   string
	ModelLabel string
	Transition *petri_net.Transition
	TraceIndex int
	Cost       int
}

func (m Move) IsSync() bool { return m.LogLabel != Skip && m.ModelLabel != Skip }

func (m Move) IsLogMove() bool { return m.ModelLabel == Skip }

func (m Move) IsModelMove() bool { return m.LogLabel == Skip }

func (m Move) IsTauMove() bool { return m.IsModelMove() && m.Transition != nil && m.Transition.Silent }

// IsVisibleModelMove is a model move on a visible leaf.
func (m Move) IsVisibleModelMove() bool {
	return m.IsModelMove() && m.Transition != nil && !m.Transition.Silent
}

// IsDeviation is a log move or a model move on a visible label.
func (m Move) IsDeviation() bool { return m.IsLogMove() || m.IsVisibleModelMove() }

// Node is the tree node behind the model side, process_tree.None otherwise.
func (m Move) Node() process_tree.NodeID {
	if m.Transition == nil {
		return process_tree.None
	}
	return m.Transition.Origin.Node
}

func (m Move) Status() petri_net.Status {
	if m.Transition == nil {
		return petri_net.Leaf
	}
	return m.Transition.Origin.Status
}

func (m Move) String() string {
	return "(" + m.LogLabel + ", " + m.ModelLabel + ")"
}

type Result struct {
	Moves         []Move
	Cost          int
	VisitedStates int
	QueuedStates  int
	TraversedArcs int
	Timeout       bool
	// EndMarking is the model marking after the last move.
	EndMarking petri_net.Marking

	// Set by the infix and postfix variants.
	StartMarking          petri_net.Marking
	PreprocessingDuration time.Duration
	AlignmentDuration     time.Duration
	AddedTauTransitions   int
	Net                   *petri_net.Net
}

// IsFitting reports that the alignment has no log move and no model move on
// a visible label.
func (r *Result) IsFitting() bool {
	if r == nil || r.Timeout {
		return false
	}
	for _, m := range r.Moves {
		if m.IsDeviation() {
			return false
		}
	}
	return true
}

// FirstDeviation is the index of the first deviating move, -1 if none.
func (r *Result) FirstDeviation() int {
	for i, m := range r.Moves {
		if m.IsDeviation() {
			return i
		}
	}
	return -1
}

// Labels returns the activities executed on the model side, log moves included.
func (r *Result) Labels() []string {
	var out []string
	for _, m := range r.Moves {
		switch {
		case m.IsLogMove() || m.IsSync():
			out = append(out, m.LogLabel)
		case m.IsVisibleModelMove():
			out = append(out, m.ModelLabel)
		}
	}
	return out
}

func (r *Result) String() string {
	if r.Timeout {
		return "timeout"
	}
	parts := make([]string, 0, len(r.Moves))
	for _, m := range r.Moves {
		if m.IsTauMove() {
			continue
		}
		parts = append(parts, m.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Fitness is 1 - cost / worst case cost, where the worst case is moving the
// whole trace on the log and the shortest model run on the model.
func Fitness(r *Result, traceLen, shortestModelRunCost int) float64 {
	if r == nil || r.Timeout {
		return 0
	}
	worst := traceLen*StdModelLogMoveCost + shortestModelRunCost
	if worst == 0 {
		return 1
	}
	f := 1 - float64(r.Cost)/float64(worst)
	if f < 0 {
		return 0
	}
	return f
}
