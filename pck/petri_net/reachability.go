package petri_net

import (
	"context"
	"time"

	"github.com/jtomasevic/treemine/pck/errs"
)

// Reachable enumerates markings reachable from m breadth first, m included.
// It stops with a *errs.TimeoutError when ctx is done or the deadline passes,
// and silently after limit markings when limit > 0.
func (n *Net) Reachable(ctx context.Context, m Marking, deadline time.Time, limit int) ([]Marking, error) {
	started := time.Now()
	seen := map[string]struct{}{m.Key(): {}}
	out := []Marking{m}
	for head := 0; head < len(out); head++ {
		if err := ctx.Err(); err != nil {
			return out, &errs.TimeoutError{Stage: "reachability", Elapsed: time.Since(started)}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return out, &errs.TimeoutError{Stage: "reachability", Elapsed: time.Since(started)}
		}
		for _, t := range n.EnabledTransitions(out[head]) {
			next := n.Fire(out[head], t)
			k := next.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, next)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
