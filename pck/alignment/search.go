package alignment

import (
	"container/heap"
	"context"
	"time"

	"github.com/jtomasevic/treemine/pck/errs"
	"github.com/jtomasevic/treemine/pck/petri_net"
)

type searchNode struct {
	marking petri_net.Marking
	key     string
	g, h    int
	x       []float64
	// trusted means h was solved for this marking or derived exactly
	trusted bool
	parent  *searchNode
	via     *productTransition
	seq     int
	index   int
}

type openQueue []*searchNode

func (q openQueue) Len() int { return len(q) }

func (q openQueue) Less(i, j int) bool {
	fi, fj := q[i].g+q[i].h, q[j].g+q[j].h
	if fi != fj {
		return fi < fj
	}
	// deeper states first, then insertion order
	if q[i].g != q[j].g {
		return q[i].g > q[j].g
	}
	return q[i].seq < q[j].seq
}

func (q openQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *openQueue) Push(x any) {
	n := x.(*searchNode)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *openQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	n.index = -1
	return n
}

type searchParams struct {
	pr     *product
	start  petri_net.Marking
	isGoal func(petri_net.Marking) bool
	// heuristic is nil for Dijkstra
	heuristic *lpHeuristic
	deadline  time.Time
	maxH      int
}

func search(ctx context.Context, sp searchParams) (*Result, error) {
	started := time.Now()
	res := &Result{}
	open := &openQueue{}
	best := make(map[string]int)
	closed := make(map[string]struct{})
	seq := 0

	root := &searchNode{marking: sp.start, key: sp.start.Key(), trusted: true}
	if sp.heuristic != nil {
		est := sp.heuristic.solve(ctx, sp.deadline, sp.start)
		root.h, root.x = est.h, est.x
	}
	heap.Push(open, root)
	best[root.key] = 0
	res.QueuedStates++

	for open.Len() > 0 {
		if expired(ctx, sp.deadline) {
			return &Result{
				Timeout:       true,
				VisitedStates: res.VisitedStates,
				QueuedStates:  res.QueuedStates,
				TraversedArcs: res.TraversedArcs,
			}, &errs.TimeoutError{Stage: "alignment", Elapsed: time.Since(started)}
		}

		cur := heap.Pop(open).(*searchNode)
		if _, done := closed[cur.key]; done || cur.g > best[cur.key] {
			continue
		}
		if !cur.trusted {
			est := sp.heuristic.solve(ctx, sp.deadline, cur.marking)
			cur.trusted = true
			cur.x = est.x
			if est.h > cur.h {
				cur.h = est.h
				if cur.h <= sp.maxH {
					heap.Push(open, cur)
					res.QueuedStates++
				}
				continue
			}
		}

		if sp.isGoal(cur.marking) {
			res.Cost = cur.g
			res.EndMarking = sp.pr.modelPart(cur.marking)
			for n := cur; n.via != nil; n = n.parent {
				res.Moves = append(res.Moves, n.via.move())
			}
			for i, j := 0, len(res.Moves)-1; i < j; i, j = i+1, j-1 {
				res.Moves[i], res.Moves[j] = res.Moves[j], res.Moves[i]
			}
			return res, nil
		}

		closed[cur.key] = struct{}{}
		res.VisitedStates++
		for _, t := range sp.pr.enabled(cur.marking) {
			res.TraversedArcs++
			next := sp.pr.fire(cur.marking, t)
			key := next.Key()
			if _, done := closed[key]; done {
				continue
			}
			g := cur.g + t.cost
			if old, ok := best[key]; ok && old <= g {
				continue
			}
			child := &searchNode{marking: next, key: key, g: g, parent: cur, via: t, seq: seq}
			seq++
			if sp.heuristic == nil {
				child.trusted = true
			} else {
				child.h = cur.h - t.cost
				if child.h < 0 {
					child.h = 0
				}
				if cur.x != nil && cur.x[t.id] >= 1 {
					child.x = append([]float64(nil), cur.x...)
					child.x[t.id]--
					child.trusted = true
				}
			}
			if child.h > sp.maxH {
				continue
			}
			best[key] = g
			heap.Push(open, child)
			res.QueuedStates++
		}
	}
	return nil, errs.Invariant("alignment", "final marking is not reachable")
}
