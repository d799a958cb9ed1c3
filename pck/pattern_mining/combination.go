package pattern_mining

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// enumerationGraph orders the infix patterns by containment. descendants[i]
// lists the patterns that contain pattern i.
type enumerationGraph struct {
	patterns    []*Pattern
	descendants [][]int
}

func newEnumerationGraph(patterns []*Pattern) (*enumerationGraph, error) {
	g := &enumerationGraph{patterns: patterns, descendants: make([][]int, len(patterns))}
	for i, p := range patterns {
		for j, q := range patterns {
			if q.Size() <= p.Size() {
				continue
			}
			ok, err := Contained(p, q)
			if err != nil {
				return nil, err
			}
			if ok {
				g.descendants[i] = append(g.descendants[i], j)
			}
		}
	}
	return g, nil
}

// combination mines the patterns without eventually-follows parts first and
// then joins them: every frequent pattern is extended by every infix pattern
// that can follow it. A failed join excludes the infix patterns containing
// the failed one for the same prefix.
func (s *search) combination(ctx context.Context) error {
	keep := s.keep
	s.keep = true
	s.efMoves = false
	if err := s.rightmost(ctx); err != nil {
		return err
	}
	s.keep = keep

	infix := make([]*Pattern, 0, len(s.valid))
	for _, p := range s.valid {
		infix = append(infix, p)
	}
	sort.Slice(infix, func(i, j int) bool {
		if infix[i].Size() != infix[j].Size() {
			return infix[i].Size() < infix[j].Size()
		}
		return infix[i].Key() < infix[j].Key()
	})
	representative := map[*Pattern]bool{}
	for _, p := range infix {
		representative[p] = true
	}
	s.store.Retain(func(p *Pattern) bool { return representative[p] })

	g, err := newEnumerationGraph(infix)
	if err != nil {
		return err
	}
	span := trace.SpanFromContext(ctx)
	span.AddEvent("infix patterns", trace.WithAttributes(attribute.Int("count", len(infix))))

	queue := append([]*Pattern(nil), infix...)
	for len(queue) > 0 {
		if err := s.interrupted(ctx); err != nil {
			return err
		}
		prefix := queue[0]
		queue = queue[1:]
		excluded := map[int]bool{}
		for j, q := range infix {
			if excluded[j] {
				continue
			}
			if s.m.opts.MaxSize > 0 && prefix.Size()+q.Size() > s.m.opts.MaxSize {
				continue
			}
			c := concat(prefix, q)
			s.assignID(c)
			ok, err := s.store.Combine(c, prefix, q)
			if err != nil {
				return err
			}
			if !ok {
				if s.transaction() {
					for _, k := range g.descendants[j] {
						excluded[k] = true
					}
				}
				continue
			}
			s.record(c)
			queue = append(queue, c)
		}
		if !s.keep && prefix.SubPatterns() > 1 {
			s.store.Discard(prefix)
		}
	}
	return nil
}
