package alignment

import (
	"context"
	"sync"

	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

type LogResult struct {
	Trace  event_log.Trace
	Result *Result
	Error  error
}

// Pool aligns the traces of a log concurrently. Results keep the log order.
type Pool struct {
	aligner *Aligner
	size    int
}

func NewPool(aligner *Aligner, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{aligner: aligner, size: size}
}

func (p *Pool) Size() int { return p.size }

// AlignLog aligns every trace against the tree. The tree is only read.
func (p *Pool) AlignLog(ctx context.Context, tree *process_tree.Tree, log event_log.Log) []LogResult {
	results := make([]LogResult, len(log))
	if p.size == 1 {
		for i, t := range log {
			res, err := p.aligner.AlignTrace(ctx, tree, t)
			results[i] = LogResult{Trace: t, Result: res, Error: err}
		}
		return results
	}

	semaphore := make(chan struct{}, p.size)
	var wg sync.WaitGroup
	for i, t := range log {
		wg.Add(1)
		go func(idx int, tr event_log.Trace) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				results[idx] = LogResult{Trace: tr, Error: ctx.Err()}
				return
			}

			res, err := p.aligner.AlignTrace(ctx, tree, tr)
			results[idx] = LogResult{Trace: tr, Result: res, Error: err}
		}(i, t)
	}
	wg.Wait()
	return results
}
