package alignment

import (
	"context"
	"sync"

	"github.com/jtomasevic/treemine/pck/event_log"
	"github.com/jtomasevic/treemine/pck/process_tree"
)

// FitCache memoizes replay checks. Entries are keyed by the printed tree and
// the trace key, so a modified tree never hits an entry of its earlier shape.
type FitCache struct {
	mu   sync.RWMutex
	fits map[fitCacheKey]bool
}

func NewFitCache() *FitCache {
	return &FitCache{fits: make(map[fitCacheKey]bool)}
}

type fitCacheKey struct {
	tree  string
	trace string
}

func newFitCacheKey(tree *process_tree.Tree, t event_log.Trace) fitCacheKey {
	return fitCacheKey{tree: tree.String(), trace: t.Key()}
}

func (c *FitCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fits)
}

func (c *FitCache) getOrCompute(key fitCacheKey, compute func() (bool, error)) (bool, error) {
	c.mu.RLock()
	fits, ok := c.fits[key]
	c.mu.RUnlock()
	if ok {
		return fits, nil
	}

	fits, err := compute()
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.fits[key] = fits
	c.mu.Unlock()
	return fits, nil
}

// WithFitCache returns an aligner that answers Fits from the cache.
func (a *Aligner) WithFitCache(c *FitCache) *Aligner {
	out := *a
	out.cache = c
	return &out
}

func (a *Aligner) cachedFits(ctx context.Context, tree *process_tree.Tree, t event_log.Trace) (bool, error) {
	return a.cache.getOrCompute(newFitCacheKey(tree, t), func() (bool, error) {
		res, err := a.AlignTrace(ctx, tree, t)
		if err != nil {
			return false, err
		}
		return res.IsFitting(), nil
	})
}
