package prepare

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/cache"
	"plotprep/internal/frame"
	"plotprep/internal/listcol"
)

// ErrUnknownSource is returned for a source id the workspace does not hold.
var ErrUnknownSource = errors.New("prepare: unknown source")

// Options configures a Workspace.
type Options struct {
	// Detector controls list-column detection (sample size, full scan).
	Detector listcol.Detector
	// MatrixBudget caps one expanded matrix in bytes. Zero means
	// listcol.DefaultBudget, negative disables the cap.
	MatrixBudget int64
	Logger       Logger
}

// Workspace holds loaded sources together with their derived state:
// detected list columns and expanded channel matrices. Replacing or
// removing a source drops that state. A Workspace is safe for concurrent
// use.
type Workspace struct {
	mu      sync.RWMutex
	sources map[string]frame.Source

	detector listcol.Detector
	detected *cache.Store[map[string]listcol.Info]
	matrices *cache.Store[*listcol.Matrix]
	pipeline *Pipeline
}

// NewWorkspace returns an empty workspace.
func NewWorkspace(opts Options) *Workspace {
	budget := opts.MatrixBudget
	switch {
	case budget == 0:
		budget = listcol.DefaultBudget
	case budget < 0:
		budget = 0
	}
	matrices := cache.New[*listcol.Matrix]("matrix")
	exp := &listcol.Expander{Cache: matrices, Budget: budget, Logger: opts.Logger}
	return &Workspace{
		sources:  make(map[string]frame.Source),
		detector: opts.Detector,
		detected: cache.New[map[string]listcol.Info]("detect"),
		matrices: matrices,
		pipeline: &Pipeline{Expander: exp, Logger: opts.Logger},
	}
}

// Add registers t under a fresh source id.
func (w *Workspace) Add(name string, t *table.Table) frame.Source {
	src := frame.NewSource(name, t)
	w.mu.Lock()
	w.sources[src.ID] = src
	w.mu.Unlock()
	return src
}

// Replace swaps the table of source id for t. The replacement gets a new
// id and every artifact derived from the old table is dropped.
func (w *Workspace) Replace(id string, t *table.Table) (frame.Source, error) {
	w.mu.Lock()
	old, ok := w.sources[id]
	if !ok {
		w.mu.Unlock()
		return frame.Source{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	src := frame.NewSource(old.Name, t)
	delete(w.sources, id)
	w.sources[src.ID] = src
	w.mu.Unlock()

	w.invalidate(id)
	return src, nil
}

// Remove drops source id and its derived state. It reports whether the
// source existed.
func (w *Workspace) Remove(id string) bool {
	w.mu.Lock()
	_, ok := w.sources[id]
	delete(w.sources, id)
	w.mu.Unlock()
	if ok {
		w.invalidate(id)
	}
	return ok
}

func (w *Workspace) invalidate(id string) {
	n := w.matrices.Invalidate(id) + w.detected.Invalidate(id)
	w.pipeline.logger()("stage=invalidate source=%s entries=%d", id, n)
}

// Source returns source id.
func (w *Workspace) Source(id string) (frame.Source, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	src, ok := w.sources[id]
	return src, ok
}

// Sources lists the loaded sources, oldest first.
func (w *Workspace) Sources() []frame.Source {
	w.mu.RLock()
	out := make([]frame.Source, 0, len(w.sources))
	for _, s := range w.sources {
		out = append(out, s)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].LoadedAt.Before(out[j].LoadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Detect returns the list columns of source id, computing them once per
// source.
func (w *Workspace) Detect(id string) (map[string]listcol.Info, error) {
	src, ok := w.Source(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	infos, _, err := w.detected.GetOrCompute(cache.Key{Source: id}, func() (map[string]listcol.Info, int64, error) {
		infos := w.detector.Detect(src.Table)
		return infos, int64(len(infos)) * 64, nil
	})
	return infos, err
}

// Prepare runs the pipeline for req on source id. The only error is an
// unknown source; data problems surface as Prepared.Warnings.
func (w *Workspace) Prepare(id string, req Request) (Prepared, error) {
	src, ok := w.Source(id)
	if !ok {
		return Prepared{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	infos, err := w.Detect(id)
	if err != nil {
		return Prepared{}, err
	}
	return w.pipeline.Prepare(src, infos, req), nil
}

// CacheStats reports the matrix cache.
func (w *Workspace) CacheStats() cache.Stats { return w.matrices.Stats() }
