package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rguptar/motion/internal/storage"
	"github.com/rguptar/motion/internal/trigger"
)

// PipelineExecutor holds a set of transform executors plus their
// dependency DAG and runs inference across batches of ids in
// topological order.
type PipelineExecutor struct {
	mu        sync.RWMutex
	backend   storage.Backend
	namespace string
	executors map[string]*TransformExecutor
	dag       map[string]map[string]struct{}
}

// NewPipelineExecutor creates an empty pipeline over one namespace.
func NewPipelineExecutor(backend storage.Backend, namespace string) *PipelineExecutor {
	return &PipelineExecutor{
		backend:   backend,
		namespace: namespace,
		executors: make(map[string]*TransformExecutor),
		dag:       make(map[string]map[string]struct{}),
	}
}

// AddTransform registers a transform with its dependencies (by
// transform name). Re-registering a name silently replaces the earlier
// transform and its edges — callers must not rely on this.
func (p *PipelineExecutor) AddTransform(t Transform, maxStaleness int64, dependencies ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := t.Name()
	if _, ok := p.executors[name]; ok {
		slog.Warn("Transform replaced under existing name", "transform", name)
	}

	deps := make(map[string]struct{}, len(dependencies))
	for _, dep := range dependencies {
		deps[dep] = struct{}{}
	}
	p.executors[name] = NewTransformExecutor(t, p.backend, p.namespace, maxStaleness)
	p.dag[name] = deps
}

// ExecuteMany runs inference for every id through every transform, in
// dependency order: a transform never runs before all of its
// dependencies have completed the whole batch. Within a transform, ids
// run sequentially in batch order.
//
// The result map is keyed by id only: when several transforms produce a
// result for the same id, the transform processed last wins. Callers
// that need per-transform results must collect them on the transform
// side.
func (p *PipelineExecutor) ExecuteMany(ctx context.Context, ids []int64) (map[int64]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Plan first: a cyclic graph fails before any transform runs.
	levels, err := topoLevels(p.dag)
	if err != nil {
		return nil, err
	}

	results := make(map[int64]any, len(ids))
	for _, level := range levels {
		for _, node := range level {
			executor := p.executors[node]
			for _, id := range ids {
				result, err := executor.Infer(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("pipeline node %q: %w", node, err)
				}
				results[id] = result
			}
		}
	}
	return results, nil
}

// ExecuteOne runs the pipeline for a single id and returns its result.
func (p *PipelineExecutor) ExecuteOne(ctx context.Context, id int64) (any, error) {
	results, err := p.ExecuteMany(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	return results[id], nil
}

// Transform returns the executor registered under name.
func (p *PipelineExecutor) Transform(name string) (*TransformExecutor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	executor, ok := p.executors[name]
	return executor, ok
}

// Handler adapts the pipeline to the trigger invocation contract, so a
// transform-backed pipeline can hang off mutation keys or cron
// schedules.
func (p *PipelineExecutor) Handler() trigger.HandlerFunc {
	return func(ctx context.Context, h trigger.Handle, id int64, el trigger.Element) error {
		_, err := p.ExecuteOne(ctx, id)
		return err
	}
}
