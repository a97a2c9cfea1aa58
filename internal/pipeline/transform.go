// Package pipeline executes stateful transforms over the row store:
// per-transform versioned state with bounded staleness, on-demand
// retraining, and DAG-ordered execution across dependent transforms.
package pipeline

import (
	"context"

	"github.com/rguptar/motion/internal/storage"
)

// Record is one row restricted to a transform's feature or label
// schema. Fields whose stored value is absent are omitted.
type Record map[string]any

// State is a transform's internal model state. Clone must return a deep
// copy; recorded snapshots are clones and are never mutated afterwards.
type State interface {
	Clone() State
}

// Transform is a fit/infer unit. Infer receives the selected state
// snapshot explicitly and must treat it as read-only; implementations
// never hold state in shared fields, so staggered calls cannot observe
// each other's snapshot selection.
type Transform interface {
	// Name identifies the transform inside a pipeline DAG.
	Name() string

	// FeatureSchema declares the fields read into feature records.
	FeatureSchema() storage.Schema

	// LabelSchema declares the fields read into label records.
	LabelSchema() storage.Schema

	// Fit trains on all rows before the fit id and returns the
	// resulting state. Intermediate snapshots may be recorded through
	// the FitContext while the call is active.
	Fit(ctx context.Context, fit *FitContext, features, labels []Record) (State, error)

	// Infer computes a result for one feature record using the given
	// state snapshot.
	Infer(ctx context.Context, state State, features Record) (any, error)
}

// FitContext is the only legal context for recording state snapshots.
// It is valid exactly for the duration of the Fit call it was created
// for.
type FitContext struct {
	exec   *TransformExecutor
	id     int64
	active bool
}

// RecordState snapshots state at the fit id. The snapshot is a deep
// copy; mutating state afterwards does not change it. Calling
// RecordState once the fit has returned is a fatal programming error.
func (fc *FitContext) RecordState(state State) error {
	if !fc.active {
		return &FatalError{Err: ErrNoActiveFit}
	}
	fc.exec.history[fc.id] = state.Clone()
	return nil
}

// ID returns the id the active fit is training for.
func (fc *FitContext) ID() int64 {
	return fc.id
}
