package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rguptar/motion/internal/storage"
)

// TransformExecutor wraps one transform with its versioned state
// history. Fit and Infer are serialized per executor: the state history
// is shared, and a fit in progress must not interleave with snapshot
// selection.
type TransformExecutor struct {
	mu           sync.Mutex
	transform    Transform
	backend      storage.Backend
	namespace    string
	maxStaleness int64

	// history maps the id a snapshot was produced at to the snapshot.
	// Append-only for the life of the executor.
	history map[int64]State

	// fitID is set while a fit is in progress; it gates RecordState.
	fitID *int64
}

// NewTransformExecutor creates an executor for one transform over one
// namespace. maxStaleness bounds how far behind the inference id a
// reused snapshot may be; 0 requires an exact snapshot.
func NewTransformExecutor(t Transform, backend storage.Backend, namespace string, maxStaleness int64) *TransformExecutor {
	if maxStaleness < 0 {
		maxStaleness = 0
	}
	return &TransformExecutor{
		transform:    t,
		backend:      backend,
		namespace:    namespace,
		maxStaleness: maxStaleness,
		history:      make(map[int64]State),
	}
}

// Name returns the wrapped transform's name.
func (e *TransformExecutor) Name() string {
	return e.transform.Name()
}

// Fit trains the transform on all rows strictly before id and records
// the resulting state snapshot at id.
func (e *TransformExecutor) Fit(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fit(ctx, id)
}

func (e *TransformExecutor) fit(ctx context.Context, id int64) error {
	trainIDs, err := e.backend.IDsBefore(ctx, e.namespace, id)
	if err != nil {
		return fmt.Errorf("transform %q: training ids before %d: %w", e.Name(), id, err)
	}

	featureSchema := e.transform.FeatureSchema()
	labelSchema := e.transform.LabelSchema()

	features := make([]Record, 0, len(trainIDs))
	labels := make([]Record, 0, len(trainIDs))
	for _, trainID := range trainIDs {
		// An id must never train on itself.
		if trainID >= id {
			return fatalf("transform %q: training set for id %d contains id %d", e.Name(), id, trainID)
		}

		feature, err := e.readRecord(ctx, trainID, featureSchema)
		if err != nil {
			return err
		}
		label, err := e.readRecord(ctx, trainID, labelSchema)
		if err != nil {
			return err
		}
		features = append(features, feature)
		labels = append(labels, label)
	}

	fc := &FitContext{exec: e, id: id, active: true}
	e.fitID = &id
	defer func() {
		fc.active = false
		e.fitID = nil
	}()

	slog.Debug("Fitting transform", "transform", e.Name(), "id", id, "train_rows", len(trainIDs))

	state, err := e.transform.Fit(ctx, fc, features, labels)
	if err != nil {
		return fmt.Errorf("transform %q: fit at id %d: %w", e.Name(), id, err)
	}
	if state != nil {
		e.history[id] = state.Clone()
	}
	if _, ok := e.history[id]; !ok {
		return fatalf("transform %q: fit at id %d produced no state", e.Name(), id)
	}
	return nil
}

// Infer computes a result for id. It reuses the newest snapshot within
// the staleness window, or retrains synchronously at id when none
// qualifies.
func (e *TransformExecutor) Infer(ctx context.Context, id int64) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	features, err := e.readRecord(ctx, id, e.transform.FeatureSchema())
	if err != nil {
		return nil, err
	}

	version, ok := e.snapshotFor(id)
	if !ok {
		if err := e.fit(ctx, id); err != nil {
			return nil, err
		}
		version = id
	}

	result, err := e.transform.Infer(ctx, e.history[version], features)
	if err != nil {
		return nil, fmt.Errorf("transform %q: infer at id %d (state %d): %w", e.Name(), id, version, err)
	}
	return result, nil
}

// snapshotFor selects the greatest snapshot version v with
// v <= id and v >= id - maxStaleness.
func (e *TransformExecutor) snapshotFor(id int64) (int64, bool) {
	var best int64
	found := false
	for v := range e.history {
		if v > id || v < id-e.maxStaleness {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}

// StateVersions returns the ids of all recorded snapshots. Primarily
// for observability; the history itself is never exposed.
func (e *TransformExecutor) StateVersions() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	versions := make([]int64, 0, len(e.history))
	for v := range e.history {
		versions = append(versions, v)
	}
	return versions
}

// readRecord reads the schema's fields for a row, omitting absent
// fields and checking the value contract of present ones. Contract
// failures are fatal for the row.
func (e *TransformExecutor) readRecord(ctx context.Context, id int64, schema storage.Schema) (Record, error) {
	if len(schema) == 0 {
		return Record{}, nil
	}

	values, err := e.backend.Get(ctx, e.namespace, id, schema.FieldNames())
	if err != nil {
		return nil, fmt.Errorf("transform %q: read row %d: %w", e.Name(), id, err)
	}

	rec := make(Record, len(values))
	for _, field := range schema {
		value, ok := values[field.Name]
		if !ok || value == nil {
			continue
		}
		if err := storage.CheckValue(field.Type, value); err != nil {
			return nil, &FatalError{Err: fmt.Errorf("transform %q: row %d field %q: %w", e.Name(), id, field.Name, err)}
		}
		rec[field.Name] = storage.Normalize(field.Type, value)
	}
	return rec, nil
}
