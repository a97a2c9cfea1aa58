// Package storage defines the row store consumed by the trigger and
// pipeline layers, together with the backends that implement it.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("row not found")
	// ErrUnknownNamespace is returned for operations on a namespace that
	// was never created.
	ErrUnknownNamespace = errors.New("unknown namespace")
	// ErrUnknownField is returned when a write names a field outside the
	// namespace schema.
	ErrUnknownField = errors.New("field not in namespace schema")
)

// LogEntry is one row of the append-only trigger firing log. The log is
// the source of truth for trigger version continuity across restarts.
type LogEntry struct {
	ExecutedTime   time.Time `bson:"executed_time"`
	TriggerName    string    `bson:"trigger_name"`
	TriggerVersion int       `bson:"trigger_version"`
	TriggerAction  string    `bson:"trigger_action"`
	Namespace      string    `bson:"namespace"`
	ID             int64     `bson:"id"`
	TriggerKey     string    `bson:"trigger_key"`
}

// Backend is the storage collaborator. Implementations must be safe for
// concurrent use.
type Backend interface {
	// CreateNamespace registers a namespace with its field schema.
	// Creating a namespace that already exists logs a warning and is a
	// no-op.
	CreateNamespace(ctx context.Context, name string, schema Schema) error

	// DropNamespace removes a namespace and all of its rows.
	DropNamespace(ctx context.Context, name string) error

	// Namespaces returns the namespace -> schema reference used for
	// trigger key validation.
	Namespaces(ctx context.Context) (map[string]Schema, error)

	// NewID allocates the next row id for a namespace. Ids are
	// monotonically increasing per namespace.
	NewID(ctx context.Context, namespace string) (int64, error)

	// Set upserts field values for a row. Fields must belong to the
	// namespace schema and values must satisfy the field type contract.
	Set(ctx context.Context, namespace string, id int64, values map[string]any) error

	// Get reads the named fields of a row. Fields that were never
	// written are omitted from the result.
	Get(ctx context.Context, namespace string, id int64, fields []string) (map[string]any, error)

	// IDsBefore returns the ids of all rows strictly ordered before id,
	// in ascending order.
	IDsBefore(ctx context.Context, namespace string, id int64) ([]int64, error)

	// AppendLog appends one entry to the trigger firing log.
	AppendLog(ctx context.Context, entry *LogEntry) error

	// MaxTriggerVersion returns the highest trigger_version ever logged
	// for the named trigger, or 0 if it never fired.
	MaxTriggerVersion(ctx context.Context, name string) (int, error)

	// Close releases the backend's resources.
	Close(ctx context.Context) error
}
