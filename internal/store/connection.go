package store

import (
	"context"

	"github.com/google/uuid"
)

// Connection is a read/write handle over one store. Every trigger
// invocation receives its own fresh connection; handlers must not
// share connections across invocations.
type Connection struct {
	id    string
	store *Store
}

func newConnection(s *Store) *Connection {
	return &Connection{
		id:    uuid.NewString(),
		store: s,
	}
}

// ID returns the connection's identity, used in logs.
func (c *Connection) ID() string {
	return c.id
}

// Get reads the named fields of a row. Fields never written are
// omitted from the result.
func (c *Connection) Get(ctx context.Context, namespace string, id int64, fields []string) (map[string]any, error) {
	return c.store.backend.Get(ctx, namespace, id, fields)
}

// Set writes field values for a row, then synchronously dispatches
// every trigger registered on the written keys, in namespace schema
// order. Set returns once all handlers have run; the first handler
// error aborts the remaining dispatches.
func (c *Connection) Set(ctx context.Context, namespace string, id int64, values map[string]any) error {
	if err := c.store.backend.Set(ctx, namespace, id, values); err != nil {
		return err
	}

	schema, err := c.store.namespaceSchema(ctx, namespace)
	if err != nil {
		return err
	}
	for _, field := range schema.FieldNames() {
		value, ok := values[field]
		if !ok {
			continue
		}
		if err := c.store.registry.Dispatch(ctx, namespace, field, id, value); err != nil {
			return err
		}
	}
	return nil
}

// NewID allocates the next row id for a namespace.
func (c *Connection) NewID(ctx context.Context, namespace string) (int64, error) {
	return c.store.backend.NewID(ctx, namespace)
}

// Duplicate mints a fresh connection over the same store.
func (c *Connection) Duplicate() *Connection {
	return newConnection(c.store)
}
