// Package memory implements the storage backend with in-process maps.
// It is the default backend and mirrors the behavior the mongo backend
// provides against a live server.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rguptar/motion/internal/storage"
)

type namespace struct {
	schema storage.Schema
	nextID int64
	rows   map[int64]map[string]any
}

// Backend is an in-memory storage.Backend. Safe for concurrent use.
type Backend struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
	log        []storage.LogEntry
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{
		namespaces: make(map[string]*namespace),
	}
}

func (b *Backend) CreateNamespace(ctx context.Context, name string, schema storage.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("namespace %q: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.namespaces[name]; ok {
		slog.Warn("Namespace already exists, doing nothing", "namespace", name)
		return nil
	}
	b.namespaces[name] = &namespace{
		schema: schema,
		rows:   make(map[int64]map[string]any),
	}
	return nil
}

func (b *Backend) DropNamespace(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.namespaces[name]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}
	delete(b.namespaces, name)
	return nil
}

func (b *Backend) Namespaces(ctx context.Context) (map[string]storage.Schema, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]storage.Schema, len(b.namespaces))
	for name, ns := range b.namespaces {
		out[name] = ns.schema
	}
	return out, nil
}

func (b *Backend) NewID(ctx context.Context, name string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ns, ok := b.namespaces[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}
	ns.nextID++
	return ns.nextID, nil
}

func (b *Backend) Set(ctx context.Context, name string, id int64, values map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ns, ok := b.namespaces[name]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}

	checked := make(map[string]any, len(values))
	for field, value := range values {
		decl, ok := ns.schema.Field(field)
		if !ok {
			return fmt.Errorf("%w: %s.%s", storage.ErrUnknownField, name, field)
		}
		if err := storage.CheckValue(decl.Type, value); err != nil {
			return fmt.Errorf("%s.%s: %w", name, field, err)
		}
		checked[field] = storage.Normalize(decl.Type, value)
	}

	row, ok := ns.rows[id]
	if !ok {
		row = make(map[string]any, len(checked))
		ns.rows[id] = row
		if id > ns.nextID {
			ns.nextID = id
		}
	}
	for field, value := range checked {
		row[field] = value
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, name string, id int64, fields []string) (map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ns, ok := b.namespaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}
	row, ok := ns.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", storage.ErrNotFound, name, id)
	}

	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if value, ok := row[field]; ok {
			out[field] = value
		}
	}
	return out, nil
}

func (b *Backend) IDsBefore(ctx context.Context, name string, id int64) ([]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ns, ok := b.namespaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}

	ids := make([]int64, 0, len(ns.rows))
	for rowID := range ns.rows {
		if rowID < id {
			ids = append(ids, rowID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (b *Backend) AppendLog(ctx context.Context, entry *storage.LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.log = append(b.log, *entry)
	return nil
}

func (b *Backend) MaxTriggerVersion(ctx context.Context, name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	max := 0
	for _, entry := range b.log {
		if entry.TriggerName == name && entry.TriggerVersion > max {
			max = entry.TriggerVersion
		}
	}
	return max, nil
}

// Log returns a copy of the firing log in append order.
func (b *Backend) Log() []storage.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]storage.LogEntry, len(b.log))
	copy(out, b.log)
	return out
}

func (b *Backend) Close(ctx context.Context) error {
	return nil
}
