// Package store ties the storage backend, the trigger registry, the
// cron scheduler and the events engine into one Store with a
// build, register, start, write, stop lifecycle.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rguptar/motion/internal/cron"
	"github.com/rguptar/motion/internal/events"
	eventsmemory "github.com/rguptar/motion/internal/events/memory"
	"github.com/rguptar/motion/internal/pipeline"
	"github.com/rguptar/motion/internal/storage"
	"github.com/rguptar/motion/internal/trigger"
)

// ErrNotListening is returned by Cursor before Start.
var ErrNotListening = errors.New("store has not started; call Start before using a cursor")

// Store is the single-process scheduling domain: all direct dispatch
// and cron execution of one store happens inside it.
type Store struct {
	backend   storage.Backend
	registry  *trigger.Registry
	scheduler *cron.Scheduler
	engine    *eventsmemory.Engine

	mu        sync.Mutex
	listening bool
}

// Option configures a Store.
type Option func(*options)

type options struct {
	external events.Publisher
}

// WithExternalPublisher additionally publishes firing events to an
// external publisher (e.g. NATS) besides the in-process engine.
func WithExternalPublisher(p events.Publisher) Option {
	return func(o *options) { o.external = p }
}

// New creates a store over the given backend.
func New(backend storage.Backend, opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		backend:   backend,
		scheduler: cron.NewScheduler(),
		engine:    eventsmemory.NewEngine(),
	}

	publisher := events.Publisher(s.engine)
	if o.external != nil {
		publisher = events.NewFanout(s.engine, o.external)
	}

	s.registry = trigger.NewRegistry(backend,
		func() trigger.Handle { return newConnection(s) },
		trigger.WithPublisher(publisher),
	)
	return s
}

// Registry exposes the trigger registry.
func (s *Store) Registry() *trigger.Registry {
	return s.registry
}

// Backend exposes the storage backend, for pipeline construction.
func (s *Store) Backend() storage.Backend {
	return s.backend
}

// AddNamespace creates a namespace with its field schema.
func (s *Store) AddNamespace(ctx context.Context, name string, schema storage.Schema) error {
	return s.backend.CreateNamespace(ctx, name, schema)
}

// DropNamespace removes a namespace and its rows.
func (s *Store) DropNamespace(ctx context.Context, name string) error {
	return s.backend.DropNamespace(ctx, name)
}

// AddTrigger registers a handler under the given keys.
func (s *Store) AddTrigger(ctx context.Context, name string, keys []string, handler any, opts ...trigger.Option) error {
	return s.registry.AddTrigger(ctx, name, keys, handler, opts...)
}

// DeleteTrigger removes a trigger from every index.
func (s *Store) DeleteTrigger(name string) error {
	return s.registry.DeleteTrigger(name)
}

// TriggersForKey returns the trigger names registered on
// namespace.field.
func (s *Store) TriggersForKey(namespace, field string) []string {
	return s.registry.TriggersForKey(namespace, field)
}

// TriggersForAllKeys returns every direct-dispatch key with its
// trigger names.
func (s *Store) TriggersForAllKeys() map[string][]string {
	return s.registry.TriggersForAllKeys()
}

// NewPipeline creates a pipeline executor over one namespace, backed
// by this store.
func (s *Store) NewPipeline(namespace string) *pipeline.PipelineExecutor {
	return pipeline.NewPipelineExecutor(s.backend, namespace)
}

// Start begins listening: cron workers spawn for every registered cron
// key and cursors become available.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening {
		slog.Warn("Store already started, doing nothing")
		return nil
	}
	if err := s.scheduler.Start(ctx, s.registry.CronJobs()); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}
	s.listening = true
	slog.Info("Store started")
	return nil
}

// Stop terminates the cron workers, waiting for in-flight invocations.
// Idempotent and safe before Start.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Stop()
	if s.listening {
		s.listening = false
		slog.Info("Store stopped")
	}
}

// Cursor mints a fresh read/write connection. The store must be
// started first.
func (s *Store) Cursor() (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening {
		return nil, ErrNotListening
	}
	return newConnection(s), nil
}

// WaitForTrigger blocks until the named trigger fires once, or the
// context ends. Subscribe-before-fire is the caller's responsibility.
func (s *Store) WaitForTrigger(ctx context.Context, name string) error {
	ch, unsubscribe, err := s.engine.Subscribe(ctx, "triggers."+name)
	if err != nil {
		return err
	}
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-ch:
		if !ok {
			return events.ErrEngineClosed
		}
		return nil
	}
}

// Close stops the store and releases the backend and events engine.
func (s *Store) Close(ctx context.Context) error {
	s.Stop()
	if err := s.engine.Close(); err != nil {
		return err
	}
	return s.backend.Close(ctx)
}

func (s *Store) namespaceSchema(ctx context.Context, name string) (storage.Schema, error) {
	namespaces, err := s.backend.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	schema, ok := namespaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}
	return schema, nil
}
