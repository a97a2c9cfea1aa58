package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rguptar/motion/internal/cron"
	"github.com/rguptar/motion/internal/events"
	"github.com/rguptar/motion/internal/storage"
)

const (
	// ActionSet marks firings caused by a direct-dispatch write.
	ActionSet = "set"
	// ActionCron marks firings caused by a cron schedule.
	ActionCron = "cron"
)

// Registry owns all trigger registrations of one store instance. Both
// indices (direct-dispatch and cron) are mutated only by AddTrigger and
// DeleteTrigger, which are exclusive relative to dispatch.
type Registry struct {
	mu        sync.RWMutex
	backend   storage.Backend
	handles   HandleFactory
	publisher events.Publisher

	registrations map[string]*Registration
	direct        map[string][]*Registration
	crons         map[string][]*Registration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPublisher makes the registry publish a FiringEvent after every
// invocation.
func WithPublisher(p events.Publisher) RegistryOption {
	return func(r *Registry) { r.publisher = p }
}

// NewRegistry creates an empty registry over the given backend. handles
// mints the fresh read/write handle passed to every invocation.
func NewRegistry(backend storage.Backend, handles HandleFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend:       backend,
		handles:       handles,
		registrations: make(map[string]*Registration),
		direct:        make(map[string][]*Registration),
		crons:         make(map[string][]*Registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option configures one registration.
type Option func(*Registration) error

// WithCondition gates the trigger behind a CEL expression over the
// triggering element (variables: namespace, id, key, value). Cron fires
// carry no element and bypass the condition.
func WithCondition(expr string) Option {
	return func(reg *Registration) error {
		prg, err := compileCondition(expr)
		if err != nil {
			return err
		}
		reg.condition = prg
		return nil
	}
}

// AddTrigger registers a handler under the given keys. Registering an
// existing name logs a warning and is a no-op. Any validation failure
// leaves the registry unchanged.
func (r *Registry) AddTrigger(ctx context.Context, name string, keys []string, handler any, opts ...Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registrations[name]; ok {
		slog.Warn("Trigger already exists, doing nothing", "trigger", name)
		return nil
	}
	if len(keys) == 0 {
		return fmt.Errorf("trigger %q needs at least one key", name)
	}

	namespaces, err := r.backend.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("load namespace reference: %w", err)
	}
	directKeys, cronKeys, err := splitKeys(name, keys, namespaces)
	if err != nil {
		return err
	}

	// The firing log carries version continuity across restarts: a
	// re-created trigger resumes above anything it ever logged.
	maxLogged, err := r.backend.MaxTriggerVersion(ctx, name)
	if err != nil {
		return fmt.Errorf("read max version for trigger %q: %w", name, err)
	}
	version := maxLogged + 1

	instance, stateful, err := resolveHandler(handler, r.handles(), name, version)
	if err != nil {
		return err
	}

	reg := &Registration{
		Name:     name,
		Keys:     keys,
		Version:  version,
		Handler:  instance,
		Stateful: stateful,
	}
	for _, opt := range opts {
		if err := opt(reg); err != nil {
			return err
		}
	}

	r.registrations[name] = reg
	for _, key := range directKeys {
		r.direct[key] = append(r.direct[key], reg)
	}
	for _, key := range cronKeys {
		r.crons[key] = append(r.crons[key], reg)
	}

	slog.Info("Trigger registered",
		"trigger", name, "version", version, "keys", keys, "stateful", stateful)
	return nil
}

// DeleteTrigger removes a trigger from every index it was filed under.
func (r *Registry) DeleteTrigger(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, name)
	}

	for key, regs := range r.direct {
		r.direct[key] = remove(regs, reg)
		if len(r.direct[key]) == 0 {
			delete(r.direct, key)
		}
	}
	for key, regs := range r.crons {
		r.crons[key] = remove(regs, reg)
		if len(r.crons[key]) == 0 {
			delete(r.crons, key)
		}
	}
	delete(r.registrations, name)

	slog.Info("Trigger deleted", "trigger", name)
	return nil
}

// TriggersForKey returns the names registered on namespace.field, in
// registration order.
func (r *Registry) TriggersForKey(namespace, field string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.direct[namespace+"."+field]
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}

// TriggersForAllKeys returns every direct-dispatch key with its trigger
// names.
func (r *Registry) TriggersForAllKeys() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.direct))
	for key, regs := range r.direct {
		names := make([]string, len(regs))
		for i, reg := range regs {
			names[i] = reg.Name
		}
		out[key] = names
	}
	return out
}

// Dispatch fires, synchronously and in registration order, every
// handler registered on namespace.field. Each invocation gets a fresh
// handle and appends one firing log entry. The first handler error
// aborts the remaining handlers and propagates to the writer.
func (r *Registry) Dispatch(ctx context.Context, namespace, field string, id int64, value any) error {
	key := namespace + "." + field

	r.mu.RLock()
	regs := make([]*Registration, len(r.direct[key]))
	copy(regs, r.direct[key])
	r.mu.RUnlock()

	for _, reg := range regs {
		el := Element{Namespace: namespace, ID: id, Key: key, Value: value}

		if reg.condition != nil {
			matched, err := evalCondition(reg.condition, el)
			if err != nil {
				slog.Error("Trigger condition failed, skipping handler",
					"trigger", reg.Name, "key", key, "error", err)
				continue
			}
			if !matched {
				continue
			}
		}

		if err := r.fire(ctx, reg, ActionSet, namespace, id, key, el); err != nil {
			return err
		}
	}
	return nil
}

// CronJobs builds the scheduler's job list from the cron index. Called
// once at Start; later registrations are picked up on the next Start.
func (r *Registry) CronJobs() []cron.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []cron.Job
	for expr, regs := range r.crons {
		for _, reg := range regs {
			expr, reg := expr, reg
			jobs = append(jobs, cron.Job{
				Schedule: expr,
				Name:     reg.Name,
				Run: func(ctx context.Context) error {
					// Cron fires reference no specific row.
					return r.fire(ctx, reg, ActionCron, "", 0, expr, Element{})
				},
			})
		}
	}
	return jobs
}

// fire runs one invocation: handler, log entry, firing event. A panic
// in the handler is recovered into an error. The log entry is appended
// for the invocation whether or not the handler succeeded.
func (r *Registry) fire(ctx context.Context, reg *Registration, action, namespace string, id int64, key string, el Element) error {
	invokeErr := r.invoke(ctx, reg, id, el)

	entry := &storage.LogEntry{
		ExecutedTime:   time.Now(),
		TriggerName:    reg.Name,
		TriggerVersion: reg.Version,
		TriggerAction:  action,
		Namespace:      namespace,
		ID:             id,
		TriggerKey:     key,
	}
	if err := r.backend.AppendLog(ctx, entry); err != nil {
		slog.Error("Failed to append firing log entry", "trigger", reg.Name, "error", err)
	}

	r.publishFiring(ctx, reg, action, namespace, id, key)

	if invokeErr != nil {
		return fmt.Errorf("trigger %q on key %q: %w", reg.Name, key, invokeErr)
	}
	return nil
}

func (r *Registry) invoke(ctx context.Context, reg *Registration, id int64, el Element) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return reg.Handler.Invoke(ctx, r.handles(), id, el)
}

func (r *Registry) publishFiring(ctx context.Context, reg *Registration, action, namespace string, id int64, key string) {
	if r.publisher == nil {
		return
	}

	evt := FiringEvent{
		TriggerName:    reg.Name,
		TriggerVersion: reg.Version,
		Action:         action,
		Namespace:      namespace,
		ID:             id,
		Key:            key,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Failed to encode firing event", "trigger", reg.Name, "error", err)
		return
	}
	if err := r.publisher.Publish(ctx, evt.Subject(), data); err != nil {
		slog.Error("Failed to publish firing event", "trigger", reg.Name, "error", err)
	}
}

func remove(regs []*Registration, target *Registration) []*Registration {
	out := regs[:0]
	for _, reg := range regs {
		if reg != target {
			out = append(out, reg)
		}
	}
	return out
}
