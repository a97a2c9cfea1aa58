// Package trigger implements the registry that binds mutation keys and
// cron schedules to handlers, dispatches them on writes and records the
// firing log.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

var (
	// ErrUnknownTrigger is returned when deleting a trigger that was
	// never registered.
	ErrUnknownTrigger = errors.New("unknown trigger")
	// ErrBadHandler is returned when a registration's handler is
	// neither a HandlerFunc nor a Factory.
	ErrBadHandler = errors.New("handler must be a trigger.HandlerFunc or trigger.Factory")
)

// Element describes the mutation that fired a trigger. Cron fires carry
// a zero Element.
type Element struct {
	Namespace string `json:"namespace"`
	ID        int64  `json:"id"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
}

// Handle is the read/write capability a handler receives. Every
// invocation gets a fresh handle.
type Handle interface {
	Get(ctx context.Context, namespace string, id int64, fields []string) (map[string]any, error)
	Set(ctx context.Context, namespace string, id int64, values map[string]any) error
	NewID(ctx context.Context, namespace string) (int64, error)
}

// HandleFactory mints a fresh Handle for one invocation.
type HandleFactory func() Handle

// Handler is the invocation contract shared by both handler forms.
type Handler interface {
	Invoke(ctx context.Context, h Handle, id int64, el Element) error
}

// HandlerFunc is the stateless handler form.
type HandlerFunc func(ctx context.Context, h Handle, id int64, el Element) error

// Invoke calls the function.
func (f HandlerFunc) Invoke(ctx context.Context, h Handle, id int64, el Element) error {
	return f(ctx, h, id, el)
}

// Factory is the stateful handler form: it is constructed once at
// registration time from a handle, the trigger name and its version.
type Factory func(h Handle, name string, version int) (Handler, error)

// Registration is one registered trigger with its instantiated handler.
type Registration struct {
	Name    string
	Keys    []string
	Version int
	Handler Handler
	// Stateful records whether the handler came from a Factory.
	Stateful bool

	condition cel.Program
}

// FiringEvent is the payload published after each invocation.
type FiringEvent struct {
	TriggerName    string `json:"trigger_name"`
	TriggerVersion int    `json:"trigger_version"`
	Action         string `json:"action"`
	Namespace      string `json:"namespace"`
	ID             int64  `json:"id"`
	Key            string `json:"key"`
}

// Subject returns the events subject a firing is published on.
func (e FiringEvent) Subject() string {
	return fmt.Sprintf("triggers.%s", e.TriggerName)
}
