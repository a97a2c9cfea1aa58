package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rguptar/motion/internal/storage"
	"github.com/rguptar/motion/internal/storage/memory"
)

type testHandle struct {
	backend storage.Backend
}

func (h testHandle) Get(ctx context.Context, namespace string, id int64, fields []string) (map[string]any, error) {
	return h.backend.Get(ctx, namespace, id, fields)
}

func (h testHandle) Set(ctx context.Context, namespace string, id int64, values map[string]any) error {
	return h.backend.Set(ctx, namespace, id, values)
}

func (h testHandle) NewID(ctx context.Context, namespace string) (int64, error) {
	return h.backend.NewID(ctx, namespace)
}

// firing records one observed handler invocation.
type firing struct {
	ID      int64
	Element Element
}

func newTestRegistry(t *testing.T) (*Registry, *memory.Backend) {
	t.Helper()
	backend := memory.NewBackend()
	require.NoError(t, backend.CreateNamespace(context.Background(), "chat", storage.Schema{
		{Name: "prompt", Type: storage.FieldString},
		{Name: "completion", Type: storage.FieldString},
	}))
	registry := NewRegistry(backend, func() Handle { return testHandle{backend: backend} })
	return registry, backend
}

func collector() (*[]firing, HandlerFunc) {
	var mu sync.Mutex
	var firings []firing
	fn := func(ctx context.Context, h Handle, id int64, el Element) error {
		mu.Lock()
		defer mu.Unlock()
		firings = append(firings, firing{ID: id, Element: el})
		return nil
	}
	return &firings, fn
}

func TestAddTriggerAndDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, backend := newTestRegistry(t)

	firings, handler := collector()
	require.NoError(t, registry.AddTrigger(ctx, "t1", []string{"chat.prompt"}, handler))

	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 5, "hello"))

	require.Len(t, *firings, 1)
	assert.Equal(t, int64(5), (*firings)[0].ID)
	assert.Equal(t, Element{Namespace: "chat", ID: 5, Key: "chat.prompt", Value: "hello"}, (*firings)[0].Element)

	log := backend.Log()
	require.Len(t, log, 1)
	assert.Equal(t, "t1", log[0].TriggerName)
	assert.Equal(t, 1, log[0].TriggerVersion)
	assert.Equal(t, ActionSet, log[0].TriggerAction)
	assert.Equal(t, "chat", log[0].Namespace)
	assert.Equal(t, int64(5), log[0].ID)
	assert.Equal(t, "chat.prompt", log[0].TriggerKey)
	assert.WithinDuration(t, time.Now(), log[0].ExecutedTime, time.Second)
}

func TestDispatchOrderFollowsRegistration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, h Handle, id int64, el Element) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	require.NoError(t, registry.AddTrigger(ctx, "first", []string{"chat.prompt"}, record("first")))
	require.NoError(t, registry.AddTrigger(ctx, "second", []string{"chat.prompt"}, record("second")))
	require.NoError(t, registry.AddTrigger(ctx, "third", []string{"chat.prompt"}, record("third")))

	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 1, "x"))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestAddTriggerDuplicateNameIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	first, handler := collector()
	require.NoError(t, registry.AddTrigger(ctx, "t1", []string{"chat.prompt"}, handler))

	second, other := collector()
	require.NoError(t, registry.AddTrigger(ctx, "t1", []string{"chat.completion"}, other))

	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 1, "x"))
	require.NoError(t, registry.Dispatch(ctx, "chat", "completion", 1, "y"))

	assert.Len(t, *first, 1)
	assert.Empty(t, *second)
}

func TestAddTriggerRejectsUnknownKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, handler := collector()
	err := registry.AddTrigger(ctx, "bad", []string{"nosuch.field"}, handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuch.field")
	assert.Contains(t, err.Error(), "chat.prompt")
	assert.Contains(t, err.Error(), "chat.completion")

	// Registry state is unchanged.
	assert.Empty(t, registry.TriggersForAllKeys())
	assert.ErrorIs(t, registry.DeleteTrigger("bad"), ErrUnknownTrigger)
}

func TestAddTriggerRejectsBadHandlerShape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	err := registry.AddTrigger(ctx, "bad", []string{"chat.prompt"}, "not a handler")
	assert.ErrorIs(t, err, ErrBadHandler)

	err = registry.AddTrigger(ctx, "bad", []string{"chat.prompt"}, func(id int64) error { return nil })
	assert.ErrorIs(t, err, ErrBadHandler)
}

// statefulCounter is a Factory-constructed handler retaining state
// across invocations.
type statefulCounter struct {
	name    string
	version int
	mu      sync.Mutex
	seen    []int64
}

func (s *statefulCounter) Invoke(ctx context.Context, h Handle, id int64, el Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, id)
	return nil
}

func TestAddTriggerStatefulFactory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	var constructed *statefulCounter
	factory := Factory(func(h Handle, name string, version int) (Handler, error) {
		constructed = &statefulCounter{name: name, version: version}
		return constructed, nil
	})

	require.NoError(t, registry.AddTrigger(ctx, "counter", []string{"chat.prompt"}, factory))
	require.NotNil(t, constructed)
	assert.Equal(t, "counter", constructed.name)
	assert.Equal(t, 1, constructed.version)

	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 3, "x"))
	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 4, "y"))
	assert.Equal(t, []int64{3, 4}, constructed.seen)
}

func TestVersionContinuityFromLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, backend := newTestRegistry(t)

	// A previous life of this trigger logged up to version 4.
	require.NoError(t, backend.AppendLog(ctx, &storage.LogEntry{TriggerName: "t1", TriggerVersion: 4}))

	_, handler := collector()
	require.NoError(t, registry.AddTrigger(ctx, "t1", []string{"chat.prompt"}, handler))
	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 1, "x"))

	log := backend.Log()
	require.Len(t, log, 2)
	assert.Equal(t, 5, log[1].TriggerVersion)
}

func TestDeleteTriggerRemovesAllIndices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	firings, handler := collector()
	require.NoError(t, registry.AddTrigger(ctx, "mixed",
		[]string{"chat.prompt", "0 * * * *"}, handler))

	assert.Equal(t, []string{"mixed"}, registry.TriggersForKey("chat", "prompt"))
	assert.Len(t, registry.CronJobs(), 1)

	require.NoError(t, registry.DeleteTrigger("mixed"))

	assert.Empty(t, registry.TriggersForKey("chat", "prompt"))
	assert.Empty(t, registry.CronJobs())

	// A subsequent key update fires nothing.
	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 1, "x"))
	assert.Empty(t, *firings)

	assert.ErrorIs(t, registry.DeleteTrigger("mixed"), ErrUnknownTrigger)
}

func TestTriggersForAllKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, h1 := collector()
	_, h2 := collector()
	require.NoError(t, registry.AddTrigger(ctx, "a", []string{"chat.prompt"}, h1))
	require.NoError(t, registry.AddTrigger(ctx, "b", []string{"chat.prompt", "chat.completion"}, h2))

	all := registry.TriggersForAllKeys()
	assert.Equal(t, map[string][]string{
		"chat.prompt":     {"a", "b"},
		"chat.completion": {"b"},
	}, all)
}

func TestDispatchHandlerErrorAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, backend := newTestRegistry(t)

	require.NoError(t, registry.AddTrigger(ctx, "boom", []string{"chat.prompt"},
		HandlerFunc(func(ctx context.Context, h Handle, id int64, el Element) error {
			panic("handler exploded")
		})))
	later, handler := collector()
	require.NoError(t, registry.AddTrigger(ctx, "after", []string{"chat.prompt"}, handler))

	err := registry.Dispatch(ctx, "chat", "prompt", 1, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panicked")

	// The failing invocation is still logged; later handlers are not run.
	assert.Len(t, backend.Log(), 1)
	assert.Empty(t, *later)
}

func TestConditionGatesDispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, backend := newTestRegistry(t)

	firings, handler := collector()
	require.NoError(t, registry.AddTrigger(ctx, "gated", []string{"chat.prompt"}, handler,
		WithCondition(`value == "fire"`)))

	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 1, "skip"))
	assert.Empty(t, *firings)
	// A skipped handler leaves no log entry.
	assert.Empty(t, backend.Log())

	require.NoError(t, registry.Dispatch(ctx, "chat", "prompt", 2, "fire"))
	assert.Len(t, *firings, 1)
	assert.Len(t, backend.Log(), 1)
}

func TestConditionCompileErrorIsRegistrationError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	_, handler := collector()
	err := registry.AddTrigger(ctx, "bad", []string{"chat.prompt"}, handler,
		WithCondition("value ==="))
	require.Error(t, err)
	assert.Empty(t, registry.TriggersForAllKeys())
}
