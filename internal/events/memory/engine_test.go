package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rguptar/motion/internal/events"
)

func recv(t *testing.T, ch <-chan events.Message) events.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewEngine()
	defer e.Close()

	ch, unsubscribe, err := e.Subscribe(ctx, "triggers.t1")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, e.Publish(ctx, "triggers.t1", []byte("fired")))
	msg := recv(t, ch)
	assert.Equal(t, "triggers.t1", msg.Subject())
	assert.Equal(t, []byte("fired"), msg.Data())
	assert.WithinDuration(t, time.Now(), msg.Timestamp(), time.Second)

	// Non-matching subjects are not delivered.
	require.NoError(t, e.Publish(ctx, "triggers.other", []byte("x")))
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %s", msg.Subject())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWildcardSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewEngine()
	defer e.Close()

	ch, unsubscribe, err := e.Subscribe(ctx, "triggers.*")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, e.Publish(ctx, "triggers.t1", []byte("a")))
	assert.Equal(t, "triggers.t1", recv(t, ch).Subject())
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewEngine()
	defer e.Close()

	ch, unsubscribe, err := e.Subscribe(ctx, "triggers.t1")
	require.NoError(t, err)

	unsubscribe()
	// Idempotent.
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	assert.NoError(t, e.Publish(ctx, "triggers.t1", []byte("x")))
}

func TestClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := NewEngine()

	ch, _, err := e.Subscribe(ctx, "triggers.t1")
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.NoError(t, e.Close())

	_, ok := <-ch
	assert.False(t, ok)

	assert.ErrorIs(t, e.Publish(ctx, "triggers.t1", nil), events.ErrEngineClosed)
	_, _, err = e.Subscribe(ctx, "triggers.t1")
	assert.ErrorIs(t, err, events.ErrEngineClosed)
}

func TestMatchSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"triggers.t1", "triggers.t1", true},
		{"triggers.t1", "triggers.t2", false},
		{"triggers.*", "triggers.t1", true},
		{"triggers.*", "triggers.t1.fired", false},
		{"triggers.>", "triggers.t1.fired", true},
		{">", "anything.at.all", true},
		{"*.t1", "triggers.t1", true},
		{"triggers.*", "triggers", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchSubject(tt.pattern, tt.subject),
			"pattern %q subject %q", tt.pattern, tt.subject)
	}
}
