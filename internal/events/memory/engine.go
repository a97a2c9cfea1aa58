// Package memory implements the events engine with an in-process
// broker. It is the default engine; nothing leaves the process.
package memory

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rguptar/motion/internal/events"
)

// Engine is an in-memory events.Engine.
type Engine struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	closed        atomic.Bool
}

type subscription struct {
	pattern string
	msgCh   chan events.Message
	done    chan struct{}
}

type message struct {
	data      []byte
	subject   string
	timestamp time.Time
}

func (m *message) Data() []byte         { return m.data }
func (m *message) Subject() string      { return m.subject }
func (m *message) Timestamp() time.Time { return m.timestamp }

// subscriptionBuffer bounds the per-subscriber channel. A subscriber
// that stops draining loses messages rather than blocking publishers.
const subscriptionBuffer = 64

// NewEngine creates an empty in-memory engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Publish delivers data to every subscription whose pattern matches
// subject. Delivery is best effort: full subscriber buffers are skipped.
func (e *Engine) Publish(ctx context.Context, subject string, data []byte) error {
	if e.closed.Load() {
		return events.ErrEngineClosed
	}

	msg := &message{data: data, subject: subject, timestamp: time.Now()}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscriptions {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		select {
		case sub.msgCh <- msg:
		case <-sub.done:
		default:
		}
	}
	return nil
}

// Subscribe registers a pattern subscription.
func (e *Engine) Subscribe(ctx context.Context, pattern string) (<-chan events.Message, func(), error) {
	if e.closed.Load() {
		return nil, nil, events.ErrEngineClosed
	}

	sub := &subscription{
		pattern: pattern,
		msgCh:   make(chan events.Message, subscriptionBuffer),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.subscriptions = append(e.subscriptions, sub)
	e.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subscriptions {
				if s == sub {
					e.subscriptions = append(e.subscriptions[:i], e.subscriptions[i+1:]...)
					break
				}
			}
			close(sub.done)
			close(sub.msgCh)
		})
	}

	return sub.msgCh, unsubscribe, nil
}

// Close shuts down the engine and all subscriptions.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscriptions {
		close(sub.done)
		close(sub.msgCh)
	}
	e.subscriptions = nil
	return nil
}

// matchSubject reports whether a dot-separated subject matches a
// NATS-style pattern ("*" one token, ">" remainder).
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return true
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
