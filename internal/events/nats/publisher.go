// Package nats implements an events.Publisher on NATS, letting
// external consumers observe trigger firings without joining the
// process.
package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/rguptar/motion/internal/events"
)

// Publisher publishes firing events to a NATS server.
type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// Options configures the NATS publisher.
type Options struct {
	// URL is the NATS server URL.
	URL string
	// SubjectPrefix is prepended to every published subject.
	SubjectPrefix string
	// Name identifies the connection on the server.
	Name string
}

// NewPublisher connects to NATS.
func NewPublisher(opts Options) (*Publisher, error) {
	connOpts := []nats.Option{}
	if opts.Name != "" {
		connOpts = append(connOpts, nats.Name(opts.Name))
	}

	conn, err := nats.Connect(opts.URL, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Publisher{conn: conn, subjectPrefix: opts.SubjectPrefix}, nil
}

// Publish sends data to the subject, honoring context cancellation
// before handing off to the client.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full := subject
	if p.subjectPrefix != "" {
		full = p.subjectPrefix + "." + subject
	}
	if err := p.conn.Publish(full, data); err != nil {
		return fmt.Errorf("publish to %s: %w", full, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return err
	}
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
