package events

import (
	"context"
	"errors"
)

// fanout publishes to several publishers in order.
type fanout struct {
	publishers []Publisher
}

// NewFanout combines publishers into one. Publish attempts every
// target and joins their errors; Close closes all of them.
func NewFanout(publishers ...Publisher) Publisher {
	return &fanout{publishers: publishers}
}

func (f *fanout) Publish(ctx context.Context, subject string, data []byte) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, subject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
