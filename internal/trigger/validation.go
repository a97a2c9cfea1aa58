package trigger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rguptar/motion/internal/cron"
	"github.com/rguptar/motion/internal/storage"
)

// splitKeys files each registration key into the direct-dispatch or
// cron bucket. A key must be an existing "namespace.field" or a valid
// cron expression; anything else fails with the list of valid keys.
func splitKeys(name string, keys []string, namespaces map[string]storage.Schema) (direct, crons []string, err error) {
	valid := make(map[string]bool)
	for ns, schema := range namespaces {
		for _, field := range schema.FieldNames() {
			valid[ns+"."+field] = true
		}
	}

	for _, key := range keys {
		switch {
		case valid[key]:
			direct = append(direct, key)
		case cron.IsValid(key):
			crons = append(crons, key)
		default:
			all := make([]string, 0, len(valid))
			for k := range valid {
				all = append(all, k)
			}
			sort.Strings(all)
			return nil, nil, fmt.Errorf(
				"trigger %q has invalid key %q: valid keys are [%s] or a cron expression",
				name, key, strings.Join(all, ", "))
		}
	}
	return direct, crons, nil
}

// resolveHandler maps the polymorphic handler argument onto the shared
// invocation contract. A HandlerFunc is used directly; a Factory is
// constructed once with a fresh handle, the trigger name and its
// version. Every other shape is rejected.
func resolveHandler(handler any, h Handle, name string, version int) (Handler, bool, error) {
	switch t := handler.(type) {
	case HandlerFunc:
		return t, false, nil
	case func(ctx context.Context, h Handle, id int64, el Element) error:
		return HandlerFunc(t), false, nil
	case Factory:
		instance, err := t(h, name, version)
		if err != nil {
			return nil, false, fmt.Errorf("construct handler for trigger %q: %w", name, err)
		}
		if instance == nil {
			return nil, false, fmt.Errorf("factory for trigger %q returned nil handler", name)
		}
		return instance, true, nil
	default:
		return nil, false, fmt.Errorf("%w, got %T", ErrBadHandler, handler)
	}
}
