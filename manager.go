package leasekeeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Manager enforces the reservation state machine over a Store.
// It keeps no mutable state of its own and is safe for concurrent use.
type Manager struct {
	store   Store
	options options
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Manager{
		store:   store,
		options: options,
	}
}

// Now returns the manager's notion of the current time.
func (m *Manager) Now() time.Time {
	return m.options.clock.Now()
}

// Reserve gives who exclusive ownership of name for d, or until cleared when d is zero.
// Re-reserving a lease already held by who renews it with the new expiry.
func (m *Manager) Reserve(ctx context.Context, name, who string, d time.Duration) (Lease, error) {
	if d < 0 {
		return Lease{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidRequest)
	}
	if d > 0 && d < time.Second {
		return Lease{}, fmt.Errorf("%w: duration must be zero or at least one second", ErrInvalidRequest)
	}

	return m.reserve(ctx, name, who, func(now time.Time) int64 {
		if d == 0 {
			return Indefinite
		}
		return now.Add(d).Unix()
	})
}

// ReserveUntil is Reserve with an absolute expiry in Unix seconds; 0 means until cleared.
func (m *Manager) ReserveUntil(ctx context.Context, name, who string, until int64) (Lease, error) {
	if until < 0 {
		return Lease{}, fmt.Errorf("%w: reserved_until must not be negative", ErrInvalidRequest)
	}
	if until != Indefinite && until <= m.Now().Unix() {
		return Lease{}, fmt.Errorf("%w: reserved_until %d is not in the future", ErrInvalidRequest, until)
	}

	return m.reserve(ctx, name, who, func(time.Time) int64 {
		return until
	})
}

func (m *Manager) reserve(ctx context.Context, name, who string, untilAt func(now time.Time) int64) (Lease, error) {
	const op = "reserve"
	var start = time.Now()

	if err := validateName(name); err != nil {
		return Lease{}, m.finish(op, name, who, Lease{}, err, start)
	}
	if strings.TrimSpace(who) == "" {
		return Lease{}, m.finish(op, name, who, Lease{}, fmt.Errorf("%w: reserved_by is required", ErrInvalidRequest), start)
	}

	var lease, err = m.mutate(ctx, op, name, func(now time.Time, current Lease) (Lease, bool, error) {
		if current.StateAt(now) == StateReserved && current.ReservedBy != who {
			return Lease{}, false, fmt.Errorf("%w: %s is held by %s%s", ErrConflict, name, current.ReservedBy, describeUntil(current))
		}
		return Lease{ReservedBy: who, ReservedUntil: untilAt(now)}, true, nil
	})
	return lease, m.finish(op, name, who, lease, err, start)
}

// Clear releases name. Clearing a free or expired lease succeeds without writing; clearing a
// lease held by someone other than who fails with ErrUnauthorized.
func (m *Manager) Clear(ctx context.Context, name, who string) error {
	const op = "clear"
	var start = time.Now()

	if err := validateName(name); err != nil {
		return m.finish(op, name, who, Lease{}, err, start)
	}

	var lease, err = m.mutate(ctx, op, name, func(now time.Time, current Lease) (Lease, bool, error) {
		if current.StateAt(now) == StateFree {
			return current, false, nil
		}
		if current.ReservedBy != who {
			return Lease{}, false, fmt.Errorf("%w: %s is held by %s", ErrUnauthorized, name, current.ReservedBy)
		}
		return Lease{}, true, nil
	})
	return m.finish(op, name, who, lease, err, start)
}

// Get returns the resource and its stored lease. Expiry is not applied; use Lease.StateAt.
func (m *Manager) Get(ctx context.Context, name string) (Resource, error) {
	if err := validateName(name); err != nil {
		return Resource{}, err
	}

	var res, err = m.store.Get(ctx, name)
	if err != nil {
		return Resource{}, storeError("read", name, err)
	}
	return res, nil
}

// List returns every resource with its stored lease.
func (m *Manager) List(ctx context.Context) ([]Resource, error) {
	var resources, err = m.store.List(ctx)
	if err != nil {
		return nil, storeError("list", "resources", err)
	}
	return resources, nil
}

// Register adds a resource to the catalog with a free lease.
func (m *Manager) Register(ctx context.Context, res Resource) (Resource, error) {
	const op = "register"
	var start = time.Now()

	res = res.Clone()
	res.Name = strings.TrimSpace(res.Name)
	res.Lease = Lease{}
	if res.OtherFields == nil {
		res.OtherFields = map[string]string{}
	}

	if err := validateName(res.Name); err != nil {
		return Resource{}, m.finish(op, res.Name, "", Lease{}, err, start)
	}

	var err = m.store.Create(ctx, res)
	if err != nil {
		err = storeError("create", res.Name, err)
		return Resource{}, m.finish(op, res.Name, "", Lease{}, err, start)
	}
	return res, m.finish(op, res.Name, "", Lease{}, nil, start)
}

// Remove deletes a resource and its lease from the catalog.
func (m *Manager) Remove(ctx context.Context, name string) error {
	const op = "remove"
	var start = time.Now()

	if err := validateName(name); err != nil {
		return m.finish(op, name, "", Lease{}, err, start)
	}

	var err = m.store.Delete(ctx, name)
	if err != nil {
		err = storeError("delete", name, err)
	}
	return m.finish(op, name, "", Lease{}, err, start)
}

// decision computes the next lease from the current one. write=false ends the operation
// successfully without touching the store.
type decision func(now time.Time, current Lease) (next Lease, write bool, err error)

// mutate runs read, decide, compare-and-set. A lost race is retried once against a fresh read;
// a second loss surfaces as ErrConflict.
func (m *Manager) mutate(ctx context.Context, op, name string, decide decision) (Lease, error) {
	const maxAttempts = 2

	for attempt := 1; ; attempt++ {
		var res, err = m.store.Get(ctx, name)
		if err != nil {
			return Lease{}, storeError("read", name, err)
		}

		var next, write, decideErr = decide(m.options.clock.Now(), res.Lease)
		if decideErr != nil {
			return Lease{}, decideErr
		}
		if !write {
			return res.Lease, nil
		}

		err = m.store.CompareAndSet(ctx, name, res.Lease, next)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, ErrConflict) && attempt < maxAttempts {
			m.options.metrics.Retry(op)
			m.options.logger.Debug("compare-and-set lost a race, retrying",
				"op", op,
				"resource", name,
				"attempt", attempt)
			continue
		}
		return Lease{}, storeError("write", name, err)
	}
}

// finish logs and records the outcome of op and returns err unchanged.
func (m *Manager) finish(op, name, who string, lease Lease, err error, start time.Time) error {
	var result = "ok"
	if err != nil {
		result = Code(err)
	}
	m.options.metrics.Observe(op, result, start)

	var logger = m.options.logger.With("op", op, "resource", name)
	if who != "" {
		logger = logger.With("holder", who)
	}
	switch {
	case err == nil && op == "reserve":
		logger.Info("resource reserved", "reserved_until", lease.ReservedUntil)
	case err == nil:
		logger.Info("operation succeeded")
	case errors.Is(err, ErrUnavailable):
		logger.Error("operation failed", "error", err)
	default:
		logger.Warn("operation refused", "result", result, "error", err)
	}
	return err
}

// storeError classifies a store failure. Anything other than a missing resource, a race,
// a duplicate or a cancelled context means the store is unavailable.
func storeError(action, name string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("%w: %s was modified concurrently", ErrConflict, name)
	case errors.Is(err, ErrAlreadyExists):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	case errors.Is(err, ErrInvalidRequest):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: failed to %s %s: %w", ErrUnavailable, action, name, err)
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	return nil
}

func describeUntil(l Lease) string {
	if l.ReservedUntil == Indefinite {
		return " until cleared"
	}
	return " until " + l.Until().UTC().Format(time.RFC3339)
}
