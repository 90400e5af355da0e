package leasekeeper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sweeper periodically resets lazily-expired leases to free. It never changes the logical
// state of a lease, so losing a compare-and-set race to a concurrent Reserve is harmless.
type Sweeper struct {
	store    Store
	interval time.Duration
	options  options
}

// NewSweeper creates a Sweeper. An interval <= 0 makes Run return immediately.
func NewSweeper(store Store, interval time.Duration, opts ...Option) *Sweeper {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Sweeper{
		store:    store,
		interval: interval,
		options:  options,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	var ticker = time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	var held, compacted, err = s.SweepOnce(ctx)
	if err != nil {
		s.options.logger.Error("failed to sweep expired leases", "error", err)
		return
	}
	if compacted > 0 {
		s.options.logger.Info("compacted expired leases",
			"held", held,
			"compacted", compacted)
	}
}

// SweepOnce compacts every expired lease and returns how many leases are still held
// and how many were reset.
func (s *Sweeper) SweepOnce(ctx context.Context) (held, compacted int, err error) {
	resources, err := s.store.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list resources: %w", err)
	}

	var now = s.options.clock.Now()
	for _, res := range resources {
		if res.StateAt(now) == StateReserved {
			held++
			continue
		}
		if !res.Expired(now) {
			continue
		}

		err := s.store.CompareAndSet(ctx, res.Name, res.Lease, Lease{})
		switch {
		case err == nil:
			compacted++
			s.options.logger.Debug("expired lease compacted",
				"resource", res.Name,
				"holder", res.ReservedBy,
				"reserved_until", res.ReservedUntil)
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			// Renewed, cleared or removed since the listing.
		default:
			return held, compacted, fmt.Errorf("failed to compact lease of %s: %w", res.Name, err)
		}
	}

	s.options.metrics.Sweep(held, compacted)
	return held, compacted, nil
}
