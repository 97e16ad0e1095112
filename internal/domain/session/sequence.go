package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rpggio/fieldcam/internal/repository"
)

// Allocator hands out sequence numbers for the active session. Every
// mutation holds the session lock across read, modify and persist.
type Allocator struct {
	registry *Service
	logger   *slog.Logger
}

// NewAllocator creates an allocator bound to the registry's sessions and locks.
func NewAllocator(registry *Service) *Allocator {
	return &Allocator{
		registry: registry,
		logger:   registry.logger,
	}
}

// Current returns the active session's next number without changing it.
func (a *Allocator) Current(ctx context.Context) (int64, error) {
	active, err := a.registry.ActiveSession(ctx)
	if err != nil {
		return 0, err
	}
	return active.SequenceCounter, nil
}

// AllocateNext returns the active session's counter and persists counter+1.
func (a *Allocator) AllocateNext(ctx context.Context) (int64, error) {
	active, err := a.registry.ActiveSession(ctx)
	if err != nil {
		return 0, err
	}

	var allocated int64
	err = a.Exclusive(ctx, active.ID, func(ctx context.Context, c *Counter) error {
		allocated = c.Value()
		return c.Advance(ctx)
	})
	if err != nil {
		return 0, err
	}
	return allocated, nil
}

// Reset sets the active session's counter back to 1.
func (a *Allocator) Reset(ctx context.Context) error {
	return a.Set(ctx, 1)
}

// Set overrides the active session's counter.
func (a *Allocator) Set(ctx context.Context, value int64) error {
	if value < 1 {
		return fmt.Errorf("%w: sequence must be at least 1, got %d", ErrInvalidInput, value)
	}
	active, err := a.registry.ActiveSession(ctx)
	if err != nil {
		return err
	}
	return a.Exclusive(ctx, active.ID, func(ctx context.Context, c *Counter) error {
		return c.Set(ctx, value)
	})
}

// Exclusive runs fn while holding sessionID's lock, handing it the session's
// counter as freshly read from the store. The wait for the lock honors ctx;
// once held, fn runs to completion.
func (a *Allocator) Exclusive(ctx context.Context, sessionID string, fn func(ctx context.Context, c *Counter) error) error {
	release, err := a.registry.locks.acquire(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("waiting for session %s: %w", sessionID, err)
	}
	defer release()

	// Work under the lock is not cancellable.
	ctx = context.WithoutCancel(ctx)

	sess, err := a.registry.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("loading session: %w", err)
	}

	c := &Counter{
		sessionID: sess.ID,
		value:     sess.SequenceCounter,
		initial:   sess.SequenceCounter,
		registry:  a.registry,
	}
	fnErr := fn(ctx, c)
	if c.value != c.initial {
		a.logger.Debug("sequence counter changed",
			"session_id", sessionID,
			"from", c.initial,
			"to", c.value,
		)
		a.registry.publish(sessionID, "sequence")
	}
	return fnErr
}

// Counter is a session's sequence counter while its lock is held. It is only
// valid inside the Exclusive callback that produced it.
type Counter struct {
	sessionID string
	value     int64
	initial   int64
	registry  *Service
}

// SessionID returns the session the counter belongs to.
func (c *Counter) SessionID() string { return c.sessionID }

// Value returns the next number to assign.
func (c *Counter) Value() int64 { return c.value }

// Set persists value as the counter.
func (c *Counter) Set(ctx context.Context, value int64) error {
	if value < 1 {
		return fmt.Errorf("%w: sequence must be at least 1, got %d", ErrInvalidInput, value)
	}
	if err := c.registry.sessions.UpdateCounter(ctx, c.sessionID, value, c.registry.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: updating counter: %w", ErrPersistence, err)
	}
	c.value = value
	return nil
}

// Advance persists counter+1.
func (c *Counter) Advance(ctx context.Context) error {
	return c.Set(ctx, c.value+1)
}

// RaiseTo persists value only if it exceeds the current counter.
func (c *Counter) RaiseTo(ctx context.Context, value int64) (bool, error) {
	if value <= c.value {
		return false, nil
	}
	if err := c.Set(ctx, value); err != nil {
		return false, err
	}
	return true, nil
}
