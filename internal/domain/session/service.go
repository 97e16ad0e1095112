package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rpggio/fieldcam/internal/clock"
	"github.com/rpggio/fieldcam/internal/events"
	"github.com/rpggio/fieldcam/internal/repository"
)

// DefaultSessionName names the session created on first run.
const DefaultSessionName = "Inspection"

// Service is the session registry. It owns which session is active and
// shares its per-session locks with the Allocator.
type Service struct {
	sessions  Repository
	publisher events.Publisher
	clock     clock.Clock
	policy    ResetPolicy
	logger    *slog.Logger
	locks     *lockTable

	// rollover serializes the reset policy's decision to start a session.
	rollover sync.Mutex

	defaultName string
}

// NewService creates a new session registry.
func NewService(
	sessions Repository,
	publisher events.Publisher,
	clk clock.Clock,
	policy ResetPolicy,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if policy == nil {
		policy = SessionScoped{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		sessions:    sessions,
		publisher:   publisher,
		clock:       clk,
		policy:      policy,
		logger:      logger,
		locks:       newLockTable(),
		defaultName: DefaultSessionName,
	}
}

// SetDefaultName overrides the name used for implicit sessions.
func (s *Service) SetDefaultName(name string) {
	if strings.TrimSpace(name) != "" {
		s.defaultName = name
	}
}

// Policy returns the configured reset policy.
func (s *Service) Policy() ResetPolicy { return s.policy }

// CreateSession deactivates the current session and starts a new active one
// with its counter at 1.
func (s *Service) CreateSession(ctx context.Context, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = s.defaultName
	}

	now := s.clock.Now()
	sess := &Session{
		ID:              uuid.NewString(),
		Name:            name,
		CreatedAt:       now,
		LastUsedAt:      now,
		SequenceCounter: 1,
		IsActive:        true,
	}

	if err := s.sessions.CreateActive(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: creating session: %w", ErrPersistence, err)
	}

	s.logger.Info("session created", "session_id", sess.ID, "name", sess.Name)
	s.publish(sess.ID, "created")
	return sess, nil
}

// SwitchTo makes sessionID the active session. It returns false with
// ErrSessionNotFound when the session doesn't exist.
func (s *Service) SwitchTo(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, ErrSessionNotFound
	}

	if err := s.sessions.Activate(ctx, sessionID, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, fmt.Errorf("%w: activating session: %w", ErrPersistence, err)
	}

	s.logger.Info("session activated", "session_id", sessionID)
	s.publish(sessionID, "activated")
	return true, nil
}

// ActiveSession returns the active session, or ErrNoActiveSession before
// the registry has been initialized.
func (s *Service) ActiveSession(ctx context.Context) (*Session, error) {
	sess, err := s.sessions.GetActive(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("loading active session: %w", err)
	}
	return sess, nil
}

// EnsureActive returns the active session, creating the default one on
// first run.
func (s *Service) EnsureActive(ctx context.Context) (*Session, error) {
	sess, err := s.ActiveSession(ctx)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNoActiveSession) {
		return nil, err
	}

	// Sessions may exist with none active if a previous process stopped
	// between deactivate and activate; resume the most recently used.
	existing, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	if len(existing) > 0 {
		if _, err := s.SwitchTo(ctx, existing[0].ID); err != nil {
			return nil, err
		}
		return s.ActiveSession(ctx)
	}

	return s.CreateSession(ctx, s.defaultName)
}

// CaptureSession returns the session a capture should be numbered in. Under
// a rolling policy this may start a new session first.
func (s *Service) CaptureSession(ctx context.Context) (*Session, error) {
	active, err := s.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}

	if !s.policy.RollOver(*active, s.clock.Now()) {
		return active, nil
	}

	s.rollover.Lock()
	defer s.rollover.Unlock()

	// Another capture may have rolled over while this one waited.
	active, err = s.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !s.policy.RollOver(*active, now) {
		return active, nil
	}

	name := fmt.Sprintf("%s %s", s.defaultName, now.Format("2006-01-02"))
	s.logger.Info("reset policy rolled over session", "policy", s.policy.Name(), "previous_session_id", active.ID)
	return s.CreateSession(ctx, name)
}

// GetSession fetches a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

// ListSessions returns a snapshot ordered by most recently used first.
func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// ListSummaries returns sessions with photo counts, most recently used first.
func (s *Service) ListSummaries(ctx context.Context) ([]Summary, error) {
	summaries, err := s.sessions.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing session summaries: %w", err)
	}
	return summaries, nil
}

// RenameSession changes a session's label.
func (s *Service) RenameSession(ctx context.Context, sessionID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidInput
	}
	if err := s.sessions.Rename(ctx, sessionID, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: renaming session: %w", ErrPersistence, err)
	}
	s.publish(sessionID, "renamed")
	return nil
}

// CascadeFunc removes whatever a session owns before the session row is
// deleted. It must take the session lock itself (see Allocator.Exclusive).
type CascadeFunc func(ctx context.Context, sess Session) error

// PruneOldSessions deletes inactive sessions beyond the maxRetained most
// recently used. The active session always survives and counts toward the
// cap. cascade, when set, runs first for each pruned session; a cascade
// failure keeps that session and is reported.
func (s *Service) PruneOldSessions(ctx context.Context, maxRetained int, cascade CascadeFunc) ([]Session, error) {
	if maxRetained < 1 {
		return nil, fmt.Errorf("%w: max retained must be at least 1", ErrInvalidInput)
	}

	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUsedAt.After(sessions[j].LastUsedAt)
	})

	var candidates []Session
	kept := 0
	for _, sess := range sessions {
		if sess.IsActive {
			kept++
		}
	}
	for _, sess := range sessions {
		if sess.IsActive {
			continue
		}
		if kept < maxRetained {
			kept++
			continue
		}
		candidates = append(candidates, sess)
	}

	var pruned []Session
	var errs []error
	for _, sess := range candidates {
		if err := s.pruneOne(ctx, sess, cascade); err != nil {
			errs = append(errs, fmt.Errorf("pruning session %s: %w", sess.ID, err))
			continue
		}
		pruned = append(pruned, sess)
	}

	if len(pruned) > 0 {
		s.logger.Info("sessions pruned", "count", len(pruned), "max_retained", maxRetained)
	}
	return pruned, errors.Join(errs...)
}

func (s *Service) pruneOne(ctx context.Context, sess Session, cascade CascadeFunc) error {
	if cascade != nil {
		if err := cascade(ctx, sess); err != nil {
			return err
		}
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("session became active during prune: %w", err)
		}
		return fmt.Errorf("%w: deleting session: %w", ErrPersistence, err)
	}
	s.publish(sess.ID, "pruned")
	return nil
}

func (s *Service) publish(sessionID, reason string) {
	s.publisher.Publish(events.Event{
		Type:      events.SessionChanged,
		SessionID: sessionID,
		Reason:    reason,
		At:        s.clock.Now(),
	})
}
