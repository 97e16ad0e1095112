package photo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/rpggio/fieldcam/internal/artifact"
	"github.com/rpggio/fieldcam/internal/clock"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/rpggio/fieldcam/internal/events"
	"github.com/rpggio/fieldcam/internal/repository"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Engine deletes records and keeps each session's numbering contiguous.
type Engine struct {
	catalog   Catalog
	journal   DeletionJournal
	store     ArtifactStore
	sequencer Sequencer
	publisher events.Publisher
	clock     clock.Clock
	io        *semaphore.Weighted
	logger    *slog.Logger
}

// NewEngine creates a renumbering engine. io bounds concurrent artifact
// file removal and may be shared with other artifact I/O.
func NewEngine(
	catalog Catalog,
	journal DeletionJournal,
	store ArtifactStore,
	sequencer Sequencer,
	publisher events.Publisher,
	clk clock.Clock,
	io *semaphore.Weighted,
	logger *slog.Logger,
) *Engine {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if io == nil {
		io = semaphore.NewWeighted(DefaultIOLimit)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		catalog:   catalog,
		journal:   journal,
		store:     store,
		sequencer: sequencer,
		publisher: publisher,
		clock:     clk,
		io:        io,
		logger:    logger,
	}
}

// DeleteRecords removes records grouped by session. Groups run in parallel,
// each under its session lock; a failing group does not stop the others.
// Results are ordered by session ID and the returned error joins every
// group's error.
func (e *Engine) DeleteRecords(ctx context.Context, records []Record) ([]GroupResult, error) {
	groups := make(map[string][]Record)
	for _, rec := range records {
		groups[rec.SessionID] = append(groups[rec.SessionID], rec)
	}

	sessionIDs := make([]string, 0, len(groups))
	for id := range groups {
		sessionIDs = append(sessionIDs, id)
	}
	sort.Strings(sessionIDs)

	results := make([]GroupResult, len(sessionIDs))
	var g errgroup.Group
	for i, id := range sessionIDs {
		g.Go(func() error {
			results[i] = e.deleteGroup(ctx, id, groups[id])
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", res.SessionID, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

// PurgeSession deletes every record a session owns. It matches
// session.CascadeFunc.
func (e *Engine) PurgeSession(ctx context.Context, sess session.Session) error {
	records, err := e.catalog.FindBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("%w: listing session records: %w", ErrPersistence, err)
	}
	if len(records) == 0 {
		return nil
	}
	return e.deleteGroup(ctx, sess.ID, records).Err
}

func (e *Engine) deleteGroup(ctx context.Context, sessionID string, records []Record) GroupResult {
	res := GroupResult{SessionID: sessionID}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})

	intent := &DeletionIntent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Items:     make([]IntentItem, 0, len(sorted)),
		CreatedAt: e.clock.Now(),
	}
	for _, rec := range sorted {
		intent.Items = append(intent.Items, IntentItem{
			RecordID:     rec.ID,
			ImageRef:     rec.ImageRef,
			ThumbnailRef: rec.ThumbnailRef,
		})
	}

	res.Err = e.sequencer.Exclusive(ctx, sessionID, func(ctx context.Context, c *session.Counter) error {
		if err := e.journal.Record(ctx, intent); err != nil {
			return fmt.Errorf("%w: journaling deletion: %w", ErrPersistence, err)
		}
		deleted, err := e.apply(ctx, c, intent)
		res.Deleted = deleted
		return err
	})
	if errors.Is(res.Err, session.ErrSessionNotFound) {
		res.Err = fmt.Errorf("%w: %w", ErrRecordNotFound, res.Err)
	}

	if len(res.Deleted) > 0 {
		e.logger.Info("records deleted", "session_id", sessionID, "count", len(res.Deleted))
		e.publisher.Publish(events.Event{
			Type:      events.RecordsChanged,
			SessionID: sessionID,
			RecordIDs: res.Deleted,
			Reason:    "deleted",
			At:        e.clock.Now(),
		})
	}
	return res
}

// apply carries out a journaled intent while the session lock is held: one
// catalog transaction per record, artifact removal after each commit, then
// counter reconciliation. The intent is cleared once apply returns,
// whatever the outcome; only a crash leaves it pending.
func (e *Engine) apply(ctx context.Context, c *session.Counter, intent *DeletionIntent) ([]string, error) {
	var (
		deleted []string
		catErr  error
		files   errgroup.Group
	)

	for _, item := range intent.Items {
		removed, err := e.catalog.RemoveAndShift(ctx, item.RecordID)
		if errors.Is(err, repository.ErrNotFound) {
			// Already gone, possibly by an earlier run of this intent.
			e.removeFiles(ctx, &files, item.ImageRef, item.ThumbnailRef)
			continue
		}
		if err != nil {
			catErr = fmt.Errorf("%w: removing record %s: %w", ErrPersistence, item.RecordID, err)
			break
		}
		deleted = append(deleted, item.RecordID)
		e.removeFiles(ctx, &files, removed.ImageRef, removed.ThumbnailRef)
	}
	_ = files.Wait()

	errs := []error{catErr}
	if err := e.reconcileCounter(ctx, c); err != nil {
		errs = append(errs, err)
	}
	if err := e.journal.Clear(ctx, intent.ID); err != nil {
		e.logger.Warn("failed to clear deletion intent", "intent_id", intent.ID, "error", err)
	}
	return deleted, errors.Join(errs...)
}

// reconcileCounter sets the counter to the catalog's next number so it is
// N+1 again after a deletion. No live number can be reissued since every
// live number is below it.
func (e *Engine) reconcileCounter(ctx context.Context, c *session.Counter) error {
	next, err := e.catalog.NextSequenceNumber(ctx, c.SessionID())
	if err != nil {
		return fmt.Errorf("%w: reading next sequence: %w", ErrPersistence, err)
	}
	if next == c.Value() {
		return nil
	}
	if err := c.Set(ctx, next); err != nil {
		return fmt.Errorf("reconciling counter: %w", err)
	}
	return nil
}

// removeFiles deletes artifacts best-effort on the shared I/O pool.
func (e *Engine) removeFiles(ctx context.Context, g *errgroup.Group, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		g.Go(func() error {
			if err := e.io.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer e.io.Release(1)
			if err := e.store.Delete(ctx, ref); err != nil && !errors.Is(err, artifact.ErrNotFound) {
				e.logger.Warn("failed to delete artifact", "ref", ref, "error", err)
			}
			return nil
		})
	}
}

// Replay finishes intents left pending by a crash.
func (e *Engine) Replay(ctx context.Context) error {
	pending, err := e.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("%w: loading pending deletions: %w", ErrPersistence, err)
	}

	var errs []error
	for i := range pending {
		intent := &pending[i]
		e.logger.Info("replaying deletion intent", "intent_id", intent.ID, "session_id", intent.SessionID, "items", len(intent.Items))

		var deleted []string
		err := e.sequencer.Exclusive(ctx, intent.SessionID, func(ctx context.Context, c *session.Counter) error {
			var err error
			deleted, err = e.apply(ctx, c, intent)
			return err
		})
		if errors.Is(err, session.ErrSessionNotFound) {
			// The session and its records are gone; only files may remain.
			var files errgroup.Group
			for _, item := range intent.Items {
				e.removeFiles(ctx, &files, item.ImageRef, item.ThumbnailRef)
			}
			_ = files.Wait()
			if err := e.journal.Clear(ctx, intent.ID); err != nil {
				errs = append(errs, fmt.Errorf("%w: clearing intent %s: %w", ErrPersistence, intent.ID, err))
			}
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("replaying intent %s: %w", intent.ID, err))
		}
		if len(deleted) > 0 {
			e.publisher.Publish(events.Event{
				Type:      events.RecordsChanged,
				SessionID: intent.SessionID,
				RecordIDs: deleted,
				Reason:    "deleted",
				At:        e.clock.Now(),
			})
		}
	}
	return errors.Join(errs...)
}
