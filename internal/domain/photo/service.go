package photo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/rpggio/fieldcam/internal/artifact"
	"github.com/rpggio/fieldcam/internal/clock"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/rpggio/fieldcam/internal/events"
	"github.com/rpggio/fieldcam/internal/repository"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultIOLimit bounds concurrent artifact writes and removals.
const DefaultIOLimit = 4

// Options tunes thumbnail generation and artifact I/O.
type Options struct {
	ThumbnailBox     artifact.Box
	ThumbnailQuality int
	IOLimit          int
}

func (o Options) withDefaults() Options {
	if o.ThumbnailBox.Width <= 0 || o.ThumbnailBox.Height <= 0 {
		o.ThumbnailBox = artifact.DefaultBox
	}
	if o.ThumbnailQuality <= 0 || o.ThumbnailQuality > 100 {
		o.ThumbnailQuality = 85
	}
	if o.IOLimit <= 0 {
		o.IOLimit = DefaultIOLimit
	}
	return o
}

// Service handles photo capture, queries and mutations.
type Service struct {
	catalog   Catalog
	store     ArtifactStore
	sessions  Sessions
	sequencer Sequencer
	engine    *Engine
	publisher events.Publisher
	clock     clock.Clock
	opts      Options
	io        *semaphore.Weighted
	logger    *slog.Logger
}

// NewService creates a photo service and its renumbering engine.
func NewService(
	catalog Catalog,
	journal DeletionJournal,
	store ArtifactStore,
	sessions Sessions,
	sequencer Sequencer,
	publisher events.Publisher,
	clk clock.Clock,
	opts Options,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts = opts.withDefaults()
	io := semaphore.NewWeighted(int64(opts.IOLimit))

	return &Service{
		catalog:   catalog,
		store:     store,
		sessions:  sessions,
		sequencer: sequencer,
		engine:    NewEngine(catalog, journal, store, sequencer, publisher, clk, io, logger),
		publisher: publisher,
		clock:     clk,
		opts:      opts,
		io:        io,
		logger:    logger,
	}
}

// Engine returns the renumbering engine.
func (s *Service) Engine() *Engine { return s.engine }

// SaveCapture stores a new photo in the session active when the call
// starts. Both artifacts are written before the record exists; the record
// takes the session's current number and the counter advances, or nothing
// is persisted.
func (s *Service) SaveCapture(ctx context.Context, full []byte, meta Metadata) (*Record, error) {
	if len(full) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	orientation, err := ParseOrientation(string(meta.Orientation))
	if err != nil {
		return nil, err
	}
	if meta.Location != nil {
		if err := meta.Location.validate(); err != nil {
			return nil, err
		}
	}

	thumb, err := s.thumbnail(full)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.CaptureSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving capture session: %w", err)
	}

	id := uuid.NewString()
	imageRef, thumbRef, err := s.writeArtifacts(ctx, id, full, thumb)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec := &Record{
		ID:           id,
		SessionID:    sess.ID,
		CapturedAt:   now,
		ImageRef:     imageRef,
		ThumbnailRef: thumbRef,
		Checksum:     artifact.Checksum(full),
		Location:     copyLocation(meta.Location),
		Orientation:  orientation,
		Notes:        copyString(meta.Notes),
		ModifiedAt:   now,
	}

	err = s.sequencer.Exclusive(ctx, sess.ID, func(ctx context.Context, c *session.Counter) error {
		// A counter set below the catalog would reissue a live number.
		next, err := s.catalog.NextSequenceNumber(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("%w: reading next sequence: %w", ErrPersistence, err)
		}
		if _, err := c.RaiseTo(ctx, next); err != nil {
			return err
		}

		rec.SequenceNumber = c.Value()
		if err := s.catalog.Insert(ctx, rec); err != nil {
			return fmt.Errorf("%w: inserting record: %w", ErrPersistence, err)
		}
		if err := c.Advance(ctx); err != nil {
			if rmErr := s.catalog.Remove(ctx, rec.ID); rmErr != nil {
				s.logger.Error("failed to roll back record after counter failure", "record_id", rec.ID, "error", rmErr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.removeArtifacts(ctx, imageRef, thumbRef)
		return nil, err
	}

	s.logger.Info("photo captured",
		"record_id", rec.ID,
		"session_id", rec.SessionID,
		"sequence", rec.SequenceNumber,
	)
	s.publishRecords(rec.SessionID, "captured", rec.ID)
	return rec, nil
}

func (s *Service) thumbnail(full []byte) ([]byte, error) {
	thumb, err := artifact.Thumbnail(full, s.opts.ThumbnailBox, s.opts.ThumbnailQuality)
	if err != nil {
		if errors.Is(err, artifact.ErrDecode) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: generating thumbnail: %w", ErrStorage, err)
	}
	return thumb, nil
}

// writeArtifacts saves the full image and thumbnail concurrently. On any
// failure whatever was written is removed.
func (s *Service) writeArtifacts(ctx context.Context, key string, full, thumb []byte) (string, string, error) {
	var imageRef, thumbRef string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ref, err := s.save(gctx, artifact.KindFull, key, full)
		imageRef = ref
		return err
	})
	g.Go(func() error {
		ref, err := s.save(gctx, artifact.KindThumbnail, key, thumb)
		thumbRef = ref
		return err
	})
	if err := g.Wait(); err != nil {
		s.removeArtifacts(ctx, imageRef, thumbRef)
		return "", "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return imageRef, thumbRef, nil
}

func (s *Service) save(ctx context.Context, kind artifact.Kind, key string, data []byte) (string, error) {
	if err := s.io.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.io.Release(1)
	return s.store.Save(ctx, kind, key, data)
}

func (s *Service) removeArtifacts(ctx context.Context, refs ...string) {
	var g errgroup.Group
	s.engine.removeFiles(context.WithoutCancel(ctx), &g, refs...)
	_ = g.Wait()
}

// Get returns a record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("loading record: %w", err)
	}
	return rec, nil
}

// ListBySession returns a session's records in sequence order.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := s.catalog.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// ListAll returns every record, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Record, error) {
	records, err := s.catalog.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// LoadFullImage returns a record's full image, from cache when present.
func (s *Service) LoadFullImage(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, rec.ImageRef)
}

// LoadThumbnail returns a record's thumbnail, from cache when present.
func (s *Service) LoadThumbnail(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, rec.ThumbnailRef)
}

func (s *Service) load(ctx context.Context, ref string) ([]byte, error) {
	data, err := s.store.Load(ctx, ref)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrRecordNotFound, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return data, nil
}

// ReplaceArtifact overwrites a record's image in place, regenerates its
// thumbnail and marks it annotated. Refs don't change; cached bytes for
// both are invalidated by the store.
func (s *Service) ReplaceArtifact(ctx context.Context, id string, full []byte) (*Record, error) {
	if len(full) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	thumb, err := s.thumbnail(full)
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *Record
	err = s.sequencer.Exclusive(ctx, rec.SessionID, func(ctx context.Context, _ *session.Counter) error {
		// Re-read under the lock; the record may have been deleted.
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.overwrite(gctx, current.ImageRef, full) })
		g.Go(func() error { return s.overwrite(gctx, current.ThumbnailRef, thumb) })
		if err := g.Wait(); err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}

		current.Annotated = true
		current.Checksum = artifact.Checksum(full)
		current.ModifiedAt = s.clock.Now()
		if err := s.catalog.Update(ctx, current); err != nil {
			return fmt.Errorf("%w: updating record: %w", ErrPersistence, err)
		}
		updated = current
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	s.logger.Info("photo annotated", "record_id", id, "session_id", updated.SessionID)
	s.publishRecords(updated.SessionID, "annotated", id)
	return updated, nil
}

func (s *Service) overwrite(ctx context.Context, ref string, data []byte) error {
	if err := s.io.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.io.Release(1)
	return s.store.Overwrite(ctx, ref, data)
}

// UpdateNotes replaces a record's notes. Nil clears them.
func (s *Service) UpdateNotes(ctx context.Context, id string, notes *string) (*Record, error) {
	return s.updateRecord(ctx, id, "notes", func(rec Record) Record {
		rec.Notes = copyString(notes)
		return rec
	})
}

func (s *Service) updateRecord(ctx context.Context, id, reason string, mutate func(Record) Record) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := mutate(*rec)
	next.ModifiedAt = s.clock.Now()
	if err := s.catalog.Update(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: updating record: %w", ErrPersistence, err)
	}
	s.publishRecords(next.SessionID, reason, id)
	return &next, nil
}

// DeleteOne deletes a single record and renumbers its session.
func (s *Service) DeleteOne(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.engine.DeleteRecords(ctx, []Record{*rec})
	return err
}

// DeleteMany deletes records across any number of sessions. Every ID must
// resolve before anything is deleted.
func (s *Service) DeleteMany(ctx context.Context, ids []string) ([]GroupResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	records := make([]Record, 0, len(unique))
	for _, id := range unique {
		rec, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	return s.engine.DeleteRecords(ctx, records)
}

// PruneSessions applies the retention cap, deleting each pruned session's
// records and artifacts first.
func (s *Service) PruneSessions(ctx context.Context, maxRetained int) ([]session.Session, error) {
	return s.sessions.PruneOldSessions(ctx, maxRetained, s.engine.PurgeSession)
}

// Reconcile runs at startup: it finishes interrupted deletions, then raises
// every session's counter to at least its catalog's next number.
func (s *Service) Reconcile(ctx context.Context) error {
	var errs []error
	if err := s.engine.Replay(ctx); err != nil {
		errs = append(errs, err)
	}

	sessions, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("listing sessions: %w", err))...)
	}
	for _, sess := range sessions {
		err := s.sequencer.Exclusive(ctx, sess.ID, func(ctx context.Context, c *session.Counter) error {
			next, err := s.catalog.NextSequenceNumber(ctx, sess.ID)
			if err != nil {
				return fmt.Errorf("%w: reading next sequence: %w", ErrPersistence, err)
			}
			raised, err := c.RaiseTo(ctx, next)
			if raised {
				s.logger.Warn("raised stale sequence counter", "session_id", sess.ID, "counter", next)
			}
			return err
		})
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("reconciling session %s: %w", sess.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) publishRecords(sessionID, reason string, ids ...string) {
	s.publisher.Publish(events.Event{
		Type:      events.RecordsChanged,
		SessionID: sessionID,
		RecordIDs: ids,
		Reason:    reason,
		At:        s.clock.Now(),
	})
}

func copyLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
