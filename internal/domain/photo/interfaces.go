package photo

import (
	"context"

	"github.com/rpggio/fieldcam/internal/artifact"
	"github.com/rpggio/fieldcam/internal/domain/session"
)

// Catalog provides persistence for photo records.
type Catalog interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// FindBySession orders by sequence number ascending.
	FindBySession(ctx context.Context, sessionID string) ([]Record, error)
	// FindAll orders by capture time descending, then sequence ascending.
	FindAll(ctx context.Context) ([]Record, error)
	// Update writes content fields only; session and sequence are owned by
	// capture and renumbering.
	Update(ctx context.Context, rec *Record) error
	Remove(ctx context.Context, id string) error
	// RemoveAndShift deletes a record and moves every later record in its
	// session down by one, in a single transaction. It returns the record
	// as it was at removal.
	RemoveAndShift(ctx context.Context, id string) (*Record, error)
	// NextSequenceNumber is max+1 for the session, or 1 when it is empty.
	NextSequenceNumber(ctx context.Context, sessionID string) (int64, error)
}

// DeletionJournal durably records deletion intents until they finish.
type DeletionJournal interface {
	Record(ctx context.Context, intent *DeletionIntent) error
	Clear(ctx context.Context, id string) error
	// Pending returns unfinished intents, oldest first.
	Pending(ctx context.Context) ([]DeletionIntent, error)
}

// ArtifactStore holds image bytes by ref.
type ArtifactStore interface {
	Save(ctx context.Context, kind artifact.Kind, key string, data []byte) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
	Overwrite(ctx context.Context, ref string, data []byte) error
	Delete(ctx context.Context, ref string) error
}

// Sessions is the part of the session registry photo operations use.
type Sessions interface {
	CaptureSession(ctx context.Context) (*session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context) ([]session.Session, error)
	PruneOldSessions(ctx context.Context, maxRetained int, cascade session.CascadeFunc) ([]session.Session, error)
}

// Sequencer serializes work on a session and exposes its counter.
type Sequencer interface {
	Exclusive(ctx context.Context, sessionID string, fn func(ctx context.Context, c *session.Counter) error) error
}
