package session

import (
	"context"
	"time"
)

// Repository provides persistence for sessions. Implementations keep at
// most one session active; CreateActive and Activate switch it atomically.
type Repository interface {
	CreateActive(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetActive(ctx context.Context) (*Session, error)
	List(ctx context.Context) ([]Session, error)
	ListSummaries(ctx context.Context) ([]Summary, error)
	Activate(ctx context.Context, id string, at time.Time) error
	UpdateCounter(ctx context.Context, id string, counter int64, at time.Time) error
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}
