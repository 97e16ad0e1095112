package mocks

import (
	"context"
	"time"

	"github.com/rpggio/fieldcam/internal/artifact"
	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/stretchr/testify/mock"
)

// SessionRepository is a mock for session.Repository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) CreateActive(ctx context.Context, sess *session.Session) error {
	args := m.Called(ctx, sess)
	return args.Error(0)
}

func (m *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if sess, ok := args.Get(0).(*session.Session); ok {
		return sess, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) GetActive(ctx context.Context) (*session.Session, error) {
	args := m.Called(ctx)
	if sess, ok := args.Get(0).(*session.Session); ok {
		return sess, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) List(ctx context.Context) ([]session.Session, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]session.Session); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) ListSummaries(ctx context.Context) ([]session.Summary, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]session.Summary); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) Activate(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *SessionRepository) UpdateCounter(ctx context.Context, id string, counter int64, at time.Time) error {
	args := m.Called(ctx, id, counter, at)
	return args.Error(0)
}

func (m *SessionRepository) Rename(ctx context.Context, id, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

func (m *SessionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// PhotoCatalog is a mock for photo.Catalog.
type PhotoCatalog struct {
	mock.Mock
}

func (m *PhotoCatalog) Insert(ctx context.Context, rec *photo.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *PhotoCatalog) Get(ctx context.Context, id string) (*photo.Record, error) {
	args := m.Called(ctx, id)
	if rec, ok := args.Get(0).(*photo.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PhotoCatalog) FindBySession(ctx context.Context, sessionID string) ([]photo.Record, error) {
	args := m.Called(ctx, sessionID)
	if list, ok := args.Get(0).([]photo.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PhotoCatalog) FindAll(ctx context.Context) ([]photo.Record, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]photo.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PhotoCatalog) Update(ctx context.Context, rec *photo.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *PhotoCatalog) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *PhotoCatalog) RemoveAndShift(ctx context.Context, id string) (*photo.Record, error) {
	args := m.Called(ctx, id)
	if rec, ok := args.Get(0).(*photo.Record); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PhotoCatalog) NextSequenceNumber(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

// DeletionJournal is a mock for photo.DeletionJournal.
type DeletionJournal struct {
	mock.Mock
}

func (m *DeletionJournal) Record(ctx context.Context, intent *photo.DeletionIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *DeletionJournal) Clear(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DeletionJournal) Pending(ctx context.Context) ([]photo.DeletionIntent, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]photo.DeletionIntent); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ArtifactStore is a mock for photo.ArtifactStore.
type ArtifactStore struct {
	mock.Mock
}

func (m *ArtifactStore) Save(ctx context.Context, kind artifact.Kind, key string, data []byte) (string, error) {
	args := m.Called(ctx, kind, key, data)
	return args.String(0), args.Error(1)
}

func (m *ArtifactStore) Load(ctx context.Context, ref string) ([]byte, error) {
	args := m.Called(ctx, ref)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ArtifactStore) Overwrite(ctx context.Context, ref string, data []byte) error {
	args := m.Called(ctx, ref, data)
	return args.Error(0)
}

func (m *ArtifactStore) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}
