package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/rpggio/fieldcam/internal/repository"
	"github.com/stretchr/testify/require"
)

func newSession(id string, at time.Time) *session.Session {
	return &session.Session{
		ID:              id,
		Name:            "Session " + id,
		CreatedAt:       at,
		LastUsedAt:      at,
		SequenceCounter: 1,
		IsActive:        true,
	}
}

func TestSessionRepository_CreateGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	now := time.Date(2026, 3, 4, 10, 30, 0, 123456789, time.UTC)
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", now)))

	loaded, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Session s1", loaded.Name)
	require.Equal(t, int64(1), loaded.SequenceCounter)
	require.True(t, loaded.IsActive)
	require.True(t, now.Equal(loaded.CreatedAt))
	require.True(t, now.Equal(loaded.LastUsedAt))

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepository_CreateActiveDeactivatesPrevious(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	now := time.Now()
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", now)))
	require.NoError(t, repo.CreateActive(ctx, newSession("s2", now.Add(time.Second))))

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "s2", active.ID)

	first, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.False(t, first.IsActive)
}

func TestSessionRepository_GetActiveEmpty(t *testing.T) {
	db := NewTestDB(t)
	repo := NewSessionRepository(db)

	_, err := repo.GetActive(context.Background())
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepository_ActivateAndList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", base)))
	require.NoError(t, repo.CreateActive(ctx, newSession("s2", base.Add(time.Minute))))
	require.NoError(t, repo.CreateActive(ctx, newSession("s3", base.Add(2*time.Minute))))

	require.NoError(t, repo.Activate(ctx, "s1", base.Add(time.Hour)))

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "s1", active.ID)
	require.True(t, base.Add(time.Hour).Equal(active.LastUsedAt))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"s1", "s3", "s2"}, []string{list[0].ID, list[1].ID, list[2].ID})

	activeCount := 0
	for _, sess := range list {
		if sess.IsActive {
			activeCount++
		}
	}
	require.Equal(t, 1, activeCount)

	require.ErrorIs(t, repo.Activate(ctx, "missing", base), repository.ErrNotFound)
	active, err = repo.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "s1", active.ID, "failed activation must not change the active session")
}

func TestSessionRepository_UpdateCounterRename(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", now)))

	later := now.Add(time.Minute)
	require.NoError(t, repo.UpdateCounter(ctx, "s1", 7, later))
	require.NoError(t, repo.Rename(ctx, "s1", "North wing"))

	loaded, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(7), loaded.SequenceCounter)
	require.Equal(t, "North wing", loaded.Name)
	require.True(t, later.Equal(loaded.LastUsedAt))

	require.Error(t, repo.UpdateCounter(ctx, "s1", 0, later), "counter below 1 violates the schema")
	require.ErrorIs(t, repo.UpdateCounter(ctx, "missing", 2, later), repository.ErrNotFound)
	require.ErrorIs(t, repo.Rename(ctx, "missing", "x"), repository.ErrNotFound)
}

func TestSessionRepository_Delete(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	now := time.Now()
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", now)))
	require.NoError(t, repo.CreateActive(ctx, newSession("s2", now)))

	require.ErrorIs(t, repo.Delete(ctx, "s2"), repository.ErrConflict, "active session is never deleted")
	require.NoError(t, repo.Delete(ctx, "s1"))
	require.ErrorIs(t, repo.Delete(ctx, "s1"), repository.ErrNotFound)

	_, err := repo.Get(ctx, "s1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepository_DeleteWithRecords(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)
	photos := NewPhotoRepository(db)

	now := time.Now()
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", now)))
	require.NoError(t, photos.Insert(ctx, newRecord("p1", "s1", 1, now)))
	require.NoError(t, repo.CreateActive(ctx, newSession("s2", now)))

	require.ErrorIs(t, repo.Delete(ctx, "s1"), repository.ErrForeignKeyViolation)
}

func TestSessionRepository_ListSummaries(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)
	photos := NewPhotoRepository(db)

	now := time.Now()
	require.NoError(t, repo.CreateActive(ctx, newSession("s1", now)))
	require.NoError(t, photos.Insert(ctx, newRecord("p1", "s1", 1, now)))
	require.NoError(t, photos.Insert(ctx, newRecord("p2", "s1", 2, now)))
	require.NoError(t, repo.CreateActive(ctx, newSession("s2", now.Add(time.Second))))

	summaries, err := repo.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "s2", summaries[0].ID)
	require.Equal(t, 0, summaries[0].PhotoCount)
	require.True(t, summaries[0].IsActive)
	require.Equal(t, "s1", summaries[1].ID)
	require.Equal(t, 2, summaries[1].PhotoCount)
}
