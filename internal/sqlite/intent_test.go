package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestIntentRepository_RecordPendingClear(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewIntentRepository(db)

	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	second := &photo.DeletionIntent{
		ID:        "i2",
		SessionID: "s1",
		Items: []photo.IntentItem{
			{RecordID: "p3", ImageRef: "full/p3", ThumbnailRef: "thumbnails/p3"},
		},
		CreatedAt: base.Add(time.Second),
	}
	first := &photo.DeletionIntent{
		ID:        "i1",
		SessionID: "s2",
		Items: []photo.IntentItem{
			{RecordID: "p1", ImageRef: "full/p1", ThumbnailRef: "thumbnails/p1"},
			{RecordID: "p2", ImageRef: "full/p2"},
		},
		CreatedAt: base,
	}
	require.NoError(t, repo.Record(ctx, second))
	require.NoError(t, repo.Record(ctx, first))
	require.ErrorIs(t, repo.Record(ctx, first), repository.ErrConflict)

	pending, err := repo.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "i1", pending[0].ID)
	require.Equal(t, "s2", pending[0].SessionID)
	require.Equal(t, first.Items, pending[0].Items)
	require.True(t, base.Equal(pending[0].CreatedAt))
	require.Equal(t, "i2", pending[1].ID)

	require.NoError(t, repo.Clear(ctx, "i1"))
	require.NoError(t, repo.Clear(ctx, "i1"), "clearing twice is harmless")

	pending, err = repo.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "i2", pending[0].ID)
}

func TestIntentPayloadDeterministic(t *testing.T) {
	intent := &photo.DeletionIntent{
		Items: []photo.IntentItem{{RecordID: "p1", ImageRef: "full/p1", ThumbnailRef: "thumbnails/p1"}},
	}
	a, err := encodeIntent(intent)
	require.NoError(t, err)
	b, err := encodeIntent(intent)
	require.NoError(t, err)
	require.Equal(t, a, b)

	items, err := decodeIntent(a)
	require.NoError(t, err)
	require.Equal(t, intent.Items, items)

	_, err = decodeIntent([]byte{0xff, 0x00})
	require.Error(t, err)
}
