package sqlite

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/rpggio/fieldcam/internal/domain/photo"
)

// Intent payloads use deterministic CBOR; keyed by integer so the stored
// blobs stay small.
var (
	intentEncMode cbor.EncMode
	intentDecMode cbor.DecMode
)

func init() {
	var err error
	intentEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("sqlite: CBOR encoder initialization failed: " + err.Error())
	}
	intentDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("sqlite: CBOR decoder initialization failed: " + err.Error())
	}
}

type intentPayload struct {
	Items []intentItem `cbor:"1,keyasint"`
}

type intentItem struct {
	RecordID     string `cbor:"1,keyasint"`
	ImageRef     string `cbor:"2,keyasint"`
	ThumbnailRef string `cbor:"3,keyasint,omitempty"`
}

func encodeIntent(intent *photo.DeletionIntent) ([]byte, error) {
	payload := intentPayload{Items: make([]intentItem, 0, len(intent.Items))}
	for _, item := range intent.Items {
		payload.Items = append(payload.Items, intentItem(item))
	}
	return intentEncMode.Marshal(payload)
}

func decodeIntent(data []byte) ([]photo.IntentItem, error) {
	var payload intentPayload
	if err := intentDecMode.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	items := make([]photo.IntentItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, photo.IntentItem(item))
	}
	return items, nil
}

var _ photo.DeletionJournal = (*IntentRepository)(nil)

// IntentRepository implements photo.DeletionJournal for SQLite
type IntentRepository struct {
	db *DB
}

// NewIntentRepository creates a new IntentRepository
func NewIntentRepository(db *DB) *IntentRepository {
	return &IntentRepository{db: db}
}

// Record journals a deletion intent
func (r *IntentRepository) Record(ctx context.Context, intent *photo.DeletionIntent) error {
	payload, err := encodeIntent(intent)
	if err != nil {
		return fmt.Errorf("failed to encode deletion intent: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO deletion_intents (id, session_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		intent.ID, intent.SessionID, payload, toUnix(intent.CreatedAt),
	)
	if err != nil {
		return writeError("record deletion intent", err)
	}
	return nil
}

// Clear removes a finished intent. Clearing an unknown intent is a no-op.
func (r *IntentRepository) Clear(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM deletion_intents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear deletion intent: %w", err)
	}
	return nil
}

// Pending returns unfinished intents, oldest first
func (r *IntentRepository) Pending(ctx context.Context) ([]photo.DeletionIntent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, payload, created_at
		FROM deletion_intents
		ORDER BY created_at ASC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deletion intents: %w", err)
	}
	defer rows.Close()

	var intents []photo.DeletionIntent
	for rows.Next() {
		var intent photo.DeletionIntent
		var payload []byte
		var createdAt int64
		if err := rows.Scan(&intent.ID, &intent.SessionID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan deletion intent: %w", err)
		}
		items, err := decodeIntent(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode deletion intent %s: %w", intent.ID, err)
		}
		intent.Items = items
		intent.CreatedAt = fromUnix(createdAt)
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deletion intents: %w", err)
	}
	return intents, nil
}
