package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/repository"
)

var _ photo.Catalog = (*PhotoRepository)(nil)

// PhotoRepository implements photo.Catalog for SQLite
type PhotoRepository struct {
	db *DB
}

// NewPhotoRepository creates a new PhotoRepository
func NewPhotoRepository(db *DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

const photoColumns = `
	id, session_id, sequence_number, captured_at, image_ref, thumbnail_ref,
	checksum, latitude, longitude, orientation, notes, annotated, modified_at`

func scanPhoto(row rowScanner) (*photo.Record, error) {
	var rec photo.Record
	var capturedAt, modifiedAt int64
	var latitude, longitude sql.NullFloat64
	var notes sql.NullString
	var annotated int
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.SequenceNumber,
		&capturedAt,
		&rec.ImageRef,
		&rec.ThumbnailRef,
		&rec.Checksum,
		&latitude,
		&longitude,
		&rec.Orientation,
		&notes,
		&annotated,
		&modifiedAt,
	); err != nil {
		return nil, err
	}
	rec.CapturedAt = fromUnix(capturedAt)
	rec.ModifiedAt = fromUnix(modifiedAt)
	if latitude.Valid && longitude.Valid {
		rec.Location = &photo.Location{Latitude: latitude.Float64, Longitude: longitude.Float64}
	}
	if notes.Valid {
		rec.Notes = &notes.String
	}
	rec.Annotated = annotated == 1
	return &rec, nil
}

func locationArgs(loc *photo.Location) (sql.NullFloat64, sql.NullFloat64) {
	if loc == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: loc.Latitude, Valid: true},
		sql.NullFloat64{Float64: loc.Longitude, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Insert creates a new photo record
func (r *PhotoRepository) Insert(ctx context.Context, rec *photo.Record) error {
	latitude, longitude := locationArgs(rec.Location)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO photo_records (`+photoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.SessionID,
		rec.SequenceNumber,
		toUnix(rec.CapturedAt),
		rec.ImageRef,
		rec.ThumbnailRef,
		rec.Checksum,
		latitude,
		longitude,
		rec.Orientation,
		rec.Notes,
		boolInt(rec.Annotated),
		toUnix(rec.ModifiedAt),
	)
	if err != nil {
		return writeError("insert photo record", err)
	}
	return nil
}

// Get retrieves a photo record by ID
func (r *PhotoRepository) Get(ctx context.Context, id string) (*photo.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photo_records WHERE id = ?`, id)
	rec, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo record: %w", err)
	}
	return rec, nil
}

// FindBySession returns a session's records in sequence order
func (r *PhotoRepository) FindBySession(ctx context.Context, sessionID string) ([]photo.Record, error) {
	return r.query(ctx, `
		SELECT `+photoColumns+`
		FROM photo_records
		WHERE session_id = ?
		ORDER BY sequence_number ASC
	`, sessionID)
}

// FindAll returns every record, newest first
func (r *PhotoRepository) FindAll(ctx context.Context) ([]photo.Record, error) {
	return r.query(ctx, `
		SELECT `+photoColumns+`
		FROM photo_records
		ORDER BY captured_at DESC, sequence_number ASC
	`)
}

func (r *PhotoRepository) query(ctx context.Context, query string, args ...any) ([]photo.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list photo records: %w", err)
	}
	defer rows.Close()

	var records []photo.Record
	for rows.Next() {
		rec, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photo records: %w", err)
	}
	return records, nil
}

// Update writes a record's content fields. Session and sequence are left alone.
func (r *PhotoRepository) Update(ctx context.Context, rec *photo.Record) error {
	latitude, longitude := locationArgs(rec.Location)
	result, err := r.db.ExecContext(ctx, `
		UPDATE photo_records
		SET image_ref = ?, thumbnail_ref = ?, checksum = ?, latitude = ?, longitude = ?,
		    orientation = ?, notes = ?, annotated = ?, modified_at = ?
		WHERE id = ?
	`,
		rec.ImageRef,
		rec.ThumbnailRef,
		rec.Checksum,
		latitude,
		longitude,
		rec.Orientation,
		rec.Notes,
		boolInt(rec.Annotated),
		toUnix(rec.ModifiedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update photo record: %w", err)
	}
	return requireAffected(result)
}

// Remove deletes a record without touching the rest of its session
func (r *PhotoRepository) Remove(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM photo_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove photo record: %w", err)
	}
	return requireAffected(result)
}

// RemoveAndShift deletes a record and closes the gap it leaves
func (r *PhotoRepository) RemoveAndShift(ctx context.Context, id string) (*photo.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photo_records WHERE id = ?`, id)
	rec, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM photo_records WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to remove photo record: %w", err)
	}

	// UNIQUE(session_id, sequence_number) is checked per row, so shift
	// through negative numbers rather than colliding with a neighbour.
	if _, err := tx.ExecContext(ctx, `
		UPDATE photo_records
		SET sequence_number = -(sequence_number - 1)
		WHERE session_id = ? AND sequence_number > ?
	`, rec.SessionID, rec.SequenceNumber); err != nil {
		return nil, fmt.Errorf("failed to shift photo records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE photo_records
		SET sequence_number = -sequence_number
		WHERE session_id = ? AND sequence_number < 0
	`, rec.SessionID); err != nil {
		return nil, fmt.Errorf("failed to shift photo records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit removal: %w", err)
	}
	return rec, nil
}

// NextSequenceNumber returns max+1 for the session, or 1 if it has no records
func (r *PhotoRepository) NextSequenceNumber(ctx context.Context, sessionID string) (int64, error) {
	var next int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM photo_records WHERE session_id = ?`,
		sessionID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read next sequence number: %w", err)
	}
	return next, nil
}
