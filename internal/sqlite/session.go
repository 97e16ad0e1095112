package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/rpggio/fieldcam/internal/repository"
)

var _ session.Repository = (*SessionRepository)(nil)

// SessionRepository implements session.Repository for SQLite
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, name, created_at, last_used_at, sequence_counter, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var sess session.Session
	var createdAt, lastUsedAt int64
	var active int
	if err := row.Scan(
		&sess.ID,
		&sess.Name,
		&createdAt,
		&lastUsedAt,
		&sess.SequenceCounter,
		&active,
	); err != nil {
		return nil, err
	}
	sess.CreatedAt = fromUnix(createdAt)
	sess.LastUsedAt = fromUnix(lastUsedAt)
	sess.IsActive = active == 1
	return &sess, nil
}

// CreateActive deactivates the current session and inserts sess as active
func (r *SessionRepository) CreateActive(ctx context.Context, sess *session.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, 1)
	`,
		sess.ID,
		sess.Name,
		toUnix(sess.CreatedAt),
		toUnix(sess.LastUsedAt),
		sess.SequenceCounter,
	)
	if err != nil {
		return writeError("create session", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// GetActive retrieves the active session
func (r *SessionRepository) GetActive(ctx context.Context) (*session.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE is_active = 1`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return sess, nil
}

// List returns all sessions, most recently used first
func (r *SessionRepository) List(ctx context.Context) ([]session.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY last_used_at DESC, created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// ListSummaries returns all sessions with their photo counts
func (r *SessionRepository) ListSummaries(ctx context.Context) ([]session.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.created_at, s.last_used_at, s.sequence_counter, s.is_active,
		       COUNT(p.id)
		FROM sessions s
		LEFT JOIN photo_records p ON p.session_id = s.id
		GROUP BY s.id
		ORDER BY s.last_used_at DESC, s.created_at DESC, s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list session summaries: %w", err)
	}
	defer rows.Close()

	var summaries []session.Summary
	for rows.Next() {
		var summary session.Summary
		var createdAt, lastUsedAt int64
		var active int
		if err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&createdAt,
			&lastUsedAt,
			&summary.SequenceCounter,
			&active,
			&summary.PhotoCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		summary.CreatedAt = fromUnix(createdAt)
		summary.LastUsedAt = fromUnix(lastUsedAt)
		summary.IsActive = active == 1
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session summaries: %w", err)
	}

	return summaries, nil
}

// Activate makes id the only active session and touches its last used time
func (r *SessionRepository) Activate(ctx context.Context, id string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE is_active = 1 AND id <> ?`, id); err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET is_active = 1, last_used_at = ? WHERE id = ?`,
		toUnix(at), id,
	); err != nil {
		return fmt.Errorf("failed to activate session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	return nil
}

// UpdateCounter persists a session's sequence counter
func (r *SessionRepository) UpdateCounter(ctx context.Context, id string, counter int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET sequence_counter = ?, last_used_at = ? WHERE id = ?`,
		counter, toUnix(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update counter: %w", err)
	}
	return requireAffected(result)
}

// Rename changes a session's name
func (r *SessionRepository) Rename(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	return requireAffected(result)
}

// Delete removes an inactive session. The active session is never deleted.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND is_active = 0`, id)
	if err != nil {
		return writeError("delete session", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	return repository.ErrConflict
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
