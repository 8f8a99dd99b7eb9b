package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trading-bot-dashboard/backend/internal/db"
	"trading-bot-dashboard/backend/internal/session/domain"
)

const sessionColumns = `s.id, s.user_id, s.token_hash, s.expires_at, s.created_at, s.last_seen_at, s.ip_address, s.user_agent`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session. The session must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := insertSession(ctx, r.db, s); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindActiveByHash returns the unexpired session for tokenHash whose user is active, or nil.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > $2 AND u.status = 'active'`,
		tokenHash, now,
	)
	return scanSession(row)
}

// GetByID returns the session with id regardless of expiry, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id)
	return scanSession(row)
}

// DeleteByHash removes the rows matching tokenHash. Deleting nothing is not an error.
func (r *PostgresRepository) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("delete session by hash: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByID removes the single session with id and reports whether it existed.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListActiveByUser returns the user's unexpired sessions, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		WHERE s.user_id = $1 AND s.expires_at > $2
		ORDER BY s.created_at DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteAllByUser removes every session of userID.
func (r *PostgresRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return res.RowsAffected()
}

// Rotate replaces the active row with oldHash by next inside one transaction. The
// DELETE takes the row lock, so of two concurrent rotations of the same token the
// second sees zero rows once the first commits and returns nil, nil. The successor
// keeps the original login time as CreatedAt and records now as LastSeenAt.
func (r *PostgresRepository) Rotate(ctx context.Context, oldHash string, next *domain.Session, now time.Time) (*domain.Session, error) {
	var rotated *domain.Session
	err := db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			userID    string
			createdAt time.Time
		)
		err := tx.QueryRowContext(ctx, `
			DELETE FROM sessions s
			USING users u
			WHERE s.token_hash = $1 AND s.expires_at > $2 AND u.id = s.user_id AND u.status = 'active'
			RETURNING s.user_id, s.created_at`,
			oldHash, now,
		).Scan(&userID, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete rotated session: %w", err)
		}
		if userID != next.UserID {
			return fmt.Errorf("rotate session: owner mismatch")
		}
		succ := *next
		succ.CreatedAt = createdAt
		seen := now
		succ.LastSeenAt = &seen
		if err := insertSession(ctx, tx, &succ); err != nil {
			return fmt.Errorf("insert rotated session: %w", err)
		}
		rotated = &succ
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rotated, nil
}

// DeleteExpired purges rows whose expiry is at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertSession(ctx context.Context, e execer, s *domain.Session) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at, last_seen_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt,
		timeToNullTime(s.LastSeenAt),
		sql.NullString{String: s.IPAddress, Valid: s.IPAddress != ""},
		sql.NullString{String: s.UserAgent, Valid: s.UserAgent != ""},
	)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	s, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSessionRow(row scanner) (*domain.Session, error) {
	var (
		s        domain.Session
		lastSeen sql.NullTime
		ip, ua   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt, &lastSeen, &ip, &ua); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.LastSeenAt = nullTimeToPtr(lastSeen)
	s.IPAddress = ip.String
	s.UserAgent = ua.String
	return &s, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
