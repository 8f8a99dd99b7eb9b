package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"trading-bot-dashboard/backend/internal/db"
	"trading-bot-dashboard/backend/internal/user/domain"
)

const uniqueViolation = "23505"

const userColumns = `id, email, username, password_hash, role, status, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// UsernameExists reports whether any account, in any status, holds username.
func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists query: %w", err)
	}
	return exists, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
// Returns ErrConflict when the email or username is already taken.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.Role, string(u.Status), u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetStatus changes the account status. Missing users are a no-op.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return nil
}

// CreatePasswordReset stores a hashed reset token. Older tokens for the same user are dropped.
func (r *PostgresRepository) CreatePasswordReset(ctx context.Context, pr *domain.PasswordReset) error {
	return db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = $1`, pr.UserID); err != nil {
			return fmt.Errorf("delete old password resets: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO password_resets (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
			pr.TokenHash, pr.UserID, pr.ExpiresAt, pr.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert password reset: %w", err)
		}
		return nil
	})
}

// PasswordResetActive reports whether an unexpired reset token with tokenHash exists.
func (r *PostgresRepository) PasswordResetActive(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM password_resets WHERE token_hash = $1 AND expires_at > $2)`,
		tokenHash, now,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check password reset: %w", err)
	}
	return ok, nil
}

// ConsumePasswordReset deletes the unexpired reset token with tokenHash and sets the
// owning active user's password hash in one transaction. Returns "" with a nil error
// when the token is unknown, expired, already used, or the user is not active.
func (r *PostgresRepository) ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	var userID string
	err := db.InTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`DELETE FROM password_resets WHERE token_hash = $1 AND expires_at > $2 RETURNING user_id`,
			tokenHash, now,
		).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			userID = ""
			return nil
		}
		if err != nil {
			return fmt.Errorf("consume password reset: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND status = 'active'`,
			userID, newPasswordHash, now,
		)
		if err != nil {
			return fmt.Errorf("update password hash: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			userID = ""
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status string
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}
