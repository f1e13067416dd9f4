package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateEmail and ErrDuplicateEmoji surface the unique constraints
	// on users.email and emojis (symbol, title). The constraints, not the
	// application-level pre-checks, are what close the check-then-act race.
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateEmoji = errors.New("emoji already exists")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, hashed_password, display_name, is_active, is_superuser, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.DisplayName,
		&user.IsActive,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *PostgresStore) CreateUser(ctx context.Context, email, hashedPassword string, displayName *string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, hashed_password, display_name)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		email, hashedPassword, displayName)
	user, err := scanUser(row)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicateEmail
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int64, hashedPassword string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET hashed_password=$2, updated_at=NOW() WHERE id=$1
	`, userID, hashedPassword)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

const emojiColumns = `id, symbol, title, description, category, keywords, submitter_email, submitter_id, created_at`

func scanEmoji(row *sql.Row) (Emoji, error) {
	var item Emoji
	err := row.Scan(
		&item.ID,
		&item.Symbol,
		&item.Title,
		&item.Description,
		&item.Category,
		&item.Keywords,
		&item.SubmitterEmail,
		&item.SubmitterID,
		&item.CreatedAt,
	)
	if err != nil {
		return Emoji{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetEmoji(ctx context.Context, id int64) (Emoji, error) {
	return scanEmoji(s.db.QueryRowContext(ctx,
		`SELECT `+emojiColumns+` FROM emojis WHERE id=$1`, id))
}

func (s *PostgresStore) InsertEmoji(ctx context.Context, item Emoji) (Emoji, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO emojis (symbol, title, description, category, keywords, submitter_email, submitter_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+emojiColumns,
		item.Symbol, item.Title, item.Description, item.Category, item.Keywords, item.SubmitterEmail, item.SubmitterID)
	created, err := scanEmoji(row)
	if isUniqueViolation(err) {
		return Emoji{}, ErrDuplicateEmoji
	}
	if err != nil {
		return Emoji{}, fmt.Errorf("insert emoji: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateEmoji(ctx context.Context, item Emoji) (Emoji, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE emojis
		SET symbol=$2, title=$3, description=$4, category=$5, keywords=$6
		WHERE id=$1
		RETURNING `+emojiColumns,
		item.ID, item.Symbol, item.Title, item.Description, item.Category, item.Keywords)
	updated, err := scanEmoji(row)
	if isUniqueViolation(err) {
		return Emoji{}, ErrDuplicateEmoji
	}
	if err != nil {
		return Emoji{}, err
	}
	return updated, nil
}

func (s *PostgresStore) DeleteEmoji(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM emojis WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete emoji: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete emoji: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ExistsEmoji(ctx context.Context, symbol, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM emojis WHERE symbol=$1 AND title=$2)`, symbol, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check emoji exists: %w", err)
	}
	return exists, nil
}

// Postgres fallback for the single-use reset ledger, used when Redis is not
// configured.

func (s *PostgresStore) MarkResetTokenUsed(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO used_reset_tokens (token_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_hash) DO NOTHING
	`, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsResetTokenUsed(ctx context.Context, tokenHash string) (bool, error) {
	var used bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM used_reset_tokens WHERE token_hash=$1 AND expires_at > NOW())
	`, tokenHash).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check reset token: %w", err)
	}
	return used, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
