package users

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/sdr/internal/db"
)

// TokenPrefix marks API tokens issued by this service.
const TokenPrefix = "sdr_"

// User represents an account that owns campaigns, contacts and templates
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Create inserts a user and returns it together with a freshly issued API
// token. Only the token's hash is stored; the plain token is not recoverable.
func Create(ctx context.Context, q db.Querier, name, email string) (User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, "", db.Invalidf("name is required")
	}

	token := newToken()
	now := time.Now().Unix()
	u := User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     strings.TrimSpace(email),
		CreatedAt: time.Unix(now, 0),
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, token_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, db.NullString(u.Email), HashToken(token), now, now)
	if err != nil {
		return User{}, "", fmt.Errorf("failed to create user: %w", err)
	}
	return u, token, nil
}

// Get returns a user by id
func Get(ctx context.Context, q db.Querier, id string) (User, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, created_at FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

// GetByToken resolves a plain API token to its user
func GetByToken(ctx context.Context, q db.Querier, token string) (User, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return User{}, db.ErrNotFound
	}
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, created_at FROM users WHERE token_hash = ?
	`, HashToken(token))
	return scanUser(row)
}

// List returns all users ordered by creation time
func List(ctx context.Context, q db.Querier) ([]User, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, email, created_at FROM users ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RotateToken replaces a user's token, invalidating the previous one.
func RotateToken(ctx context.Context, q db.Querier, id string) (string, error) {
	token := newToken()
	res, err := q.ExecContext(ctx, `
		UPDATE users SET token_hash = ?, updated_at = ? WHERE id = ?
	`, HashToken(token), time.Now().Unix(), id)
	if err != nil {
		return "", fmt.Errorf("failed to rotate token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", db.ErrNotFound
	}
	return token, nil
}

// HashToken returns the hex SHA-256 of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() string {
	return TokenPrefix + strings.ReplaceAll(uuid.New().String(), "-", "") + strings.ReplaceAll(uuid.New().String(), "-", "")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (User, error) {
	var u User
	var email sql.NullString
	var createdAt int64
	err := s.Scan(&u.ID, &u.Name, &email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, db.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	if email.Valid {
		u.Email = email.String
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return u, nil
}
