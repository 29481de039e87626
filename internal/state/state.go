package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Napageneral/sdr/internal/db"
)

// Get reads one key of a channel's runtime state.
func Get(ctx context.Context, q db.Querier, channel string, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM channel_state WHERE channel = ? AND key = ?`, channel, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get channel state: %w", err)
	}
	return v, true, nil
}

// Set writes one key of a channel's runtime state.
func Set(ctx context.Context, q db.Querier, channel string, key string, value string) error {
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO channel_state (channel, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, channel, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set channel state: %w", err)
	}
	return nil
}

// Incr adds delta to an integer key, treating a missing key as zero.
func Incr(ctx context.Context, q db.Querier, channel string, key string, delta int64) error {
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO channel_state (channel, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel, key) DO UPDATE SET
			value = CAST(CAST(channel_state.value AS INTEGER) + ? AS TEXT),
			updated_at = excluded.updated_at
	`, channel, key, strconv.FormatInt(delta, 10), now, delta)
	if err != nil {
		return fmt.Errorf("failed to increment channel state: %w", err)
	}
	return nil
}
