package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Napageneral/sdr/internal/db"
)

// DefaultSendInterval is the pause between consecutive sends, in seconds.
const DefaultSendInterval = 30

// DefaultMessage seeds new templates when the user has not set one.
const DefaultMessage = "Olá! Espero que esteja bem. Gostaria de conversar sobre uma oportunidade que pode ser interessante para seu negócio."

// Settings are per-user preferences for outreach
type Settings struct {
	UserID          string         `json:"user_id"`
	SendInterval    int            `json:"send_interval"`
	EmailEnabled    bool           `json:"email_enabled"`
	WhatsAppEnabled bool           `json:"whatsapp_enabled"`
	SheetsID        string         `json:"sheets_id,omitempty"`
	DefaultMessage  string         `json:"default_message"`
	Extras          map[string]any `json:"extras,omitempty"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
}

// Defaults returns the settings a user has before saving any.
func Defaults(userID string) Settings {
	return Settings{
		UserID:          userID,
		SendInterval:    DefaultSendInterval,
		EmailEnabled:    true,
		WhatsAppEnabled: true,
		DefaultMessage:  DefaultMessage,
	}
}

// ChannelEnabled reports whether the user allows sending over kind.
// Unknown kinds are allowed.
func (s Settings) ChannelEnabled(kind string) bool {
	switch kind {
	case "email":
		return s.EmailEnabled
	case "whatsapp":
		return s.WhatsAppEnabled
	}
	return true
}

// Get returns the user's settings, or Defaults when none are stored
func Get(ctx context.Context, q db.Querier, userID string) (Settings, error) {
	var s Settings
	var sheetsID, defaultMessage, extras sql.NullString
	var updatedAt int64
	err := q.QueryRowContext(ctx, `
		SELECT user_id, send_interval, email_enabled, whatsapp_enabled, sheets_id, default_message, extras_json, updated_at
		FROM user_settings
		WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.SendInterval, &s.EmailEnabled, &s.WhatsAppEnabled, &sheetsID, &defaultMessage, &extras, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(userID), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	s.SheetsID = sheetsID.String
	s.DefaultMessage = defaultMessage.String
	if s.DefaultMessage == "" {
		s.DefaultMessage = DefaultMessage
	}
	if extras.Valid && extras.String != "" {
		if err := json.Unmarshal([]byte(extras.String), &s.Extras); err != nil {
			return Settings{}, fmt.Errorf("failed to decode settings extras: %w", err)
		}
	}
	t := time.Unix(updatedAt, 0)
	s.UpdatedAt = &t
	return s, nil
}

// Upsert stores the user's settings, one row per user
func Upsert(ctx context.Context, q db.Querier, s Settings) (Settings, error) {
	if s.UserID == "" {
		return Settings{}, db.Invalidf("user id is required")
	}
	if s.SendInterval < 0 {
		return Settings{}, db.Invalidf("send_interval must not be negative")
	}

	var extras any
	if len(s.Extras) > 0 {
		b, err := json.Marshal(s.Extras)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to marshal settings extras: %w", err)
		}
		extras = string(b)
	}

	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, send_interval, email_enabled, whatsapp_enabled, sheets_id, default_message, extras_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			send_interval = excluded.send_interval,
			email_enabled = excluded.email_enabled,
			whatsapp_enabled = excluded.whatsapp_enabled,
			sheets_id = excluded.sheets_id,
			default_message = excluded.default_message,
			extras_json = excluded.extras_json,
			updated_at = excluded.updated_at
	`, s.UserID, s.SendInterval, s.EmailEnabled, s.WhatsAppEnabled, db.NullString(s.SheetsID),
		db.NullString(s.DefaultMessage), extras, now, now)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}

	if s.DefaultMessage == "" {
		s.DefaultMessage = DefaultMessage
	}
	t := time.Unix(now, 0)
	s.UpdatedAt = &t
	return s, nil
}
