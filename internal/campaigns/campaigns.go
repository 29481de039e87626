package campaigns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/sdr/internal/db"
)

// Campaign statuses
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Campaign groups contacts collected for one prospecting effort
type Campaign struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Keywords        []string  `json:"keywords"`
	Status          string    `json:"status"`
	TotalContacts   int       `json:"total_contacts"`
	MessagesSent    int       `json:"messages_sent"`
	RepliesReceived int       `json:"replies_received"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Input carries the user-editable fields of a campaign.
type Input struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	Name            *string   `json:"name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Keywords        *[]string `json:"keywords,omitempty"`
	RepliesReceived *int      `json:"replies_received,omitempty"`
}

// Filter narrows List.
type Filter struct {
	Status      string
	HasContacts bool
}

// ValidStatus reports whether s is a known campaign status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// ParseKeywords splits a comma-separated keyword list, trimming blanks.
func ParseKeywords(s string) []string {
	return cleanKeywords(strings.Split(s, ","))
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Create inserts a new active campaign
func Create(ctx context.Context, q db.Querier, userID string, in Input) (Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Campaign{}, db.Invalidf("campaign name is required")
	}
	keywords := cleanKeywords(in.Keywords)
	kwJSON, err := json.Marshal(keywords)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to marshal keywords: %w", err)
	}

	now := time.Now().Unix()
	c := Campaign{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Keywords:    keywords,
		Status:      StatusActive,
		CreatedAt:   time.Unix(now, 0),
		UpdatedAt:   time.Unix(now, 0),
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO campaigns (id, user_id, name, description, keywords_json, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, userID, c.Name, db.NullString(c.Description), string(kwJSON), c.Status, now, now)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}
	return c, nil
}

const selectColumns = `
	SELECT id, user_id, name, description, keywords_json, status,
		total_contacts, messages_sent, replies_received, created_at, updated_at
	FROM campaigns
`

// Get returns one campaign owned by userID
func Get(ctx context.Context, q db.Querier, userID, id string) (Campaign, error) {
	row := q.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND user_id = ?`, id, userID)
	return scanCampaign(row)
}

// List returns the user's campaigns, newest first
func List(ctx context.Context, q db.Querier, userID string, f Filter) ([]Campaign, error) {
	query := selectColumns + ` WHERE user_id = ?`
	args := []any{userID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.HasContacts {
		query += ` AND total_contacts > 0`
	}
	query += ` ORDER BY created_at DESC, name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating campaigns: %w", err)
	}
	return out, nil
}

// Apply performs a partial update and returns the stored campaign
func Apply(ctx context.Context, q db.Querier, userID, id string, u Update) (Campaign, error) {
	c, err := Get(ctx, q, userID, id)
	if err != nil {
		return Campaign{}, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Campaign{}, db.Invalidf("campaign name is required")
		}
		c.Name = name
	}
	if u.Description != nil {
		c.Description = strings.TrimSpace(*u.Description)
	}
	if u.Keywords != nil {
		c.Keywords = cleanKeywords(*u.Keywords)
	}
	if u.RepliesReceived != nil {
		if *u.RepliesReceived < 0 {
			return Campaign{}, db.Invalidf("replies_received must not be negative")
		}
		c.RepliesReceived = *u.RepliesReceived
	}
	kwJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to marshal keywords: %w", err)
	}

	now := time.Now().Unix()
	_, err = q.ExecContext(ctx, `
		UPDATE campaigns
		SET name = ?, description = ?, keywords_json = ?, replies_received = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, c.Name, db.NullString(c.Description), string(kwJSON), c.RepliesReceived, now, id, userID)
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to update campaign: %w", err)
	}
	c.UpdatedAt = time.Unix(now, 0)
	return c, nil
}

// SetStatus moves a campaign between active, paused and completed
func SetStatus(ctx context.Context, q db.Querier, userID, id, status string) error {
	if !ValidStatus(status) {
		return db.Invalidf("invalid campaign status %q", status)
	}
	return execOwned(ctx, q, `
		UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?
	`, status, time.Now().Unix(), id, userID)
}

// Delete removes a campaign. Its contacts stay, detached from any campaign.
func Delete(ctx context.Context, q db.Querier, userID, id string) error {
	return execOwned(ctx, q, `DELETE FROM campaigns WHERE id = ? AND user_id = ?`, id, userID)
}

// RefreshTotalContacts recounts the contacts attached to a campaign.
func RefreshTotalContacts(ctx context.Context, q db.Querier, userID, id string) (int, error) {
	now := time.Now().Unix()
	err := execOwned(ctx, q, `
		UPDATE campaigns
		SET total_contacts = (SELECT COUNT(*) FROM contacts WHERE campaign_id = campaigns.id),
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`, now, id, userID)
	if err != nil {
		return 0, err
	}
	var total int
	if err := q.QueryRowContext(ctx, `SELECT total_contacts FROM campaigns WHERE id = ?`, id).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to read total_contacts: %w", err)
	}
	return total, nil
}

// AddMessagesSent increments the campaign's sent counter.
func AddMessagesSent(ctx context.Context, q db.Querier, userID, id string, n int) error {
	if n <= 0 {
		return nil
	}
	return execOwned(ctx, q, `
		UPDATE campaigns SET messages_sent = messages_sent + ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, n, time.Now().Unix(), id, userID)
}

func execOwned(ctx context.Context, q db.Querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (Campaign, error) {
	var c Campaign
	var description sql.NullString
	var kwJSON string
	var createdAt, updatedAt int64
	err := s.Scan(&c.ID, &c.UserID, &c.Name, &description, &kwJSON, &c.Status,
		&c.TotalContacts, &c.MessagesSent, &c.RepliesReceived, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, db.ErrNotFound
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("failed to scan campaign: %w", err)
	}
	if description.Valid {
		c.Description = description.String
	}
	if err := json.Unmarshal([]byte(kwJSON), &c.Keywords); err != nil {
		return Campaign{}, fmt.Errorf("failed to decode keywords: %w", err)
	}
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return c, nil
}
