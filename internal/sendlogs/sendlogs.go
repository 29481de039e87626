package sendlogs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/sdr/internal/db"
)

// Log statuses
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 100

// Log records one delivery attempt to one contact
type Log struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	CampaignID string     `json:"campaign_id,omitempty"`
	ContactID  string     `json:"contact_id,omitempty"`
	TemplateID string     `json:"template_id,omitempty"`
	JobID      string     `json:"job_id,omitempty"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filter narrows List.
type Filter struct {
	CampaignID string
	ContactID  string
	JobID      string
	Status     string
	Limit      int
}

// Insert writes a log row. ID and CreatedAt are assigned when empty.
func Insert(ctx context.Context, q db.Querier, l Log) (Log, error) {
	if l.UserID == "" || l.Type == "" || l.Status == "" {
		return Log{}, fmt.Errorf("user_id, type and status are required")
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	var sentAt any
	if l.SentAt != nil {
		sentAt = l.SentAt.Unix()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO send_logs (id, user_id, campaign_id, contact_id, template_id, job_id, type, status, message, error, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.UserID, db.NullString(l.CampaignID), db.NullString(l.ContactID), db.NullString(l.TemplateID),
		db.NullString(l.JobID), l.Type, l.Status, db.NullString(l.Message), db.NullString(l.Error), sentAt, l.CreatedAt.Unix())
	if err != nil {
		return Log{}, fmt.Errorf("failed to insert send log: %w", err)
	}
	return l, nil
}

// List returns the user's logs, newest first
func List(ctx context.Context, q db.Querier, userID string, f Filter) ([]Log, error) {
	query := `
		SELECT id, user_id, campaign_id, contact_id, template_id, job_id, type, status, message, error, sent_at, created_at
		FROM send_logs
		WHERE user_id = ?
	`
	args := []any{userID}
	if f.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, f.CampaignID)
	}
	if f.ContactID != "" {
		query += ` AND contact_id = ?`
		args = append(args, f.ContactID)
	}
	if f.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, f.JobID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query send logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var l Log
		var campaignID, contactID, templateID, jobID, message, errMsg sql.NullString
		var sentAt sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.UserID, &campaignID, &contactID, &templateID, &jobID, &l.Type, &l.Status,
			&message, &errMsg, &sentAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan send log: %w", err)
		}
		l.CampaignID = campaignID.String
		l.ContactID = contactID.String
		l.TemplateID = templateID.String
		l.JobID = jobID.String
		l.Message = message.String
		l.Error = errMsg.String
		if sentAt.Valid {
			t := time.Unix(sentAt.Int64, 0)
			l.SentAt = &t
		}
		l.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating send logs: %w", err)
	}
	return out, nil
}

// CountByStatus returns sent/failed totals, optionally for one campaign.
func CountByStatus(ctx context.Context, q db.Querier, userID, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM send_logs WHERE user_id = ?`
	args := []any{userID}
	if campaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}
	query += ` GROUP BY status`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count send logs: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan send log count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
