package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/sdr/internal/db"
)

// Event types
const (
	TypeCampaignCreated  = "campaign.created"
	TypeContactsAdded    = "contacts.added"
	TypeTemplateCreated  = "template.created"
	TypeDispatchStarted  = "dispatch.started"
	TypeDispatchFinished = "dispatch.finished"
	TypeMessageSent      = "message.sent"
	TypeMessageFailed    = "message.failed"
)

type Event struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	SubjectID *string         `json:"subject_id,omitempty"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Emit appends an activity event for a user. subjectID names the campaign,
// contact or job the event is about and may be empty.
func Emit(ctx context.Context, q db.Querier, userID string, typ string, subjectID string, payload any) error {
	if typ == "" {
		return fmt.Errorf("type is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	now := time.Now().Unix()
	id := uuid.New().String()

	var payloadVal any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloadVal = string(b)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO bus_events (id, user_id, type, subject_id, created_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, userID, typ, db.NullString(subjectID), now, payloadVal)
	if err != nil {
		return fmt.Errorf("failed to insert bus event: %w", err)
	}
	return nil
}

// List returns a user's events after afterSeq in ascending order.
func List(ctx context.Context, q db.Querier, userID string, afterSeq int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT seq, id, user_id, type, subject_id, created_at, payload_json
		FROM bus_events
		WHERE user_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, userID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent returns a user's newest events, newest first.
func Recent(ctx context.Context, q db.Querier, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.QueryContext(ctx, `
		SELECT seq, id, user_id, type, subject_id, created_at, payload_json
		FROM bus_events
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var subject sql.NullString
		var payload sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.UserID, &e.Type, &subject, &e.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan bus event: %w", err)
		}
		if subject.Valid {
			e.SubjectID = &subject.String
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating bus events: %w", err)
	}
	return out, nil
}
