package templates

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

// Template types double as the delivery channel kind.
const (
	TypeEmail    = "email"
	TypeWhatsApp = "whatsapp"
)

// Template is a reusable outreach message
type Template struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject,omitempty"`
	Content   string    `json:"content"`
	Variables []string  `json:"variables"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the user-editable fields of a template. Active defaults to true.
type Input struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
	Active  *bool  `json:"active,omitempty"`
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	Name    *string `json:"name,omitempty"`
	Type    *string `json:"type,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Content *string `json:"content,omitempty"`
	Active  *bool   `json:"active,omitempty"`
}

// ValidType reports whether t is a known template type.
func ValidType(t string) bool {
	return t == TypeEmail || t == TypeWhatsApp
}

func validate(t *Template) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Subject = strings.TrimSpace(t.Subject)
	if t.Name == "" || strings.TrimSpace(t.Content) == "" {
		return db.Invalidf("template name and content are required")
	}
	if t.Type == "" {
		t.Type = TypeWhatsApp
	}
	if !ValidType(t.Type) {
		return db.Invalidf("invalid template type %q", t.Type)
	}
	t.Variables = ExtractVariables(t.Content)
	return nil
}

// Create inserts a template, extracting its variables from the content
func Create(ctx context.Context, q db.Querier, userID string, in Input) (Template, error) {
	now := time.Now().Unix()
	t := Template{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      in.Name,
		Type:      in.Type,
		Subject:   in.Subject,
		Content:   in.Content,
		Active:    in.Active == nil || *in.Active,
		CreatedAt: time.Unix(now, 0),
		UpdatedAt: time.Unix(now, 0),
	}
	if err := validate(&t); err != nil {
		return Template{}, err
	}
	varsJSON, err := json.Marshal(t.Variables)
	if err != nil {
		return Template{}, fmt.Errorf("failed to marshal variables: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO message_templates (id, user_id, name, type, subject, content, variables_json, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, userID, t.Name, t.Type, db.NullString(t.Subject), t.Content, string(varsJSON), t.Active, now, now)
	if err != nil {
		return Template{}, fmt.Errorf("failed to create template: %w", err)
	}
	return t, nil
}

const selectColumns = `
	SELECT id, user_id, name, type, subject, content, variables_json, active, created_at, updated_at
	FROM message_templates
`

// Get returns one template owned by userID
func Get(ctx context.Context, q db.Querier, userID, id string) (Template, error) {
	row := q.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND user_id = ?`, id, userID)
	return scanTemplate(row)
}

// List returns the user's templates by name
func List(ctx context.Context, q db.Querier, userID string, activeOnly bool) ([]Template, error) {
	query := selectColumns + ` WHERE user_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name, created_at`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating templates: %w", err)
	}
	return out, nil
}

// Apply performs a partial update and re-extracts variables
func Apply(ctx context.Context, q db.Querier, userID, id string, u Update) (Template, error) {
	t, err := Get(ctx, q, userID, id)
	if err != nil {
		return Template{}, err
	}
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Type != nil {
		t.Type = *u.Type
	}
	if u.Subject != nil {
		t.Subject = *u.Subject
	}
	if u.Content != nil {
		t.Content = *u.Content
	}
	if u.Active != nil {
		t.Active = *u.Active
	}
	if err := validate(&t); err != nil {
		return Template{}, err
	}
	varsJSON, err := json.Marshal(t.Variables)
	if err != nil {
		return Template{}, fmt.Errorf("failed to marshal variables: %w", err)
	}

	now := time.Now().Unix()
	_, err = q.ExecContext(ctx, `
		UPDATE message_templates
		SET name = ?, type = ?, subject = ?, content = ?, variables_json = ?, active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, t.Name, t.Type, db.NullString(t.Subject), t.Content, string(varsJSON), t.Active, now, id, userID)
	if err != nil {
		return Template{}, fmt.Errorf("failed to update template: %w", err)
	}
	t.UpdatedAt = time.Unix(now, 0)
	return t, nil
}

// Delete removes a template
func Delete(ctx context.Context, q db.Querier, userID, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM message_templates WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner) (Template, error) {
	var t Template
	var subject sql.NullString
	var varsJSON string
	var createdAt, updatedAt int64
	err := s.Scan(&t.ID, &t.UserID, &t.Name, &t.Type, &subject, &t.Content, &varsJSON, &t.Active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, db.ErrNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to scan template: %w", err)
	}
	t.Subject = subject.String
	if err := json.Unmarshal([]byte(varsJSON), &t.Variables); err != nil {
		return Template{}, fmt.Errorf("failed to decode variables: %w", err)
	}
	if t.Variables == nil {
		t.Variables = []string{}
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return t, nil
}
