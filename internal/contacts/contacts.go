package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/sdr/internal/campaigns"
	"github.com/Napageneral/sdr/internal/db"
)

// Contact statuses, in pipeline order
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusReplied   = "replied"
	StatusConverted = "converted"
)

var statusRank = map[string]int{
	StatusNew:       0,
	StatusContacted: 1,
	StatusReplied:   2,
	StatusConverted: 3,
}

// ValidStatus reports whether s is a known contact status.
func ValidStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// Contact is a business collected as a lead
type Contact struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Name       string    `json:"name"`
	Address    string    `json:"address,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	Website    string    `json:"website,omitempty"`
	Category   string    `json:"category,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Input carries the user-editable fields of a contact.
type Input struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Website    string `json:"website,omitempty"`
	Category   string `json:"category,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Update is a partial update; nil fields are left unchanged. An empty
// CampaignID detaches the contact.
type Update struct {
	CampaignID *string `json:"campaign_id,omitempty"`
	Name       *string `json:"name,omitempty"`
	Address    *string `json:"address,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
	Website    *string `json:"website,omitempty"`
	Category   *string `json:"category,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// Filter narrows List.
type Filter struct {
	CampaignID string
	Status     string
	// Search matches name or category, case-insensitively.
	Search string
	IDs    []string
	Limit  int
}

func (in Input) normalized() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, db.Invalidf("contact name is required")
	}
	in.CampaignID = strings.TrimSpace(in.CampaignID)
	in.Address = strings.TrimSpace(in.Address)
	in.Phone = NormalizeIdentifier(in.Phone, "phone")
	in.Email = NormalizeIdentifier(in.Email, "email")
	in.Website = strings.TrimSpace(in.Website)
	in.Category = strings.TrimSpace(in.Category)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Status == "" {
		in.Status = StatusNew
	}
	if !ValidStatus(in.Status) {
		return in, db.Invalidf("invalid contact status %q", in.Status)
	}
	return in, nil
}

// Create inserts a single contact and refreshes its campaign's total.
func Create(ctx context.Context, conn *sql.DB, userID string, in Input) (Contact, error) {
	out, err := CreateBatch(ctx, conn, userID, []Input{in})
	if err != nil {
		return Contact{}, err
	}
	return out[0], nil
}

// CreateBatch inserts contacts in one transaction. Every referenced
// campaign must belong to userID; their totals are recounted on commit.
func CreateBatch(ctx context.Context, conn *sql.DB, userID string, inputs []Input) ([]Contact, error) {
	if len(inputs) == 0 {
		return nil, db.Invalidf("no contacts to create")
	}

	normalized := make([]Input, len(inputs))
	for i, in := range inputs {
		n, err := in.normalized()
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		normalized[i] = n
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	touched := map[string]bool{}
	for _, in := range normalized {
		if in.CampaignID == "" || touched[in.CampaignID] {
			continue
		}
		if _, err := campaigns.Get(ctx, tx, userID, in.CampaignID); err != nil {
			return nil, fmt.Errorf("campaign %s: %w", in.CampaignID, err)
		}
		touched[in.CampaignID] = true
	}

	now := time.Now().Unix()
	out := make([]Contact, 0, len(normalized))
	for _, in := range normalized {
		c := Contact{
			ID:         uuid.New().String(),
			UserID:     userID,
			CampaignID: in.CampaignID,
			Name:       in.Name,
			Address:    in.Address,
			Phone:      in.Phone,
			Email:      in.Email,
			Website:    in.Website,
			Category:   in.Category,
			Notes:      in.Notes,
			Status:     in.Status,
			CreatedAt:  time.Unix(now, 0),
			UpdatedAt:  time.Unix(now, 0),
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (id, user_id, campaign_id, name, address, phone, email, website, category, notes, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, userID, db.NullString(c.CampaignID), c.Name, db.NullString(c.Address), db.NullString(c.Phone),
			db.NullString(c.Email), db.NullString(c.Website), db.NullString(c.Category), db.NullString(c.Notes),
			c.Status, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert contact: %w", err)
		}
		out = append(out, c)
	}

	for campaignID := range touched {
		if _, err := campaigns.RefreshTotalContacts(ctx, tx, userID, campaignID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, nil
}

const selectColumns = `
	SELECT id, user_id, campaign_id, name, address, phone, email, website, category, notes, status, created_at, updated_at
	FROM contacts
`

// Get returns one contact owned by userID
func Get(ctx context.Context, q db.Querier, userID, id string) (Contact, error) {
	row := q.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND user_id = ?`, id, userID)
	return scanContact(row)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns the user's contacts in insertion order
func List(ctx context.Context, q db.Querier, userID string, f Filter) ([]Contact, error) {
	query := selectColumns + ` WHERE user_id = ?`
	args := []any{userID}
	if f.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, f.CampaignID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		query += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(category, '')) LIKE ? ESCAPE '\')`
		pattern := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		args = append(args, pattern, pattern)
	}
	if len(f.IDs) > 0 {
		query += ` AND id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",") + `)`
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at, rowid`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating contacts: %w", err)
	}
	return out, nil
}

// Apply performs a partial update. Moving a contact between campaigns
// recounts both campaigns.
func Apply(ctx context.Context, conn *sql.DB, userID, id string, u Update) (Contact, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Contact{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := Get(ctx, tx, userID, id)
	if err != nil {
		return Contact{}, err
	}
	prevCampaign := c.CampaignID

	in := Input{
		CampaignID: c.CampaignID, Name: c.Name, Address: c.Address, Phone: c.Phone, Email: c.Email,
		Website: c.Website, Category: c.Category, Notes: c.Notes, Status: c.Status,
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&in.CampaignID, u.CampaignID)
	set(&in.Name, u.Name)
	set(&in.Address, u.Address)
	set(&in.Phone, u.Phone)
	set(&in.Email, u.Email)
	set(&in.Website, u.Website)
	set(&in.Category, u.Category)
	set(&in.Notes, u.Notes)
	set(&in.Status, u.Status)

	in, err = in.normalized()
	if err != nil {
		return Contact{}, err
	}
	if in.CampaignID != "" && in.CampaignID != prevCampaign {
		if _, err := campaigns.Get(ctx, tx, userID, in.CampaignID); err != nil {
			return Contact{}, fmt.Errorf("campaign %s: %w", in.CampaignID, err)
		}
	}

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		UPDATE contacts
		SET campaign_id = ?, name = ?, address = ?, phone = ?, email = ?, website = ?, category = ?, notes = ?, status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, db.NullString(in.CampaignID), in.Name, db.NullString(in.Address), db.NullString(in.Phone), db.NullString(in.Email),
		db.NullString(in.Website), db.NullString(in.Category), db.NullString(in.Notes), in.Status, now, id, userID)
	if err != nil {
		return Contact{}, fmt.Errorf("failed to update contact: %w", err)
	}

	if in.CampaignID != prevCampaign {
		for _, campaignID := range []string{prevCampaign, in.CampaignID} {
			if campaignID == "" {
				continue
			}
			if _, err := campaigns.RefreshTotalContacts(ctx, tx, userID, campaignID); err != nil {
				return Contact{}, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Contact{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.CampaignID, c.Name, c.Address, c.Phone, c.Email = in.CampaignID, in.Name, in.Address, in.Phone, in.Email
	c.Website, c.Category, c.Notes, c.Status = in.Website, in.Category, in.Notes, in.Status
	c.UpdatedAt = time.Unix(now, 0)
	return c, nil
}

// SetStatus sets a contact's pipeline status unconditionally
func SetStatus(ctx context.Context, q db.Querier, userID, id, status string) error {
	if !ValidStatus(status) {
		return db.Invalidf("invalid contact status %q", status)
	}
	res, err := q.ExecContext(ctx, `
		UPDATE contacts SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?
	`, status, time.Now().Unix(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to set contact status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// MarkContacted advances a contact from new to contacted. Contacts already
// further along the pipeline keep their status. It reports whether the row
// changed.
func MarkContacted(ctx context.Context, q db.Querier, userID, id string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE contacts SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = ?
	`, StatusContacted, time.Now().Unix(), id, userID, StatusNew)
	if err != nil {
		return false, fmt.Errorf("failed to mark contact contacted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a contact and recounts its campaign
func Delete(ctx context.Context, conn *sql.DB, userID, id string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	c, err := Get(ctx, tx, userID, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if c.CampaignID != "" {
		if _, err := campaigns.RefreshTotalContacts(ctx, tx, userID, c.CampaignID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountByStatus returns contact counts per status, optionally for one campaign.
func CountByStatus(ctx context.Context, q db.Querier, userID, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM contacts WHERE user_id = ?`
	args := []any{userID}
	if campaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}
	query += ` GROUP BY status`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan contact count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (Contact, error) {
	var c Contact
	var campaignID, address, phone, email, website, category, notes sql.NullString
	var createdAt, updatedAt int64
	err := s.Scan(&c.ID, &c.UserID, &campaignID, &c.Name, &address, &phone, &email, &website,
		&category, &notes, &c.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, db.ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("failed to scan contact: %w", err)
	}
	c.CampaignID = campaignID.String
	c.Address = address.String
	c.Phone = phone.String
	c.Email = email.String
	c.Website = website.String
	c.Category = category.String
	c.Notes = notes.String
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return c, nil
}
