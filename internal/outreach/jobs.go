package outreach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Napageneral/sdr/internal/db"
)

// Job statuses
const (
	JobRunning  = "running"
	JobSuccess  = "success"
	JobError    = "error"
	JobCanceled = "canceled"
)

// Job tracks one bulk dispatch.
type Job struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	CampaignID string  `json:"campaign_id"`
	TemplateID string  `json:"template_id"`
	Status     string  `json:"status"`
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Successes  int     `json:"successes"`
	Failures   int     `json:"failures"`
	LastError  *string `json:"last_error,omitempty"`
	StartedAt  int64   `json:"started_at"`
	UpdatedAt  int64   `json:"updated_at"`
	FinishedAt *int64  `json:"finished_at,omitempty"`
}

// Progress is the running tally of a dispatch.
type Progress struct {
	Processed int
	Successes int
	Failures  int
	LastError string
}

func startJob(ctx context.Context, q db.Querier, userID, campaignID, templateID string, total int) (string, error) {
	id := uuid.New().String()
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		INSERT INTO dispatch_jobs (id, user_id, campaign_id, template_id, status, total, processed, successes, failures, last_error, started_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, NULL, ?, ?, NULL)
	`, id, userID, campaignID, templateID, JobRunning, total, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to start job: %w", err)
	}
	return id, nil
}

func updateJob(ctx context.Context, q db.Querier, id string, p Progress) error {
	_, err := q.ExecContext(ctx, `
		UPDATE dispatch_jobs
		SET processed = ?, successes = ?, failures = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, p.Processed, p.Successes, p.Failures, db.NullString(p.LastError), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func finishJob(ctx context.Context, q db.Querier, id string, status string, p Progress) error {
	now := time.Now().Unix()
	_, err := q.ExecContext(ctx, `
		UPDATE dispatch_jobs
		SET status = ?, processed = ?, successes = ?, failures = ?, last_error = ?, updated_at = ?, finished_at = ?
		WHERE id = ?
	`, status, p.Processed, p.Successes, p.Failures, db.NullString(p.LastError), now, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

const jobColumns = `
	id, user_id, campaign_id, template_id, status, total, processed, successes, failures,
	last_error, started_at, updated_at, finished_at
`

// GetJob returns one of the user's dispatch jobs.
func GetJob(ctx context.Context, q db.Querier, userID, id string) (Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM dispatch_jobs WHERE id = ? AND user_id = ?`, id, userID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, db.ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ListJobs returns the user's dispatch jobs, newest first.
func ListJobs(ctx context.Context, q db.Querier, userID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM dispatch_jobs
		WHERE user_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating job rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (Job, error) {
	var j Job
	var lastErr sql.NullString
	var finishedAt sql.NullInt64
	err := s.Scan(&j.ID, &j.UserID, &j.CampaignID, &j.TemplateID, &j.Status, &j.Total,
		&j.Processed, &j.Successes, &j.Failures, &lastErr, &j.StartedAt, &j.UpdatedAt, &finishedAt)
	if err != nil {
		return Job{}, err
	}
	if lastErr.Valid {
		j.LastError = &lastErr.String
	}
	if finishedAt.Valid {
		v := finishedAt.Int64
		j.FinishedAt = &v
	}
	return j, nil
}
