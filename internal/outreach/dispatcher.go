// Package outreach runs bulk sends: one template rendered for every selected
// contact of a campaign and delivered over email or WhatsApp, one contact at
// a time with a pause between contacts.
package outreach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/campaigns"
	"github.com/Napageneral/sdr/internal/channels"
	"github.com/Napageneral/sdr/internal/contacts"
	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/sendlogs"
	"github.com/Napageneral/sdr/internal/settings"
	"github.com/Napageneral/sdr/internal/templates"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoContacts       = errors.New("no contacts found")
	ErrFetchContacts    = errors.New("failed to fetch contacts")
	ErrShuttingDown     = errors.New("dispatcher is shutting down")
)

// Request selects what to send and to whom. ContactIDs restricts the
// campaign's contacts unless SendToAll is set.
type Request struct {
	CampaignID string   `json:"campaign_id"`
	TemplateID string   `json:"template_id"`
	ContactIDs []string `json:"contact_ids,omitempty"`
	SendToAll  bool     `json:"send_to_all"`
}

// ContactResult is the outcome for one contact.
type ContactResult struct {
	Contact   string `json:"contact"`
	ContactID string `json:"contact_id"`
	Channel   string `json:"channel,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Result summarizes a dispatch.
type Result struct {
	Success   bool            `json:"success"`
	JobID     string          `json:"job_id"`
	Total     int             `json:"total"`
	Successes int             `json:"successes"`
	Failures  int             `json:"failures"`
	Canceled  bool            `json:"canceled,omitempty"`
	Results   []ContactResult `json:"results"`
}

// Dispatcher sends templates to contacts through the channel registry.
type Dispatcher struct {
	DB       *sql.DB
	Channels *channels.Registry
	Logger   *zap.Logger

	// DefaultInterval applies when the user's send interval is zero.
	DefaultInterval time.Duration

	// Sleep waits between contacts. Nil uses a timer that returns early
	// with ctx.Err() on cancellation.
	Sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	wg      sync.WaitGroup
	running map[string]context.CancelFunc
	closed  bool
}

type plan struct {
	userID   string
	req      Request
	template templates.Template
	contacts []contacts.Contact
	settings settings.Settings
	interval time.Duration
}

// Send runs a dispatch to completion and returns its result. Cancelling ctx
// stops the run before the next contact.
func (d *Dispatcher) Send(ctx context.Context, userID string, req Request) (Result, error) {
	p, err := d.prepare(ctx, userID, req)
	if err != nil {
		return Result{}, err
	}
	jobID, err := startJob(ctx, d.DB, userID, req.CampaignID, req.TemplateID, len(p.contacts))
	if err != nil {
		return Result{}, err
	}
	return d.run(ctx, jobID, p), nil
}

// Start validates the request, records the job and runs it in the
// background. It returns the job id; progress is visible through GetJob.
func (d *Dispatcher) Start(ctx context.Context, userID string, req Request) (string, error) {
	p, err := d.prepare(ctx, userID, req)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrShuttingDown
	}
	jobID, err := startJob(ctx, d.DB, userID, req.CampaignID, req.TemplateID, len(p.contacts))
	if err != nil {
		d.mu.Unlock()
		return "", err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	if d.running == nil {
		d.running = make(map[string]context.CancelFunc)
	}
	d.running[jobID] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.running, jobID)
			d.mu.Unlock()
			cancel()
		}()
		d.run(runCtx, jobID, p)
	}()
	return jobID, nil
}

// Cancel stops a background dispatch. It reports whether the job was running.
func (d *Dispatcher) Cancel(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancel, ok := d.running[jobID]
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every background dispatch has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown refuses new background dispatches, cancels the running ones and
// waits for them to record their state, or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for _, cancel := range d.running {
		cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for dispatches: %w", ctx.Err())
	}
}

func (d *Dispatcher) prepare(ctx context.Context, userID string, req Request) (plan, error) {
	if req.CampaignID == "" || req.TemplateID == "" {
		return plan{}, db.Invalidf("campaign_id and template_id are required")
	}

	tpl, err := templates.Get(ctx, d.DB, userID, req.TemplateID)
	if errors.Is(err, db.ErrNotFound) {
		return plan{}, ErrTemplateNotFound
	}
	if err != nil {
		return plan{}, err
	}

	filter := contacts.Filter{CampaignID: req.CampaignID}
	if !req.SendToAll && len(req.ContactIDs) > 0 {
		filter.IDs = req.ContactIDs
	}
	list, err := contacts.List(ctx, d.DB, userID, filter)
	if err != nil {
		return plan{}, fmt.Errorf("%w: %w", ErrFetchContacts, err)
	}
	if len(list) == 0 {
		return plan{}, ErrNoContacts
	}

	st, err := settings.Get(ctx, d.DB, userID)
	if err != nil {
		return plan{}, err
	}
	interval := time.Duration(st.SendInterval) * time.Second
	if interval == 0 {
		interval = d.DefaultInterval
	}

	return plan{
		userID:   userID,
		req:      req,
		template: tpl,
		contacts: list,
		settings: st,
		interval: interval,
	}, nil
}

func (d *Dispatcher) run(ctx context.Context, jobID string, p plan) Result {
	logger := d.logger().With(
		zap.String("job_id", jobID),
		zap.String("user_id", p.userID),
		zap.String("campaign_id", p.req.CampaignID),
		zap.String("template_id", p.req.TemplateID),
	)
	// Bookkeeping must land even after the run is cancelled.
	store := context.WithoutCancel(ctx)

	dispatchInFlight.Inc()
	started := time.Now()
	defer func() {
		dispatchInFlight.Dec()
		dispatchDuration.Observe(time.Since(started).Seconds())
	}()

	res := Result{JobID: jobID, Total: len(p.contacts), Results: make([]ContactResult, 0, len(p.contacts))}
	var prog Progress

	logger.Info("dispatch started", zap.Int("contacts", res.Total), zap.Duration("interval", p.interval))
	d.emit(store, logger, p.userID, bus.TypeDispatchStarted, jobID, map[string]any{
		"campaign_id": p.req.CampaignID,
		"template_id": p.req.TemplateID,
		"total":       res.Total,
	})

	for i, c := range p.contacts {
		if ctx.Err() != nil {
			res.Canceled = true
			break
		}

		cr, attempted := d.sendOne(ctx, store, logger, jobID, p, c)
		if !attempted {
			res.Canceled = true
			break
		}
		res.Results = append(res.Results, cr)
		prog.Processed++
		if cr.Success {
			res.Successes++
			prog.Successes++
		} else {
			res.Failures++
			prog.Failures++
			prog.LastError = cr.Error
		}
		if err := updateJob(store, d.DB, jobID, prog); err != nil {
			logger.Warn("job progress not saved", zap.Error(err))
		}

		if i == len(p.contacts)-1 {
			break
		}
		if err := d.sleep(ctx, p.interval); err != nil {
			res.Canceled = true
			break
		}
	}

	if err := campaigns.AddMessagesSent(store, d.DB, p.userID, p.req.CampaignID, res.Successes); err != nil {
		logger.Warn("campaign counter not updated", zap.Error(err))
	}

	status := JobSuccess
	switch {
	case res.Canceled:
		status = JobCanceled
	case res.Successes == 0:
		status = JobError
	}
	if err := finishJob(store, d.DB, jobID, status, prog); err != nil {
		logger.Warn("job not finished", zap.Error(err))
	}

	res.Success = !res.Canceled
	d.emit(store, logger, p.userID, bus.TypeDispatchFinished, jobID, map[string]any{
		"campaign_id": p.req.CampaignID,
		"status":      status,
		"total":       res.Total,
		"successes":   res.Successes,
		"failures":    res.Failures,
	})
	logger.Info("dispatch finished",
		zap.String("status", status),
		zap.Int("successes", res.Successes),
		zap.Int("failures", res.Failures),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res
}

// sendOne delivers to a single contact and records the attempt. It reports
// false when ctx was cancelled mid-send; nothing is recorded in that case and
// the contact counts as not attempted.
func (d *Dispatcher) sendOne(ctx, store context.Context, logger *zap.Logger, jobID string, p plan, c contacts.Contact) (ContactResult, bool) {
	cr := ContactResult{Contact: c.Name, ContactID: c.ID}
	body := templates.Render(p.template.Content, c)

	kind, to := pickChannel(p.template.Type, c)
	cr.Channel = kind

	var sendErr error
	switch {
	case kind == "":
		sendErr = fmt.Errorf("Nenhum canal disponível para %s", c.Name)
	case !p.settings.ChannelEnabled(kind):
		sendErr = fmt.Errorf("Canal %s desativado nas configurações", kind)
	default:
		ch, ok := d.Channels.Get(kind)
		if !ok {
			sendErr = fmt.Errorf("Canal %s não configurado", kind)
			break
		}
		_, sendErr = ch.Send(ctx, channels.Message{
			To:      to,
			Name:    c.Name,
			Subject: templates.Render(p.template.Subject, c),
			Body:    body,
		})
		if sendErr != nil && ctx.Err() != nil && errors.Is(sendErr, ctx.Err()) {
			logger.Info("send interrupted", zap.String("contact_id", c.ID), zap.String("channel", kind))
			return cr, false
		}
		if err := channels.RecordOutcome(store, d.DB, kind, sendErr); err != nil {
			logger.Warn("channel state not saved", zap.String("channel", kind), zap.Error(err))
		}
	}

	entry := sendlogs.Log{
		UserID:     p.userID,
		CampaignID: p.req.CampaignID,
		ContactID:  c.ID,
		TemplateID: p.template.ID,
		JobID:      jobID,
		Type:       kind,
		Message:    body,
	}
	if entry.Type == "" {
		entry.Type = p.template.Type
	}
	if sendErr == nil {
		now := time.Now()
		entry.Status = sendlogs.StatusSent
		entry.SentAt = &now
		cr.Success = true
	} else {
		entry.Status = sendlogs.StatusFailed
		entry.Error = sendErr.Error()
		cr.Error = sendErr.Error()
	}
	if _, err := sendlogs.Insert(store, d.DB, entry); err != nil {
		logger.Warn("send log not saved", zap.String("contact_id", c.ID), zap.Error(err))
	}
	recordMessage(kind, entry.Status)

	if cr.Success {
		if _, err := contacts.MarkContacted(store, d.DB, p.userID, c.ID); err != nil {
			logger.Warn("contact status not updated", zap.String("contact_id", c.ID), zap.Error(err))
		}
		d.emit(store, logger, p.userID, bus.TypeMessageSent, c.ID, map[string]any{"job_id": jobID, "channel": kind})
		logger.Debug("message sent", zap.String("contact_id", c.ID), zap.String("channel", kind))
	} else {
		d.emit(store, logger, p.userID, bus.TypeMessageFailed, c.ID, map[string]any{"job_id": jobID, "channel": kind, "error": cr.Error})
		logger.Info("message failed", zap.String("contact_id", c.ID), zap.String("channel", kind), zap.String("error", cr.Error))
	}
	return cr, true
}

// pickChannel returns the channel kind and address for a template type, or
// "" when the contact has no address for it.
func pickChannel(templateType string, c contacts.Contact) (kind, to string) {
	switch {
	case templateType == templates.TypeEmail && c.Email != "":
		return channels.KindEmail, c.Email
	case templateType == templates.TypeWhatsApp && c.Phone != "":
		return channels.KindWhatsApp, c.Phone
	}
	return "", ""
}

func (d *Dispatcher) emit(ctx context.Context, logger *zap.Logger, userID, typ, subjectID string, payload any) {
	if err := bus.Emit(ctx, d.DB, userID, typ, subjectID, payload); err != nil {
		logger.Warn("event not recorded", zap.String("type", typ), zap.Error(err))
	}
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	if dur <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
