package outreach

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/campaigns"
	"github.com/Napageneral/sdr/internal/channels"
	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/contacts"
	"github.com/Napageneral/sdr/internal/sendlogs"
	"github.com/Napageneral/sdr/internal/settings"
	"github.com/Napageneral/sdr/internal/templates"
	"github.com/Napageneral/sdr/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeChannel struct {
	name string
	fail map[string]error

	mu   sync.Mutex
	sent []channels.Message
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, msg channels.Message) (channels.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if err := f.fail[msg.To]; err != nil {
		return channels.Receipt{}, err
	}
	return channels.Receipt{MessageID: "msg-" + msg.To}, nil
}

func (f *fakeChannel) messages() []channels.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channels.Message(nil), f.sent...)
}

type fixture struct {
	conn     *sql.DB
	userID   string
	campaign campaigns.Campaign
	contacts []contacts.Contact
	email    *fakeChannel
	whatsapp *fakeChannel
	sleeps   []time.Duration
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	conn := testutil.OpenTestDB(t)
	userID := testutil.CreateUser(t, conn, "u1")

	camp, err := campaigns.Create(ctx, conn, userID, campaigns.Input{Name: "Padarias SP"})
	require.NoError(t, err)

	list, err := contacts.CreateBatch(ctx, conn, userID, []contacts.Input{
		{CampaignID: camp.ID, Name: "Padaria Pão Quente", Phone: "+5511911110000", Email: "contato@paoquente.com", Category: "padaria"},
		{CampaignID: camp.ID, Name: "Padaria Central", Phone: "+5511922220000"},
		{CampaignID: camp.ID, Name: "Doces da Vila", Email: "vila@example.com"},
	})
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		userID:   userID,
		campaign: camp,
		contacts: list,
		email:    &fakeChannel{name: "fake-email"},
		whatsapp: &fakeChannel{name: "fake-whatsapp"},
	}
	f.d = &Dispatcher{
		DB: conn,
		Channels: channels.NewRegistry(map[string]channels.Channel{
			channels.KindEmail:    f.email,
			channels.KindWhatsApp: f.whatsapp,
		}),
		Logger:          testutil.NewLogger(t),
		DefaultInterval: 45 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return ctx.Err()
		},
	}
	return f
}

func (f *fixture) template(t *testing.T, typ, content string) templates.Template {
	t.Helper()
	tpl, err := templates.Create(context.Background(), f.conn, f.userID, templates.Input{
		Name:    "Primeiro contato " + typ,
		Type:    typ,
		Subject: "Olá {nome}",
		Content: content,
	})
	require.NoError(t, err)
	return tpl
}

func TestSendWhatsAppTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}, vi que vocês trabalham com {categoria}.")

	before := promtest.ToFloat64(messagesCounter.WithLabelValues(channels.KindWhatsApp, sendlogs.StatusSent))

	res, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Canceled)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Successes)
	assert.Equal(t, 1, res.Failures)
	require.Len(t, res.Results, 3)
	assert.Equal(t, ContactResult{Contact: "Padaria Pão Quente", ContactID: f.contacts[0].ID, Channel: channels.KindWhatsApp, Success: true}, res.Results[0])
	assert.True(t, res.Results[1].Success)
	assert.False(t, res.Results[2].Success)
	assert.Equal(t, "Nenhum canal disponível para Doces da Vila", res.Results[2].Error)

	// Two pauses for three contacts, at the settings default.
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, f.sleeps)

	sent := f.whatsapp.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "+5511911110000", sent[0].To)
	assert.Equal(t, "Oi Padaria Pão Quente, vi que vocês trabalham com padaria.", sent[0].Body)
	assert.Equal(t, "Oi Padaria Central, vi que vocês trabalham com negócio.", sent[1].Body)
	assert.Empty(t, f.email.messages())

	logs, err := sendlogs.List(ctx, f.conn, f.userID, sendlogs.Filter{JobID: res.JobID})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	counts, err := sendlogs.CountByStatus(ctx, f.conn, f.userID, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[sendlogs.StatusSent])
	assert.Equal(t, 1, counts[sendlogs.StatusFailed])
	for _, l := range logs {
		if l.Status == sendlogs.StatusSent {
			assert.NotNil(t, l.SentAt)
			assert.Empty(t, l.Error)
		} else {
			assert.Nil(t, l.SentAt)
			assert.Equal(t, templates.TypeWhatsApp, l.Type)
		}
	}

	c0, err := contacts.Get(ctx, f.conn, f.userID, f.contacts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, contacts.StatusContacted, c0.Status)
	c2, err := contacts.Get(ctx, f.conn, f.userID, f.contacts[2].ID)
	require.NoError(t, err)
	assert.Equal(t, contacts.StatusNew, c2.Status)

	camp, err := campaigns.Get(ctx, f.conn, f.userID, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, camp.MessagesSent)

	job, err := GetJob(ctx, f.conn, f.userID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobSuccess, job.Status)
	assert.Equal(t, 3, job.Processed)
	assert.Equal(t, 2, job.Successes)
	assert.NotNil(t, job.FinishedAt)

	events, err := bus.List(ctx, f.conn, f.userID, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, bus.TypeDispatchStarted, events[0].Type)
	assert.Equal(t, bus.TypeDispatchFinished, events[4].Type)

	after := promtest.ToFloat64(messagesCounter.WithLabelValues(channels.KindWhatsApp, sendlogs.StatusSent))
	assert.Equal(t, 2.0, after-before)
}

func TestSendEmailTemplateUsesSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeEmail, "Prezados da {empresa}")

	res, err := f.d.Send(ctx, f.userID, Request{
		CampaignID: f.campaign.ID,
		TemplateID: tpl.ID,
		ContactIDs: []string{f.contacts[0].ID, f.contacts[1].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Successes)
	assert.Equal(t, "Nenhum canal disponível para Padaria Central", res.Results[1].Error)

	sent := f.email.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "contato@paoquente.com", sent[0].To)
	assert.Equal(t, "Olá Padaria Pão Quente", sent[0].Subject)
	assert.Equal(t, "Prezados da Padaria Pão Quente", sent[0].Body)
}

func TestSendChannelFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")
	f.whatsapp.fail = map[string]error{"+5511922220000": errors.New("número inválido")}

	res, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successes)
	assert.Equal(t, 2, res.Failures)
	assert.Equal(t, "número inválido", res.Results[1].Error)

	statuses, err := channels.GetStatuses(ctx, f.conn, config.Default())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	wa := statuses[1]
	assert.Equal(t, channels.KindWhatsApp, wa.Kind)
	assert.Equal(t, int64(1), wa.Sent)
	assert.Equal(t, int64(1), wa.Failed)
	assert.Equal(t, "número inválido", wa.LastError)
}

func TestSendHonorsUserSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")

	st := settings.Defaults(f.userID)
	st.WhatsAppEnabled = false
	st.SendInterval = 0
	_, err := settings.Upsert(ctx, f.conn, st)
	require.NoError(t, err)

	res, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Successes)
	assert.Equal(t, "Canal whatsapp desativado nas configurações", res.Results[0].Error)
	assert.Empty(t, f.whatsapp.messages())

	// Zero interval falls back to the dispatcher default.
	assert.Equal(t, []time.Duration{45 * time.Second, 45 * time.Second}, f.sleeps)

	job, err := GetJob(ctx, f.conn, f.userID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobError, job.Status)
	require.NotNil(t, job.LastError)
}

func TestSendUsesUserInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")

	st := settings.Defaults(f.userID)
	st.SendInterval = 5
	_, err := settings.Upsert(ctx, f.conn, st)
	require.NoError(t, err)

	res, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, f.sleeps)
}

// blockingChannel holds every send until its context is done.
type blockingChannel struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingChannel) Name() string { return "blocking" }

func (b *blockingChannel) Send(ctx context.Context, msg channels.Message) (channels.Receipt, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return channels.Receipt{}, ctx.Err()
}

func TestSendCanceledMidSendIsNotAFailure(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")
	blocking := &blockingChannel{started: make(chan struct{})}
	f.d.Channels = channels.NewRegistry(map[string]channels.Channel{channels.KindWhatsApp: blocking})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-blocking.started
		cancel()
	}()

	res, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	<-done
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Equal(t, 0, res.Failures)
	assert.Equal(t, 0, res.Successes)
	assert.Empty(t, res.Results)

	bg := context.Background()
	logs, err := sendlogs.List(bg, f.conn, f.userID, sendlogs.Filter{JobID: res.JobID})
	require.NoError(t, err)
	assert.Empty(t, logs)

	statuses, err := channels.GetStatuses(bg, f.conn, config.Default())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, int64(0), statuses[1].Failed)
	assert.Empty(t, statuses[1].LastError)

	job, err := GetJob(bg, f.conn, f.userID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobCanceled, job.Status)
	assert.Equal(t, 0, job.Processed)

	c0, err := contacts.Get(bg, f.conn, f.userID, f.contacts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, contacts.StatusNew, c0.Status)
}

func TestSendMissingChannel(t *testing.T) {
	f := newFixture(t)
	f.d.Channels = channels.NewRegistry(nil)
	tpl := f.template(t, templates.TypeWhatsApp, "Oi")

	res, err := f.d.Send(context.Background(), f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, ContactIDs: []string{f.contacts[1].ID}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Canal whatsapp não configurado", res.Results[0].Error)
	assert.Empty(t, f.sleeps)
}

func TestSendErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi")

	_, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: "missing"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = f.d.Send(ctx, "someone-else", Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID})
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = f.d.Send(ctx, f.userID, Request{CampaignID: "other", TemplateID: tpl.ID})
	assert.ErrorIs(t, err, ErrNoContacts)

	_, err = f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, ContactIDs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrNoContacts)

	_, err = f.d.Send(ctx, f.userID, Request{TemplateID: tpl.ID})
	assert.Error(t, err)

	jobs, err := ListJobs(ctx, f.conn, f.userID, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSendCanceledBetweenContacts(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.d.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res, err := f.d.Send(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.False(t, res.Success)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.Successes)

	bg := context.Background()
	job, err := GetJob(bg, f.conn, f.userID, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobCanceled, job.Status)
	assert.Equal(t, 1, job.Processed)

	camp, err := campaigns.Get(bg, f.conn, f.userID, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, camp.MessagesSent)
}

func TestStartRunsInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")
	f.d.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	jobID, err := f.d.Start(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	f.d.Wait()

	job, err := GetJob(ctx, f.conn, f.userID, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobSuccess, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 2, job.Successes)

	jobs, err := ListJobs(ctx, f.conn, f.userID, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)

	assert.False(t, f.d.Cancel(jobID))
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tpl := f.template(t, templates.TypeWhatsApp, "Oi {nome}")

	waiting := make(chan struct{})
	f.d.Sleep = func(ctx context.Context, d time.Duration) error {
		close(waiting)
		<-ctx.Done()
		return ctx.Err()
	}

	jobID, err := f.d.Start(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	require.NoError(t, err)
	<-waiting

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.d.Shutdown(shutdownCtx))

	job, err := GetJob(ctx, f.conn, f.userID, jobID)
	require.NoError(t, err)
	assert.Equal(t, JobCanceled, job.Status)
	assert.Equal(t, 1, job.Processed)

	_, err = f.d.Start(ctx, f.userID, Request{CampaignID: f.campaign.ID, TemplateID: tpl.ID, SendToAll: true})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)
	recordMessage("", sendlogs.StatusFailed)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["sdr_messages_total"])
	assert.True(t, names["sdr_dispatch_in_flight"])
}
