package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/sdr/internal/channels"
	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/outreach"
	"github.com/Napageneral/sdr/internal/templates"
	"github.com/Napageneral/sdr/internal/testutil"
	"github.com/Napageneral/sdr/internal/users"
)

type okChannel struct{}

func (okChannel) Name() string { return "ok" }

func (okChannel) Send(ctx context.Context, msg channels.Message) (channels.Receipt, error) {
	return channels.Receipt{MessageID: "ok-" + msg.To}, nil
}

type testAPI struct {
	t     *testing.T
	srv   *httptest.Server
	token string
	d     *outreach.Dispatcher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	conn := testutil.OpenTestDB(t)
	_, token, err := users.Create(context.Background(), conn, "Ana", "ana@example.com")
	require.NoError(t, err)

	logger := testutil.NewLogger(t)
	d := &outreach.Dispatcher{
		DB: conn,
		Channels: channels.NewRegistry(map[string]channels.Channel{
			channels.KindEmail:    okChannel{},
			channels.KindWhatsApp: okChannel{},
		}),
		Logger: logger,
		Sleep:  func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
	s := &Server{
		DB:         conn,
		Config:     config.Default(),
		Dispatcher: d,
		Tokens:     users.NewTokenCache(conn, time.Minute),
		Logger:     logger,
		Gatherer:   prometheus.NewRegistry(),
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		d.Wait()
		srv.Close()
	})
	return &testAPI{t: t, srv: srv, token: token, d: d}
}

func (a *testAPI) do(method, path string, body any, out any) int {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndCORS(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, a.srv.URL+"/api/send", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, allowedHeaders, resp.Header.Get("Access-Control-Allow-Headers"))

	resp, err = http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/api/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Unauthorized", body["error"])

	a.token = "sdr_wrong"
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/me", nil, nil))
}

func TestMe(t *testing.T) {
	a := newTestAPI(t)
	var me users.User
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/me", nil, &me))
	assert.Equal(t, "Ana", me.Name)
}

func TestRotateTokenInvalidatesCachedToken(t *testing.T) {
	a := newTestAPI(t)
	oldToken := a.token

	// Warm the cache with the current token.
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/me", nil, nil))

	var rotated rotateResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/me/token", nil, &rotated))
	require.NotEmpty(t, rotated.Token)
	assert.NotEqual(t, oldToken, rotated.Token)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/me", nil, nil))

	a.token = rotated.Token
	var me users.User
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/me", nil, &me))
	assert.Equal(t, "Ana", me.Name)
}

func TestCampaignContactTemplateFlow(t *testing.T) {
	a := newTestAPI(t)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/campaigns", map[string]any{"name": " "}, &errBody))
	assert.Equal(t, "campaign name is required", errBody["error"])

	var camp struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		TotalContacts int    `json:"total_contacts"`
		MessagesSent  int    `json:"messages_sent"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/campaigns", map[string]any{
		"name": "Pet shops", "keywords": []string{"pet shop", "banho e tosa"},
	}, &camp))
	assert.Equal(t, "active", camp.Status)

	var created []map[string]any
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/contacts", []map[string]any{
		{"campaign_id": camp.ID, "name": "Pet Feliz", "phone": "+5511933330000"},
		{"campaign_id": camp.ID, "name": "Cão Bom", "email": "oi@caobom.com"},
	}, &created))
	require.Len(t, created, 2)

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/campaigns/"+camp.ID, nil, &camp))
	assert.Equal(t, 2, camp.TotalContacts)

	var listed []map[string]any
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/campaigns/"+camp.ID+"/contacts", nil, &listed))
	assert.Len(t, listed, 2)

	var tpl struct {
		ID        string   `json:"id"`
		Variables []string `json:"variables"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/templates", map[string]any{
		"name": "Apresentação", "type": "whatsapp", "content": "Oi {nome}! Somos especialistas em {categoria}.",
	}, &tpl))
	assert.Equal(t, []string{"nome", "categoria"}, tpl.Variables)

	var preview previewResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/templates/"+tpl.ID+"/preview", map[string]any{
		"contact": map[string]any{"name": "Loja X"},
	}, &preview))
	assert.Equal(t, "Oi Loja X! Somos especialistas em negócio.", preview.Content)
	assert.Equal(t, templates.KnownVariables(), preview.Available)

	var res sendResponse
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/send", map[string]any{
		"campanhaId": camp.ID, "templateId": tpl.ID, "sendToAll": true,
	}, &res))
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Sucessos)
	assert.Equal(t, 1, res.Falhas)
	assert.Equal(t, "Nenhum canal disponível para Cão Bom", res.Results[1].Error)

	var logs []map[string]any
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/campaigns/"+camp.ID+"/logs", nil, &logs))
	assert.Len(t, logs, 2)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/logs?status=failed", nil, &logs))
	assert.Len(t, logs, 1)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/logs?status=bogus", nil, nil))

	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/campaigns/"+camp.ID, nil, &camp))
	assert.Equal(t, 1, camp.MessagesSent)

	var dash map[string]any
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/dashboard", nil, &dash))
	assert.EqualValues(t, 2, dash["total_contacts"])
	assert.EqualValues(t, 1, dash["messages_sent"])

	var events []map[string]any
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/activity?limit=3", nil, &events))
	assert.Len(t, events, 3)
	assert.Equal(t, "dispatch.finished", events[0]["type"])

	var statuses []channels.Status
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/channels", nil, &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, int64(1), statuses[1].Sent)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/campaigns/"+camp.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/campaigns/"+camp.ID, nil, nil))
}

func TestSendErrors(t *testing.T) {
	a := newTestAPI(t)

	var camp struct{ ID string }
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/campaigns", map[string]any{"name": "Vazia"}, &camp))
	var tpl struct{ ID string }
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/templates", map[string]any{
		"name": "T", "type": "email", "subject": "Oi", "content": "Olá {nome}",
	}, &tpl))

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/send", map[string]any{
		"campaign_id": camp.ID, "template_id": "missing",
	}, &body))
	assert.Equal(t, "Template not found", body["error"])

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/api/campaigns/"+camp.ID+"/send", map[string]any{
		"template_id": tpl.ID,
	}, &body))
	assert.Equal(t, "No contacts found", body["error"])

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/send", map[string]any{}, &body))
}

func TestAsyncSendAndDispatches(t *testing.T) {
	a := newTestAPI(t)

	var camp struct{ ID string }
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/campaigns", map[string]any{"name": "Async"}, &camp))
	var contact struct{ ID string }
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/contacts", map[string]any{
		"campaign_id": camp.ID, "name": "Bar do Zé", "email": "ze@bar.com",
	}, &contact))
	var tpl struct{ ID string }
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/templates", map[string]any{
		"name": "E", "type": "email", "content": "Olá {empresa}",
	}, &tpl))

	var started struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
	}
	require.Equal(t, http.StatusAccepted, a.do(http.MethodPost, "/api/send", map[string]any{
		"campaign_id": camp.ID, "template_id": tpl.ID, "contact_ids": []string{contact.ID}, "async": true,
	}, &started))
	require.NotEmpty(t, started.JobID)
	a.d.Wait()

	var job outreach.Job
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/dispatches/"+started.JobID, nil, &job))
	assert.Equal(t, outreach.JobSuccess, job.Status)
	assert.Equal(t, 1, job.Successes)

	var jobs []outreach.Job
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/dispatches", nil, &jobs))
	assert.Len(t, jobs, 1)

	var contactOut struct{ Status string }
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/contacts/"+contact.ID, nil, &contactOut))
	assert.Equal(t, "contacted", contactOut.Status)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/dispatches/nope", nil, nil))
}

func TestSettingsRoundTrip(t *testing.T) {
	a := newTestAPI(t)

	var st map[string]any
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/settings", nil, &st))
	assert.EqualValues(t, 30, st["send_interval"])
	assert.Equal(t, true, st["email_enabled"])

	require.Equal(t, http.StatusOK, a.do(http.MethodPut, "/api/settings", map[string]any{
		"send_interval": 5, "email_enabled": false,
	}, &st))
	assert.EqualValues(t, 5, st["send_interval"])
	assert.Equal(t, false, st["email_enabled"])
	assert.Equal(t, true, st["whatsapp_enabled"])

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, "/api/settings", map[string]any{"send_interval": -1}, nil))
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer sdr_abc")
	assert.True(t, ok)
	assert.Equal(t, "sdr_abc", tok)
	_, ok = bearerToken("Basic xyz")
	assert.False(t, ok)
	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
}
