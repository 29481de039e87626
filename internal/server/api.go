package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/channels"
	"github.com/Napageneral/sdr/internal/dashboard"
	"github.com/Napageneral/sdr/internal/outreach"
	"github.com/Napageneral/sdr/internal/sendlogs"
	"github.com/Napageneral/sdr/internal/settings"
	"github.com/Napageneral/sdr/internal/users"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

type rotateResponse struct {
	Token string `json:"token"`
}

// rotateToken issues a new token for the caller. The presented token stops
// working immediately rather than when its cache entry expires.
func (s *Server) rotateToken(w http.ResponseWriter, r *http.Request) {
	token, err := users.RotateToken(r.Context(), s.DB, currentUser(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if old, ok := bearerToken(r.Header.Get("Authorization")); ok {
		s.Tokens.Forget(old)
	}
	writeJSON(w, http.StatusOK, rotateResponse{Token: token})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := settings.Get(r.Context(), s.DB, currentUser(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// putSettings merges the body over the stored settings.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r).ID
	st, err := settings.Get(r.Context(), s.DB, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := decode(r, &st); err != nil {
		s.fail(w, r, err)
		return
	}
	st.UserID = userID
	st, err = settings.Upsert(r.Context(), s.DB, st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.writeLogs(w, r, sendlogs.Filter{
		CampaignID: q.Get("campaign_id"),
		ContactID:  q.Get("contact_id"),
		JobID:      q.Get("job_id"),
	})
}

func (s *Server) listDispatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jobs, err := outreach.ListJobs(r.Context(), s.DB, currentUser(r).ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []outreach.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getDispatch(w http.ResponseWriter, r *http.Request) {
	job, err := outreach.GetJob(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelDispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := outreach.GetJob(r.Context(), s.DB, currentUser(r).ID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "canceled": s.Dispatcher.Cancel(id)})
}

// sendRequest accepts both the Portuguese camelCase keys the web client
// sends and snake_case keys.
type sendRequest struct {
	CampanhaID     string   `json:"campanhaId"`
	CampaignID     string   `json:"campaign_id"`
	TemplateID     string   `json:"templateId"`
	TemplateIDAlt  string   `json:"template_id"`
	ContatoIDs     []string `json:"contatoIds"`
	ContactIDs     []string `json:"contact_ids"`
	SendToAll      bool     `json:"sendToAll"`
	SendToAllSnake bool     `json:"send_to_all"`
	Async          bool     `json:"async"`
}

func (b sendRequest) request() outreach.Request {
	req := outreach.Request{
		CampaignID: first(b.CampaignID, b.CampanhaID),
		TemplateID: first(b.TemplateIDAlt, b.TemplateID),
		ContactIDs: b.ContactIDs,
		SendToAll:  b.SendToAll || b.SendToAllSnake,
	}
	if len(req.ContactIDs) == 0 {
		req.ContactIDs = b.ContatoIDs
	}
	return req
}

// sendResponse keeps the sucessos/falhas keys existing clients read.
type sendResponse struct {
	outreach.Result
	Sucessos int `json:"sucessos"`
	Falhas   int `json:"falhas"`
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	s.dispatch(w, r, body.request(), body.Async)
}

func (s *Server) sendCampaign(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req := body.request()
	req.CampaignID = chi.URLParam(r, "id")
	s.dispatch(w, r, req, body.Async)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req outreach.Request, async bool) {
	userID := currentUser(r).ID
	if async {
		jobID, err := s.Dispatcher.Start(r.Context(), userID, req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job_id": jobID})
		return
	}

	res, err := s.Dispatcher.Send(r.Context(), userID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Result: res, Sucessos: res.Successes, Falhas: res.Failures})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := dashboard.Summarize(r.Context(), s.DB, currentUser(r).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// activity pages forward with ?after=<seq>; without it the newest events
// are returned newest first.
func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r).ID
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var events []bus.Event
	if r.URL.Query().Has("after") {
		events, err = bus.List(r.Context(), s.DB, userID, int64(after), limit)
	} else {
		events, err = bus.Recent(r.Context(), s.DB, userID, limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []bus.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) channelStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := channels.GetStatuses(r.Context(), s.DB, s.Config)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) emit(r *http.Request, typ, subjectID string, payload any) {
	if err := bus.Emit(r.Context(), s.DB, currentUser(r).ID, typ, subjectID, payload); err != nil {
		s.logger().Warn("event not recorded", zap.String("type", typ), zap.Error(err))
	}
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
