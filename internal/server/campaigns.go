package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/campaigns"
	"github.com/Napageneral/sdr/internal/contacts"
	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/sendlogs"
)

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	f := campaigns.Filter{
		Status:      r.URL.Query().Get("status"),
		HasContacts: queryBool(r, "has_contacts"),
	}
	list, err := campaigns.List(r.Context(), s.DB, u.ID, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []campaigns.Campaign{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	var in campaigns.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := campaigns.Create(r.Context(), s.DB, u.ID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.emit(r, bus.TypeCampaignCreated, c.ID, map[string]any{"name": c.Name})
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := campaigns.Get(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCampaign(w http.ResponseWriter, r *http.Request) {
	var upd campaigns.Update
	if err := decode(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := campaigns.Apply(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"), upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := campaigns.Delete(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	userID, id := currentUser(r).ID, chi.URLParam(r, "id")
	if err := campaigns.SetStatus(r.Context(), s.DB, userID, id, body.Status); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := campaigns.Get(r.Context(), s.DB, userID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) listCampaignContacts(w http.ResponseWriter, r *http.Request) {
	userID, id := currentUser(r).ID, chi.URLParam(r, "id")
	if _, err := campaigns.Get(r.Context(), s.DB, userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := contacts.List(r.Context(), s.DB, userID, contacts.Filter{
		CampaignID: id,
		Status:     r.URL.Query().Get("status"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []contacts.Contact{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) listCampaignLogs(w http.ResponseWriter, r *http.Request) {
	userID, id := currentUser(r).ID, chi.URLParam(r, "id")
	if _, err := campaigns.Get(r.Context(), s.DB, userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeLogs(w, r, sendlogs.Filter{CampaignID: id})
}

func (s *Server) writeLogs(w http.ResponseWriter, r *http.Request, f sendlogs.Filter) {
	limit, err := queryInt(r, "limit", sendlogs.DefaultLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f.Limit = limit
	if st := r.URL.Query().Get("status"); st != "" {
		if st != sendlogs.StatusSent && st != sendlogs.StatusFailed {
			s.fail(w, r, db.Invalidf("invalid log status %q", st))
			return
		}
		f.Status = st
	}
	logs, err := sendlogs.List(r.Context(), s.DB, currentUser(r).ID, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []sendlogs.Log{}
	}
	writeJSON(w, http.StatusOK, logs)
}
