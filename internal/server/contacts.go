package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/contacts"
	"github.com/Napageneral/sdr/internal/db"
)

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f := contacts.Filter{
		CampaignID: q.Get("campaign_id"),
		Status:     q.Get("status"),
		Search:     q.Get("search"),
		Limit:      limit,
	}
	if f.Status != "" && !contacts.ValidStatus(f.Status) {
		s.fail(w, r, db.Invalidf("invalid contact status %q", f.Status))
		return
	}
	list, err := contacts.List(r.Context(), s.DB, currentUser(r).ID, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []contacts.Contact{}
	}
	writeJSON(w, http.StatusOK, list)
}

// createContacts accepts a single contact object or an array of them.
func (s *Server) createContacts(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decode(r, &raw); err != nil {
		s.fail(w, r, err)
		return
	}
	var inputs []contacts.Input
	batch := len(raw) > 0 && raw[0] == '['
	if batch {
		if err := json.Unmarshal(raw, &inputs); err != nil {
			s.fail(w, r, db.Invalidf("invalid json: %v", err))
			return
		}
	} else {
		var in contacts.Input
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				s.fail(w, r, db.Invalidf("invalid json: %v", err))
				return
			}
		}
		inputs = []contacts.Input{in}
	}

	out, err := contacts.CreateBatch(r.Context(), s.DB, currentUser(r).ID, inputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	perCampaign := map[string]int{}
	for _, c := range out {
		perCampaign[c.CampaignID]++
	}
	for campaignID, n := range perCampaign {
		s.emit(r, bus.TypeContactsAdded, campaignID, map[string]any{"count": n})
	}

	if batch {
		writeJSON(w, http.StatusCreated, out)
		return
	}
	writeJSON(w, http.StatusCreated, out[0])
}

func (s *Server) getContact(w http.ResponseWriter, r *http.Request) {
	c, err := contacts.Get(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateContact(w http.ResponseWriter, r *http.Request) {
	var upd contacts.Update
	if err := decode(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := contacts.Apply(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"), upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request) {
	if err := contacts.Delete(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
