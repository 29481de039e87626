package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/contacts"
	"github.com/Napageneral/sdr/internal/templates"
)

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := templates.List(r.Context(), s.DB, currentUser(r).ID, queryBool(r, "active"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []templates.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in templates.Input
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := templates.Create(r.Context(), s.DB, currentUser(r).ID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.emit(r, bus.TypeTemplateCreated, t.ID, map[string]any{"name": t.Name, "type": t.Type})
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := templates.Get(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var upd templates.Update
	if err := decode(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := templates.Apply(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id"), upd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := templates.Delete(r.Context(), s.DB, currentUser(r).ID, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewRequest struct {
	ContactID string         `json:"contact_id,omitempty"`
	Contact   contacts.Input `json:"contact"`
}

type previewResponse struct {
	Subject   string   `json:"subject,omitempty"`
	Content   string   `json:"content"`
	Variables []string `json:"variables"`
	Available []string `json:"available_variables"`
}

// previewTemplate renders a template for a stored contact or for the
// sample contact in the body.
func (s *Server) previewTemplate(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r).ID
	t, err := templates.Get(r.Context(), s.DB, userID, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req previewRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	var c contacts.Contact
	if req.ContactID != "" {
		c, err = contacts.Get(r.Context(), s.DB, userID, req.ContactID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		in := req.Contact
		c = contacts.Contact{
			Name: in.Name, Address: in.Address, Phone: in.Phone, Email: in.Email,
			Website: in.Website, Category: in.Category,
		}
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Subject:   templates.Render(t.Subject, c),
		Content:   templates.Render(t.Content, c),
		Variables: t.Variables,
		Available: templates.KnownVariables(),
	})
}
