package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/outreach"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a store or dispatcher error to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *db.ValidationError
	switch {
	case errors.Is(err, outreach.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "Template not found")
	case errors.Is(err, outreach.ErrNoContacts):
		writeError(w, http.StatusNotFound, "No contacts found")
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, outreach.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
	case errors.Is(err, outreach.ErrFetchContacts):
		s.logger().Error("fetch contacts", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch contacts")
	default:
		s.logger().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return db.Invalidf("invalid json: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, db.Invalidf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
