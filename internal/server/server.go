// Package server exposes the HTTP JSON API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Napageneral/sdr/internal/config"
	"github.com/Napageneral/sdr/internal/outreach"
	"github.com/Napageneral/sdr/internal/users"
)

const allowedHeaders = "authorization, x-client-info, apikey, content-type"

// Server wires the stores, the dispatcher and auth into an http.Handler.
type Server struct {
	DB         *sql.DB
	Config     *config.Config
	Dispatcher *outreach.Dispatcher
	Tokens     *users.TokenCache
	Logger     *zap.Logger

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.handleMe)
		r.Post("/me/token", s.rotateToken)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.listCampaigns)
			r.Post("/", s.createCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getCampaign)
				r.Patch("/", s.updateCampaign)
				r.Delete("/", s.deleteCampaign)
				r.Post("/status", s.setCampaignStatus)
				r.Post("/send", s.sendCampaign)
				r.Get("/contacts", s.listCampaignContacts)
				r.Get("/logs", s.listCampaignLogs)
			})
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", s.listContacts)
			r.Post("/", s.createContacts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getContact)
				r.Patch("/", s.updateContact)
				r.Delete("/", s.deleteContact)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.listTemplates)
			r.Post("/", s.createTemplate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getTemplate)
				r.Patch("/", s.updateTemplate)
				r.Delete("/", s.deleteTemplate)
				r.Post("/preview", s.previewTemplate)
			})
		})

		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)

		r.Get("/logs", s.listLogs)
		r.Get("/dispatches", s.listDispatches)
		r.Get("/dispatches/{id}", s.getDispatch)
		r.Post("/dispatches/{id}/cancel", s.cancelDispatch)
		r.Post("/send", s.send)

		r.Get("/dashboard", s.dashboard)
		r.Get("/activity", s.activity)
		r.Get("/channels", s.channelStatuses)
	})
	return r
}

func (s *Server) metricsHandler() http.Handler {
	if s.Gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})
}

// Run serves until ctx is cancelled, then stops accepting requests and
// drains background dispatches.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.Config.Server
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       seconds(cfg.ReadTimeoutSeconds),
		WriteTimeout:      seconds(cfg.WriteTimeoutSeconds),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("http server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := seconds(cfg.ShutdownTimeoutSeconds)
	if timeout == 0 {
		timeout = config.DefaultShutdownTimeout * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger().Info("http server shutting down")
	err := srv.Shutdown(shutdownCtx)
	if s.Dispatcher != nil {
		err = multierr.Append(err, s.Dispatcher.Shutdown(shutdownCtx))
	}
	return multierr.Append(err, <-errCh)
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := config.DefaultCORSOrigin
	if s.Config != nil && s.Config.Server.CORSOrigin != "" {
		origin = s.Config.Server.CORSOrigin
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type userKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		u, err := s.Tokens.Lookup(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func currentUser(r *http.Request) users.User {
	u, _ := r.Context().Value(userKey{}).(users.User)
	return u
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
