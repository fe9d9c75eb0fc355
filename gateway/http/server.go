// Package http serves form flows over HTTP.
//
// Each handler loads the browser session, calls the navigation engine and
// either redirects or hands the resulting view to a gateway.Renderer.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/gateway"
	"github.com/c360/formflow/health"
	"github.com/c360/formflow/metric"
	"github.com/c360/formflow/navigation"
	"github.com/c360/formflow/session"
	"github.com/c360/formflow/store"
	"github.com/c360/formflow/submission"
)

// Deps are the collaborators of a Server
type Deps struct {
	Engine   *navigation.Engine
	Sessions *session.Store
	Store    store.Store
	Renderer gateway.Renderer
	Health   *health.Monitor
	Metrics  *metric.Metrics
	Logger   *slog.Logger
}

// Server routes form flow requests to the navigation engine
type Server struct {
	config   gateway.Config
	engine   *navigation.Engine
	sessions *session.Store
	store    store.Store
	renderer gateway.Renderer
	health   *health.Monitor
	metrics  *metric.Metrics
	logger   *slog.Logger
	limiter  *clientLimiter
	router   chi.Router
}

// NewServer builds the router. Renderer defaults to JSONRenderer.
func NewServer(cfg gateway.Config, deps Deps) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if deps.Engine == nil || deps.Sessions == nil || deps.Store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"engine, session store and submission store are required")
	}

	s := &Server{
		config:   cfg,
		engine:   deps.Engine,
		sessions: deps.Sessions,
		store:    deps.Store,
		renderer: deps.Renderer,
		health:   deps.Health,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if s.renderer == nil {
		s.renderer = JSONRenderer{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.health == nil {
		s.health = health.NewMonitor("formflow")
		s.health.Register("storage", s.store.Ping, true)
	}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthCheck)

	// The delete routes carry the subflow name in the {screen} segment
	r.Route("/flow/{flow}", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/{screen}", s.getScreen)
		r.Post("/{screen}", s.postScreen(false))
		r.Post("/{screen}/submit", s.postScreen(true))
		r.Get("/{screen}/navigation", s.navigation)
		r.Get("/{screen}/{uuid}", s.getSubflowScreen)
		r.Post("/{screen}/{uuid}", s.postSubflowScreen)
		r.Get("/{screen}/{uuid}/edit", s.getSubflowScreen)
		r.Post("/{screen}/{uuid}/edit", s.postSubflowScreen)
		r.Get("/{screen}/{uuid}/deleteConfirmation", s.deleteConfirmation)
		r.Post("/{screen}/{uuid}/delete", s.deleteIteration)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeStatus(w, r, http.StatusNotFound, "page not found")
	})
	return r
}

type engineCall func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error)

// serve runs call with the request's session state, saves the state and
// writes the outcome
func (s *Server) serve(w http.ResponseWriter, r *http.Request, call engineCall) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	sid, state := s.loadSession(w, r)
	rc := navigation.NewRequestContext(state)
	out, err := call(ctx, rc)

	if saveErr := s.sessions.Save(sid, rc.Session); saveErr != nil {
		s.logger.Error("failed to save session", "error", saveErr, "request_id", RequestIDFrom(r.Context()))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out.IsRedirect() {
		http.Redirect(w, r, out.Redirect, http.StatusFound)
		return
	}
	if err := s.renderer.Render(w, r, out.View, out.Model); err != nil {
		s.logger.Error("render failed", "view", out.View, "error", err, "request_id", RequestIDFrom(r.Context()))
	}
}

func (s *Server) getScreen(w http.ResponseWriter, r *http.Request) {
	flow, screen := chi.URLParam(r, "flow"), chi.URLParam(r, "screen")
	s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
		rc.Query = queryParams(r)
		return s.engine.GetScreen(ctx, rc, flow, screen)
	})
}

func (s *Server) postScreen(submit bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, screen := chi.URLParam(r, "flow"), chi.URLParam(r, "screen")
		form, ok := s.parseForm(w, r)
		if !ok {
			return
		}
		s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
			return s.engine.PostScreen(ctx, rc, flow, screen, form, submit)
		})
	}
}

func (s *Server) navigation(w http.ResponseWriter, r *http.Request) {
	flow, screen := chi.URLParam(r, "flow"), chi.URLParam(r, "screen")
	uuid := r.URL.Query().Get("uuid")
	s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
		return s.engine.Navigate(ctx, rc, flow, screen, uuid)
	})
}

func (s *Server) getSubflowScreen(w http.ResponseWriter, r *http.Request) {
	flow, screen, uuid := chi.URLParam(r, "flow"), chi.URLParam(r, "screen"), chi.URLParam(r, "uuid")
	s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
		return s.engine.GetSubflowScreen(ctx, rc, flow, screen, uuid)
	})
}

func (s *Server) postSubflowScreen(w http.ResponseWriter, r *http.Request) {
	flow, screen, uuid := chi.URLParam(r, "flow"), chi.URLParam(r, "screen"), chi.URLParam(r, "uuid")
	form, ok := s.parseForm(w, r)
	if !ok {
		return
	}
	s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
		return s.engine.PostSubflowScreen(ctx, rc, flow, screen, uuid, form)
	})
}

func (s *Server) deleteConfirmation(w http.ResponseWriter, r *http.Request) {
	flow, subflow, uuid := chi.URLParam(r, "flow"), chi.URLParam(r, "screen"), chi.URLParam(r, "uuid")
	s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
		return s.engine.DeleteConfirmation(ctx, rc, flow, subflow, uuid)
	})
}

func (s *Server) deleteIteration(w http.ResponseWriter, r *http.Request) {
	flow, subflow, uuid := chi.URLParam(r, "flow"), chi.URLParam(r, "screen"), chi.URLParam(r, "uuid")
	s.serve(w, r, func(ctx context.Context, rc *navigation.RequestContext) (navigation.Outcome, error) {
		return s.engine.DeleteIteration(ctx, rc, flow, subflow, uuid)
	})
}

// parseForm reads the posted form within the size limit. On failure the
// response has been written.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) (*submission.FormSubmission, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeStatus(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		s.writeStatus(w, r, http.StatusBadRequest, "invalid form data")
		return nil, false
	}
	return submission.NewFormSubmission(r.PostForm), true
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())

	code := http.StatusOK
	if status.IsUnhealthy() {
		s.logger.Warn("health check failed", "status", status.Status)
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status.Status,
		"components": status.SubStatuses,
		"sessions":   s.sessions.Len(),
	})
}

// queryParams flattens the query to its first value per key
func queryParams(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
