// Package server exposes the todo resource layer and the session endpoints
// over JSON/HTTP.
package server

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/store"
	"github.com/Makepad-fr/tada/internal/telemetry"
)

// Server routes requests to the todo and auth handlers.
type Server struct {
	todos   store.Todos
	auth    *auth.Service
	logger  *log.Logger
	schemas *schemas
	tracer  trace.Tracer
	router  *mux.Router
}

// New builds the HTTP handler tree.
func New(todos store.Todos, authSvc *auth.Service, logger *log.Logger) (*Server, error) {
	sc, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	s := &Server{
		todos:   todos,
		auth:    authSvc,
		logger:  logger,
		schemas: sc,
		tracer:  telemetry.Tracer("server"),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests, s.traceRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Methods(http.MethodPost).Path("/auth/register").HandlerFunc(s.register)
	r.Methods(http.MethodPost).Path("/auth/login").HandlerFunc(s.login)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.requireSession)
	authed.Methods(http.MethodGet).Path("/auth/me").HandlerFunc(s.me)
	authed.Methods(http.MethodGet).Path("/todos").HandlerFunc(s.listTodos)
	authed.Methods(http.MethodPost).Path("/todos").HandlerFunc(s.createTodo)
	authed.Methods(http.MethodGet).Path("/todos/{id}").HandlerFunc(s.getTodo)
	authed.Methods(http.MethodPut).Path("/todos/{id}").HandlerFunc(s.updateTodo)
	authed.Methods(http.MethodDelete).Path("/todos/{id}").HandlerFunc(s.deleteTodo)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled", "method", r.Method, "path", r.URL.Path, "status", m.Code, "duration", m.Duration)
	})
}

func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.Method
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name += " " + tpl
			}
		}
		ctx, span := s.tracer.Start(r.Context(), name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		var status int
		hooked := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					status = code
					next(code)
				}
			},
		})
		next.ServeHTTP(hooked, r.WithContext(ctx))

		if status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// requireSession resolves the bearer token into an identity on the request
// context, or answers 401.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeError(w, r, apperr.Unauthenticated())
			return
		}
		userID, err := s.auth.Tokens().Verify(token)
		if err != nil {
			s.writeError(w, r, apperr.Wrap(apperr.KindUnauthenticated, "Unauthorized", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), userID)))
	})
}

// caller returns the identity set by requireSession.
func caller(r *http.Request) (string, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return "", apperr.Unauthenticated()
	}
	return id, nil
}
