// Package api implements the Ingestion/Query API from spec.md §4.2:
// the sole writer to the store, wired with gorilla/mux.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ronylicha/agentctx-core/internal/brief"
	"github.com/ronylicha/agentctx-core/internal/config"
	"github.com/ronylicha/agentctx-core/internal/notifications"
	"github.com/ronylicha/agentctx-core/internal/ratelimit"
	"github.com/ronylicha/agentctx-core/internal/store"
)

// Server wires the store, config, brief generator, and auth rate
// limiter into a single http.Handler.
type Server struct {
	db       *store.DB
	cfg      *config.Config
	catalog  *config.Catalog
	briefGen *brief.Generator
	tokens   *ratelimit.IPLimiter
	banner   *notifications.BannerNotifier
	router   *mux.Router
}

// New builds the router and registers every handler group named in
// spec.md §6.
func New(db *store.DB, cfg *config.Config, catalog *config.Catalog, briefGen *brief.Generator) *Server {
	s := &Server{
		db:       db,
		cfg:      cfg,
		catalog:  catalog,
		briefGen: briefGen,
		tokens:   ratelimit.NewFromWindow(10, 15*time.Minute),
		banner:   notifications.NewBannerNotifier(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(securityHeaders)
	r.Use(withTimeout)
	r.Use(corsMiddleware(s.cfg.CORSAllowedOrigins))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/tools-summary", s.handleToolsSummary).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware(s.cfg))

	api.HandleFunc("/projects", s.handleCreateProject).Methods(http.MethodPost)
	api.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/by-path", s.handleProjectByPath).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats", s.handleSessionStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handlePatchSession).Methods(http.MethodPatch)

	api.HandleFunc("/requests", s.handleCreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests", s.handleListRequests).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}", s.handlePatchRequest).Methods(http.MethodPatch)

	api.HandleFunc("/tasks", s.handleCreateTaskList).Methods(http.MethodPost)
	api.HandleFunc("/tasks", s.handleListTaskLists).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", s.handleGetTaskList).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", s.handlePatchTaskList).Methods(http.MethodPatch)

	api.HandleFunc("/subtasks", s.handleCreateSubtask).Methods(http.MethodPost)
	api.HandleFunc("/subtasks", s.handleListSubtasks).Methods(http.MethodGet)
	api.HandleFunc("/subtasks/{id}", s.handleGetSubtask).Methods(http.MethodGet)
	api.HandleFunc("/subtasks/{id}", s.handlePatchSubtask).Methods(http.MethodPatch)

	api.HandleFunc("/actions", s.handleCreateAction).Methods(http.MethodPost)
	api.HandleFunc("/actions", s.handleListActions).Methods(http.MethodGet)
	api.HandleFunc("/actions/hourly", s.handleActionsHourly).Methods(http.MethodGet)

	api.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{agentID}", s.handleMessagesForAgent).Methods(http.MethodGet)

	api.HandleFunc("/subscribe", s.handleSubscribe).Methods(http.MethodPost)
	api.HandleFunc("/unsubscribe", s.handleUnsubscribe).Methods(http.MethodPost)
	api.HandleFunc("/subscriptions", s.handleListSubscriptions).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions/{agentID}", s.handleSubscriptionsForAgent).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions/{id}", s.handleDeleteSubscription).Methods(http.MethodDelete)

	api.HandleFunc("/blocking", s.handleBlock).Methods(http.MethodPost)
	api.HandleFunc("/unblock", s.handleUnblock).Methods(http.MethodPost)
	api.HandleFunc("/blocking/check", s.handleBlockingCheck).Methods(http.MethodGet)
	api.HandleFunc("/blocking/{agentID}", s.handleBlockingForAgent).Methods(http.MethodGet)
	api.HandleFunc("/blocking/{id}", s.handleDeleteBlocking).Methods(http.MethodDelete)

	api.HandleFunc("/routing/suggest", s.handleRoutingSuggest).Methods(http.MethodGet)
	api.HandleFunc("/routing/stats", s.handleRoutingStats).Methods(http.MethodGet)
	api.HandleFunc("/routing/feedback", s.handleRoutingFeedback).Methods(http.MethodPost)

	api.HandleFunc("/hierarchy/{projectID}", s.handleHierarchy).Methods(http.MethodGet)
	api.HandleFunc("/active-sessions", s.handleActiveSessions).Methods(http.MethodGet)

	api.HandleFunc("/context/{agentID}", s.handleAgentContext).Methods(http.MethodGet)
	api.HandleFunc("/context/generate", s.handleGenerateBrief).Methods(http.MethodPost)
	api.HandleFunc("/compact/save", s.handleCompactSave).Methods(http.MethodPost)
	api.HandleFunc("/compact/restore", s.handleCompactRestore).Methods(http.MethodPost)
	api.HandleFunc("/compact/status/{sessionID}", s.handleCompactStatus).Methods(http.MethodGet)
	api.HandleFunc("/compact/snapshot/{sessionID}", s.handleCompactSnapshot).Methods(http.MethodGet)

	api.HandleFunc("/cleanup/stats", s.handleCleanupStats).Methods(http.MethodGet)

	api.HandleFunc("/auth/token", s.handleAuthToken).Methods(http.MethodPost)

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying mux.Router for tests.
func (s *Server) Router() *mux.Router { return s.router }

func reqCtx(r *http.Request) context.Context { return r.Context() }
