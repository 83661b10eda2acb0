// Package http exposes the ledger over a JSON API. Routes under /api
// require a Bearer token except register and login.
package http

import (
	"context"
	"net/http"
	"sync"

	"wisp/internal/auth"
	"wisp/internal/log"
	"wisp/internal/middleware/ratelimit"
	"wisp/internal/middleware/security"
	"wisp/internal/middleware/trace"
	"wisp/internal/services"
	"wisp/internal/storage"
)

// Dependencies carries everything the server needs to serve requests.
type Dependencies struct {
	Store     *storage.SQLiteRepository
	Auth      *auth.Authenticator
	Tokens    *auth.JWTManager
	Movements *services.MovementService
	Salaries  *services.SalaryService
	Balances  *services.BalanceService
	Periods   *services.PeriodResolver
	Logger    *log.Logger
}

type Server struct {
	http.Server

	store     *storage.SQLiteRepository
	auth      *auth.Authenticator
	movements *services.MovementService
	salaries  *services.SalaryService
	balances  *services.BalanceService
	periods   *services.PeriodResolver

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		store:     deps.Store,
		auth:      deps.Auth,
		movements: deps.Movements,
		salaries:  deps.Salaries,
		balances:  deps.Balances,
		periods:   deps.Periods,
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	authed := auth.Middleware(deps.Tokens)
	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/members", s.handleCreateMember)
	protected.HandleFunc("GET /api/members/me", s.handleCurrentMember)
	protected.HandleFunc("GET /api/members/{id}/totals", s.handleMemberTotals)
	protected.HandleFunc("POST /api/households", s.handleCreateHousehold)
	protected.HandleFunc("POST /api/households/{id}/join", s.handleJoinHousehold)
	protected.HandleFunc("GET /api/households/{id}/members", s.handleListMembers)
	protected.HandleFunc("POST /api/households/{id}/categories", s.handleCreateCategory)
	protected.HandleFunc("GET /api/households/{id}/categories", s.handleListCategories)
	protected.HandleFunc("GET /api/households/{id}/movements", s.handleListMovements)
	protected.HandleFunc("GET /api/households/{id}/salaries", s.handleListSalaries)
	protected.HandleFunc("GET /api/households/{id}/balances", s.handlePairwiseBalance)
	protected.HandleFunc("GET /api/households/{id}/summary", s.handleHouseholdSummary)
	protected.HandleFunc("POST /api/movements", s.handleCreateMovement)
	protected.HandleFunc("GET /api/movements/{id}/distributions", s.handleListDistributions)
	protected.HandleFunc("PUT /api/salaries", s.handleUpsertSalary)
	protected.HandleFunc("GET /api/periods", s.handleListPeriods)
	mux.Handle("/api/", authed(protected))

	ips := security.NewClientIPResolver()
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(ips.ExtractClientIP)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(ips.ExtractClientIP)(handler)
	if deps.Logger != nil {
		handler = log.Middleware(deps.Logger)(handler)
	}
	handler = tracer.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
