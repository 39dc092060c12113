package server

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"

	"storeadmin/internal/auth"
	"storeadmin/internal/config"
	"storeadmin/internal/logging"
)

type Server struct {
	Workflow       *auth.Workflow
	Accounts       auth.AccountStore
	Sessions       *auth.SessionIssuer
	Audit          auth.Auditor
	Metrics        *Metrics
	Logger         *slog.Logger
	Config         config.Config
	trustedProxies []net.IPNet
	pages          http.Handler
}

// NewServer wires the HTTP surface around wf. audit may be nil, in which case
// auth events are only logged and counted.
func NewServer(cfg config.Config, wf *auth.Workflow, audit auth.Auditor, reg *prometheus.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pages, err := newPageProxy(cfg.FrontendURL, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		Workflow:       wf,
		Accounts:       wf.Accounts,
		Sessions:       wf.Sessions,
		Audit:          audit,
		Metrics:        NewMetrics(reg),
		Logger:         logger,
		Config:         cfg,
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
		pages:          pages,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	formatter := &middleware.DefaultLogFormatter{
		Logger:  logging.StdLogger(s.Logger),
		NoColor: true,
	}
	r.Use(middleware.RequestLogger(formatter))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)
	r.Use(s.routeGuard)

	r.Group(func(api chi.Router) {
		api.Use(apiContentSecurity)

		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/verify", s.handleVerify)
		api.Post("/auth/login", s.handleLogin)
		api.Post("/auth/logout", s.handleLogout)

		api.Group(func(pr chi.Router) {
			pr.Use(s.requireSession)

			pr.Get("/auth/me", s.handleMe)
			pr.Get("/api/team", s.handleTeam)
		})

		api.Get("/healthz", s.handleHealth)
	})
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Get("/*", s.pages.ServeHTTP)

	if len(s.Config.CORSOrigins) == 0 {
		return r
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.Config.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowCredentials(),
	)(r)
}
