// Package httpapi implements the REST, webhook, and chat WebSocket surface
// from spec §6 on top of one *echo.Echo instance, grounded on the teacher's
// pkg/api.Server: route registration in setupRoutes, Config-struct wiring
// for optional collaborators, and errors.go's mapServiceError pattern
// generalized to the apperr.Kind taxonomy.
package httpapi

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/snarg/fieldops/internal/audit"
	"github.com/snarg/fieldops/internal/callrunner"
	"github.com/snarg/fieldops/internal/conversation"
	"github.com/snarg/fieldops/internal/events"
	"github.com/snarg/fieldops/internal/jobservice"
	"github.com/snarg/fieldops/internal/metrics"
	"github.com/snarg/fieldops/internal/notify"
	"github.com/snarg/fieldops/internal/scheduling"
	"github.com/snarg/fieldops/internal/session"
	"github.com/snarg/fieldops/internal/storage"
	"github.com/snarg/fieldops/internal/telephony"
	"github.com/snarg/fieldops/internal/triage"
)

// WebhookSecretLookup resolves the shared HMAC secret for a tenant's
// telephony webhook. Kept out of domain.TenantSettings (YAML-loaded
// config) since it's a credential, not a setting.
type WebhookSecretLookup func(tenantID string) string

// Server is the HTTP API server.
type Server struct {
	echo *echo.Echo

	db               *storage.DB
	jobs             *jobservice.Service
	triage           *triage.Engine
	booker           *scheduling.Booker
	supervisor       *session.Supervisor
	ledger           *audit.Ledger
	eventsMgr        *events.Manager
	metrics          *metrics.Registry
	profiles         *conversation.Registry
	adapter          telephony.Adapter
	wsAdapter        *telephony.WSAdapter
	notifier         notify.Notifier
	callRunner       *callrunner.Runner
	webhookSecret    WebhookSecretLookup
	webhookTolerance time.Duration
}

// Config bundles Server's required collaborators.
type Config struct {
	DB               *storage.DB
	Jobs             *jobservice.Service
	Triage           *triage.Engine
	Booker           *scheduling.Booker
	Supervisor       *session.Supervisor
	Ledger           *audit.Ledger
	EventsManager    *events.Manager
	Metrics          *metrics.Registry
	Profiles         *conversation.Registry
	Adapter          telephony.Adapter
	WSAdapter        *telephony.WSAdapter
	Notifier         notify.Notifier
	CallRunner       *callrunner.Runner
	WebhookSecret    WebhookSecretLookup
	WebhookTolerance time.Duration
}

// NewServer creates a new API server with Echo v5 and registers all routes.
func NewServer(cfg Config) *Server {
	e := echo.New()
	s := &Server{
		echo:             e,
		db:               cfg.DB,
		jobs:             cfg.Jobs,
		triage:           cfg.Triage,
		booker:           cfg.Booker,
		supervisor:       cfg.Supervisor,
		ledger:           cfg.Ledger,
		eventsMgr:        cfg.EventsManager,
		metrics:          cfg.Metrics,
		profiles:         cfg.Profiles,
		adapter:          cfg.Adapter,
		wsAdapter:        cfg.WSAdapter,
		notifier:         cfg.Notifier,
		callRunner:       cfg.CallRunner,
		webhookSecret:    cfg.WebhookSecret,
		webhookTolerance: cfg.WebhookTolerance,
	}
	if s.webhookTolerance == 0 {
		s.webhookTolerance = 300 * time.Second
	}
	s.setupRoutes()
	return s
}

// Echo exposes the underlying instance for Start/tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/jobs", s.createJobHandler)
	v1.GET("/jobs", s.listJobsHandler)
	v1.GET("/jobs/stats", s.jobStatsHandler)
	v1.GET("/jobs/:id", s.getJobHandler)
	v1.PATCH("/jobs/:id/status", s.updateJobStatusHandler)
	v1.PATCH("/jobs/:id/assign", s.assignJobHandler)
	v1.DELETE("/jobs/:id", s.cancelJobHandler)

	v1.POST("/triage/assess", s.triageAssessHandler)
	v1.POST("/technicians/search", s.technicianSearchHandler)
	v1.POST("/appointments/slots", s.appointmentSlotsHandler)
	v1.POST("/appointments/book", s.appointmentBookHandler)

	v1.GET("/consent/:contact_id", s.listConsentHandler)
	v1.POST("/consent/:contact_id", s.grantConsentHandler)
	v1.DELETE("/consent/:contact_id/:kind", s.revokeConsentHandler)

	v1.GET("/audit", s.queryAuditHandler)
	v1.GET("/audit/integrity", s.auditIntegrityHandler)

	v1.GET("/export/:contact_id", s.exportContactHandler)
	v1.DELETE("/erasure/:contact_id", s.eraseContactHandler)

	v1.POST("/webhooks/telephony/:tenant_id", s.telephonyWebhookHandler)
	v1.GET("/webhooks/telephony/:tenant_id/stream", s.telephonyStreamHandler)
	v1.GET("/chat/:tenant_id", s.chatWSHandler)
	v1.GET("/events/:tenant_id", s.eventsWSHandler)
}

func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// tenantID resolves the tenant-scoping header every REST endpoint requires.
// Mirrors the teacher's extractAuthor header-precedence pattern.
func tenantID(c *echo.Context) (string, error) {
	id := c.Request().Header.Get("X-Tenant-ID")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: "X-Tenant-ID header required", Code: "validation"})
	}
	return id, nil
}

// actor resolves the acting identity for audit/history rows.
func actor(c *echo.Context) string {
	if u := c.Request().Header.Get("X-Forwarded-User"); u != "" {
		return u
	}
	return "api-client"
}

// Start boots the HTTP server on addr, blocking until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.echo}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
