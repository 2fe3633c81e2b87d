package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/letterflow/letterflow/internal/config"
	"github.com/letterflow/letterflow/internal/db"
	"github.com/letterflow/letterflow/internal/dispatch"
	"github.com/letterflow/letterflow/internal/metrics"
	"github.com/letterflow/letterflow/internal/provider"
	"github.com/letterflow/letterflow/internal/ratelimit"
	"github.com/letterflow/letterflow/internal/render"
	"github.com/letterflow/letterflow/internal/repository"
	"github.com/letterflow/letterflow/internal/shortener"
	"github.com/letterflow/letterflow/internal/webhook"
)

// Server wires storage, the send pipeline and the HTTP surface together
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *db.DB
	eventLog *webhook.EventLog

	publications *repository.PublicationRepository
	issues       *repository.IssueRepository
	subscribers  *repository.SubscriberRepository
	jobs         *repository.JobRepository

	sender     dispatch.EmailSender
	dispatcher *dispatch.Dispatcher
	reconciler *webhook.Reconciler
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics

	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}

	eventLog, err := webhook.OpenEventLog(cfg.Events.Path)
	if err != nil {
		database.Close()
		return nil, err
	}

	m := metrics.New()

	publications := repository.NewPublicationRepository(database.DB)
	footers := repository.NewFooterRepository(database.DB)
	issues := repository.NewIssueRepository(database.DB)
	blocks := repository.NewBlockRepository(database.DB)
	subscribers := repository.NewSubscriberRepository(database.DB)
	jobs := repository.NewJobRepository(database.DB)
	shortLinks := repository.NewShortLinkRepository(database.DB)
	rateLimits := repository.NewRateLimitRepository(database.DB)

	sender := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)

	var shortenAPI shortener.API
	if cfg.Shortener.Enabled() {
		shortenAPI = shortener.NewClient(cfg.Shortener.BaseURL, cfg.Shortener.APIKey, cfg.Shortener.Timeout)
	}
	rewriter := shortener.NewRewriter(shortenAPI, shortLinks, logger)

	builder := render.NewBuilder(publications, issues, blocks, footers, cfg.BaseURL, logger)

	dispatcher := dispatch.New(jobs, issues, subscribers, builder, rewriter, sender, m,
		cfg.BaseURL, cfg.Provider.BatchSize, cfg.Provider.BatchDelay, logger)

	s := &Server{
		cfg:          cfg,
		logger:       logger.With("component", "api"),
		db:           database,
		eventLog:     eventLog,
		publications: publications,
		issues:       issues,
		subscribers:  subscribers,
		jobs:         jobs,
		sender:       sender,
		dispatcher:   dispatcher,
		reconciler:   webhook.NewReconciler(jobs, issues, subscribers, m, logger),
		limiter:      ratelimit.NewLimiter(rateLimits, logger),
		metrics:      m,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Public endpoints
	r.Post("/api/subscribe", s.handleSubscribe)
	r.Get("/api/confirm", s.handleConfirm)
	r.Get("/api/unsubscribe", s.handleUnsubscribe)
	r.Post("/api/webhooks/provider", s.handleWebhook)

	// Admin endpoints
	r.Group(func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Post("/api/send/campaign", s.handleSendCampaign)
		r.Post("/api/send/test", s.handleSendTest)
		r.Get("/api/jobs/{id}", s.handleGetJob)
	})

	return r
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully: stop accepting requests, wait for in-flight campaign
// jobs, close the stores.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown error", "error", err)
	}

	s.dispatcher.Wait()
	s.close()
	return nil
}

func (s *Server) close() {
	if err := s.eventLog.Close(); err != nil {
		s.logger.Error("failed to close event log", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close database", "error", err)
	}
}
