package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/perkhub/perkstore/internal/perkstore/config"
	"github.com/perkhub/perkstore/internal/perkstore/handlers"
	"github.com/perkhub/perkstore/internal/perkstore/middleware"
	"github.com/perkhub/perkstore/internal/perkstore/repository"
	"github.com/perkhub/perkstore/internal/perkstore/service"
	"go.uber.org/zap"
)

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	repo       repository.Repository
	dispatcher *service.Dispatcher
	handler    *handlers.Handler
	httpServer *http.Server
}

// NewServer creates a new server
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	repo := repository.NewPostgresRepository()
	ledger := service.NewLedger(repo, log)
	dispatcher := service.NewDispatcher(service.NewAuditClient(cfg.AuditSinkAddress), log)
	checkout := service.NewCheckout(repo, ledger, dispatcher, cfg.WelcomeGrant, cfg.CheckoutTimeout, log)
	handler := handlers.NewHandler(repo, ledger, checkout, cfg.JWTSecret, log)

	return &Server{
		cfg:        cfg,
		log:        log,
		repo:       repo,
		dispatcher: dispatcher,
		handler:    handler,
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	// Initialize repository
	if err := s.repo.InitDB(s.cfg.DatabaseURI); err != nil {
		return err
	}

	// Start the audit event dispatcher
	s.dispatcher.Start()

	// Create router
	r := chi.NewRouter()

	// Basic middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	auth := &middleware.Authenticator{
		SecretKey: s.cfg.JWTSecret,
		Repo:      s.repo,
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/user/register", s.handler.RegisterUser)
		r.Post("/user/login", s.handler.LoginUser)
		r.Get("/products", s.handler.ListProducts)
		r.Get("/levels", s.handler.GetLevels)

		// Checkout accepts anonymous carts; a valid token wins over the body email
		r.Group(func(r chi.Router) {
			r.Use(auth.Optional)
			r.Post("/checkout", s.handler.CheckoutOrder)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Require)

			r.Get("/user/balance", s.handler.GetBalance)
			r.Get("/user/transactions", s.handler.GetTransactions)
			r.Get("/user/orders", s.handler.GetOrders)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/products", s.handler.CreateProduct)
				r.Put("/products/{id}/tiers", s.handler.SavePriceTiers)
				r.Post("/products/{id}/tiers/auto", s.handler.GeneratePriceTiers)
				r.Put("/levels", s.handler.SaveLevels)
				r.Post("/credit", s.handler.CreditPoints)
			})
		})
	})

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:    s.cfg.RunAddress,
		Handler: r,
	}

	// Start server
	s.log.Info("starting server", zap.String("address", s.cfg.RunAddress))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Shutdown HTTP server
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	// Stop the audit dispatcher
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	// Close repository
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return err
		}
	}

	return nil
}
