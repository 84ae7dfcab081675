// Package api exposes an auction over HTTP/JSON.
//
// The caller identity of state-changing requests is taken from the X-From
// header. The server trusts it; deploy behind something that authenticates
// callers when the ledger is not a local development chain.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/logger"
	"github.com/screa/d3caf/pkg/auction"
)

// FromHeader carries the caller identity
const FromHeader = "X-From"

// Config holds server configuration
type Config struct {
	ListenAddr string
	EnableCORS bool
}

// Server is the auction HTTP server
type Server struct {
	auction  *auction.Auction
	log      *logger.Logger
	gatherer prometheus.Gatherer
	config   Config

	router     *mux.Router
	httpServer *http.Server
}

// NewServer creates a server for a. Metrics are served from gatherer when it is non-nil.
func NewServer(cfg Config, a *auction.Auction, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		auction:  a,
		log:      log.Named("api"),
		gatherer: gatherer,
		config:   cfg,
		router:   mux.NewRouter(),
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler with CORS applied if enabled
func (s *Server) Handler() http.Handler {
	if !s.config.EnableCORS {
		return s.router
	}
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type", FromHeader},
	}).Handler(s.router)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/chain", s.handleChain).Methods(http.MethodGet)
	v1.HandleFunc("/salt", s.handleComputeSalt).Methods(http.MethodGet)
	v1.HandleFunc("/request-id", s.handleComputeRequestID).Methods(http.MethodPost)
	v1.HandleFunc("/faucet", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/balances/{asset}/{account}", s.handleBalance).Methods(http.MethodGet)

	v1.HandleFunc("/requests", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/requests", s.handleListRequests).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}", s.handleGetRequest).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}/best", s.handleBestSalt).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}/address", s.handleComputeAddress).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}/responses", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id}/claim", s.handleClaim).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id}/withdraw", s.handleWithdraw).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	admin.HandleFunc("/commission-receiver", s.handleSetCommissionReceiver).Methods(http.MethodPut)
	admin.HandleFunc("/commission-rate", s.handleSetCommissionRate).Methods(http.MethodPut)
	admin.HandleFunc("/max-deadline", s.handleSetMaxDeadline).Methods(http.MethodPut)
	admin.HandleFunc("/owner", s.handleTransferOwnership).Methods(http.MethodPut)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.config.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", s.config.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
