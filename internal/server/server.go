package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nzyazin/tutorledger/internal/core/cache"
	"github.com/Nzyazin/tutorledger/internal/core/handler"
	"github.com/Nzyazin/tutorledger/internal/core/logger"
	middlWre "github.com/Nzyazin/tutorledger/internal/core/middleware"
	"github.com/Nzyazin/tutorledger/internal/core/repository/postgres"
	"github.com/Nzyazin/tutorledger/internal/core/usecase"
	"github.com/Nzyazin/tutorledger/internal/jobs"
	"github.com/Nzyazin/tutorledger/pkg/config"
	"github.com/Nzyazin/tutorledger/pkg/postgresdb"
	"github.com/gorilla/mux"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

const reconcileTimeout = 5 * time.Minute

type Server struct {
	router     *mux.Router
	log        logger.Logger
	httpServer *http.Server
	db         *postgresdb.Database
	redis      *redis.Client
	cron       *cron.Cron
}

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Wallet  *handler.WalletHandler
	Earning *handler.EarningHandler
	Payout  *handler.PayoutHandler
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
}

func NewServer(log logger.Logger, appCfg config.AppConfig, dbCfg config.DBConfig) (*Server, error) {
	db, err := postgresdb.NewPostgresDB(dbCfg, log)
	if err != nil {
		return nil, err
	}

	summaries := cache.NewNop()
	var rdb *redis.Client
	if appCfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     appCfg.Redis.Addr,
			Password: appCfg.Redis.Password,
			DB:       appCfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			db.Close()
			rdb.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		summaries = cache.NewRedisCache(rdb, appCfg.Redis.TTL)
		log.Info("Summary cache enabled", logger.StringField("redis_addr", appCfg.Redis.Addr))
	}

	ledgerRepository := postgres.NewPostgresLedgerRepo(db.DB, log, postgres.Options{
		LockTimeout: dbCfg.LockTimeout,
		MaxAttempts: dbCfg.TxMaxAttempts,
	})
	opts := usecase.Options{DefaultCurrency: appCfg.DefaultCurrency}
	walletUsecase := usecase.NewWalletUsecase(ledgerRepository, summaries, log, opts)
	earningUsecase := usecase.NewEarningUsecase(ledgerRepository, summaries, log, opts)
	payoutUsecase := usecase.NewPayoutUsecase(ledgerRepository, summaries, log, opts)
	summaryUsecase := usecase.NewSummaryUsecase(ledgerRepository, summaries, log, opts)

	handlers := Handlers{
		Wallet:  handler.NewWalletHandler(walletUsecase, summaryUsecase, log, appCfg.DefaultCurrency),
		Earning: handler.NewEarningHandler(earningUsecase, walletUsecase, log, appCfg.DefaultCurrency),
		Payout:  handler.NewPayoutHandler(payoutUsecase, walletUsecase, log, appCfg.DefaultCurrency),
		Health:  db.PingContext,
	}

	scheduler := cron.New()
	if _, err := jobs.Schedule(scheduler, appCfg.ReconcileSchedule, jobs.NewReconciler(ledgerRepository, log), reconcileTimeout); err != nil {
		db.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}

	server := &Server{
		log:    log,
		router: NewRouter(log, appCfg.JWTSecret, handlers, promclient.DefaultRegisterer),
		db:     db,
		redis:  rdb,
		cron:   scheduler,
	}
	return server, nil
}

// NewRouter mounts every route. HTTP metrics are registered on reg.
func NewRouter(log logger.Logger, jwtSecret string, h Handlers, reg promclient.Registerer) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(log))

	mw := middleware.New(middleware.Config{
		Recorder: prometheus.NewRecorder(prometheus.Config{Registry: reg}),
	})
	router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})
	router.Use(
		middlWre.WithErrorHandler(log),
		middlWre.Recovery(log),
	)

	router.HandleFunc("/health", healthHandler(h.Health)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middlWre.Authenticate(jwtSecret, log))

	teacher := api.PathPrefix("/teacher").Subrouter()
	teacher.Use(middlWre.RequireRole(middlWre.RoleTeacher))
	teacher.HandleFunc("/wallet", h.Wallet.GetWallet).Methods("GET")
	teacher.HandleFunc("/summary", h.Wallet.GetSummary).Methods("GET")
	teacher.HandleFunc("/transactions", h.Wallet.ListTransactions).Methods("GET")
	teacher.HandleFunc("/earnings", h.Earning.ListEarnings).Methods("GET")
	teacher.HandleFunc("/payouts", h.Payout.ListOwnPayouts).Methods("GET")
	teacher.HandleFunc("/payouts", h.Payout.RequestPayout).Methods("POST")

	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.Use(middlWre.RequireRole(middlWre.RoleAdmin))
	sessions.HandleFunc("/completed", h.Earning.SessionCompleted).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middlWre.RequireRole(middlWre.RoleAdmin))
	admin.HandleFunc("/wallets/{teacherId}/credit", h.Wallet.Credit).Methods("POST")
	admin.HandleFunc("/payouts", h.Payout.ListPayouts).Methods("GET")
	admin.HandleFunc("/payouts/{id}/process", h.Payout.ProcessPayout).Methods("POST")
	admin.HandleFunc("/earnings/{id}/status", h.Earning.UpdateStatus).Methods("PUT")

	return router
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
	}

	s.httpServer = srv
	s.cron.Start()

	return srv.ListenAndServe()
}

func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	s.httpServer = srv
	s.cron.Start()

	return srv.ListenAndServeTLS(certFile, keyFile)
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		defer close(done)

		if s.cron != nil {
			// waits for a running reconciliation to finish
			<-s.cron.Stop().Done()
		}

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				s.log.Error("failed to close redis client", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("redis shutdown error: %w", err))
			}
		}

		if s.db != nil {
			if err := s.db.Close(); err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = errors.Join(shutdownErr, fmt.Errorf("database shutdown error: %w", err))
			}
		}
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func loggingMiddleware(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
				logger.StringField("duration", time.Since(start).String()),
			)
		})
	}
}
