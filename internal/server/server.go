package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/flipzy/transaction-service/internal/core/events"
	"github.com/flipzy/transaction-service/internal/core/handler"
	"github.com/flipzy/transaction-service/internal/core/logger"
	middlWre "github.com/flipzy/transaction-service/internal/core/middleware"
	"github.com/flipzy/transaction-service/internal/core/repository"
	"github.com/flipzy/transaction-service/internal/core/repository/memory"
	"github.com/flipzy/transaction-service/internal/core/repository/postgres"
	"github.com/flipzy/transaction-service/internal/core/usecase"
	"github.com/flipzy/transaction-service/pkg/config"
	"github.com/flipzy/transaction-service/pkg/postgresdb"
)

type Server struct {
	router             *mux.Router
	log                logger.Logger
	cfg                *config.Config
	httpServer         *http.Server
	walletHandler      *handler.WalletHandler
	transactionHandler *handler.TransactionHandler
	db                 *postgresdb.Database
	publisher          *events.RedisPublisher
}

func NewServer(log logger.Logger) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	server := &Server{
		log:    log,
		cfg:    cfg,
		router: mux.NewRouter(),
	}

	walletRepo, transactionRepo, err := server.buildStores()
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RedisAddr != "" {
		redisPublisher, err := events.NewRedisPublisher(cfg.RedisAddr, cfg.TxCompletedChannel, log)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		server.publisher = redisPublisher
		publisher = redisPublisher
	}

	partyLocks := usecase.NewPartyLocks()
	walletUsecase := usecase.NewWalletUsecase(walletRepo, transactionRepo, partyLocks, log)
	transactionUsecase := usecase.NewTransactionUsecase(walletRepo, transactionRepo, partyLocks, publisher, log)

	server.walletHandler = handler.NewWalletHandler(walletUsecase, log)
	server.transactionHandler = handler.NewTransactionHandler(transactionUsecase, walletUsecase, log)

	server.router.Use(loggingMiddleware(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: prometheus.NewRecorder(prometheus.Config{}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	return server, nil
}

func (s *Server) buildStores() (repository.WalletRepository, repository.TransactionRepository, error) {
	switch s.cfg.StoreBackend {
	case config.BackendPostgres:
		db, dbErr := postgresdb.NewPostgresDB(*s.cfg.DB, s.log)
		if dbErr != nil {
			return nil, nil, dbErr
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if migErr := postgres.Migrate(ctx, db.DB); migErr != nil {
			db.Close()
			return nil, nil, migErr
		}

		s.db = db
		return postgres.NewWalletRepo(db.DB, s.log), postgres.NewTransactionRepo(db.DB, s.log), nil
	default:
		return memory.NewWalletRepo(s.log), memory.NewTransactionRepo(s.log), nil
	}
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		middlWre.WithErrorHandler(s.log),
		middlWre.Recovery(s.log),
	)

	s.walletHandler.RegisterRoutes(s.router)
	s.transactionHandler.RegisterRoutes(s.router)

	s.router.HandleFunc("/", s.health).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Transaction Service running"}`))
}

func (s *Server) Addr() string {
	return s.cfg.HTTPAddr
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	s.httpServer = srv

	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	go func() {
		if s.httpServer != nil {
			err := s.httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if s.db != nil {
			err := s.db.Close()
			if err != nil {
				s.log.Error("failed to close database connection", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("database shutdown error: %w", err)
			}
		}

		if s.publisher != nil {
			if err := s.publisher.Close(); err != nil {
				s.log.Error("failed to close redis connection", logger.ErrorField("error", err))
			}
		}

		close(done)
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
			log.Info("HTTP request",
				logger.StringField("method", r.Method),
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.StringField("user_agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}
