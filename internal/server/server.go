package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/boardsync/apiserver/config"
	"github.com/boardsync/apiserver/internal/boardlock"
	"github.com/boardsync/apiserver/internal/db"
	"github.com/boardsync/apiserver/internal/email"
	"github.com/boardsync/apiserver/internal/handlers"
	"github.com/boardsync/apiserver/internal/logger"
	"github.com/boardsync/apiserver/internal/mq"
	"github.com/boardsync/apiserver/internal/oauth"
	"github.com/boardsync/apiserver/internal/ratelimit"
	"github.com/boardsync/apiserver/internal/realtime"
	"github.com/boardsync/apiserver/internal/services"
	"github.com/boardsync/apiserver/internal/storage"
	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	refreshPurgeInterval = time.Hour
	redisPingTimeout     = 5 * time.Second
)

// Server wraps the HTTP server, the router and the background loops that
// live as long as the process.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      redis.UniversalClient
	queue      *mq.MQ
	hub        *realtime.Hub
	auth       *services.AuthService
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every dependency selected by cfg.
func New(ctx context.Context, cfg config.Config) (s *Server, err error) {
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	s = &Server{logger: log}
	partial := s
	defer func() {
		if err != nil {
			partial.closeResources()
		}
	}()

	s.db, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Redis.Enabled() {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err = s.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	codec, err := token.NewCodec(cfg.JWT)
	if err != nil {
		return nil, err
	}

	backend, err := mq.NewBackend(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}
	s.queue = mq.New(backend)

	covers, err := newCoverStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(s.db)
	boardRepo := store.NewBoardRepository(s.db)
	columnRepo := store.NewColumnRepository(s.db)
	cardRepo := store.NewCardRepository(s.db)
	invitationRepo := store.NewInvitationRepository(s.db)
	txManager := db.NewTxManager(s.db)

	var refreshStore services.RefreshTokenStore
	switch cfg.RefreshTokenBackend {
	case "redis":
		refreshStore = store.NewRedisRefreshTokenRepository(s.redis)
	default:
		refreshStore = store.NewRefreshTokenRepository(s.db)
	}

	var (
		locker     boardlock.Locker = boardlock.NewMemoryLocker()
		authOpts   []services.AuthOption
		mailSender email.Sender
	)
	if s.redis != nil {
		locker = boardlock.NewRedisLocker(s.redis)
		limits := ratelimit.Config{MaxAttempts: cfg.RateLimit.MaxAttempts, Window: cfg.RateLimit.Window}
		accountLimits := ratelimit.Config{MaxAttempts: cfg.RateLimit.AccountMaxAttempts, Window: cfg.RateLimit.Window}
		authOpts = append(authOpts,
			services.WithLoginLimiter(ratelimit.NewRedisLimiter(s.redis, "login", limits)),
			services.WithAccountLimiter(ratelimit.NewRedisLimiter(s.redis, "login-account", accountLimits)),
			services.WithMailLimiter(ratelimit.NewRedisLimiter(s.redis, "mail", limits)),
		)
	}

	distributed := mq.Distributed(cfg.MQ)
	switch {
	case distributed:
		mailSender = email.NewQueueSender(s.queue)
	case cfg.SMTP.Enabled():
		smtp, err := email.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		mailSender = smtp
	default:
		mailSender = email.NewLogSender(log)
	}
	mailer := email.NewMailer(mailSender, cfg.ClientURL)

	var relay realtime.Relay
	if distributed {
		relay = s.queue
	}
	var boardService *services.BoardService
	s.hub = realtime.NewHub(realtime.AccessCheckerFunc(func(ctx context.Context, userID, boardID string) error {
		return boardService.CheckBoardAccess(ctx, userID, boardID)
	}), relay, log)

	boardService = services.NewBoardService(boardRepo, columnRepo, cardRepo, txManager, locker, s.hub, covers)
	invitationService := services.NewInvitationService(invitationRepo, userRepo, boardService, boardRepo, txManager, locker, s.hub)
	s.auth = services.NewAuthService(userRepo, refreshStore, codec, mailer, authOpts...)

	var provider handlers.OAuthProvider
	if cfg.Google.Enabled() {
		provider = oauth.NewGoogleProvider(cfg.Google)
	}

	mw := handlers.NewMiddleware(s.auth, boardService)
	authHandler := handlers.NewAuthHandler(s.auth, provider, handlers.CookieConfig{
		Secure: cfg.CookieSecure,
		MaxAge: cfg.JWT.Refresh.TTL,
	}, cfg.Google.ClientCallbackURL)
	boardHandler := handlers.NewBoardHandler(boardService)
	invitationHandler := handlers.NewInvitationHandler(invitationService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logger.RequestLogger,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/ws", func(r chi.Router) {
		handlers.RealtimeRouter(r, s.hub, mw, allowedOrigins(cfg.ClientURL))
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Route("/users", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, mw)
		})
		r.Route("/boards", func(r chi.Router) {
			handlers.BoardRouter(r, boardHandler, mw)
		})
		r.Route("/columns", func(r chi.Router) {
			handlers.ColumnRouter(r, boardHandler, mw)
		})
		r.Route("/cards", func(r chi.Router) {
			handlers.CardRouter(r, boardHandler, mw)
		})
		r.Route("/invitations", func(r chi.Router) {
			handlers.InvitationRouter(r, invitationHandler, mw)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// newCoverStorage returns nil when no backend is configured so board covers
// are reported as disabled.
func newCoverStorage(ctx context.Context, cfg config.StorageConfig) (services.CoverStorage, error) {
	st, err := storage.NewFromConfig(ctx, cfg)
	if errors.Is(err, storage.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	if err := st.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	return st, nil
}

func allowedOrigins(clientURL string) []string {
	clientURL = strings.TrimRight(strings.TrimSpace(clientURL), "/")
	if clientURL == "" {
		return nil
	}
	return []string{clientURL}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the background loops and blocks serving HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.wg.Add(2)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("realtime relay stopped", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.purgeRefreshTokens(ctx)
	}()

	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) purgeRefreshTokens(ctx context.Context) {
	ticker := time.NewTicker(refreshPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.auth.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				s.logger.Warn("purge expired refresh tokens failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired refresh tokens", "count", n)
			}
		}
	}
}

// Shutdown drains HTTP connections, stops the background loops and closes
// every client.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
