package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/thereayou/roomchat/internal/config"
	"github.com/thereayou/roomchat/internal/database"
	"github.com/thereayou/roomchat/internal/handlers"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/rooms"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
	"github.com/thereayou/roomchat/pkg/auth"
	"github.com/thereayou/roomchat/pkg/metrics"
)

// Server is the process-wide set of components, built once at startup.
type Server struct {
	cfg     config.Config
	log     *slog.Logger
	Hub     *websocket.Hub
	Router  *gin.Engine
	Metrics *metrics.Metrics
	closers []func() error
}

type store interface {
	services.MessageStore
	services.UserStore
	Close() error
}

func NewServer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	catalog, err := rooms.ParseCatalog(cfg.Rooms)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, log: log, Metrics: metrics.New()}

	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, st.Close)

	var blacklist services.TokenBlacklist
	if cfg.RedisURL != "" {
		rdb, err := database.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		blacklist = database.NewRedisBlacklist(rdb)
	} else {
		log.Warn("REDIS_URL not set, logged out tokens stay valid until expiry")
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)
	authService := services.NewAuthService(st, jwtManager, blacklist, log)

	s.Hub = websocket.NewHub(catalog, log, s.Metrics, cfg.OutboundBuffer)
	broadcaster := websocket.NewBroadcaster(s.Hub, log, s.Metrics)
	messageService := services.NewMessageService(st, catalog, s.Hub, broadcaster, log, s.Metrics, services.MessageOptions{
		MaxLength:           cfg.MaxMessageLength,
		DefaultHistoryLimit: cfg.HistoryDefaultLimit,
		MaxHistoryLimit:     cfg.HistoryMaxLimit,
	})
	gateway := websocket.NewGateway(authService, s.Hub, handlers.NewMessageHandler(messageService), log, s.Metrics)

	gin.SetMode(gin.ReleaseMode)
	s.Router = gin.New()
	s.Router.Use(gin.Recovery(), middleware.RequestLogger(log))
	APIEndpoints(s.Router, Handlers{
		Auth:        handlers.NewAuthHandler(authService, catalog.Groups(), log),
		Rooms:       handlers.NewRoomHandler(catalog, s.Hub),
		Messages:    handlers.NewHTTPMessageHandler(messageService, log),
		WebSocket:   handlers.NewWebSocketHandler(gateway, cfg.Origins(), log),
		RequireAuth: middleware.AuthMiddleware(authService),
		Metrics:     s.Metrics.Handler(),
	})

	log.Info("Server ready", "store", cfg.StoreDriver, "rooms", len(catalog.Rooms()))
	return s, nil
}

func openStore(cfg config.Config, log *slog.Logger) (store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return database.OpenPostgres(cfg.DatabaseURL)
	case config.DriverBadger:
		return database.OpenBadger(cfg.BadgerPath, log)
	default:
		return nil, fmt.Errorf("%w: unknown STORE_DRIVER %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}

// Handler is the router behind CORS.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(s.Router)
}

// Run serves until ctx is cancelled, then stops the hub and drains requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.Addr(), Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down gracefully...")
	s.Hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}

// Close releases stores in reverse order of opening.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
