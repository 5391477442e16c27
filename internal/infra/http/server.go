package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/domain"
	"coffeeshop/internal/infra/auth/oidc"
	"coffeeshop/internal/infra/cacheredis"
	"coffeeshop/internal/infra/db"
	"coffeeshop/internal/infra/drinkmem"
	"coffeeshop/internal/infra/policyopa"
	"coffeeshop/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const redisPingTimeout = 2 * time.Second

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *slog.Logger

	drinks *usecase.DrinkService
	ready  func(context.Context) error

	verifier    domain.Verifier
	authInitErr error
	keySets     *cacheredis.KeySetStore

	registry *prometheus.Registry
	metrics  *metrics
}

type ServerDeps struct {
	Drinks   *usecase.DrinkService
	Verifier domain.Verifier
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Ready    func(context.Context) error
}

// NewServer wires the drink repository selected by cfg and, in oidc mode,
// a token verifier built from cfg.
func NewServer(cfg config.Config, store *db.Store, logger *slog.Logger) *Server {
	var repo usecase.DrinkRepository
	var ready func(context.Context) error
	if cfg.DBDriver == config.DriverMemory || store == nil {
		repo = drinkmem.New(db.SeedDrinks()...)
	} else {
		repo = db.NewDrinkRepository(store.DB)
		ready = store.Ping
	}
	return NewServerWithDeps(cfg, ServerDeps{
		Drinks: usecase.NewDrinkService(repo, logger),
		Logger: logger,
		Ready:  ready,
	})
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	s := &Server{
		cfg:      cfg,
		r:        r,
		logger:   logger,
		drinks:   deps.Drinks,
		ready:    deps.Ready,
		verifier: deps.Verifier,
		registry: registry,
		metrics:  newMetrics(registry),
	}
	r.Use(
		gin.CustomRecovery(s.recoverPanic),
		requestID(),
		s.observe(),
		cors(),
	)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initAuth() {
	switch s.cfg.AuthMode {
	case config.AuthModeNone:
		s.logger.Warn("AUTH_MODE=none; permission checks are disabled")
		return
	case config.AuthModeOIDC:
		if s.verifier != nil {
			return
		}
		opts := []oidc.Option{oidc.WithLogger(s.logger)}
		policy, err := s.permissionPolicy()
		if err != nil {
			s.authInitErr = err
			s.logger.Error("permission policy init failed", "error", err)
			return
		}
		opts = append(opts, oidc.WithPermissionPolicy(policy))
		if store := s.keySetStore(); store != nil {
			opts = append(opts, oidc.WithSnapshotStore(store))
		}
		verifier, err := oidc.NewVerifier(s.cfg, opts...)
		if err != nil {
			s.authInitErr = err
			s.logger.Error("verifier init failed", "error", err)
			return
		}
		s.verifier = verifier
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

// keySetStore connects the shared key set snapshot. An unreachable redis is
// only logged; the verifier falls back to the provider on every load error.
func (s *Server) keySetStore() *cacheredis.KeySetStore {
	if s.cfg.RedisAddr == "" {
		return nil
	}
	store, err := cacheredis.NewKeySetStore(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
	if err != nil {
		s.logger.Warn("redis key set store disabled", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		s.logger.Warn("redis key set store unreachable", "addr", s.cfg.RedisAddr, "error", err)
	}
	s.keySets = store
	return store
}

func (s *Server) permissionPolicy() (domain.PermissionPolicy, error) {
	if s.cfg.PermissionPolicy != config.PolicyOPA {
		return nil, nil
	}
	ctx := context.Background()
	if s.cfg.OPAPolicyPath != "" {
		return policyopa.NewEngineFromPath(ctx, s.cfg.OPAPolicyPath)
	}
	return policyopa.NewEngine(ctx)
}

func (s *Server) routes() {
	s.r.NoRoute(func(c *gin.Context) {
		writeErrorStatus(c, http.StatusNotFound)
	})
	s.r.NoMethod(func(c *gin.Context) {
		writeErrorStatus(c, http.StatusMethodNotAllowed)
	})

	s.r.GET("/healthz", s.handleHealth)
	s.r.GET("/metrics", gin.WrapH(s.metricsHandler()))

	s.r.GET("/drinks", s.handleListDrinks)
	s.r.GET("/drinks-detail", s.requirePermission(domain.PermGetDrinksDetail), s.handleListDrinkDetails)
	s.r.POST("/drinks", s.requirePermission(domain.PermPostDrinks), s.handleCreateDrink)
	s.r.PATCH("/drinks/:id", s.requirePermission(domain.PermPatchDrinks), s.handleUpdateDrink)
	s.r.DELETE("/drinks/:id", s.requirePermission(domain.PermDeleteDrinks), s.handleDeleteDrink)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// AuthInitErr reports a verifier that could not be built; protected routes
// answer 500 while it is set.
func (s *Server) AuthInitErr() error {
	return s.authInitErr
}

// Close releases the connections the server opened for itself.
func (s *Server) Close() error {
	if s.keySets == nil {
		return nil
	}
	err := s.keySets.Close()
	s.keySets = nil
	return err
}
