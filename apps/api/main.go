package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	accesshandler "github.com/medistack/platform-core/domains/access/be/handler"
	accessrepo "github.com/medistack/platform-core/domains/access/be/repo"
	accessservice "github.com/medistack/platform-core/domains/access/be/service"
	tenantshandler "github.com/medistack/platform-core/domains/tenants/be/handler"
	tenantsrepo "github.com/medistack/platform-core/domains/tenants/be/repo"
	tenantsservice "github.com/medistack/platform-core/domains/tenants/be/service"
	usershandler "github.com/medistack/platform-core/domains/users/be/handler"
	usersrepo "github.com/medistack/platform-core/domains/users/be/repo"
	usersservice "github.com/medistack/platform-core/domains/users/be/service"
	"github.com/medistack/platform-core/platform/go/apperror"
	platformauth "github.com/medistack/platform-core/platform/go/auth"
	"github.com/medistack/platform-core/platform/go/authz"
	platformlogging "github.com/medistack/platform-core/platform/go/logging"
	"github.com/medistack/platform-core/platform/go/metrics"
	platformmiddleware "github.com/medistack/platform-core/platform/go/middleware"
	"github.com/medistack/platform-core/platform/go/persistence"
	"github.com/medistack/platform-core/platform/go/quota"
	"github.com/medistack/platform-core/platform/go/registry"
	tenantmiddleware "github.com/medistack/platform-core/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	DatabaseURL    string        `env:"DATABASE_URL,required"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	RetryBudget    time.Duration `env:"DB_RETRY_BUDGET" envDefault:"30s"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	production := cfg.Environment == "production"
	writer := apperror.NewWriter(logger, production)

	reg := registry.New(registry.Config{
		MasterURL:      cfg.DatabaseURL,
		ConnectTimeout: cfg.ConnectTimeout,
		RetryBudget:    cfg.RetryBudget,
	}, logger)

	// The master store is a hard dependency; an exhausted retry budget here
	// means the process cannot serve anything.
	if err := reg.InitMaster(ctx); err != nil {
		logger.Fatal("init master store", zap.Error(err))
	}
	defer reg.CloseAll()

	if err := persistence.ApplyMasterSchema(ctx, reg.Master()); err != nil {
		logger.Fatal("apply master schema", zap.Error(err))
	}

	tenantStore, err := persistence.NewTenantStore(reg.Master())
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	masterUsers, err := persistence.NewUserStore(reg.Master())
	if err != nil {
		logger.Fatal("init master user store", zap.Error(err))
	}
	accessStore, err := persistence.NewAccessStore(reg.Master())
	if err != nil {
		logger.Fatal("init access store", zap.Error(err))
	}

	ledger, err := quota.NewRedisLedger(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("init usage ledger", zap.Error(err))
	}
	defer func() {
		_ = ledger.Close()
	}()
	enforcer := quota.NewEnforcer(ledger, logger, writer)

	tokens := platformauth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	tenantRepo := tenantsrepo.NewPostgresRepository(tenantStore)
	tenantService := tenantsservice.New(tenantRepo)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger, writer)

	accessDir := accessrepo.NewPostgresDirectory(accessStore)
	accessService := accessservice.New(accessDir)
	accessHTTPHandler := accesshandler.New(accessService, logger, writer)

	userProvider := usersrepo.NewScopedProvider(usersrepo.NewPostgresStore(masterUsers))
	userService := usersservice.New(userProvider, tokens, accessStore, enforcer)
	userHTTPHandler := usershandler.New(userService, logger, writer)

	resolver := tenantmiddleware.NewResolver(tenantService, reg, writer)
	authenticator := platformauth.NewAuthenticator(
		tokens,
		tenantService,
		platformauth.NewStoreUserResolver(masterUsers, reg),
		writer,
	)
	engine := authz.New(accessStore)
	guard := platformmiddleware.TenantGuard(writer)
	httpMetrics := metrics.New()

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Timeout(cfg.RequestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{tenantmiddleware.TenantHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))
	rootRouter.Use(httpMetrics.Middleware)
	rootRouter.Use(writer.Recoverer)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Master().Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", httpMetrics.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(resolver.Middleware)
	apiRouter.Use(enforcer.TrackUsage)

	// Login is the only unauthenticated API surface; tenant resolution above
	// routes the credential check against the right store.
	apiRouter.Route("/auth", userHTTPHandler.LoginRoutes)

	apiRouter.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)

		r.Route("/tenants", func(r chi.Router) {
			r.Use(engine.RequireAny(writer, "manage_tenants"))
			// The guard is attached inside the {id} subrouter; at this level
			// the parameter is not bound yet and the guard would see "".
			tenantHTTPHandler.Routes(r, guard)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(engine.RequireAny(writer, "manage_users"))
			r.Group(func(r chi.Router) {
				r.Use(enforcer.EnforceUserLimit)
				userHTTPHandler.CreateRoutes(r)
			})
			userHTTPHandler.Routes(r)
		})

		r.Route("/access", func(r chi.Router) {
			r.Use(engine.RequireAny(writer, "manage_access"))
			accessHTTPHandler.Routes(r)
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
