package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/postgres/v3"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"farmdash/internal/account"
	"farmdash/internal/audit"
	"farmdash/internal/config"
	"farmdash/internal/email"
	"farmdash/internal/farm"
	"farmdash/internal/identity"
	"farmdash/internal/logger"
	"farmdash/internal/monitoring"
	"farmdash/internal/organisation"
	"farmdash/internal/rbac"
	sessioncache "farmdash/internal/session"
	"farmdash/internal/store"
	"farmdash/internal/stripe"
	"farmdash/internal/validator"
	"farmdash/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	telemetry, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown telemetry: %v", err)
		}
	}()

	appLogger := logger.New(*cfg)

	// Document store
	docs := store.NewPostgresStore()
	ctx := context.Background()
	if err := docs.Connect(ctx, cfg.Database.DSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer docs.Close()

	if err := docs.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Redis role cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	roleCache := sessioncache.NewRoleCache(appLogger.Logger, redisClient, cfg.Redis.RoleCacheTTL)

	// Managers
	auditor := audit.NewAuditor(appLogger.Logger, &docs, cfg.Audit.Enabled)
	roleManager := rbac.NewManager(appLogger.Logger, &docs, &auditor, roleCache)

	var billing organisation.Billing
	if cfg.Stripe.Enabled {
		billing = stripe.NewClient(appLogger.Logger, cfg.Stripe.APIKey)
	}

	sender := email.NewLogSender(appLogger.Logger)
	provider := identity.NewLocalProvider(appLogger.Logger, &docs, sender, cfg.Auth.RequireVerification)

	accountManager := account.NewManager(appLogger.Logger, &docs, &roleManager, &auditor, cfg.Auth.SuperAdminUID)
	farmManager := farm.NewManager(appLogger.Logger, &docs, &roleManager, &auditor)
	organisationManager := organisation.NewManager(appLogger.Logger, &docs, &roleManager, &auditor, billing)
	authenticator := account.NewAuthenticator(appLogger.Logger, &provider, &accountManager, &farmManager, &auditor)

	// Session store backed by Postgres
	sessionStorage := postgres.New(postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		Table:    "tbl_session",
		Reset:    false,
	})

	sessions := session.New(session.Config{
		Storage:        sessionStorage,
		KeyLookup:      "cookie:session_id",
		CookiePath:     "/",
		CookieSecure:   cfg.Server.Environment == "production",
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		Expiration:     cfg.Auth.SessionExpiration,
	})

	handler := web.NewHandler(
		appLogger.Logger,
		sessions,
		validator.New(),
		&authenticator,
		&accountManager,
		&roleManager,
		&organisationManager,
		&farmManager,
		&auditor,
		telemetry,
		cfg.Auth.OperationTimeout,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	app.Use(recover.New())
	app.Use(monitoring.FiberMiddleware(cfg.Telemetry.ServiceName))

	// Rate limiting for authentication endpoints
	authLimiter := limiter.New(limiter.Config{
		Max:        5,
		Expiration: 15 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many attempts. Please try again later.",
			})
		},
	})

	app.Get("/health", handler.Health)

	app.Post("/auth/sign-up", authLimiter, handler.SignUp)
	app.Post("/auth/sign-in", authLimiter, handler.SignIn)
	app.Post("/auth/sign-out", handler.SignOut)
	app.Post("/auth/password-reset", authLimiter, handler.RequestPasswordReset)

	authenticated := app.Group("", handler.RequireAuth())
	authenticated.Get("/me", handler.Me)
	authenticated.Get("/me/permissions", handler.MyPermissions)
	authenticated.Get("/me/activity", handler.MyActivity)

	authenticated.Post("/organizations", handler.CreateOrganisation)
	authenticated.Post("/organizations/:id/subscription",
		handler.RequirePermission(rbac.PermissionOrgEdit, "id"), handler.ChangeSubscription)

	authenticated.Post("/farms", handler.CreateFarm)
	authenticated.Get("/farms/:id/members",
		handler.RequirePermission(rbac.PermissionUserView, "id"), handler.ListFarmMembers)

	authenticated.Post("/roles", handler.GrantRole)
	authenticated.Delete("/roles/:id", handler.RevokeRole)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		appLogger.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLogger.Error("Server shutdown failed", "error", err)
		}
	}()

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	appLogger.Info("Starting server", "addr", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
