// Package server contains the HTTP surface: the event dispatch endpoint,
// health checks, and the static image route.
package server

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"parlor/internal/cache"
	"parlor/internal/config"
	"parlor/internal/database"
	"parlor/internal/identity"
	"parlor/internal/middleware"
	"parlor/internal/repository"
	"parlor/internal/service"
	"parlor/internal/stmtcache"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	promOnce sync.Once
	promMW   *fiberprometheus.FiberPrometheus
)

// initMetrics creates the prometheus middleware at most once per process;
// its collectors live in the default registry and cannot be re-registered.
func initMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promMW = fiberprometheus.New(serviceName)
	})
	return promMW
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	guard          *middleware.IPGuard

	commentRepo repository.CommentRepository
	counterRepo repository.CounterRepository
	configRepo  repository.ConfigRepository

	settings *service.ConfigService
	identity *identity.Resolver
	comments *service.CommentService
	counters *service.CounterService
	importer *service.ImportService
	images   *service.ImageService

	handlers map[string]eventHandler
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("obtaining connection pool: %w", err)
	}
	dialect := stmtcache.Postgres
	if cfg.DBDriver == "sqlite" {
		dialect = stmtcache.SQLite
	}
	stmts := stmtcache.New(sqlDB, dialect)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: initMetrics("parlor"),
		guard:          middleware.NewIPGuard(int64(cfg.RequestCeiling)),
		commentRepo:    repository.NewCommentRepository(db, stmts),
		counterRepo:    repository.NewCounterRepository(db),
		configRepo:     repository.NewConfigRepository(db),
	}

	s.settings = service.NewConfigService(s.configRepo, redisClient)
	s.identity = identity.NewResolver(s.settings)
	limiter := service.NewRateLimiter(s.commentRepo, s.settings)
	s.comments = service.NewCommentService(
		s.commentRepo,
		s.settings,
		limiter,
		service.NewWordListChecker(s.settings),
		service.LogNotifier{},
		service.NewHTTPChallengeVerifier(s.settings),
	)
	s.counters = service.NewCounterService(s.counterRepo)
	s.importer = service.NewImportService(s.commentRepo)
	s.images = service.NewImageService(
		s.settings,
		service.NewLocalUploader(cfg.UploadDir, cfg.UploadBaseURL),
		service.NewHostUploader(s.settings),
	)

	s.handlers = s.buildDispatchTable()
	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	app.Use(middleware.RequestLogging())

	// CORS runs before the guard so rejected requests still carry headers.
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: s.originAllowed,
		AllowHeaders:     "Origin, Content-Type, Accept",
		MaxAge:           86400,
	}))

	app.Use(s.guard.Handler())
}

// originAllowed implements the deployment allow-list: loopback origins are
// always permitted; with no list configured every origin is permitted;
// otherwise the origin must match a configured entry (trailing slashes
// ignored on both sides).
func (s *Server) originAllowed(origin string) bool {
	if u, err := url.Parse(origin); err == nil {
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return true
		}
	}

	configured, err := s.settings.Get(context.Background(), service.KeyCORSAllowList)
	if err != nil || strings.TrimSpace(configured) == "" {
		return true
	}
	normalized := strings.TrimSuffix(origin, "/")
	for _, allowed := range strings.Split(configured, ",") {
		if strings.TrimSuffix(strings.TrimSpace(allowed), "/") == normalized {
			return true
		}
	}
	return false
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Locally stored images.
	app.Static(s.config.UploadBaseURL, s.config.UploadDir)

	// The widget speaks one endpoint; the bare root is kept as an alias for
	// older embeds.
	app.Post("/api/event", s.DispatchEvent)
	app.Post("/", s.DispatchEvent)
}

// LivenessCheck reports that the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ReadinessCheck reports whether the storage dependencies answer.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx := c.UserContext()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded", "database": err.Error(),
		})
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded", "redis": err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// App builds the configured fiber application.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "parlor",
		DisableStartupMessage: s.config.Env == "production",
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}
