package bootstrap

import (
	"strings"

	"lcsec_server/adapter/in/http"
	"lcsec_server/config"
	"lcsec_server/infra/middleware"
	"lcsec_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "lcsec-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,
		StrictRouting:         false,
		CaseSensitive:         false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json for faster JSON serialization
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		// Messages are short text; 1MB leaves ample headroom
		BodyLimit: 1 * 1024 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())         // 1. Panic recovery
	app.Use(middleware.RequestID())       // 2. Request ID
	app.Use(middleware.SecurityHeaders()) // 3. Security headers
	app.Use(middleware.RequestLogger())   // 4. Request logging

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS. AllowCredentials requires explicit origins, never "*".
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Probes (no auth, no throttle)
	healthHandler := http.NewHealthHandler(deps.MongoDB, deps.Redis)
	healthHandler.Register(app)

	// Frontend and API welcome
	staticHandler := http.NewStaticHandler(cfg.StaticDir)
	staticHandler.Register(app)

	// Prediction endpoint, throttled per client IP
	predictHandler := http.NewPredictHandler(deps.PredictService)
	predictHandler.Register(app, middleware.RateLimit(deps.RateLimiter))

	// Review surface (JWT protected, read only)
	if cfg.AdminJWTSecret != "" {
		api := app.Group("/api/v1")
		api.Use(middleware.JWTAuth(cfg.AdminJWTSecret))

		reviewHandler := http.NewReviewHandler(deps.PredictionRepo, deps.PredictService)
		reviewHandler.Register(api)
		logger.Info("Review surface enabled at /api/v1")
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set, review surface disabled")
	}

	logger.Info("API server initialized successfully")

	return app, cleanup, nil
}
