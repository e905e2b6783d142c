package bootstrap

import (
	"context"
	"os"
	"time"

	"lcsec_server/adapter/out/inference"
	"lcsec_server/adapter/out/mongodb"
	"lcsec_server/adapter/out/sheets"
	"lcsec_server/config"
	"lcsec_server/core/port/out"
	"lcsec_server/core/service/classification"
	"lcsec_server/core/service/predict"
	"lcsec_server/pkg/crypto"
	"lcsec_server/pkg/logger"
	"lcsec_server/pkg/metrics"
	"lcsec_server/pkg/ratelimit"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

// latencyWindowSize bounds the per-model latency sample buffer.
const latencyWindowSize = 1000

type Dependencies struct {
	Config  *config.Config
	MongoDB *mongo.Client
	Redis   *redis.Client

	// Outbound adapters
	PredictionRepo  out.PredictionRepository
	Mirror          out.AuditMirror
	BertClassifier  *inference.BertAdapter
	BayesClassifier *classification.Classifier

	// Services
	PredictService *predict.Service

	// Infrastructure
	RateLimiter *ratelimit.SlidingWindowLimiter
	Latency     *metrics.LatencyRegistry
}

// NewDependencies wires the adapters and services. The audit mirror and
// Redis are optional; everything else is required to serve predictions.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Connection string may be stored encrypted in the deploy environment
	mongoURL := cfg.MongoDBURL
	if crypto.IsEncrypted(mongoURL) {
		if err := crypto.Init(); err != nil {
			cleanup()
			return nil, nil, err
		}
		decrypted, err := crypto.Decrypt(mongoURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		mongoURL = decrypted
		logger.Info("Decrypted MongoDB connection string")
	}

	// MongoDB (dedup store, source of truth)
	mongoClient, err := mongodb.NewClient(mongoURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.WithError(err).Warn("MongoDB disconnect failed")
		}
	})

	predictionRepo := mongodb.NewPredictionAdapter(mongoClient.Database(cfg.MongoDBName))
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := predictionRepo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure prediction indexes")
		}
		cancel()
	}
	deps.PredictionRepo = predictionRepo

	// Redis (rate limiting; the limiter fails open without it)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Invalid REDIS_URL, rate limiting disabled")
		} else {
			redisClient := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.WithError(err).Warn("Redis unreachable, rate limiting fails open")
			}
			cancel()
			deps.Redis = redisClient
			cleanups = append(cleanups, func() {
				if err := redisClient.Close(); err != nil {
					logger.WithError(err).Warn("Redis close failed")
				}
			})
		}
	}
	deps.RateLimiter = ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.RateLimitPerSec, cfg.RateLimitBurst)

	// Lexical classifier (in-process model export)
	bayes, err := classification.NewClassifier(cfg.BayesModelPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.BayesClassifier = bayes

	// Transformer classifier (serving endpoint behind a circuit breaker)
	deps.BertClassifier = inference.NewBertAdapter(&inference.BertConfig{
		Endpoint:   cfg.BertEndpoint,
		TimeoutSec: cfg.BertTimeoutSec,
	})

	// Audit mirror (optional; prediction flow works without it)
	if cfg.SheetsCredentialsFile != "" && cfg.SheetsSpreadsheetID != "" {
		zlog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "sheets-mirror").Logger()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mirror, err := sheets.NewMirror(ctx, &sheets.Config{
			CredentialsFile: cfg.SheetsCredentialsFile,
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			Worksheet:       cfg.SheetsWorksheet,
		}, zlog)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Audit mirror unavailable, predictions will not be mirrored")
		} else {
			deps.Mirror = mirror
			logger.Info("Audit mirror enabled: spreadsheet %s", cfg.SheetsSpreadsheetID)
		}
	} else {
		logger.Info("Audit mirror not configured")
	}

	deps.Latency = metrics.NewLatencyRegistry(latencyWindowSize)

	deps.PredictService = predict.NewService(
		deps.PredictionRepo,
		deps.Mirror,
		deps.Latency,
		deps.BertClassifier,
		deps.BayesClassifier,
	)

	logger.Info("Dependencies initialized")
	return deps, cleanup, nil
}
