package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/handler"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/artwork"
	"github.com/bitfantasy/nimo-mes/internal/shared/ledger"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-mes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Fatal("AutoMigrate MES tables failed", zap.Error(err))
	}

	repos := repository.NewRepositories(db)
	if err := repos.Settings.SeedBillingRate(context.Background(), billingRate(cfg.Billing)); err != nil {
		zapLogger.Warn("Seed billing rate failed", zap.Error(err))
	}

	// The broker connection is shared by the notification fan-out and the ledger poster.
	var amqpConn *amqp.Connection
	if cfg.Notify.AMQP || cfg.Ledger.Backend == "amqp" {
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.AMQPURL())
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer amqpConn.Close()
	}

	var rdb *redis.Client
	if cfg.Notify.Redis {
		rdb = initRedis(cfg.Redis)
		defer rdb.Close()
	}

	hub := notify.NewHub(zapLogger)
	notifiers := notify.Multi{}
	if cfg.Notify.SSE {
		notifiers = append(notifiers, hub)
	}
	if cfg.Notify.AMQP {
		amqpNotifier, err := notify.NewAMQPNotifier(amqpConn, cfg.Notify.Exchange)
		if err != nil {
			zapLogger.Fatal("Failed to declare notification exchange", zap.Error(err))
		}
		defer amqpNotifier.Close()
		notifiers = append(notifiers, amqpNotifier)
	}
	if rdb != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(rdb, cfg.Notify.RedisPrefix))
	}
	asyncNotifier := notify.NewAsync(notifiers, cfg.Notify.Buffer, zapLogger)
	defer asyncNotifier.Close()

	var poster ledger.Poster = ledger.NewLogPoster(zapLogger)
	if cfg.Ledger.Backend == "amqp" {
		amqpPoster, err := ledger.NewAMQPPoster(amqpConn, cfg.Ledger.Exchange, cfg.Ledger.RoutingKey)
		if err != nil {
			zapLogger.Fatal("Failed to declare ledger exchange", zap.Error(err))
		}
		defer amqpPoster.Close()
		poster = amqpPoster
	}

	var store artwork.Store
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := artwork.NewMinIOStore(artwork.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			zapLogger.Fatal("Failed to init MinIO client", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := minioStore.EnsureBucket(ctx); err != nil {
			zapLogger.Warn("MinIO bucket check failed", zap.Error(err))
		}
		cancel()
		store = minioStore
	} else {
		zapLogger.Warn("MinIO endpoint not set, client artwork upload disabled")
	}

	services := service.NewServices(repos, service.Options{
		Logger:   zapLogger,
		Notifier: asyncNotifier,
		Poster:   poster,
		Artwork:  store,
		Accounts: cfg.Ledger.Accounts,
		TenantID: cfg.Billing.TenantID,
		Spacing:  cfg.Nesting.Spacing,
		Locale:   cfg.Notify.Locale,
	})
	handlers := handler.NewHandlers(services, hub, zapLogger)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(zapLogger))
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/events$`})))

	registerRoutes(router, handlers, db, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE streams stay open
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func billingRate(cfg config.BillingConfig) *entity.BillingRate {
	return &entity.BillingRate{
		TenantID:             cfg.TenantID,
		FirstHourPrice:       decimal.NewFromFloat(cfg.FirstHourPrice),
		AdditionalHourPrice:  decimal.NewFromFloat(cfg.AdditionalHourPrice),
		FreeRevisions:        cfg.FreeRevisions,
		AutoBilling:          cfg.AutoBilling,
		DesignLaborProductID: cfg.DesignLaborProductID,
		FallbackTaxRate:      decimal.NewFromFloat(cfg.FallbackTaxRate),
	}
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, db *gorm.DB, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	api := r.Group("/api/v1/mes")
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	h.Register(api, r.Group("/api/v1/public"))
}
