package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/contentgate/backend/internal/config"
	s3infra "github.com/contentgate/backend/internal/infra/s3"
	"github.com/contentgate/backend/internal/infra/telegram"
	pgrepo "github.com/contentgate/backend/internal/repo/postgres"
	redrepo "github.com/contentgate/backend/internal/repo/redis"
	catalogsvc "github.com/contentgate/backend/internal/services/catalog"
	deliverysvc "github.com/contentgate/backend/internal/services/delivery"
	ledgersvc "github.com/contentgate/backend/internal/services/ledger"
	referralsvc "github.com/contentgate/backend/internal/services/referral"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
		if err := pgrepo.EnsureSchema(ctx, pool); err != nil {
			log.Warn("schema init failed, continuing in degraded mode", zap.Error(err))
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	cacheRepo := redrepo.NewCacheRepo(redisClient)

	userRepo := pgrepo.NewUserRepo(pool)
	catalogRepo := pgrepo.NewCatalogRepo(pool)
	requestRepo := pgrepo.NewRequestRepo(pool)
	commissionRepo := pgrepo.NewCommissionRepo(pool)

	catalogService := catalogsvc.NewService(catalogRepo)
	catalogService.AttachCache(cacheRepo)

	ledgerService := ledgersvc.NewService(requestRepo, ledgersvc.Config{
		ExpiryWindow:    cfg.Payments.ExpiryWindow,
		ResolveAttempts: cfg.Matcher.ResolveAttempts,
	})
	referralEngine := referralsvc.NewEngine(commissionRepo, userRepo, requestRepo, referralsvc.Config{
		CommissionRate: cfg.Payments.CommissionRate,
	}, log)
	ledgerService.AttachReferral(referralEngine)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	storage := deliverysvc.NewRouter()
	storage.Register("drive", deliverysvc.NewDriveStorage(cfg.Drive.BaseURL, cfg.Drive.APIKey))
	if s3Client != nil {
		storage.Register("s3", deliverysvc.NewS3Storage(s3Client, cfg.S3.Bucket))
	}

	// Manual delivery from the admin API needs the bot transport. Without a
	// bot token the endpoint stays up but reports the coordinator missing.
	var coordinator *deliverysvc.Coordinator
	if bot, err := telegram.NewBot(cfg.Bot.Token); err != nil {
		log.Warn("telegram init failed, manual delivery disabled", zap.Error(err))
	} else {
		coordinator = deliverysvc.NewCoordinator(
			ledgerService,
			catalogService,
			userRepo,
			storage,
			deliverysvc.NewTelegramSender(bot),
			log,
		)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	deps := Dependencies{
		CatalogService: catalogService,
		LedgerService:  ledgerService,
		ReferralEngine: referralEngine,
		Logger:         log,
		Config:         cfg,
	}
	if coordinator != nil {
		deps.Deliverer = coordinator
	}
	RegisterRoutes(r, deps)

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
