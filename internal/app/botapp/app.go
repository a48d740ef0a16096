package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/contentgate/backend/internal/config"
	s3infra "github.com/contentgate/backend/internal/infra/s3"
	tginfra "github.com/contentgate/backend/internal/infra/telegram"
	"github.com/contentgate/backend/internal/jobs/sweeper"
	pgrepo "github.com/contentgate/backend/internal/repo/postgres"
	redrepo "github.com/contentgate/backend/internal/repo/redis"
	catalogsvc "github.com/contentgate/backend/internal/services/catalog"
	deliverysvc "github.com/contentgate/backend/internal/services/delivery"
	ledgersvc "github.com/contentgate/backend/internal/services/ledger"
	matchersvc "github.com/contentgate/backend/internal/services/matcher"
	ratesvc "github.com/contentgate/backend/internal/services/rate"
	referralsvc "github.com/contentgate/backend/internal/services/referral"
)

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	s3       *minio.Client
	bot      *tginfra.Bot

	userRepo *pgrepo.UserRepo

	catalogService *catalogsvc.Service
	matcherService *matchersvc.Service
	ledgerService  *ledgersvc.Service
	referralEngine *referralsvc.Engine
	coordinator    *deliverysvc.Coordinator
	rateLimiter    *ratesvc.Limiter
	sweepJob       *sweeper.Job

	pendingMu     sync.Mutex
	pendingByChat map[int64]string
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}
	if err := pgrepo.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		logger.Warn("s3 init failed, s3 storage refs disabled", zap.Error(err))
	} else {
		s3Client = c
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	cacheRepo := redrepo.NewCacheRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)

	userRepo := pgrepo.NewUserRepo(pool)
	catalogRepo := pgrepo.NewCatalogRepo(pool)
	requestRepo := pgrepo.NewRequestRepo(pool)
	commissionRepo := pgrepo.NewCommissionRepo(pool)

	catalogService := catalogsvc.NewService(catalogRepo)
	catalogService.AttachCache(cacheRepo)

	matcherService := matchersvc.NewService(catalogRepo, matchersvc.Config{
		MinScore:      cfg.Matcher.MinScore,
		MaxCandidates: cfg.Matcher.MaxCandidates,
		CacheTTL:      cfg.Matcher.CacheTTL,
	})
	matcherService.AttachCache(cacheRepo)

	ledgerService := ledgersvc.NewService(requestRepo, ledgersvc.Config{
		ExpiryWindow:    cfg.Payments.ExpiryWindow,
		ResolveAttempts: cfg.Matcher.ResolveAttempts,
	})
	referralEngine := referralsvc.NewEngine(commissionRepo, userRepo, requestRepo, referralsvc.Config{
		CommissionRate: cfg.Payments.CommissionRate,
	}, logger)
	ledgerService.AttachReferral(referralEngine)

	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Limits.RequestsPerMinute)

	if strings.TrimSpace(cfg.Bot.Token) == "" {
		pool.Close()
		return nil, fmt.Errorf("bot token is required")
	}
	bot, err := tginfra.NewBot(cfg.Bot.Token)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	storage := deliverysvc.NewRouter()
	storage.Register("drive", deliverysvc.NewDriveStorage(cfg.Drive.BaseURL, cfg.Drive.APIKey))
	if s3Client != nil {
		storage.Register("s3", deliverysvc.NewS3Storage(s3Client, cfg.S3.Bucket))
	}

	coordinator := deliverysvc.NewCoordinator(
		ledgerService,
		catalogService,
		userRepo,
		storage,
		deliverysvc.NewTelegramSender(bot),
		logger,
	)

	sweepJob := sweeper.New(ledgerService, coordinator, cfg.Payments.RedeliverGrace, logger)

	return &App{
		cfg:            cfg,
		logger:         logger,
		postgres:       pool,
		s3:             s3Client,
		bot:            bot,
		userRepo:       userRepo,
		catalogService: catalogService,
		matcherService: matcherService,
		ledgerService:  ledgerService,
		referralEngine: referralEngine,
		coordinator:    coordinator,
		rateLimiter:    rateLimiter,
		sweepJob:       sweepJob,
		pendingByChat:  make(map[int64]string),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.runSweepLoop(ctx)
	}()
	go func() {
		errCh <- a.bot.Listen(ctx, tginfra.Handlers{
			OnCommand:     a.handleCommand,
			OnText:        a.handleText,
			OnCallback:    a.handleCallback,
			OnDocument:    a.handleDocument,
			OnPreCheckout: a.handlePreCheckout,
			OnPayment:     a.handlePayment,
		})
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) runSweepLoop(ctx context.Context) error {
	if a.sweepJob == nil {
		return nil
	}

	interval := a.cfg.Sweep.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	if err := a.sweepJob.Run(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.sweepJob.Run(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *App) isAdmin(userID int64) bool {
	return a.cfg.Admin.ChatID != 0 && userID == a.cfg.Admin.ChatID
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	_ = a.s3
}
