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

	"github.com/restodesk/backend/internal/config"
	"github.com/restodesk/backend/internal/infra/metrics"
	s3infra "github.com/restodesk/backend/internal/infra/s3"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
	redrepo "github.com/restodesk/backend/internal/repo/redis"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	authzsvc "github.com/restodesk/backend/internal/services/authz"
	paysvc "github.com/restodesk/backend/internal/services/paymentrequests"
	refundsvc "github.com/restodesk/backend/internal/services/refunds"
	subssvc "github.com/restodesk/backend/internal/services/subscriptions"
	tiersvc "github.com/restodesk/backend/internal/services/tierlimits"
	transfersvc "github.com/restodesk/backend/internal/services/transfers"
	"github.com/restodesk/backend/internal/services/uploads"
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

	m := metrics.New()

	r := chi.NewRouter()
	ApplyMiddlewares(r, log, m)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	cacheRepo := redrepo.NewCacheRepo(redisClient, log)

	subscriptionRepo := pgrepo.NewSubscriptionRepo(pool)
	usageRepo := pgrepo.NewUsageRepo(pool)
	paymentRequestRepo := pgrepo.NewPaymentRequestRepo(pool)
	transferRepo := pgrepo.NewOwnershipTransferRepo(pool)
	membershipRepo := pgrepo.NewMembershipRepo(pool)
	refundRepo := pgrepo.NewRefundRequestRepo(pool)
	auditRepo := pgrepo.NewAuditRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authzService := authzsvc.NewService(membershipRepo)

	subscriptionService := subssvc.NewService(subssvc.Dependencies{
		Pool:  pool,
		Store: subscriptionRepo,
		Audit: auditRepo,
	}, subssvc.Config{
		TrialDays: cfg.Billing.TrialDays,
	})
	tierLimitService := tiersvc.NewService(tiersvc.Dependencies{
		Usage: usageRepo,
		Tiers: subscriptionService,
		Cache: cacheRepo,
	}, tiersvc.Config{
		CacheTTL: cfg.Limits.UsageCacheTTL,
		FailOpen: cfg.Limits.FailOpen,
	}, log)
	tierLimitService.AttachObserver(m)
	subscriptionService.AttachUsageInvalidator(tierLimitService)

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
	proofStorage := uploads.NewS3Storage(s3Client, cfg.S3.Bucket)
	if s3Client != nil {
		if err := proofStorage.EnsureBucket(ctx); err != nil {
			log.Warn("proof bucket init failed, continuing in degraded mode", zap.Error(err))
		}
	}

	paymentService := paysvc.NewService(paysvc.Dependencies{
		Pool:          pool,
		Requests:      paymentRequestRepo,
		Subscriptions: subscriptionService,
		Authorizer:    authzService,
		Proofs:        proofStorage,
		Audit:         auditRepo,
	}, paysvc.Config{
		DurationDays: cfg.Billing.DefaultDurationDays,
	})
	transferService := transfersvc.NewService(transfersvc.Dependencies{
		Pool:        pool,
		Transfers:   transferRepo,
		Memberships: membershipRepo,
		Audit:       auditRepo,
	}, transfersvc.Config{
		OTPTTL:      cfg.Transfer.OTPTTL,
		MaxAttempts: cfg.Transfer.MaxAttempts,
	})
	refundService := refundsvc.NewService(refundsvc.Dependencies{
		Refunds:       refundRepo,
		Payments:      paymentRequestRepo,
		Subscriptions: subscriptionService,
		Authorizer:    authzService,
		Audit:         auditRepo,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		JWTManager:          jwtManager,
		AuthzService:        authzService,
		SubscriptionService: subscriptionService,
		TierLimitService:    tierLimitService,
		PaymentService:      paymentService,
		RefundService:       refundService,
		TransferService:     transferService,
		ProofStorage:        proofStorage,
		Metrics:             m,
		Logger:              log,
		Config:              cfg,
	})

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
