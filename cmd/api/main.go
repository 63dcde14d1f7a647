package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/di"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/handlers"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/payments"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/config"
	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/idempotency"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/jobs"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/metrics"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/observability"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/push"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/realtime"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/secrets"
	firestoreRepo "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories/firestore"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var recorder *metrics.Recorder
	var serviceMetrics services.Metrics
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		serviceMetrics = recorder
	}

	gateway, err := buildPaymentGateway(cfg.Payments, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	firebaseApp, err := auth.NewFirebaseApp(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase", zap.Error(err))
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, firebaseApp)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	deps := di.Dependencies{
		Gateway: gateway,
		Metrics: serviceMetrics,
		Logger:  observability.EventLogger(logger.Named("services")),
	}

	var redisClose func() error
	healthOpts := []handlers.HealthOption{}
	if strings.TrimSpace(cfg.Notifications.RedisAddr) != "" {
		rdb, err := realtime.Connect(ctx, cfg.Notifications)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		redisClose = rdb.Close
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		publisher, err := realtime.NewRedisPublisher(rdb, cfg.Notifications.RealtimeChannelPrefix)
		if err != nil {
			logger.Fatal("failed to initialise realtime publisher", zap.Error(err))
		}
		deps.Realtime = publisher
	} else {
		logger.Warn("realtime channel disabled; API_NOTIFICATIONS_REDIS_ADDR not set")
	}

	if cfg.Notifications.PushEnabled {
		sender, err := push.NewFCMSender(ctx, firebaseApp)
		if err != nil {
			logger.Fatal("failed to initialise push sender", zap.Error(err))
		}
		deps.Push = sender
	}

	var pubsubQueue *jobs.PubSubNotificationQueue
	var pubsubClient *pubsub.Client
	if cfg.Notifications.Queue == config.NotificationQueuePubSub {
		var clientOpts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Firestore.ProjectID, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		pubsubQueue, err = jobs.NewPubSubNotificationQueue(pubsubClient.Topic(cfg.Notifications.PubSubTopic), deps.Logger)
		if err != nil {
			logger.Fatal("failed to initialise pubsub notification queue", zap.Error(err))
		}
		deps.Queue = pubsubQueue
	}

	container, err := di.NewContainer(ctx, cfg, registry, deps)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotent := idempotency.Middleware(idempotencyStore, idempotency.Config{
		Header: cfg.Idempotency.Header,
		TTL:    cfg.Idempotency.TTL,
	})

	pushVerifier := auth.NewPushVerifier(
		auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil, nil),
		auth.PushVerifierConfig{
			Audience:            cfg.Security.OIDC.Audience,
			Issuers:             cfg.Security.OIDC.Issuers,
			ServiceAccountEmail: cfg.Security.OIDC.ServiceAccountEmail,
			Logger:              observability.EventLogger(logger.Named("auth")),
		},
	)
	if strings.TrimSpace(cfg.Security.OIDC.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, idempotent)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, container.Services.Payments, idempotent)
	adminHandlers := handlers.NewAdminHandlers(authenticator, container.Services.Orders, container.Services.Payments)
	internalHandlers := handlers.NewInternalNotificationHandlers(container.Services.Notifications, jobs.DecodePushEnvelope)

	healthOpts = append(healthOpts,
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessCheck("firestore", firestoreProvider.Ping),
	)
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := traceProjectID(cfg)
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware,
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalMiddlewares(pushVerifier.Require()),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if recorder != nil {
		opts = append(opts, handlers.WithMetricsHandler(cfg.Metrics.Path, recorder.Handler()))
	}
	router := handlers.NewRouter(opts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	background, stopBackground := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(background)
	group.Go(func() error {
		return container.RunWorkers(groupCtx)
	})
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		runIdempotencyCleanup(groupCtx, idempotencyStore, cfg.Idempotency, logger.Named("idempotency"))
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("freshy api listening", zap.String("queue", cfg.Notifications.Queue))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Requests are drained, so no new jobs arrive. Close lets the workers flush the buffer.
	if pubsubQueue != nil {
		pubsubQueue.Close()
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
	drained := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("notification workers did not drain before shutdown deadline")
	}
	stopBackground()
	cleanupWG.Wait()

	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	if redisClose != nil {
		if err := redisClose(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}
}

func buildPaymentGateway(cfg config.PaymentsConfig, logger *zap.Logger) (*payments.Manager, error) {
	eventLogger := observability.EventLogger(logger)
	providers := make(map[string]payments.Provider, 2)

	if strings.TrimSpace(cfg.PaystackSecretKey) != "" {
		paystack, err := payments.NewPaystackProvider(payments.PaystackProviderConfig{
			SecretKey:  cfg.PaystackSecretKey,
			PublicKey:  cfg.PaystackPublicKey,
			BaseURL:    cfg.PaystackBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.GatewayTimeout},
			Logger:     eventLogger,
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderPaystack] = paystack
	}
	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: eventLogger,
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderStripe] = stripe
	}
	if len(providers) == 0 {
		return nil, errors.New("no payment provider configured; set API_PAYMENTS_PAYSTACK_SECRET_KEY or API_PAYMENTS_STRIPE_API_KEY")
	}

	opts := []payments.ManagerOption{payments.WithCallTimeout(cfg.GatewayTimeout)}
	if _, ok := providers[cfg.DefaultProvider]; ok {
		opts = append(opts, payments.WithDefaultProvider(cfg.DefaultProvider))
	}
	return payments.NewManager(providers, opts...)
}

func runIdempotencyCleanup(ctx context.Context, store idempotency.Store, cfg config.IdempotencyConfig, logger *zap.Logger) {
	if cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallback := lookup("API_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}
	environment := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))

	return secrets.NewFetcher(ctx, secrets.Config{
		ProjectID:     project,
		FallbackPath:  fallback,
		AllowFallback: environment == "" || environment == "local" || environment == "dev",
		Logger:        logger.Named("secrets"),
	})
}

// requiredSecretNames lists the secrets that must resolve for the configured providers.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PAYMENTS_PAYSTACK_SECRET_KEY"]) != "" {
		required = append(required, "Payments.PaystackSecretKey")
	}
	if strings.TrimSpace(env["API_PAYMENTS_STRIPE_API_KEY"]) != "" {
		required = append(required, "Payments.StripeAPIKey")
	}
	return required
}
