package config

import (
	"context"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultPaymentProvider      = "paystack"
	defaultPaymentCurrency      = "GHS"
	defaultGatewayTimeout       = 15 * time.Second
	defaultPaystackBaseURL      = "https://api.paystack.co"
	defaultNotificationBuffer   = 256
	defaultNotificationWorkers  = 4
	defaultNotificationTopic    = "order-notifications"
	defaultRealtimePrefix       = "notifications:user:"
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultMetricsPath          = "/metrics"
)

// Notification queue backends.
const (
	NotificationQueueMemory = "memory"
	NotificationQueuePubSub = "pubsub"
)

var defaultOIDCIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Payments      PaymentsConfig
	Notifications NotificationsConfig
	Delivery      DeliveryConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
	Metrics       MetricsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PaymentsConfig holds gateway credentials and verification policy.
type PaymentsConfig struct {
	DefaultProvider   string
	Currency          string
	GatewayTimeout    time.Duration
	PaystackSecretKey string
	PaystackPublicKey string
	PaystackBaseURL   string
	StripeAPIKey      string
	// StrictAmountCheck rejects verifications whose claimed amount differs from the gateway amount.
	StrictAmountCheck bool
}

// NotificationsConfig selects the notification queue and its delivery transports.
type NotificationsConfig struct {
	Queue                 string
	BufferSize            int
	Workers               int
	PubSubTopic           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RealtimeChannelPrefix string
	PushEnabled           bool
}

// DeliveryConfig overrides the delivery fee table. Amounts are minor units.
type DeliveryConfig struct {
	CityFees            map[string]int64
	DefaultFee          int64
	FreeAbove           int64
	SmallOrderBelow     int64
	SmallOrderSurcharge int64
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls verification of Google-signed tokens on the Pub/Sub push endpoint.
type OIDCConfig struct {
	JWKSURL             string
	Audience            string
	Issuers             []string
	ServiceAccountEmail string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// MetricsConfig toggles the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load builds the Config from, in increasing precedence, the .env file, the process
// environment and WithEnvMap values. Secret fields holding secret:// (or legacy sm://)
// references are resolved through the configured SecretResolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	env, err := options.source()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Payments: PaymentsConfig{
			DefaultProvider:   strings.ToLower(env.str("API_PAYMENTS_DEFAULT_PROVIDER", defaultPaymentProvider)),
			Currency:          strings.ToUpper(env.str("API_PAYMENTS_CURRENCY", defaultPaymentCurrency)),
			GatewayTimeout:    env.duration("API_PAYMENTS_GATEWAY_TIMEOUT", defaultGatewayTimeout),
			PaystackSecretKey: env.str("API_PAYMENTS_PAYSTACK_SECRET_KEY", ""),
			PaystackPublicKey: env.str("API_PAYMENTS_PAYSTACK_PUBLIC_KEY", ""),
			PaystackBaseURL:   env.str("API_PAYMENTS_PAYSTACK_BASE_URL", defaultPaystackBaseURL),
			StripeAPIKey:      env.str("API_PAYMENTS_STRIPE_API_KEY", ""),
			StrictAmountCheck: env.boolean("API_PAYMENTS_STRICT_AMOUNT_CHECK", true),
		},
		Notifications: NotificationsConfig{
			Queue:                 strings.ToLower(env.str("API_NOTIFICATIONS_QUEUE", NotificationQueueMemory)),
			BufferSize:            env.integer("API_NOTIFICATIONS_BUFFER", defaultNotificationBuffer),
			Workers:               env.integer("API_NOTIFICATIONS_WORKERS", defaultNotificationWorkers),
			PubSubTopic:           env.str("API_NOTIFICATIONS_PUBSUB_TOPIC", defaultNotificationTopic),
			RedisAddr:             env.str("API_NOTIFICATIONS_REDIS_ADDR", ""),
			RedisPassword:         env.str("API_NOTIFICATIONS_REDIS_PASSWORD", ""),
			RedisDB:               env.integer("API_NOTIFICATIONS_REDIS_DB", 0),
			RealtimeChannelPrefix: env.str("API_NOTIFICATIONS_REALTIME_PREFIX", defaultRealtimePrefix),
			PushEnabled:           env.boolean("API_NOTIFICATIONS_PUSH_ENABLED", true),
		},
		Delivery: DeliveryConfig{
			CityFees:            env.feeTable("API_DELIVERY_CITY_FEES"),
			DefaultFee:          int64(env.integer("API_DELIVERY_DEFAULT_FEE", 0)),
			FreeAbove:           int64(env.integer("API_DELIVERY_FREE_ABOVE", 0)),
			SmallOrderBelow:     int64(env.integer("API_DELIVERY_SMALL_ORDER_BELOW", 0)),
			SmallOrderSurcharge: int64(env.integer("API_DELIVERY_SMALL_ORDER_SURCHARGE", 0)),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:             env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:            env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:             env.list("API_SECURITY_OIDC_ISSUERS"),
				ServiceAccountEmail: env.str("API_SECURITY_OIDC_SERVICE_ACCOUNT", ""),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Metrics: MetricsConfig{
			Enabled: env.boolean("API_METRICS_ENABLED", true),
			Path:    env.str("API_METRICS_PATH", defaultMetricsPath),
		},
	}
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = append([]string(nil), defaultOIDCIssuers...)
	}

	resolved := make(map[string]string, 3)
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"Payments.PaystackSecretKey", &cfg.Payments.PaystackSecretKey},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Notifications.RedisPassword", &cfg.Notifications.RedisPassword},
	} {
		value, err := resolveSecret(ctx, *field.value, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field.value = value
		resolved[field.name] = strings.TrimSpace(value)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(cfg.Payments.GatewayTimeout > 0, "Payments.GatewayTimeout")
	check(strings.TrimSpace(cfg.Payments.Currency) != "", "Payments.Currency")
	switch cfg.Notifications.Queue {
	case NotificationQueueMemory:
	case NotificationQueuePubSub:
		check(strings.TrimSpace(cfg.Notifications.PubSubTopic) != "", "Notifications.PubSubTopic")
	default:
		check(false, "Notifications.Queue")
	}
	check(cfg.Notifications.BufferSize > 0, "Notifications.BufferSize")
	check(cfg.Notifications.Workers > 0, "Notifications.Workers")
	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
