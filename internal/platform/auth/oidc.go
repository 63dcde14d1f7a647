package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
)

// GoogleJWKSURL publishes the keys Google uses to sign Pub/Sub push tokens.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

const defaultJWKSTTL = time.Hour

var (
	// ErrJWKSKeyNotFound is returned when the token's key id is absent from the key set.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing keys.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

// JWKSCache fetches signing keys on demand and keeps them until the response's max-age lapses.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// NewJWKSCache constructs a cache for url. A nil client uses a 10s timeout client.
func NewJWKSCache(url string, client *http.Client, now func() time.Time) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &JWKSCache{url: url, client: client, now: now}
}

// Key resolves the public key for kid, refetching once when the key is unknown or stale.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[kid]; ok && c.now().Before(c.expiry) {
		return key.Key, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.keys[kid]; ok {
		return key.Key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	c.keys = keys
	c.expiry = c.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func maxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultJWKSTTL
}

// PushVerifier authenticates Pub/Sub push deliveries carrying a Google-signed OIDC token.
type PushVerifier struct {
	keys                *JWKSCache
	audience            string
	issuers             []string
	serviceAccountEmail string
	logger              func(ctx context.Context, event string, fields map[string]any)
}

// PushVerifierConfig lists the claims a push token must carry.
type PushVerifierConfig struct {
	Audience            string
	Issuers             []string
	ServiceAccountEmail string
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

// NewPushVerifier constructs a PushVerifier backed by keys.
func NewPushVerifier(keys *JWKSCache, cfg PushVerifierConfig) *PushVerifier {
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	issuers := cfg.Issuers
	if len(issuers) == 0 {
		issuers = []string{"https://accounts.google.com", "accounts.google.com"}
	}
	return &PushVerifier{
		keys:                keys,
		audience:            strings.TrimSpace(cfg.Audience),
		issuers:             issuers,
		serviceAccountEmail: strings.TrimSpace(cfg.ServiceAccountEmail),
		logger:              logger,
	}
}

// Require rejects requests without a valid push token.
func (v *PushVerifier) Require() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if v == nil || v.keys == nil || v.audience == "" {
				httpx.WriteError(ctx, w, httpx.NewError("verification_unavailable", "push verification not configured", http.StatusServiceUnavailable))
				return
			}
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "push token missing", http.StatusUnauthorized))
				return
			}

			if reason, err := v.verify(ctx, tokenStr); err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, ErrJWKSFetchFailed) {
					status = http.StatusServiceUnavailable
				}
				v.logger(ctx, "auth.push.rejected", map[string]any{"reason": reason, "error": err.Error()})
				httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "push token verification failed", status))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (v *PushVerifier) verify(ctx context.Context, tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return "token_invalid", err
	}
	if !claims.VerifyAudience(v.audience, true) {
		return "audience_mismatch", errors.New("auth: audience mismatch")
	}
	issuer, _ := claims["iss"].(string)
	if !containsString(v.issuers, issuer) {
		return "issuer_mismatch", fmt.Errorf("auth: unexpected issuer %q", issuer)
	}
	if v.serviceAccountEmail != "" {
		email, _ := claims["email"].(string)
		verified, _ := claims["email_verified"].(bool)
		if email != v.serviceAccountEmail || !verified {
			return "email_mismatch", fmt.Errorf("auth: unexpected service account %q", email)
		}
	}
	return "", nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
