package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx"
)

const (
	roleClaim            = "role"
	adminClaim           = "isAdmin"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer tokens into an Identity on the request context.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireCustomer admits any verified caller.
func (a *Authenticator) RequireCustomer() func(http.Handler) http.Handler {
	return a.require(nil)
}

// RequireAdmin admits callers holding one of AdminRoles.
func (a *Authenticator) RequireAdmin() func(http.Handler) http.Handler {
	return a.require(AdminRoles)
}

func (a *Authenticator) require(roles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
			if err != nil {
				code, message := "invalid_token", "id token verification failed"
				if firebaseauth.IsIDTokenExpired(err) {
					code, message = "token_expired", "id token expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusUnauthorized))
				return
			}

			identity := identityFromToken(token)
			if len(roles) > 0 && !hasAnyRole(identity, roles) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "administrator role required", http.StatusForbidden))
				return
			}

			requestctx.MetaFrom(ctx).SetUserID(identity.UserID)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UserID)))
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UserID: token.UID,
		Email:  claimString(token.Claims, "email"),
		Phone:  claimString(token.Claims, "phone_number"),
	}
	if role := normaliseRole(claimString(token.Claims, roleClaim)); role != "" {
		identity.Roles = append(identity.Roles, role)
	}
	if isAdmin, _ := token.Claims[adminClaim].(bool); isAdmin && !identity.IsAdmin() {
		identity.Roles = append(identity.Roles, RoleAdmin)
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{RoleCustomer}
	}
	return identity
}

func hasAnyRole(identity *Identity, roles []string) bool {
	for _, role := range roles {
		if identity.HasRole(role) {
			return true
		}
	}
	return false
}

func claimString(claims map[string]interface{}, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
