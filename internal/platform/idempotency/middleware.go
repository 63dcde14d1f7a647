package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/httpx"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

// Config tunes the middleware. Zero values fall back to defaults.
type Config struct {
	Header string
	TTL    time.Duration
	Clock  func() time.Time
}

// Middleware makes the wrapped route safe to retry. Requests must carry the key header; a repeat
// with the same key and body replays the first response. Server errors are not stored so the
// client can retry after a gateway outage.
func Middleware(store Store, cfg Config) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	header := strings.TrimSpace(cfg.Header)
	if header == "" {
		header = defaultHeaderName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx)

			key := strings.TrimSpace(r.Header.Get(header))
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+header+" header", http.StatusBadRequest))
				return
			}
			if len(key) > 255 {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", "idempotency key too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			requester := requesterID(r)
			scoped := requester + "|" + key
			fingerprint := sha256Hex([]byte(r.Method + "|" + r.URL.Path + "|" + sha256Hex(body)))

			reservation, err := store.Reserve(ctx, scoped, fingerprint, clock().UTC(), ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
					return
				}
				logger.Error("idempotency reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.statusCode() >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
			} else {
				resp := Response{Status: rec.statusCode(), Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.SaveResponse(ctx, scoped, fingerprint, resp, clock().UTC(), ttl); err != nil {
					logger.Warn("idempotency save failed", zap.Error(err))
					_ = store.Release(ctx, scoped)
				}
			}
			rec.flush(w)
		})
	}
}

func requesterID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UserID != "" {
		return identity.UserID
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeaders {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.statusCode())
	_, _ = w.Write(r.body.Bytes())
}
