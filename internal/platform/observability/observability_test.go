package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx"
)

func TestEventLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "order.status.changed", map[string]any{"orderId": "o1"})
	log(context.Background(), "order.stock.decrement_failed", map[string]any{"orderId": "o1", "error": "boom"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["event"] != "order.status.changed" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	EventLogger(zap.New(fallbackCore))(ctx, "payment.recorded", nil)

	if requestLogs.Len() != 1 || fallbackLogs.Len() != 0 {
		t.Fatalf("expected request logger used, got request=%d fallback=%d", requestLogs.Len(), fallbackLogs.Len())
	}
}

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" || sc.SpanID().String() != "0000000000000001" || !sc.IsSampled() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	for _, header := range []string{"", "nope", "zz/1", "105445aa7843bc8bf206b12000100000/"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRequestLoggerMiddlewareReportsUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestctx.MetaFrom(r.Context()).SetUserID("user-1")
		w.WriteHeader(http.StatusCreated)
	})
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(inner))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "user-1" || fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("unexpected fields %v", fields)
	}
}
