package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/auth"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodySize     = 64 * 1024
)

var errEmptyBody = errors.New("request body is empty")

// decodeJSONBody reads at most limit bytes and rejects unknown fields. An empty body is allowed when optional is set.
func decodeJSONBody(r *http.Request, limit int64, dst any, optional bool) error {
	if limit <= 0 {
		limit = maxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return fmt.Errorf("request body exceeds %d bytes", limit)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if optional {
			return nil
		}
		return errEmptyBody
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func requireIdentity(r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		return nil, false
	}
	return identity, true
}

func parsePagination(r *http.Request) (services.Pagination, error) {
	query := r.URL.Query()
	size := defaultPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return services.Pagination{}, errors.New("page_size must be an integer")
		}
		switch {
		case parsed <= 0:
			size = defaultPageSize
		case parsed > maxPageSize:
			size = maxPageSize
		default:
			size = parsed
		}
	}
	return services.Pagination{
		PageSize:  size,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}, nil
}

// parseFilterValues accepts repeated and comma separated values and removes duplicates.
func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, errors.New("must be an RFC3339 timestamp")
	}
	ts = ts.UTC()
	return &ts, nil
}

func parseBoolParam(value string) (*bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, errors.New("must be true or false")
	}
	return &parsed, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}
