package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits page_size.
	DefaultPageSize = 20
	// MaxPageSize caps the supported page_size to prevent unbounded queries.
	MaxPageSize = 100
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// NormalizePageSize clamps the requested size into (0, MaxPageSize].
func NormalizePageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

// EncodeToken serialises the provided cursor into a base64 URL-safe page token.
func EncodeToken[T any](cursor T) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a page token produced by EncodeToken. The boolean is false for an empty token.
func DecodeToken[T any](token string) (T, bool, error) {
	var cursor T
	token = strings.TrimSpace(token)
	if token == "" {
		return cursor, false, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor, false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return cursor, false, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, true, nil
}
