package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SecretResolver resolves secret://name[#version] references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists fields that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns the offending field names in declaration order.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError reports a reference that could not be resolved.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve secret %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secret fields that resolved to nothing.
// Error reports redacted names only.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("config: missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the missing field names, sorted.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns short hashes of the missing field names, sorted.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// resolveSecret returns plain values unchanged and resolves secret:// or sm:// references.
func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	ref := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(ref, "sm://"):
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	case strings.HasPrefix(ref, "secret://"):
	default:
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]bool, len(required))
	var missing []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}
