package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the .env path. An empty path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment. Tests use it for hermetic loads.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver resolves secret:// references found in secret fields.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets names secret fields (e.g. "Payments.PaystackSecretKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged key/value view Load reads from, so main can
// build the secret fetcher before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	env, err := newLoaderOptions(opts).source()
	if err != nil {
		return nil, err
	}
	return env, nil
}

// envSource is the merged environment with typed accessors. Unparseable values fall back to the default.
type envSource map[string]string

func (o loaderOptions) source() (envSource, error) {
	env := make(envSource)
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	for k, v := range dotenv {
		env[k] = v
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				env[strings.TrimSpace(key)] = value
			}
		}
	}
	for k, v := range o.envMap {
		env[k] = v
	}
	return env, nil
}

func (e envSource) str(key, fallback string) string {
	if v := strings.TrimSpace(e[key]); v != "" {
		return v
	}
	return fallback
}

func (e envSource) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(e[key])); err == nil {
		return d
	}
	return fallback
}

func (e envSource) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(e[key])); err == nil {
		return n
	}
	return fallback
}

func (e envSource) boolean(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(e[key])) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

func (e envSource) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e[key], ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// feeTable parses "accra=500,kumasi=700" into a lower-cased city fee map. Malformed or negative entries are skipped.
func (e envSource) feeTable(key string) map[string]int64 {
	fees := make(map[string]int64)
	for _, entry := range e.list(key) {
		city, raw, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		city = strings.ToLower(strings.TrimSpace(city))
		fee, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if city == "" || err != nil || fee < 0 {
			continue
		}
		fees[city] = fee
	}
	return fees
}

// readDotEnv parses KEY=value lines, allowing comments, blank lines, an export prefix and quoted values.
// A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}
