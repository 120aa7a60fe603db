package member

import (
	"log/slog"
	"os"
	"regexp"
)

// lookupPattern matches `${name}` and `${name:fallback}`. The name ends at
// the first colon; the fallback runs to the closing brace and may itself
// contain colons and braces.
var lookupPattern = regexp.MustCompile(`(?s)^\$\{([^:}]+)(?::(.*))?\}$`)

// Resolver resolves secret lookup keys to their values.
type Resolver interface {
	// Resolve returns the secret for key, or ok=false when none exists.
	Resolve(key string) (value string, ok bool, err error)
}

// LookupKey extracts the lookup key from a `${name}` or `${name:fallback}`
// string.
func LookupKey(value string) (string, bool) {
	m := lookupPattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FallbackValue extracts the fallback from a `${name:fallback}` string.
// An empty fallback (`${name:}`) is present and empty.
func FallbackValue(value string) (string, bool) {
	m := lookupPattern.FindStringSubmatchIndex(value)
	if m == nil || m[4] < 0 {
		return "", false
	}
	return value[m[4]:m[5]], true
}

// IsResolvableSecret reports whether value is a secret lookup.
func IsResolvableSecret(value string) bool {
	return lookupPattern.MatchString(value)
}

// ResolveOrFallback returns value unchanged when it is not a secret
// lookup. Otherwise it resolves the key, falling back to the lookup's
// fallback when the resolver is nil, has no secret, or fails. Resolver
// failures are logged and never returned. ok is false when neither a
// secret nor a fallback exists.
func ResolveOrFallback(r Resolver, value string, logger *slog.Logger) (string, bool) {
	key, isLookup := LookupKey(value)
	if !isLookup {
		return value, true
	}
	if logger == nil {
		logger = slog.Default()
	}
	if r != nil {
		secret, ok, err := r.Resolve(key)
		switch {
		case err != nil:
			logger.Warn("secret resolution failed, using fallback", "key", key, "error", err)
		case ok:
			return secret, true
		}
	}
	fb, ok := FallbackValue(value)
	if !ok {
		logger.Debug("no secret or fallback defined", "key", key)
	}
	return fb, ok
}

// EnvResolver resolves secrets from environment variables, optionally
// prefixed.
type EnvResolver struct {
	Prefix string
}

// Resolve implements Resolver.
func (e EnvResolver) Resolve(key string) (string, bool, error) {
	v, ok := os.LookupEnv(e.Prefix + key)
	return v, ok, nil
}

// MapResolver resolves secrets from a fixed map.
type MapResolver map[string]string

// Resolve implements Resolver.
func (m MapResolver) Resolve(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
