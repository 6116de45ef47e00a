// Package safe holds the input guards used at deckcap's edges: artifact
// filenames written to disk, URLs taken from configuration, and run IDs
// taken from request paths.
package safe

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxErrorBody caps how much of a failed upstream response is kept for logs.
const MaxErrorBody int64 = 1 << 10

var (
	// ErrPathTraversal is returned when a name would escape its directory.
	ErrPathTraversal = errors.New("safe: path escapes base directory")
	// ErrUnsafeScheme is returned for URLs that are not http or https.
	ErrUnsafeScheme = errors.New("safe: only http and https URLs are allowed")
)

// Join returns base/name when name is a plain file name that stays inside
// base.
func Join(base, name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	cleanBase := filepath.Clean(base)
	joined := filepath.Join(cleanBase, name)
	if filepath.Dir(joined) != cleanBase {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return joined, nil
}

// HTTPURL checks that raw is an absolute http(s) URL with a host. Private
// addresses are allowed: decks and webhooks commonly live on localhost.
func HTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("safe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrUnsafeScheme, raw)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("safe: URL %q has no host", raw)
	}
	return nil
}

// Identifier rejects IDs with characters outside [A-Za-z0-9_.-].
func Identifier(s string) error {
	if s == "" {
		return errors.New("safe: empty identifier")
	}
	if len(s) > 128 {
		return errors.New("safe: identifier too long (max 128)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("safe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// Snippet reads at most MaxErrorBody bytes of r as trimmed text.
func Snippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, MaxErrorBody))
	return strings.TrimSpace(string(data))
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
