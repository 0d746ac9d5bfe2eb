// Package cookies reads and writes the exported claude.ai session cookies
// used as credential material.
package cookies

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Domain is the cookie scope used for every parsed cookie.
	Domain = "claude.ai"
	// Path is the cookie path used for every parsed cookie.
	Path = "/"

	orgCookie = "lastActiveOrg"
	separator = "; "
)

// ErrNoCredentials is returned when the credential file is missing or holds
// no usable cookie.
var ErrNoCredentials = errors.New("no credentials configured")

// Cookie is a single name/value pair scoped to Domain.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Parse splits a Cookie header line into cookies. Empty segments, segments
// without "=" and segments with an empty name are skipped.
func Parse(line string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(line, separator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx == -1 {
			continue
		}
		name := strings.TrimSpace(part[:idx])
		if name == "" {
			continue
		}
		out = append(out, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(part[idx+1:]),
			Domain: Domain,
			Path:   Path,
		})
	}
	return out
}

// Format joins cookies back into a Cookie header line.
func Format(cookies []Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, separator)
}

// OrgID returns the organization id carried by the lastActiveOrg cookie.
func OrgID(cookies []Cookie) string {
	for _, c := range cookies {
		if c.Name == orgCookie {
			return c.Value
		}
	}
	return ""
}

// ReadFile loads the credential file at path. A missing file, an empty file
// or a line without any valid cookie yields ErrNoCredentials.
func ReadFile(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoCredentials, path)
		}
		return nil, fmt.Errorf("failed to read cookie file %s: %w", path, err)
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoCredentials, path)
	}
	parsed := Parse(line)
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: %s has no valid cookie", ErrNoCredentials, path)
	}
	return parsed, nil
}

// WriteFile stores cookies at path as a single header line, readable only by
// the current user.
func WriteFile(path string, cookies []Cookie) error {
	if len(cookies) == 0 {
		return errors.New("no cookies to save")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(Format(cookies)+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a credential file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
