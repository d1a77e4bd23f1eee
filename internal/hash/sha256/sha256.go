// Package sha256 derives stable object keys from profile URLs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Key returns the hex SHA-256 digest of the canonical form of rawURL, so
// spellings of the same profile URL share one key.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(Canonical(rawURL)))
	return hex.EncodeToString(sum[:])
}

// Canonical lower-cases scheme and host, drops the fragment and default
// ports, and trims a trailing slash from non-root paths. Input that does not
// parse as an absolute URL is returned trimmed but otherwise untouched.
func Canonical(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	switch port := u.Port(); {
	case port == "",
		u.Scheme == "http" && port == "80",
		u.Scheme == "https" && port == "443":
		u.Host = host
	default:
		u.Host = host + ":" + port
	}
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}
	return u.String()
}
