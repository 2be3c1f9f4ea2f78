package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

// CacheEntry records previously resolved downloadable content for a source
// URL fingerprint. Entries past their expiry are treated as absent.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Platform    string    `json:"platform"`
	MediaRef    string    `json:"media_ref"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Live reports whether the entry is still usable at the given instant.
func (e *CacheEntry) Live(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// Fingerprint derives a deterministic cache key from a source URL. The URL
// is normalized first (lowercased scheme/host, default port and fragment
// stripped, query parameters sorted, trailing slash removed) so that
// trivially different spellings of the same address share an entry.
func Fingerprint(raw string) string {
	return hashKey(NormalizeURL(raw))
}

// NormalizeURL canonicalizes a source URL for fingerprinting. Unparseable
// input is fingerprinted verbatim rather than rejected; the cache is an
// optimization, not a validator.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	if q := u.Query(); len(q) > 0 {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			vs := q[k]
			sort.Strings(vs)
			for _, v := range vs {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	return u.String()
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
