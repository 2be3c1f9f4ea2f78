package domain

import (
	"testing"
	"time"
)

func TestFingerprintNormalization(t *testing.T) {
	t.Parallel()

	// Trivially different spellings of the same address share a fingerprint.
	same := [][2]string{
		{"https://Example.COM/video", "https://example.com/video"},
		{"https://example.com/video/", "https://example.com/video"},
		{"https://example.com:443/video", "https://example.com/video"},
		{"http://example.com:80/video", "http://example.com/video"},
		{"https://example.com/video#t=30", "https://example.com/video"},
		{"https://example.com/v?b=2&a=1", "https://example.com/v?a=1&b=2"},
		{" https://example.com/video ", "https://example.com/video"},
	}
	for _, pair := range same {
		if Fingerprint(pair[0]) != Fingerprint(pair[1]) {
			t.Errorf("Expected %q and %q to share a fingerprint", pair[0], pair[1])
		}
	}

	// Genuinely different URLs do not collide.
	different := [][2]string{
		{"https://example.com/video", "https://example.com/other"},
		{"https://example.com/v?a=1", "https://example.com/v?a=2"},
		{"http://example.com/video", "https://example.com/video"},
	}
	for _, pair := range different {
		if Fingerprint(pair[0]) == Fingerprint(pair[1]) {
			t.Errorf("Expected %q and %q to have distinct fingerprints", pair[0], pair[1])
		}
	}
}

func TestFingerprintUnparseableInput(t *testing.T) {
	t.Parallel()

	// Garbage still fingerprints deterministically instead of erroring.
	if Fingerprint("::notaurl::") != Fingerprint("::notaurl::") {
		t.Error("Expected identical garbage to share a fingerprint")
	}
	if Fingerprint("") == Fingerprint("x") {
		t.Error("Expected distinct fingerprints for distinct garbage")
	}
}

func TestCacheEntryLive(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	live := CacheEntry{ExpiresAt: now.Add(time.Minute)}
	if !live.Live(now) {
		t.Error("Expected entry expiring in the future to be live")
	}

	dead := CacheEntry{ExpiresAt: now.Add(-time.Second)}
	if dead.Live(now) {
		t.Error("Expected expired entry to be dead")
	}

	boundary := CacheEntry{ExpiresAt: now}
	if boundary.Live(now) {
		t.Error("Expected entry expiring exactly now to be dead")
	}
}
