package models

import (
	"testing"
	"time"
)

func TestNormalizeTimestamp_ISO(t *testing.T) {
	got := NormalizeTimestamp("2025-01-31T12:00:00Z")
	if got != "2025-01-31T12:00:00Z" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestNormalizeTimestamp_ISOWithOffset(t *testing.T) {
	got := NormalizeTimestamp("2025-01-31T14:00:00+02:00")
	if got != "2025-01-31T12:00:00Z" {
		t.Errorf("expected UTC normalization, got %q", got)
	}
}

func TestNormalizeTimestamp_EpochSeconds(t *testing.T) {
	want := FormatISO(time.Unix(1738324800, 0))
	if got := NormalizeTimestamp(float64(1738324800)); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeTimestamp_EpochMillis(t *testing.T) {
	want := FormatISO(time.UnixMilli(1738324800000))
	if got := NormalizeTimestamp(float64(1738324800000)); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeTimestamp_NumericString(t *testing.T) {
	want := FormatISO(time.Unix(1738324800, 0))
	if got := NormalizeTimestamp("1738324800"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeTimestamp_Unparseable(t *testing.T) {
	cases := []any{"not-a-time", "", nil, float64(0), -5}
	for _, c := range cases {
		if got := NormalizeTimestamp(c); got != "" {
			t.Errorf("NormalizeTimestamp(%v): expected absent, got %q", c, got)
		}
	}
}

func TestParseISO_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	s := FormatISO(now)
	parsed, ok := ParseISO(s)
	if !ok {
		t.Fatalf("ParseISO(%q) failed", s)
	}
	if !parsed.Equal(now) {
		t.Errorf("round trip mismatch: %v != %v", parsed, now)
	}
}

func TestWalletRemaining_NeverNegative(t *testing.T) {
	w := &Wallet{QuotaTotal: 5, QuotaUsed: 9}
	if got := w.Remaining(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	w = &Wallet{QuotaTotal: 10, QuotaUsed: 4}
	if got := w.Remaining(); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}
