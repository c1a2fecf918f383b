package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewManager("redis://"+mr.Addr(), 60)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestCheckRateAllowsUpToLimit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := m.CheckRate(ctx, "u1", 3)
		if err != nil {
			t.Fatalf("CheckRate %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d denied under limit", i)
		}
	}

	allowed, resetSec, err := m.CheckRate(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("CheckRate over limit: %v", err)
	}
	if allowed {
		t.Error("request over limit allowed")
	}
	if resetSec < 1 || resetSec > 60 {
		t.Errorf("resetSec = %d", resetSec)
	}
}

func TestCheckRateIsolatesUsers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if allowed, _, _ := m.CheckRate(ctx, "u1", 1); !allowed {
		t.Fatal("first u1 request denied")
	}
	if allowed, _, _ := m.CheckRate(ctx, "u1", 1); allowed {
		t.Fatal("second u1 request allowed")
	}
	if allowed, _, err := m.CheckRate(ctx, "u2", 1); err != nil || !allowed {
		t.Fatalf("u2 throttled by u1's bucket: allowed=%v err=%v", allowed, err)
	}
}

func TestNewManagerRejectsBadURL(t *testing.T) {
	if _, err := NewManager("not-a-url", 60); err == nil {
		t.Error("bad url accepted")
	}
}
