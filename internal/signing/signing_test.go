package signing

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	s := New("topsecret", "http://localhost:8080/artifacts", time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	signed, expiresAt := s.Sign("videos/org-1/job-1_LANDSCAPE.mp4", now)
	if want := now.Add(time.Hour); !expiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, want)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if !strings.HasPrefix(u.Path, "/artifacts/") {
		t.Errorf("path = %q", u.Path)
	}

	q := u.Query()
	if err := s.Verify("videos/org-1/job-1_LANDSCAPE.mp4", q.Get("exp"), q.Get("sig"), now); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := New("topsecret", "http://localhost:8080/artifacts", time.Hour)
	now := time.Now()

	signed, _ := s.Sign("videos/o/j.mp4", now)
	q := mustQuery(t, signed)

	if err := s.Verify("videos/o/j.mp4", q.Get("exp"), q.Get("sig"), now.Add(2*time.Hour)); err == nil {
		t.Error("expected expiry error")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := New("topsecret", "http://localhost:8080/artifacts", time.Hour)
	now := time.Now()

	signed, _ := s.Sign("videos/o/j.mp4", now)
	q := mustQuery(t, signed)

	t.Run("wrong key", func(t *testing.T) {
		if err := s.Verify("videos/o/other.mp4", q.Get("exp"), q.Get("sig"), now); err == nil {
			t.Error("expected signature mismatch")
		}
	})
	t.Run("wrong signature", func(t *testing.T) {
		if err := s.Verify("videos/o/j.mp4", q.Get("exp"), "deadbeef", now); err == nil {
			t.Error("expected signature mismatch")
		}
	})
	t.Run("other secret", func(t *testing.T) {
		other := New("different", "http://localhost:8080/artifacts", time.Hour)
		if err := other.Verify("videos/o/j.mp4", q.Get("exp"), q.Get("sig"), now); err == nil {
			t.Error("expected signature mismatch")
		}
	})
	t.Run("garbage expiry", func(t *testing.T) {
		if err := s.Verify("videos/o/j.mp4", "soon", q.Get("sig"), now); err == nil {
			t.Error("expected malformed expiry error")
		}
	})
}

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Query()
}
