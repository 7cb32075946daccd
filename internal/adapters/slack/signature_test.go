package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"testing"
	"time"
)

func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	v := NewVerifier("secret")
	v.now = func() time.Time { return now }

	body := []byte("payload=%7B%7D")
	ts := strconv.FormatInt(now.Unix(), 10)

	if err := v.Verify(ts, signBody("secret", ts, body), body); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	v := NewVerifier("secret")
	body := []byte("payload=%7B%7D")
	ts := strconv.FormatInt(now.Unix(), 10)

	err := v.Verify(ts, signBody("другой", ts, body), body)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("ожидали ErrBadSignature, получили %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Now()
	v := NewVerifier("secret")
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := signBody("secret", ts, []byte("оригинал"))

	if err := v.Verify(ts, sig, []byte("подмена")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("ожидали ErrBadSignature, получили %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	v := NewVerifier("secret")
	v.now = func() time.Time { return now }

	old := now.Add(-10 * time.Minute)
	ts := strconv.FormatInt(old.Unix(), 10)
	body := []byte("payload=%7B%7D")

	if err := v.Verify(ts, signBody("secret", ts, body), body); !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("ожидали ErrStaleTimestamp, получили %v", err)
	}
}

func TestVerifyRejectsGarbageTimestamp(t *testing.T) {
	v := NewVerifier("secret")
	if err := v.Verify("не число", "v0=00", nil); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("ожидали ErrBadSignature, получили %v", err)
	}
}
