package slack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coach-nudge-bot/internal/domain"
)

type stubReconciler struct {
	got domain.Interaction
	err error
}

func (s *stubReconciler) Handle(_ context.Context, in domain.Interaction) error {
	s.got = in
	return s.err
}

func interactionBody() string {
	payload := `{"type":"block_actions","team":{"id":"T1"},"user":{"id":"U1","username":"ivan"},` +
		`"channel":{"id":"C1"},"message":{"ts":"123.456"},` +
		`"actions":[{"action_id":"complete_task","value":"7"}]}`
	return "payload=" + url.QueryEscape(payload)
}

func signedRequest(t *testing.T, secret, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader(body))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", signBody(secret, ts, []byte(body)))
	return req
}

func TestInteractionHandlerParsesCallback(t *testing.T) {
	rec := &stubReconciler{}
	h := NewInteractionHandler(NewVerifier("secret"), rec, zerolog.Nop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, "secret", interactionBody()))

	if w.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", w.Code)
	}
	if rec.got.TeamID != "T1" || rec.got.ChannelID != "C1" || rec.got.MessageTS != "123.456" {
		t.Fatalf("callback разобран неверно: %+v", rec.got)
	}
	if rec.got.ActionID != "complete_task" || rec.got.Value != "7" {
		t.Fatalf("action разобран неверно: %+v", rec.got)
	}
}

func TestInteractionHandlerRejectsBadSignature(t *testing.T) {
	rec := &stubReconciler{}
	h := NewInteractionHandler(NewVerifier("secret"), rec, zerolog.Nop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, "другой-секрет", interactionBody()))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", w.Code)
	}
	if rec.got.TeamID != "" {
		t.Fatalf("payload не должен обрабатываться при плохой подписи")
	}
}

func TestInteractionHandlerRejectsNonPost(t *testing.T) {
	h := NewInteractionHandler(NewVerifier("secret"), &stubReconciler{}, zerolog.Nop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slack/interactions", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("ожидали 405, получили %d", w.Code)
	}
}

func TestInteractionHandlerAcksInternalFailure(t *testing.T) {
	rec := &stubReconciler{err: errors.New("внутренняя ошибка")}
	h := NewInteractionHandler(NewVerifier("secret"), rec, zerolog.Nop())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, "secret", interactionBody()))

	// Платформа ретраит любые не-200, поэтому внутренние ошибки гасим.
	if w.Code != http.StatusOK {
		t.Fatalf("ожидали 200 при внутренней ошибке, получили %d", w.Code)
	}
}
