package nudge

import (
	"testing"
	"time"

	"coach-nudge-bot/internal/domain"
)

func windowPref(preferred, timezone string) domain.RecipientPreference {
	return domain.RecipientPreference{
		RecipientID:   "user@example.com",
		Enabled:       true,
		Frequency:     domain.FrequencyDaily,
		PreferredTime: preferred,
		Timezone:      timezone,
	}
}

func TestWithinPreferredWindow(t *testing.T) {
	// Лето, Нью-Йорк живёт в UTC-4.
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"за полчаса до окна", time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC), true}, // 08:30 местного
		{"сразу после окна", time.Date(2026, 8, 31, 13, 30, 0, 0, time.UTC), true},   // 09:30 местного
		{"ровно в окне", time.Date(2026, 8, 31, 13, 0, 0, 0, time.UTC), true},        // 09:00 местного
		{"через два часа", time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC), false},    // 11:30 местного
		{"глубокой ночью", time.Date(2026, 8, 31, 5, 0, 0, 0, time.UTC), false},      // 01:00 местного
	}
	pref := windowPref("09:00", "America/New_York")
	for _, tc := range cases {
		got, err := withinPreferredWindow(pref, tc.now, 1)
		if err != nil {
			t.Fatalf("%s: не ожидали ошибку: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: ожидали %v, получили %v", tc.name, tc.want, got)
		}
	}
}

func TestWithinPreferredWindowWrapsMidnight(t *testing.T) {
	// 23:00 и 00:00 — соседние часы, окно не рвётся на границе суток.
	pref := windowPref("23:30", "UTC")
	got, err := withinPreferredWindow(pref, time.Date(2026, 8, 31, 0, 15, 0, 0, time.UTC), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !got {
		t.Fatalf("полночь должна попадать в окно 23:30 с допуском в час")
	}
}

func TestWithinPreferredWindowBrokenSettings(t *testing.T) {
	if _, err := withinPreferredWindow(windowPref("девять утра", "UTC"), time.Now(), 1); err == nil {
		t.Fatalf("ожидали ошибку разбора времени")
	}
	if _, err := withinPreferredWindow(windowPref("09:00", "Mars/Olympus"), time.Now(), 1); err == nil {
		t.Fatalf("ожидали ошибку часового пояса")
	}
}
