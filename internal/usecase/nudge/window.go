package nudge

import (
	"fmt"
	"time"

	"coach-nudge-bot/internal/domain"
)

// withinPreferredWindow решает, попадает ли текущий момент в окно доставки
// получателя. Тик планировщика часовой, поэтому окно берётся с допуском в
// tolerance часов вокруг предпочитаемого часа: каждый получатель гарантированно
// достижим в пределах одного тика от своего времени.
func withinPreferredWindow(pref domain.RecipientPreference, now time.Time, tolerance int) (bool, error) {
	preferred, err := time.Parse("15:04", pref.PreferredTime)
	if err != nil {
		return false, fmt.Errorf("разбор времени %q: %w", pref.PreferredTime, err)
	}
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		return false, fmt.Errorf("часовой пояс %q: %w", pref.Timezone, err)
	}

	localHour := now.In(loc).Hour()
	diff := localHour - preferred.Hour()
	if diff < 0 {
		diff = -diff
	}
	// Часы цикличны: 23:00 и 00:00 — соседи.
	if wrapped := 24 - diff; wrapped < diff {
		diff = wrapped
	}
	return diff <= tolerance, nil
}

// inWindow применяет гейт с политикой fail-open: битые настройки времени или
// пояса деградируют до «всегда достижим», а не «никогда не уведомлён».
func (s *Service) inWindow(category domain.NudgeCategory, pref domain.RecipientPreference, now time.Time) bool {
	ok, err := withinPreferredWindow(pref, now, s.cfg.WindowTolerance)
	if err != nil {
		s.log.Warn().Err(err).
			Str("recipient", pref.RecipientID).
			Str("category", string(category)).
			Msg("битые настройки окна, пропускаем гейт")
		return true
	}
	return ok
}
