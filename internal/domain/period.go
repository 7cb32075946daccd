package domain

import "time"

// PeriodKey вычисляет ключ дедупликации для категории.
// Для daily-digest это календарный день UTC, для weekly-digest — понедельник
// недели ISO, для goal-checkin и session-prep — идентификатор связанного
// объекта. Пара (recipient, category, period) с этим ключом закрыта уникальным
// индексом в журнале, что делает повторные тики безопасными.
func (c NudgeCategory) PeriodKey(now time.Time, referenceID string) string {
	switch c {
	case CategoryDailyDigest:
		return now.UTC().Format("2006-01-02")
	case CategoryWeeklyDigest:
		return WeekStart(now).Format("2006-01-02")
	default:
		return referenceID
	}
}

// WeekStart возвращает понедельник недели, в которую попадает момент t (UTC).
func WeekStart(t time.Time) time.Time {
	u := t.UTC()
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -(weekday - 1))
}
