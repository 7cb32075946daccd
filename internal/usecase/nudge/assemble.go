package nudge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"coach-nudge-bot/internal/domain"
)

// digestContent — собранные факты для дайджеста задач.
type digestContent struct {
	vars  map[string]string
	tasks []domain.Task
	open  int
	done  int
}

// assembleDigest собирает открытые задачи получателя. Пустой список задач —
// легальный исход: дайджест в этом случае не отправляется вовсе.
func (s *Service) assembleDigest(ctx context.Context, recipientID string) (digestContent, bool, error) {
	tasks, err := s.tasks.ListOpenTasks(ctx, recipientID, s.cfg.MaxDigestTasks)
	if err != nil {
		return digestContent{}, false, fmt.Errorf("открытые задачи: %w", err)
	}
	if len(tasks) == 0 {
		return digestContent{}, false, nil
	}
	open, done, err := s.tasks.CountTasks(ctx, recipientID)
	if err != nil {
		return digestContent{}, false, fmt.Errorf("счётчики задач: %w", err)
	}
	return digestContent{
		vars: map[string]string{
			"task_count": strconv.Itoa(open),
		},
		tasks: tasks,
		open:  open,
		done:  done,
	}, true, nil
}

// GoalCheckinVars собирает переменные для goal-checkin: цель сессии и имя
// коуча. Пустая цель означает «не отправлять».
func GoalCheckinVars(session domain.Session) (map[string]string, bool) {
	if session.Goal == "" {
		return nil, false
	}
	return map[string]string{
		"coach_name": session.CoachName,
		"goal":       session.Goal,
	}, true
}

// SessionPrepVars собирает переменные для session-prep: имя коуча, локальное
// время сессии и ссылку на подготовку.
func SessionPrepVars(session domain.Session, timezone, linkBase string) map[string]string {
	sessionTime := session.ScheduledAt.UTC()
	if loc, err := time.LoadLocation(timezone); err == nil {
		sessionTime = session.ScheduledAt.In(loc)
	}
	id := strconv.FormatInt(session.ID, 10)
	return map[string]string{
		"coach_name":   session.CoachName,
		"session_id":   id,
		"session_time": sessionTime.Format("15:04"),
		"session_link": linkBase + "/sessions/" + id,
	}
}
