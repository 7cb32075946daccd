package nudge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coach-nudge-bot/internal/domain"
	"coach-nudge-bot/internal/infra/metrics"
	"coach-nudge-bot/internal/usecase/workspace"
)

// Config настраивает один тик рассылки.
type Config struct {
	Workers         int
	MaxDigestTasks  int
	WindowTolerance int
	SessionLinkBase string
}

// Service реализует жизненный цикл напоминаний: отбор кандидатов, дедуп,
// окно доставки, сборку контента и отправку с записью в журнал.
type Service struct {
	prefs     domain.PreferenceRepo
	ledger    domain.LedgerRepo
	tasks     domain.TaskRepo
	sessions  domain.SessionRepo
	templates domain.TemplateRepo
	tokens    *workspace.Resolver
	messenger domain.Messenger
	log       zerolog.Logger
	cfg       Config
}

// NewService создаёт сервис рассылки.
func NewService(prefs domain.PreferenceRepo, ledger domain.LedgerRepo, tasks domain.TaskRepo, sessions domain.SessionRepo, templates domain.TemplateRepo, tokens *workspace.Resolver, messenger domain.Messenger, log zerolog.Logger, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxDigestTasks <= 0 {
		cfg.MaxDigestTasks = 5
	}
	if cfg.WindowTolerance <= 0 {
		cfg.WindowTolerance = 1
	}
	return &Service{
		prefs:     prefs,
		ledger:    ledger,
		tasks:     tasks,
		sessions:  sessions,
		templates: templates,
		tokens:    tokens,
		messenger: messenger,
		log:       log,
		cfg:       cfg,
	}
}

// RunReport — итог одного тика: счётчики по категориям и ошибки.
type RunReport struct {
	DailyDigestsSent  int   `json:"dailyDigestsSent"`
	WeeklyDigestsSent int   `json:"weeklyDigestsSent"`
	GoalCheckinsSent  int   `json:"goalCheckinsSent"`
	SessionPrepsSent  int   `json:"sessionPrepsSent"`
	Errors            int   `json:"errors"`
	DurationMS        int64 `json:"durationMs"`
}

// Run обрабатывает все категории за один тик. Ошибки отдельных получателей
// копятся в report.Errors и не прерывают обход; ненулевой err означает
// фатальный сбой всего тика (БД недоступна, шаблоны не загрузились), при
// этом report содержит накопленные к моменту сбоя счётчики.
func (s *Service) Run(ctx context.Context, now time.Time) (report RunReport, err error) {
	start := time.Now()
	defer func() {
		report.DurationMS = time.Since(start).Milliseconds()
		metrics.NudgeRunSeconds.Observe(time.Since(start).Seconds())
	}()

	templates, terr := s.templates.ListTemplates(ctx)
	if terr != nil {
		return report, fmt.Errorf("загрузка шаблонов: %w", terr)
	}

	sent, errs, rerr := s.runDigest(ctx, templates, domain.CategoryDailyDigest, now)
	report.DailyDigestsSent = sent
	report.Errors += errs
	if rerr != nil {
		return report, rerr
	}

	sent, errs, rerr = s.runDigest(ctx, templates, domain.CategoryWeeklyDigest, now)
	report.WeeklyDigestsSent = sent
	report.Errors += errs
	if rerr != nil {
		return report, rerr
	}

	sent, errs, rerr = s.runGoalCheckins(ctx, templates, now)
	report.GoalCheckinsSent = sent
	report.Errors += errs
	if rerr != nil {
		return report, rerr
	}

	sent, errs, rerr = s.runSessionPreps(ctx, templates, now)
	report.SessionPrepsSent = sent
	report.Errors += errs
	if rerr != nil {
		return report, rerr
	}

	s.log.Info().
		Int("daily", report.DailyDigestsSent).
		Int("weekly", report.WeeklyDigestsSent).
		Int("goal_checkins", report.GoalCheckinsSent).
		Int("session_preps", report.SessionPrepsSent).
		Int("errors", report.Errors).
		Msg("тик рассылки завершён")
	return report, nil
}

func (s *Service) runDigest(ctx context.Context, templates map[domain.NudgeCategory][]domain.Block, category domain.NudgeCategory, now time.Time) (int, int, error) {
	freqs := []domain.Frequency{domain.FrequencyWeekly}
	if category == domain.CategoryDailyDigest {
		freqs = []domain.Frequency{domain.FrequencyDaily, domain.FrequencySmart}
	}
	prefs, err := s.prefs.ListByFrequencies(ctx, freqs)
	if err != nil {
		return 0, 0, fmt.Errorf("выборка получателей %s: %w", category, err)
	}
	base := TemplateFor(templates, category)

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, pref := range prefs {
		g.Go(func() error {
			defer s.recoverRecipient(category, pref.RecipientID, &failed)
			ok, perr := s.processDigest(ctx, category, base, pref, now)
			if perr != nil {
				s.recipientFailed(category, pref.RecipientID, perr, &failed)
				return nil
			}
			if ok {
				sent.Add(1)
				metrics.NudgesSentTotal.WithLabelValues(string(category)).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load()), int(failed.Load()), nil
}

func (s *Service) processDigest(ctx context.Context, category domain.NudgeCategory, base []domain.Block, pref domain.RecipientPreference, now time.Time) (bool, error) {
	periodKey := category.PeriodKey(now, "")
	exists, err := s.ledger.ExistsForPeriod(ctx, pref.RecipientID, category, periodKey)
	if err != nil {
		return false, fmt.Errorf("проверка журнала: %w", err)
	}
	if exists {
		s.skip(category, "already_sent")
		return false, nil
	}
	if !s.inWindow(category, pref, now) {
		s.skip(category, "out_of_window")
		return false, nil
	}

	content, ok, err := s.assembleDigest(ctx, pref.RecipientID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.skip(category, "no_open_tasks")
		return false, nil
	}

	blocks := append(domain.SubstitutePlaceholders(base, content.vars), BuildTaskBlocks(content.tasks, content.open, content.done)...)
	entry := domain.NudgeLedgerEntry{
		RecipientID: pref.RecipientID,
		Category:    category,
		PeriodKey:   periodKey,
		SentAt:      now,
	}
	text := fmt.Sprintf("У вас %d открытых задач", content.open)
	return s.send(ctx, pref, entry, text, blocks)
}

func (s *Service) runGoalCheckins(ctx context.Context, templates map[domain.NudgeCategory][]domain.Block, now time.Time) (int, int, error) {
	// Кандидаты — сессии, завершённые 3-4 дня назад с непустой целью.
	from := now.Add(-4 * 24 * time.Hour)
	to := now.Add(-3 * 24 * time.Hour)
	sessions, err := s.sessions.ListCompletedWithGoal(ctx, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("выборка сессий для goal-checkin: %w", err)
	}
	return s.runSessionDriven(ctx, domain.CategoryGoalCheckin, TemplateFor(templates, domain.CategoryGoalCheckin), sessions, now)
}

func (s *Service) runSessionPreps(ctx context.Context, templates map[domain.NudgeCategory][]domain.Block, now time.Time) (int, int, error) {
	// Кандидаты — сессии, назначенные на завтрашний календарный день.
	u := now.UTC()
	dayStart := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	sessions, err := s.sessions.ListScheduledBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return 0, 0, fmt.Errorf("выборка сессий для session-prep: %w", err)
	}
	return s.runSessionDriven(ctx, domain.CategorySessionPrep, TemplateFor(templates, domain.CategorySessionPrep), sessions, now)
}

func (s *Service) runSessionDriven(ctx context.Context, category domain.NudgeCategory, base []domain.Block, sessions []domain.Session, now time.Time) (int, int, error) {
	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, session := range sessions {
		g.Go(func() error {
			defer s.recoverRecipient(category, session.RecipientID, &failed)
			ok, perr := s.processSession(ctx, category, base, session, now)
			if perr != nil {
				s.recipientFailed(category, session.RecipientID, perr, &failed)
				return nil
			}
			if ok {
				sent.Add(1)
				metrics.NudgesSentTotal.WithLabelValues(string(category)).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load()), int(failed.Load()), nil
}

func (s *Service) processSession(ctx context.Context, category domain.NudgeCategory, base []domain.Block, session domain.Session, now time.Time) (bool, error) {
	referenceID := strconv.FormatInt(session.ID, 10)
	periodKey := category.PeriodKey(now, referenceID)
	exists, err := s.ledger.ExistsForPeriod(ctx, session.RecipientID, category, periodKey)
	if err != nil {
		return false, fmt.Errorf("проверка журнала: %w", err)
	}
	if exists {
		s.skip(category, "already_sent")
		return false, nil
	}

	pref, err := s.prefs.GetByRecipient(ctx, session.RecipientID)
	if errors.Is(err, domain.ErrNotFound) {
		s.skip(category, "no_preferences")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("настройки получателя: %w", err)
	}
	if !pref.Enabled || pref.Frequency == domain.FrequencyNone {
		s.skip(category, "disabled")
		return false, nil
	}
	if !s.inWindow(category, pref, now) {
		s.skip(category, "out_of_window")
		return false, nil
	}

	var (
		vars map[string]string
		text string
	)
	switch category {
	case domain.CategoryGoalCheckin:
		assembled, ok := GoalCheckinVars(session)
		if !ok {
			s.skip(category, "empty_goal")
			return false, nil
		}
		vars = assembled
		text = fmt.Sprintf("%s интересуется вашей целью", session.CoachName)
	case domain.CategorySessionPrep:
		vars = SessionPrepVars(session, pref.Timezone, s.cfg.SessionLinkBase)
		text = fmt.Sprintf("Завтра сессия с %s", session.CoachName)
	default:
		return false, fmt.Errorf("категория %s не поддерживается", category)
	}

	kind := "session"
	entry := domain.NudgeLedgerEntry{
		RecipientID:   session.RecipientID,
		Category:      category,
		ReferenceID:   &referenceID,
		ReferenceKind: &kind,
		PeriodKey:     periodKey,
		SentAt:        now,
	}
	return s.send(ctx, pref, entry, text, domain.SubstitutePlaceholders(base, vars))
}

// send резолвит токен воркспейса, отправляет сообщение и фиксирует запись в
// журнале. Запись появляется только после подтверждённой отправки: упавшая
// отправка не оставляет следа и сама повторится на следующем тике.
func (s *Service) send(ctx context.Context, pref domain.RecipientPreference, entry domain.NudgeLedgerEntry, text string, blocks []domain.Block) (bool, error) {
	token, err := s.tokens.BotToken(ctx, pref.SlackTeamID)
	if err != nil {
		return false, err
	}
	ref, err := s.messenger.PostMessage(ctx, token, pref.SlackChannelID, text, blocks)
	if err != nil {
		return false, fmt.Errorf("отправка сообщения: %w", err)
	}
	entry.Message = ref
	inserted, err := s.ledger.Append(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("запись в журнал: %w", err)
	}
	if !inserted {
		// Параллельный воркер или соседний тик успел первым: сообщение
		// ушло дважды, но журнал остался с одной записью на период.
		s.log.Warn().
			Str("recipient", entry.RecipientID).
			Str("category", string(entry.Category)).
			Str("period", entry.PeriodKey).
			Msg("дубликат по ключу периода, запись не добавлена")
		return false, nil
	}
	return true, nil
}

func (s *Service) skip(category domain.NudgeCategory, reason string) {
	metrics.NudgeSkippedTotal.WithLabelValues(string(category), reason).Inc()
}

func (s *Service) recipientFailed(category domain.NudgeCategory, recipientID string, err error, failed *atomic.Int64) {
	failed.Add(1)
	metrics.NudgeSendErrors.Inc()
	s.log.Error().Err(err).
		Str("recipient", recipientID).
		Str("category", string(category)).
		Msg("не удалось отправить напоминание")
}

func (s *Service) recoverRecipient(category domain.NudgeCategory, recipientID string, failed *atomic.Int64) {
	if r := recover(); r != nil {
		failed.Add(1)
		metrics.NudgeSendErrors.Inc()
		s.log.Error().
			Str("recipient", recipientID).
			Str("category", string(category)).
			Interface("panic", r).
			Msg("паника при обработке получателя")
	}
}
