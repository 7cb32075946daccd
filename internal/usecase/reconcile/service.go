package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"coach-nudge-bot/internal/domain"
	"coach-nudge-bot/internal/usecase/nudge"
	"coach-nudge-bot/internal/usecase/workspace"
)

// Config настраивает реконсилер ответов.
type Config struct {
	MaxDigestTasks  int
	SessionLinkBase string
}

// Service закрывает вторую фазу жизненного цикла напоминания: клик по кнопке
// в сообщении превращается в доменный эффект, правку живого сообщения и
// отметку ответа в журнале. Запись журнала ищется по идентификатору
// сообщения, а не по пользователю: callback платформы не обязан нести
// recipient_id в том же виде, в каком он хранится у нас.
type Service struct {
	ledger    domain.LedgerRepo
	tasks     domain.TaskRepo
	sessions  domain.SessionRepo
	prefs     domain.PreferenceRepo
	templates domain.TemplateRepo
	tokens    *workspace.Resolver
	messenger domain.Messenger
	log       zerolog.Logger
	cfg       Config
	now       func() time.Time
}

// NewService создаёт реконсилер.
func NewService(ledger domain.LedgerRepo, tasks domain.TaskRepo, sessions domain.SessionRepo, prefs domain.PreferenceRepo, templates domain.TemplateRepo, tokens *workspace.Resolver, messenger domain.Messenger, log zerolog.Logger, cfg Config) *Service {
	if cfg.MaxDigestTasks <= 0 {
		cfg.MaxDigestTasks = 5
	}
	return &Service{
		ledger:    ledger,
		tasks:     tasks,
		sessions:  sessions,
		prefs:     prefs,
		templates: templates,
		tokens:    tokens,
		messenger: messenger,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Handle обрабатывает один interaction callback. Повторная доставка того же
// callback-а даёт тот же итог: задача закрывается один раз, журнал получает
// одну отметку ответа, правка сообщения сходится к тому же состоянию.
func (s *Service) Handle(ctx context.Context, in domain.Interaction) error {
	ref := in.Message()
	entry, err := s.ledger.GetByMessage(ctx, ref)
	if err != nil {
		return fmt.Errorf("поиск записи журнала: %w", err)
	}

	switch in.ActionID {
	case domain.ActionCompleteTask:
		if err := s.completeTask(ctx, in.Value); err != nil {
			return err
		}
		if err := s.refreshDigestMessage(ctx, entry, in.TeamID); err != nil {
			return err
		}
	case domain.ActionGoalOnTrack, domain.ActionGoalNeedHelp, domain.ActionConfirmSession:
		if err := s.acknowledgeMessage(ctx, entry, in); err != nil {
			return err
		}
	default:
		s.log.Warn().Str("action", in.ActionID).Msg("неизвестное действие, сообщение не редактируем")
	}

	answered, err := s.ledger.MarkAnswered(ctx, ref, in.ActionID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("отметка ответа: %w", err)
	}
	if !answered {
		// Платформа иногда доставляет callback дважды.
		s.log.Debug().
			Str("channel", ref.ChannelID).
			Str("ts", ref.Timestamp).
			Msg("запись уже отвечена, повторная доставка")
	}
	return nil
}

func (s *Service) completeTask(ctx context.Context, value string) error {
	taskID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("разбор id задачи %q: %w", value, err)
	}
	changed, err := s.tasks.CompleteTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("закрытие задачи: %w", err)
	}
	if !changed {
		s.log.Debug().Int64("task", taskID).Msg("задача уже закрыта")
	}
	return nil
}

// refreshDigestMessage пересобирает дайджест по свежим фактам: кнопка
// закрытой задачи исчезает, счётчик выполненного обновляется. Правка идёт
// только через edit-in-place, новое сообщение не создаётся.
func (s *Service) refreshDigestMessage(ctx context.Context, entry domain.NudgeLedgerEntry, teamID string) error {
	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("загрузка шаблонов: %w", err)
	}
	tasks, err := s.tasks.ListOpenTasks(ctx, entry.RecipientID, s.cfg.MaxDigestTasks)
	if err != nil {
		return fmt.Errorf("открытые задачи: %w", err)
	}
	open, done, err := s.tasks.CountTasks(ctx, entry.RecipientID)
	if err != nil {
		return fmt.Errorf("счётчики задач: %w", err)
	}

	base := nudge.TemplateFor(templates, entry.Category)
	vars := map[string]string{"task_count": strconv.Itoa(open)}
	blocks := append(domain.SubstitutePlaceholders(base, vars), nudge.BuildTaskBlocks(tasks, open, done)...)

	token, err := s.tokens.BotToken(ctx, teamID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("У вас %d открытых задач", open)
	if err := s.messenger.UpdateMessage(ctx, token, entry.Message, text, blocks); err != nil {
		return fmt.Errorf("правка сообщения: %w", err)
	}
	return nil
}

// acknowledgeMessage пересобирает сообщение goal-checkin или session-prep:
// блок с кнопками заменяется подтверждением ответа.
func (s *Service) acknowledgeMessage(ctx context.Context, entry domain.NudgeLedgerEntry, in domain.Interaction) error {
	if entry.ReferenceID == nil {
		return nil
	}
	sessionID, err := strconv.ParseInt(*entry.ReferenceID, 10, 64)
	if err != nil {
		return fmt.Errorf("разбор id сессии %q: %w", *entry.ReferenceID, err)
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("сессия напоминания: %w", err)
	}

	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("загрузка шаблонов: %w", err)
	}

	var vars map[string]string
	switch entry.Category {
	case domain.CategoryGoalCheckin:
		assembled, ok := nudge.GoalCheckinVars(session)
		if !ok {
			return nil
		}
		vars = assembled
	case domain.CategorySessionPrep:
		timezone := ""
		pref, err := s.prefs.GetByRecipient(ctx, entry.RecipientID)
		if err == nil {
			timezone = pref.Timezone
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("настройки получателя: %w", err)
		}
		vars = nudge.SessionPrepVars(session, timezone, s.cfg.SessionLinkBase)
	default:
		return nil
	}

	base := nudge.TemplateFor(templates, entry.Category)
	rendered := domain.SubstitutePlaceholders(base, vars)
	blocks := make([]domain.Block, 0, len(rendered)+1)
	for _, block := range rendered {
		if block.Type == "actions" {
			continue
		}
		blocks = append(blocks, block)
	}
	blocks = append(blocks, domain.Block{
		Type: "context",
		Elements: []domain.BlockElement{{
			Type: "mrkdwn",
			Text: &domain.TextObject{Type: "mrkdwn", Text: ackText(in.ActionID)},
		}},
	})

	token, err := s.tokens.BotToken(ctx, in.TeamID)
	if err != nil {
		return err
	}
	if err := s.messenger.UpdateMessage(ctx, token, entry.Message, ackText(in.ActionID), blocks); err != nil {
		return fmt.Errorf("правка сообщения: %w", err)
	}
	return nil
}

func ackText(actionID string) string {
	switch actionID {
	case domain.ActionGoalOnTrack:
		return "Вы ответили: всё по плану 💪"
	case domain.ActionGoalNeedHelp:
		return "Вы попросили поддержку — коуч получит сигнал."
	case domain.ActionConfirmSession:
		return "Участие в сессии подтверждено."
	default:
		return "Ответ получен."
	}
}
