package domain

import (
	"context"
	"time"
)

// PreferenceRepo читает настройки уведомлений участников.
type PreferenceRepo interface {
	ListByFrequencies(ctx context.Context, freqs []Frequency) ([]RecipientPreference, error)
	GetByRecipient(ctx context.Context, recipientID string) (RecipientPreference, error)
}

// LedgerRepo управляет журналом отправленных напоминаний.
type LedgerRepo interface {
	// ExistsForPeriod проверяет, было ли уже напоминание за период.
	// Проверка идёт запросом в БД: процесс может быть перезапущен между
	// категориями, память здесь не годится.
	ExistsForPeriod(ctx context.Context, recipientID string, category NudgeCategory, periodKey string) (bool, error)
	// Append добавляет запись. Возвращает false, если запись с таким
	// ключом (recipient, category, period) уже существует.
	Append(ctx context.Context, entry NudgeLedgerEntry) (bool, error)
	GetByMessage(ctx context.Context, ref MessageRef) (NudgeLedgerEntry, error)
	// MarkAnswered проставляет ответ по идентификатору сообщения.
	// Возвращает false, если запись уже была отвечена.
	MarkAnswered(ctx context.Context, ref MessageRef, response string, at time.Time) (bool, error)
}

// TaskRepo читает и изменяет задачи участников.
type TaskRepo interface {
	ListOpenTasks(ctx context.Context, recipientID string, limit int) ([]Task, error)
	CountTasks(ctx context.Context, recipientID string) (open int, done int, err error)
	// CompleteTask переводит задачу в done. Возвращает false, если задача
	// уже была закрыта.
	CompleteTask(ctx context.Context, taskID int64) (bool, error)
}

// SessionRepo читает коуч-сессии.
type SessionRepo interface {
	ListCompletedWithGoal(ctx context.Context, from, to time.Time) ([]Session, error)
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
}

// TemplateRepo читает сконфигурированные шаблоны сообщений.
type TemplateRepo interface {
	ListTemplates(ctx context.Context) (map[NudgeCategory][]Block, error)
}

// WorkspaceRepo читает подключённые воркспейсы мессенджера.
type WorkspaceRepo interface {
	GetWorkspace(ctx context.Context, teamID string) (Workspace, error)
}

// Messenger отправляет и редактирует сообщения во внешнем мессенджере.
// Токен передаётся на каждый вызов: получатели живут в разных воркспейсах.
type Messenger interface {
	PostMessage(ctx context.Context, token, channelID, fallbackText string, blocks []Block) (MessageRef, error)
	UpdateMessage(ctx context.Context, token string, ref MessageRef, fallbackText string, blocks []Block) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
