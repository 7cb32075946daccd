package domain

import "time"

// NudgeCategory определяет вид напоминания.
type NudgeCategory string

const (
	CategoryDailyDigest  NudgeCategory = "daily-digest"
	CategoryWeeklyDigest NudgeCategory = "weekly-digest"
	CategoryGoalCheckin  NudgeCategory = "goal-checkin"
	CategorySessionPrep  NudgeCategory = "session-prep"
)

// AllCategories перечисляет категории в порядке обработки тика.
var AllCategories = []NudgeCategory{
	CategoryDailyDigest,
	CategoryWeeklyDigest,
	CategoryGoalCheckin,
	CategorySessionPrep,
}

// Frequency описывает частоту напоминаний в настройках участника.
type Frequency string

const (
	FrequencySmart  Frequency = "smart"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyNone   Frequency = "none"
)

// MessageRef идентифицирует отправленное сообщение в мессенджере.
// Платформа адресует сообщения парой канал + timestamp.
type MessageRef struct {
	ChannelID string
	Timestamp string
}

// NudgeLedgerEntry — одна запись журнала об отправленном напоминании.
type NudgeLedgerEntry struct {
	ID            int64
	RecipientID   string
	Category      NudgeCategory
	ReferenceID   *string
	ReferenceKind *string
	PeriodKey     string
	Message       MessageRef
	SentAt        time.Time
	Response      *string
	RespondedAt   *time.Time
}

// RecipientPreference хранит настройки уведомлений участника.
// Таблица принадлежит UI настроек, здесь она только читается.
type RecipientPreference struct {
	RecipientID    string
	Enabled        bool
	Frequency      Frequency
	PreferredTime  string
	Timezone       string
	SlackChannelID string
	SlackTeamID    string
}

// Workspace описывает подключённый воркспейс мессенджера.
type Workspace struct {
	TeamID   string
	TeamName string
	BotToken string
}

// TaskStatus — состояние задачи участника.
type TaskStatus string

const (
	TaskOpen TaskStatus = "open"
	TaskDone TaskStatus = "done"
)

// Task — задача участника из портала.
type Task struct {
	ID          int64
	RecipientID string
	Title       string
	Status      TaskStatus
	CreatedAt   time.Time
}

// SessionStatus — состояние коуч-сессии.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session — коуч-сессия участника.
type Session struct {
	ID          int64
	RecipientID string
	CoachName   string
	Goal        string
	Status      SessionStatus
	ScheduledAt time.Time
	CompletedAt *time.Time
}

// MessageTemplate — сконфигурированный скелет сообщения для категории.
type MessageTemplate struct {
	Category NudgeCategory
	Blocks   []Block
}

// Идентификаторы действий на кнопках напоминаний.
const (
	ActionCompleteTask   = "complete_task"
	ActionGoalOnTrack    = "goal_on_track"
	ActionGoalNeedHelp   = "goal_need_help"
	ActionConfirmSession = "confirm_session"
)

// Interaction — разобранный callback от мессенджера после клика по кнопке.
type Interaction struct {
	TeamID    string
	UserID    string
	Username  string
	ChannelID string
	MessageTS string
	ActionID  string
	Value     string
}

// Message возвращает идентификатор сообщения, по которому пришёл callback.
func (i Interaction) Message() MessageRef {
	return MessageRef{ChannelID: i.ChannelID, Timestamp: i.MessageTS}
}
