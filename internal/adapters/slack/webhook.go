package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"coach-nudge-bot/internal/domain"
	"coach-nudge-bot/internal/infra/metrics"
)

// Reconciler обрабатывает клик пользователя по кнопке в сообщении.
type Reconciler interface {
	Handle(ctx context.Context, in domain.Interaction) error
}

// InteractionHandler принимает interaction callback-и мессенджера.
type InteractionHandler struct {
	verifier   *Verifier
	reconciler Reconciler
	log        zerolog.Logger
}

// NewInteractionHandler создаёт обработчик callback-ов.
func NewInteractionHandler(verifier *Verifier, reconciler Reconciler, log zerolog.Logger) *InteractionHandler {
	return &InteractionHandler{verifier: verifier, reconciler: reconciler, log: log}
}

// interactionPayload — интересующая нас часть JSON из поля payload.
type interactionPayload struct {
	Type string `json:"type"`
	Team struct {
		ID string `json:"id"`
	} `json:"team"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS string `json:"ts"`
	} `json:"message"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// ServeHTTP реализует http.Handler. Отказ возможен только на проверке
// подписи: любая внутренняя ошибка после неё логируется, а платформе
// отвечаем 200, иначе она будет ретраить callback бесконечно.
func (h *InteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.log.Error().Err(err).Msg("callback: не удалось прочитать тело")
		metrics.InteractionCallbacksTotal.WithLabelValues("read_error").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if err := h.verifier.Verify(timestamp, signature, body); err != nil {
		h.log.Warn().Err(err).Msg("callback: подпись отклонена")
		metrics.InteractionCallbacksTotal.WithLabelValues("unauthorized").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	interaction, err := parseInteraction(body)
	if err != nil {
		h.log.Error().Err(err).Msg("callback: не удалось разобрать payload")
		metrics.InteractionCallbacksTotal.WithLabelValues("parse_error").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconciler.Handle(r.Context(), interaction); err != nil {
		h.log.Error().Err(err).
			Str("channel", interaction.ChannelID).
			Str("ts", interaction.MessageTS).
			Str("action", interaction.ActionID).
			Msg("callback: обработка не удалась")
		metrics.InteractionCallbacksTotal.WithLabelValues("handle_error").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	metrics.InteractionCallbacksTotal.WithLabelValues("ok").Inc()
	w.WriteHeader(http.StatusOK)
}

func parseInteraction(body []byte) (domain.Interaction, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return domain.Interaction{}, err
	}
	raw := values.Get("payload")
	if raw == "" {
		return domain.Interaction{}, errors.New("поле payload отсутствует")
	}

	var payload interactionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return domain.Interaction{}, err
	}
	if len(payload.Actions) == 0 {
		return domain.Interaction{}, errors.New("payload без actions")
	}

	return domain.Interaction{
		TeamID:    payload.Team.ID,
		UserID:    payload.User.ID,
		Username:  payload.User.Username,
		ChannelID: payload.Channel.ID,
		MessageTS: payload.Message.TS,
		ActionID:  payload.Actions[0].ActionID,
		Value:     payload.Actions[0].Value,
	}, nil
}
