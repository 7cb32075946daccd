package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"coach-nudge-bot/internal/domain"
	"coach-nudge-bot/internal/infra/metrics"
)

// Config настраивает клиент Web API мессенджера.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client — минимальный клиент Web API: отправка и редактирование сообщений.
// Bearer-токен передаётся на каждый вызов, потому что получатели могут
// принадлежать разным воркспейсам.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.Messenger = (*Client)(nil)

// NewClient создаёт клиент.
func NewClient(cfg Config) *Client {
	client := &Client{cfg: cfg}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.httpClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://slack.com/api"
	}
	return client
}

// SetHTTPClient подменяет транспорт (используется в тестах).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// PostMessage отправляет сообщение и возвращает его идентификатор.
func (c *Client) PostMessage(ctx context.Context, token, channelID, fallbackText string, blocks []domain.Block) (domain.MessageRef, error) {
	payload := map[string]any{
		"channel": channelID,
		"text":    fallbackText,
		"blocks":  blocks,
	}
	resp, err := c.call(ctx, token, "chat.postMessage", payload)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChannelID: resp.Channel, Timestamp: resp.TS}, nil
}

// UpdateMessage редактирует ранее отправленное сообщение на месте.
func (c *Client) UpdateMessage(ctx context.Context, token string, ref domain.MessageRef, fallbackText string, blocks []domain.Block) error {
	payload := map[string]any{
		"channel": ref.ChannelID,
		"ts":      ref.Timestamp,
		"text":    fallbackText,
		"blocks":  blocks,
	}
	_, err := c.call(ctx, token, "chat.update", payload)
	return err
}

func (c *Client) call(ctx context.Context, token, method string, payload map[string]any) (apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return apiResponse{}, fmt.Errorf("кодирование запроса %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, fmt.Errorf("создание запроса %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("slack", method, "web_api", start, err)
	if err != nil {
		return apiResponse{}, fmt.Errorf("вызов %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiResponse{}, fmt.Errorf("чтение ответа %s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiResponse{}, fmt.Errorf("вызов %s: статус %d", method, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return apiResponse{}, fmt.Errorf("разбор ответа %s: %w", method, err)
	}
	if !parsed.OK {
		return apiResponse{}, fmt.Errorf("вызов %s: api error %q", method, parsed.Error)
	}
	return parsed, nil
}
