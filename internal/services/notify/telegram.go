package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"guardiq-worker-go/internal/services/alerting"
)

// TelegramConfig holds bot credentials and endpoint
type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string // defaults to https://api.telegram.org
	Timeout time.Duration
}

// Telegram delivers alerts as photos through the Bot API
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		Username string `json:"username"`
	} `json:"result"`
}

// NewTelegram creates a Telegram dispatcher
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (t *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.Token, method)
}

// Ping calls getMe to verify the bot token
func (t *Telegram) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.methodURL("getMe"), nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	defer resp.Body.Close()

	var body telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("telegram getMe: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return fmt.Errorf("telegram getMe: status %d: %s", resp.StatusCode, body.Description)
	}

	log.Info().Str("bot", body.Result.Username).Msg("Successfully connected to Telegram bot")
	return nil
}

// Send posts the alert image and caption with sendPhoto
func (t *Telegram) Send(ctx context.Context, alert alerting.Alert) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("chat_id", t.cfg.ChatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	if err := w.WriteField("caption", alert.Caption); err != nil {
		return fmt.Errorf("write caption: %w", err)
	}
	fw, err := w.CreateFormFile("photo", "alert.jpg")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := fw.Write(alert.Image); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendPhoto"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendPhoto: %w: %w", alerting.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram sendPhoto: %w: status %d: %s", alerting.ErrDispatchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
