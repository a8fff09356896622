package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL        = "https://api.telegram.org"
	defaultPhotoTimeout   = 30 * time.Second
	defaultMessageTimeout = 10 * time.Second
	parseModeHTML         = "HTML"
)

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	BaseURL        string
	BotToken       string
	PhotoTimeout   time.Duration
	MessageTimeout time.Duration
}

// Telegram is a minimal Bot API client for sendPhoto and sendMessage.
type Telegram struct {
	baseURL        string
	token          string
	client         *http.Client
	photoTimeout   time.Duration
	messageTimeout time.Duration
}

// NewTelegram creates a client. A nil httpClient uses http.DefaultClient.
func NewTelegram(cfg TelegramConfig, httpClient *http.Client) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	t := &Telegram{
		baseURL:        base,
		token:          cfg.BotToken,
		client:         httpClient,
		photoTimeout:   cfg.PhotoTimeout,
		messageTimeout: cfg.MessageTimeout,
	}
	if t.photoTimeout <= 0 {
		t.photoTimeout = defaultPhotoTimeout
	}
	if t.messageTimeout <= 0 {
		t.messageTimeout = defaultMessageTimeout
	}
	return t, nil
}

// APIError is a non-success reply from the Bot API.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s: status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendPhoto uploads photo with an HTML caption to chatID.
func (t *Telegram) SendPhoto(ctx context.Context, chatID, caption, filename string, photo []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := [][2]string{{"chat_id", chatID}, {"caption", caption}, {"parse_mode", parseModeHTML}}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	part, err := w.CreateFormFile("photo", filename)
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.photoTimeout)
	defer cancel()
	return t.do(ctx, "sendPhoto", w.FormDataContentType(), &body)
}

// SendMessage posts an HTML text message to chatID.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": parseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.messageTimeout)
	defer cancel()
	return t.do(ctx, "sendMessage", "application/json", bytes.NewReader(payload))
}

func (t *Telegram) do(ctx context.Context, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token; keep it out of the error.
		return fmt.Errorf("telegram %s: %w", method, redact(err, t.token))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		desc := parsed.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: desc}
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}

// LogChannel adapts Telegram to the run log sink.
type LogChannel struct {
	client *Telegram
	chatID string
}

// NewLogChannel sends run logs to chatID.
func NewLogChannel(client *Telegram, chatID string) *LogChannel {
	return &LogChannel{client: client, chatID: chatID}
}

// SendLog implements runlog.Sink.
func (c *LogChannel) SendLog(ctx context.Context, text string) error {
	return c.client.SendMessage(ctx, c.chatID, text)
}
