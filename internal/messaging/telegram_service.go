package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dragent-dev/dragent/internal/models"
)

// Constants for TelegramService configuration
const (
	// DefaultTelegramAPIBase is the base URL for the Telegram Bot API
	DefaultTelegramAPIBase = "https://api.telegram.org"
	// DefaultPollTimeoutSeconds is the long-poll timeout passed to getUpdates
	DefaultPollTimeoutSeconds = 30
	// DefaultPollRetryDelay is how long to wait before retrying a failed poll
	DefaultPollRetryDelay = 3 * time.Second
)

// TelegramOpts holds configuration options for the Telegram service.
type TelegramOpts struct {
	Token   string
	APIBase string
}

// TelegramOption defines a configuration option for the Telegram service.
type TelegramOption func(*TelegramOpts)

// WithTelegramToken sets the bot token obtained from BotFather.
func WithTelegramToken(token string) TelegramOption {
	return func(o *TelegramOpts) {
		o.Token = token
	}
}

// WithTelegramAPIBase overrides the Bot API base URL (used in tests).
func WithTelegramAPIBase(base string) TelegramOption {
	return func(o *TelegramOpts) {
		o.APIBase = base
	}
}

// TelegramService implements Service using the Telegram Bot API over long polling.
// User identifiers are decimal chat IDs.
type TelegramService struct {
	token      string
	apiBase    string
	httpClient *http.Client
	responses  chan models.Response
	done       chan struct{}
	stopped    chan struct{}
	started    bool
	offset     int64
}

// NewTelegramService creates a Telegram transport from the provided options.
func NewTelegramService(opts ...TelegramOption) (*TelegramService, error) {
	var cfg TelegramOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		slog.Error("TelegramService token not set")
		return nil, fmt.Errorf("telegram bot token not set")
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}
	slog.Debug("TelegramService created", "api_base", apiBase)
	return &TelegramService{
		token:   cfg.Token,
		apiBase: apiBase,
		httpClient: &http.Client{
			// Longer than the long-poll timeout so getUpdates can block server-side.
			Timeout: (DefaultPollTimeoutSeconds + 10) * time.Second,
		},
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}, nil
}

// ValidateAndCanonicalizeRecipient requires a decimal Telegram chat ID.
func (s *TelegramService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	id, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat ID %q: %w", recipient, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// replyKeyboard is the Telegram ReplyKeyboardMarkup payload: one button per row.
type replyKeyboard struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type keyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

type sendMessageReq struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

// SendText sends a plain message and removes any previously shown keyboard.
func (s *TelegramService) SendText(ctx context.Context, to string, body string) error {
	return s.send(ctx, to, body, keyboardRemove{RemoveKeyboard: true})
}

// SendChoices sends a message with a one-time reply keyboard built from choices.
func (s *TelegramService) SendChoices(ctx context.Context, to string, body string, choices []string) error {
	if len(choices) == 0 {
		return s.SendText(ctx, to, body)
	}
	rows := make([][]keyboardButton, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, []keyboardButton{{Text: c}})
	}
	return s.send(ctx, to, body, replyKeyboard{Keyboard: rows, ResizeKeyboard: true, OneTimeKeyboard: true})
}

func (s *TelegramService) send(ctx context.Context, to string, body string, markup any) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", to, err)
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	// Markdown parse mode is intentionally not set: free-text medical answers
	// routinely contain characters Telegram would reject as bad entities.
	payload, err := json.Marshal(sendMessageReq{ChatID: chatID, Text: body, ReplyMarkup: markup})
	if err != nil {
		return fmt.Errorf("failed to marshal sendMessage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("TelegramService send error", "error", err, "to", to)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		slog.Error("TelegramService sendMessage rejected", "status", resp.Status, "to", to)
		return fmt.Errorf("telegram api returned status: %s, body: %s", resp.Status, string(respBody))
	}
	slog.Debug("TelegramService message sent", "to", to, "body_length", len(body))
	return nil
}

// BotUsername returns the bot's username via getMe, used for building deep links.
func (s *TelegramService) BotUsername(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.methodURL("getMe"), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build getMe request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call getMe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("telegram api returned status: %s, body: %s", resp.Status, string(respBody))
	}
	var out struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode getMe response: %w", err)
	}
	if !out.OK || out.Result.Username == "" {
		return "", fmt.Errorf("getMe returned no username")
	}
	return out.Result.Username, nil
}

// Start begins the long-polling loop.
func (s *TelegramService) Start(ctx context.Context) error {
	slog.Debug("TelegramService Start invoked")
	s.started = true
	go func() {
		s.pollLoop(ctx)
		close(s.stopped)
	}()
	return nil
}

// Stop stops background processing. The poll loop is signalled first and
// waited out before the responses channel is closed, so no in-flight forward
// can hit a closed channel.
func (s *TelegramService) Stop() error {
	slog.Info("TelegramService Stop invoked")
	close(s.done)
	if s.started {
		<-s.stopped
	}
	close(s.responses)
	return nil
}

// Responses returns a channel of incoming message events.
func (s *TelegramService) Responses() <-chan models.Response {
	return s.responses
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date int64 `json:"date"`
	} `json:"message"`
}

func (s *TelegramService) pollLoop(ctx context.Context) {
	slog.Debug("TelegramService pollLoop starting")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("TelegramService pollLoop stopping due to context cancellation")
			return
		case <-s.done:
			slog.Debug("TelegramService pollLoop stopping")
			return
		default:
		}

		updates, err := s.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("TelegramService getUpdates failed, retrying", "error", err, "delay", DefaultPollRetryDelay)
			select {
			case <-time.After(DefaultPollRetryDelay):
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= s.offset {
				s.offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				// Skip non-text updates (stickers, photos, edits, etc.).
				continue
			}
			resp := models.Response{
				From: strconv.FormatInt(u.Message.Chat.ID, 10),
				Body: u.Message.Text,
				Time: u.Message.Date,
			}
			select {
			case s.responses <- resp:
				slog.Debug("TelegramService incoming message forwarded", "from", resp.From, "body_length", len(resp.Body))
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

func (s *TelegramService) getUpdates(ctx context.Context) ([]update, error) {
	payload, err := json.Marshal(map[string]any{
		"offset":          s.offset,
		"timeout":         DefaultPollTimeoutSeconds,
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal getUpdates request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("getUpdates"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build getUpdates request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call getUpdates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("telegram api returned status: %s, body: %s", resp.Status, string(respBody))
	}

	var out struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode getUpdates response: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("getUpdates returned ok=false")
	}
	return out.Result, nil
}

func (s *TelegramService) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.apiBase, s.token, method)
}
