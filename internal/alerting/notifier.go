package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"strata-netmon/internal/model"
)

// Kind tells whether a domain started or stopped failing.
type Kind string

const (
	KindFailing   Kind = "failing"
	KindRecovered Kind = "recovered"
)

// Notification describes one health transition of a polled domain.
type Notification struct {
	Domain    model.Domain
	Kind      Kind
	Failures  int
	LastError string
	Since     time.Time
	At        time.Time
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the log. Used when no chat transport is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	ev := n.logger.Warn()
	if note.Kind == KindRecovered {
		ev = n.logger.Info()
	}
	ev.Str("domain", string(note.Domain)).
		Str("kind", string(note.Kind)).
		Int("failures", note.Failures).
		Str("last_error", note.LastError).
		Time("since", note.Since).
		Msg("domain health changed")
	return nil
}

// TelegramNotifier pushes notifications through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().
		Str("domain", string(note.Domain)).
		Str("kind", string(note.Kind)).
		Msg("notification sent")
	return nil
}

func renderMessage(note Notification) string {
	var b strings.Builder
	switch note.Kind {
	case KindRecovered:
		fmt.Fprintf(&b, "[netmon] %s recovered\n", note.Domain)
		fmt.Fprintf(&b, "Down since: %s UTC\n", note.Since.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "Recovered at: %s UTC\n", note.At.UTC().Format(time.RFC3339))
	default:
		fmt.Fprintf(&b, "[netmon] %s failing\n", note.Domain)
		fmt.Fprintf(&b, "Consecutive failures: %d\n", note.Failures)
		fmt.Fprintf(&b, "Failing since: %s UTC\n", note.Since.UTC().Format(time.RFC3339))
		if note.LastError != "" {
			fmt.Fprintf(&b, "Last error: %s\n", note.LastError)
		}
	}
	return b.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
