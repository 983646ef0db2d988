// Package telegram sends run notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendRunSummary(ctx context.Context, cfg models.TelegramConfig, summary models.RunSummary) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendRunSummary reports the outcome of an agent run.
func (s *Impl) SendRunSummary(ctx context.Context, cfg models.TelegramConfig, summary models.RunSummary) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Str("status", string(summary.Status)).
		Msg("sending Telegram notification")

	reqBody := sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      formatSummary(summary),
		ParseMode: "HTML",
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func formatSummary(summary models.RunSummary) string {
	var b bytes.Buffer

	switch {
	case summary.Status == models.StateSkipped:
		b.WriteString("ℹ️ <b>Report Unchanged</b>\n\n")
	case summary.Success():
		b.WriteString("✅ <b>Report Published</b>\n\n")
	default:
		b.WriteString("❌ <b>Report Upload Failed</b>\n\n")
	}

	b.WriteString(fmt.Sprintf("📄 <b>Report:</b> %s for %s\n", escapeHTML(string(summary.Kind)), escapeHTML(summary.Date)))
	if summary.ArchivedFile != "" {
		b.WriteString(fmt.Sprintf("🗂 <b>File:</b> %s\n", escapeHTML(summary.ArchivedFile)))
	}
	if summary.Branch != "" {
		b.WriteString(fmt.Sprintf("🌿 <b>Branch:</b> %s\n", escapeHTML(summary.Branch)))
	}
	b.WriteString(fmt.Sprintf("⏰ <b>Started:</b> %s\n", summary.StartTime.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("⏱ <b>Duration:</b> %s\n", summary.Duration.Round(time.Second)))

	if summary.SyncState == models.StateDegraded {
		b.WriteString("\n⚠️ Sync with the remote was degraded\n")
	}

	if summary.Success() {
		if summary.Commit != "" {
			b.WriteString(fmt.Sprintf("\n🔖 <b>Commit:</b> <code>%s</code>\n", escapeHTML(shortHash(summary.Commit))))
		}
	} else {
		b.WriteString("\n<b>⚠️ Error Details:</b>\n")
		b.WriteString(fmt.Sprintf("  • Failed step: %s\n", escapeHTML(summary.FailedStep)))
		b.WriteString(fmt.Sprintf("  • Error: <code>%s</code>\n", escapeHTML(summary.Error)))
	}

	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
