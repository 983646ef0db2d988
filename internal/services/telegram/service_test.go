package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.TelegramConfig {
	return models.TelegramConfig{
		BotToken: "123456:ABC-DEF",
		ChatID:   "-100123456789",
	}
}

func publishedSummary() models.RunSummary {
	return models.RunSummary{
		RunID:        "run-1",
		Kind:         models.KindSpecial,
		Date:         "2025-09-10",
		SourceFile:   "posebni.jpeg",
		ArchivedFile: "reports/2025-09-10_13_special.jpeg",
		Branch:       "main",
		SyncState:    models.StateSynced,
		CommitState:  models.StateCommitted,
		Status:       models.StatePublished,
		Commit:       "0123456789abcdef0123456789abcdef01234567",
		StartTime:    time.Date(2025, 9, 10, 13, 0, 0, 0, time.UTC),
		Duration:     4 * time.Second,
	}
}

func TestSendRunSummary_Success(t *testing.T) {
	var capturedRequest *http.Request
	var capturedBody sendMessageRequest

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedRequest = req
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &capturedBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":true}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	result, err := svc.SendRunSummary(context.Background(), testConfig(), publishedSummary())

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)

	// Verify request
	assert.Equal(t, http.MethodPost, capturedRequest.Method)
	assert.Contains(t, capturedRequest.URL.String(), "/bot123456:ABC-DEF/sendMessage")
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))

	// Verify body
	assert.Equal(t, "-100123456789", capturedBody.ChatID)
	assert.Equal(t, "HTML", capturedBody.ParseMode)
	assert.Contains(t, capturedBody.Text, "Report Published")
}

func TestSendRunSummary_HTTPError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("network error")
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	result, err := svc.SendRunSummary(context.Background(), testConfig(), publishedSummary())

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to send request")
}

func TestSendRunSummary_APIError(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader("{\"ok\":false}")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	result, err := svc.SendRunSummary(context.Background(), testConfig(), publishedSummary())

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "status 400")
}

func TestSendRunSummary_ContextCancelled(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, context.Canceled
		},
	}

	svc := NewWithClient(testLogger(), httpClient, "https://api.telegram.org")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.SendRunSummary(ctx, testConfig(), publishedSummary())

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}

func TestFormatSummary_Published(t *testing.T) {
	result := formatSummary(publishedSummary())

	assert.Contains(t, result, "Report Published")
	assert.Contains(t, result, "special for 2025-09-10")
	assert.Contains(t, result, "reports/2025-09-10_13_special.jpeg")
	assert.Contains(t, result, "<code>0123456789ab</code>")
	assert.NotContains(t, result, "degraded")
}

func TestFormatSummary_SkippedAndDegraded(t *testing.T) {
	summary := publishedSummary()
	summary.Status = models.StateSkipped
	summary.SyncState = models.StateDegraded
	summary.Commit = ""

	result := formatSummary(summary)

	assert.Contains(t, result, "Report Unchanged")
	assert.Contains(t, result, "degraded")
	assert.NotContains(t, result, "Commit")
}

func TestFormatSummary_Failure(t *testing.T) {
	summary := publishedSummary()
	summary.Status = models.StateFailed
	summary.FailedStep = "archive"
	summary.Error = "source report not found: /data/<posebni>.jpeg"

	result := formatSummary(summary)

	assert.Contains(t, result, "Report Upload Failed")
	assert.Contains(t, result, "Failed step: archive")
	assert.Contains(t, result, "/data/&lt;posebni&gt;.jpeg")
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"<script>", "&lt;script&gt;"},
		{"a & b", "a &amp; b"},
		{"<>&", "&lt;&gt;&amp;"},
		{"normal text", "normal text"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeHTML(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
