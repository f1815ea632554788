package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{
		APIKey:  "sk-test",
		Model:   "claude-3-7-sonnet-20250219",
		BaseURL: srv.URL,
	}, 512, 0.2)
}

func TestComplete_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-7-sonnet-20250219", body["model"])
		assert.EqualValues(t, 512, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-7-sonnet-20250219",
			"content": [{"type": "text", "text": "{\"validationStatus\":\"appropriate\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 40, "output_tokens": 12}
		}`))
	})

	resp, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, `{"validationStatus":"appropriate"}`, resp.Content)
	assert.Equal(t, 40, resp.PromptTokens)
	assert.Equal(t, 12, resp.CompletionTokens)
	assert.Equal(t, 52, resp.TotalTokens)
}

func TestComplete_MissingKey(t *testing.T) {
	client := NewClient(config.ProviderConfig{Model: "claude"}, 0, 0)

	_, err := client.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, providers.ErrMissingCredentials)
}

func TestComplete_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := client.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, providers.ErrMissingCredentials)
}

func TestComplete_Overloaded(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
	})

	_, err := client.Complete(context.Background(), "prompt")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, providers.ErrMissingCredentials)
	assert.Equal(t, 1, calls, "sdk retries are disabled")
}
