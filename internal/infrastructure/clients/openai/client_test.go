package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("grok", config.ProviderConfig{
		APIKey:       "test-key",
		Model:        "grok-3",
		BaseURL:      srv.URL + "/",
		RateLimitRPM: -1,
	}, Options{MaxTokens: 256, Temperature: 0.1})
}

func TestComplete_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "grok-3", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "validate me", req.Messages[1].Content)

		_, _ = w.Write([]byte(`{"model":"grok-3","choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`))
	})

	resp, err := client.Complete(context.Background(), "validate me")
	require.NoError(t, err)
	assert.Equal(t, "grok", resp.Provider)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 5, resp.CompletionTokens)
	assert.Equal(t, 17, resp.TotalTokens)
}

func TestComplete_MissingKey(t *testing.T) {
	client := NewClient("openai", config.ProviderConfig{RateLimitRPM: -1}, Options{})

	_, err := client.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, providers.ErrMissingCredentials)
	assert.Equal(t, defaultModel, client.Model())
}

func TestComplete_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, providers.ErrMissingCredentials)
}

func TestComplete_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp, err := client.Complete(context.Background(), "x")
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestComplete_EmptyChoicesKeepsUsage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":0}}`))
	})

	resp, err := client.Complete(context.Background(), "x")
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 9, resp.TotalTokens)
}

func TestComplete_RespectsDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	bucket := newTokenBucketWithRate(1, 1)
	require.NoError(t, bucket.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bucket.Wait(ctx), context.Canceled)
	assert.Nil(t, newTokenBucket(-1, 0))
}
