package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "induction-portal/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTemperature = 0.7

var testOpts = GenerationOptions{Temperature: &testTemperature, MaxOutputTokens: 2048}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ==========================
// Gemini
// ==========================

func TestGeminiModel_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gemini-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gen := body["generationConfig"].(map[string]interface{})
		assert.Equal(t, 0.7, gen["temperature"])
		assert.Equal(t, float64(2048), gen["maxOutputTokens"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "```json\n"}, {"text": validVerdict + "\n```"}},
				},
				"finishReason": "STOP",
			}},
		})
	}))
	defer server.Close()

	m, err := NewGeminiModel(ModelConfig{BaseURL: server.URL, APIKey: "gemini-key"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", m.Name())

	text, err := m.Generate(context.Background(), "grade this", testOpts)
	require.NoError(t, err)
	assert.Contains(t, text, `"averageScore":70.4`)
}

func TestGeminiModel_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"promptFeedback": map[string]string{"blockReason": "SAFETY"},
		})
	}))
	defer server.Close()

	m, err := NewGeminiModel(ModelConfig{BaseURL: server.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), "p", testOpts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGeminiModel_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "overloaded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{"parts": []map[string]string{{"text": "ok"}}},
			}},
		})
	}))
	defer server.Close()

	m, err := NewGeminiModel(ModelConfig{BaseURL: server.URL, APIKey: "k", MaxRetries: 2, Backoff: time.Millisecond})
	require.NoError(t, err)

	text, err := m.Generate(context.Background(), "p", testOpts)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeminiModel_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "API key invalid"})
	}))
	defer server.Close()

	m, err := NewGeminiModel(ModelConfig{BaseURL: server.URL, APIKey: "bad", MaxRetries: 3, Backoff: time.Millisecond})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), "p", testOpts)
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeminiModel_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	m, err := NewGeminiModel(ModelConfig{BaseURL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), "p", testOpts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExternalTimeout))
}

func TestNewModels_RequireKey(t *testing.T) {
	_, err := NewGeminiModel(ModelConfig{})
	assert.Error(t, err)
	_, err = NewOpenAIModel(ModelConfig{})
	assert.Error(t, err)
}

// ==========================
// OpenAI-compatible
// ==========================

func TestOpenAIModel_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, float64(2048), body["max_tokens"])
		msgs := body["messages"].([]interface{})
		assert.Equal(t, "grade this", msgs[0].(map[string]interface{})["content"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message": map[string]string{"role": "assistant", "content": validVerdict},
			}},
		})
	}))
	defer server.Close()

	m, err := NewOpenAIModel(ModelConfig{BaseURL: server.URL + "/", APIKey: "sk-test", Model: "gpt-test"})
	require.NoError(t, err)

	text, err := m.Generate(context.Background(), "grade this", testOpts)
	require.NoError(t, err)
	assert.Equal(t, validVerdict, text)
}

func TestOpenAIModel_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "slow down"})
	}))
	defer server.Close()

	m, err := NewOpenAIModel(ModelConfig{BaseURL: server.URL, APIKey: "sk", MaxRetries: 1, Backoff: time.Millisecond})
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), "p", testOpts)
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
}

func TestNewScoringModel(t *testing.T) {
	m, err := NewScoringModel("gemini", ModelConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", m.Name())

	m, err = NewScoringModel("openai", ModelConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Name())

	m, err = NewScoringModel("gemini", ModelConfig{})
	assert.Error(t, err)
	assert.Nil(t, m)

	_, err = NewScoringModel("claude", ModelConfig{APIKey: "k"})
	assert.Error(t, err)
}
