package genai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/einterview/internal/genai"
)

func TestOpenAI_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "rate this", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"rating\":8}"}}]}`))
	}))
	defer srv.Close()

	g, err := genai.New(genai.Config{Provider: "openai", BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"})
	require.NoError(t, err)

	got, err := g.SendMessage(context.Background(), "rate this")
	require.NoError(t, err)
	assert.Equal(t, `{"rating":8}`, got)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
	}{
		"non-200 status":    {status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited"}}`},
		"api error payload": {status: http.StatusOK, body: `{"error":{"message":"bad key"}}`},
		"no choices":        {status: http.StatusOK, body: `{"choices":[]}`},
		"garbage body":      {status: http.StatusOK, body: `<html>`},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := genai.NewOpenAI(genai.Config{BaseURL: srv.URL}).SendMessage(context.Background(), "p")
			require.Error(t, err)
		})
	}
}

func TestGemini_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "rate this", req.Contents[0].Parts[0].Text)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"rating\":"},{"text":"8}"}]}}]}`))
	}))
	defer srv.Close()

	g, err := genai.New(genai.Config{Provider: "gemini", BaseURL: srv.URL, APIKey: "key-1", Model: "gemini-test"})
	require.NoError(t, err)

	got, err := g.SendMessage(context.Background(), "rate this")
	require.NoError(t, err)
	assert.Equal(t, `{"rating":8}`, got)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := genai.New(genai.Config{Provider: "palm"})
	require.Error(t, err)
}
