// Package genai talks to hosted text-generation services.
package genai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.2
	maxErrorBody       = 2048
)

// Generator sends one prompt and returns the model's text reply. No conversation state is kept.
type Generator interface {
	SendMessage(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// New builds the Generator for c.Provider.
func New(c Config) (Generator, error) {
	switch c.Provider {
	case "openai", "":
		return NewOpenAI(c), nil
	case "gemini":
		return NewGemini(c), nil
	default:
		return nil, fmt.Errorf("genai: unknown provider %q", c.Provider)
	}
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) temperature() float64 {
	if c.Temperature <= 0 {
		return defaultTemperature
	}
	return c.Temperature
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("genai: %s: status %d: %s", provider, resp.StatusCode, body)
}
