package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-1.5-flash"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Gemini calls the Gemini generateContent endpoint.
type Gemini struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

func NewGemini(c Config) *Gemini {
	g := &Gemini{
		client:      c.httpClient(),
		baseURL:     strings.TrimRight(c.BaseURL, "/"),
		apiKey:      c.APIKey,
		model:       c.Model,
		temperature: c.temperature(),
	}
	if g.baseURL == "" {
		g.baseURL = geminiBaseURL
	}
	if g.model == "" {
		g.model = geminiDefaultModel
	}
	return g
}

func (g *Gemini) SendMessage(ctx context.Context, prompt string) (string, error) {
	var r geminiRequest
	r.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	r.GenerationConfig.Temperature = g.temperature

	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("genai: gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("genai: gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// The request URL carries the API key.
		return "", fmt.Errorf("genai: gemini: request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("gemini", resp)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("genai: gemini: decode response: %w", err)
	}

	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("genai: gemini: no candidates returned")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
