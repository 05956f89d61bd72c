package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mindloop-app/mindloop/pkg/memory"
)

// HTTPConfig points the generator at an OpenAI-compatible chat
// completions endpoint, typically a local inference server.
type HTTPConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// HTTPGenerator obtains replies from an OpenAI-compatible endpoint.
type HTTPGenerator struct {
	cfg        HTTPConfig
	httpClient *http.Client
}

func NewHTTPGenerator(cfg HTTPConfig) *HTTPGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &HTTPGenerator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, genReq Request) (string, error) {
	if g.cfg.APIBase == "" {
		return "", fmt.Errorf("generator API base not configured")
	}

	system := genReq.SystemPrompt
	if genReq.UserContext != "" {
		system += "\n\n" + genReq.UserContext
	}
	msgs := make([]chatMessage, 0, len(genReq.Messages)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: system})
	for _, m := range genReq.Messages {
		role := "user"
		if m.Role == memory.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}

	requestBody := map[string]interface{}{
		"model":    g.cfg.Model,
		"messages": msgs,
	}
	if g.cfg.MaxTokens > 0 {
		requestBody["max_tokens"] = g.cfg.MaxTokens
	}
	if g.cfg.Temperature > 0 {
		requestBody["temperature"] = g.cfg.Temperature
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIBase+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator request failed: status %d: %s", resp.StatusCode, string(body))
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("generator returned no choices")
	}
	return strings.TrimSpace(apiResponse.Choices[0].Message.Content), nil
}
