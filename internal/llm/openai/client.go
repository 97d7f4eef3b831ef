package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"property-analyzer/internal/llm"
	"property-analyzer/internal/shared/telemetry"
)

const (
	defaultBaseURL       = "https://router.huggingface.co/v1"
	defaultModel         = "openai/gpt-oss-20b:together"
	defaultMaxTokens     = 10000
	defaultTemperature   = 0.1
	defaultMaxInputChars = 8000
)

// Config holds the provider settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxInputChars int
	Timeout       time.Duration
}

// Client implements llm.Summarizer against an OpenAI-compatible chat completions API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a new client. The API key is sent as a bearer token.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = defaultMaxInputChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = cfg.Timeout

	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Summarize sends one document's text and returns the cleaned report section.
// Every failure is a *llm.SummarizationError.
func (c *Client) Summarize(ctx context.Context, input llm.SummaryInput) (string, error) {
	content, err := c.complete(ctx, BuildPrompt(input.DocumentName, input.Text, c.cfg.MaxInputChars))
	if err != nil {
		return "", &llm.SummarizationError{Document: input.DocumentName, Err: err}
	}
	cleaned := CleanResponse(content)
	if cleaned == "" {
		return "", &llm.SummarizationError{Document: input.DocumentName, Err: errors.New("empty response")}
	}
	return cleaned, nil
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	reqMessages := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, chatMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    reqMessages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("llm request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("llm http %d: %s", resp.StatusCode, truncate(string(body), 300))
		}
		return "", fmt.Errorf("llm response parse: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("llm http %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response missing choices")
	}

	fields := map[string]any{
		"model":       c.cfg.Model,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if parsed.Usage != nil {
		fields["prompt_tokens"] = parsed.Usage.PromptTokens
		fields["completion_tokens"] = parsed.Usage.CompletionTokens
		fields["total_tokens"] = parsed.Usage.TotalTokens
	}
	telemetry.Info("llm.response", fields)

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ llm.Summarizer = (*Client)(nil)
