package personalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coldreach/models"
)

const systemPrompt = "You are an expert at writing personalized cold emails. " +
	"Write concise, natural-sounding copy tailored to the recipient. " +
	"Return only the requested text with no preamble or explanation."

// Backend generates text from a prompt. Implementations wrap one AI
// provider each; the engine only sees this interface.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatBackend talks to an OpenAI-compatible chat completions endpoint.
// OpenAI and DeepSeek differ only in base URL and default model.
type ChatBackend struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
}

const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com/v1"
)

// NewBackend builds the backend for a user's configured provider.
// Returns an error when the provider has no API key so callers fall back
// to template-only rendering.
func NewBackend(user *models.User, openAIKey, deepSeekKey string) (Backend, error) {
	model := user.AIModel
	switch user.AIProvider {
	case "deepseek":
		if deepSeekKey == "" {
			return nil, fmt.Errorf("no deepseek api key configured")
		}
		if model == "" {
			model = "deepseek-chat"
		}
		return newChatBackend("deepseek", deepSeekBaseURL, deepSeekKey, model), nil
	case "openai", "":
		if openAIKey == "" {
			return nil, fmt.Errorf("no openai api key configured")
		}
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newChatBackend("openai", openAIBaseURL, openAIKey, model), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", user.AIProvider)
	}
}

func newChatBackend(provider, baseURL, apiKey, model string) *ChatBackend {
	return &ChatBackend{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *ChatBackend) Name() string { return b.provider }

// Model exposes the resolved model name for audit logging.
func (b *ChatBackend) Model() string { return b.model }

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
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b *ChatBackend) Complete(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   500,
		Temperature: 0.7,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", b.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%s returned invalid json: %w", b.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("%s error: %s", b.provider, parsed.Error.Message)
		}
		return "", fmt.Errorf("%s returned status %d", b.provider, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", b.provider)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
