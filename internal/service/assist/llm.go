package assist

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"mediconnect-backend/pkg/config"
)

// ErrNoAPIKey is returned when no language model is configured
var ErrNoAPIKey = errors.New("language model API key not configured")

// Message is one chat turn; Role is system, user or assistant
type Message struct {
	Role    string
	Content string
}

// ChatClient completes a chat history with one assistant reply
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// OpenAIClient calls any OpenAI-compatible chat completion endpoint
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient builds a client from cfg. It returns nil when no API key
// is set so callers fall back to canned answers.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	if cfg.APIKey == "" {
		return nil
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Chat sends the message history and returns the first choice
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrNoAPIKey
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("language model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
