// Package llm talks to an OpenAI-compatible chat-completions endpoint: a
// streaming chat call for conversation turns and a one-shot call for session
// titles.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/RichardoC/streampad/internal/models"
	"github.com/RichardoC/streampad/internal/stream"
	"go.uber.org/zap"
)

// Config holds the connection settings for the inference API.
type Config struct {
	// BaseURL is the API root, e.g. https://api.groq.com/openai/v1
	BaseURL string
	APIKey  string
	// Model used for conversation turns.
	Model string
	// TitleModel used for one-shot title generation; Model is used when empty.
	TitleModel string
	// MaxPromptTokens bounds the history sent upstream; oldest messages are
	// dropped first. Zero disables budgeting.
	MaxPromptTokens int
}

// ConfigurationError reports a required setting that is absent.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no %s configured", e.Setting)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	counter    tokenCounter
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		// No client-level timeout: the response body stays open for the
		// duration of the stream. Callers bound the request via ctx.
		httpClient: &http.Client{},
		counter:    newTokenCounter(logger),
		logger:     logger,
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

// StreamChat POSTs the conversation history and returns a reader over the
// incremental response. The caller owns the reader and must Close it.
func (c *Client) StreamChat(ctx context.Context, history []models.Message) (*stream.Reader, error) {
	if c.cfg.APIKey == "" {
		return nil, &ConfigurationError{Setting: "API key"}
	}

	msgs := c.budget(toAPIMessages(history))
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling chat API: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, stream.NewTransportError(resp)
	}
	return stream.NewReader(resp.Body, c.logger), nil
}

// toAPIMessages maps conversation roles onto the wire roles. Error-role
// messages are local annotations and never go upstream; the trailing empty
// placeholder is likewise skipped.
func toAPIMessages(history []models.Message) []apiMessage {
	out := make([]apiMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			out = append(out, apiMessage{Role: "user", Content: m.Content})
		case models.RoleModel:
			if m.Content == "" {
				continue
			}
			out = append(out, apiMessage{Role: "assistant", Content: m.Content})
		}
	}
	return out
}

// budget drops the oldest messages until the prompt fits MaxPromptTokens. The
// newest message is always kept so the current turn survives even when it is
// oversized on its own.
func (c *Client) budget(msgs []apiMessage) []apiMessage {
	if c.cfg.MaxPromptTokens <= 0 || len(msgs) <= 1 {
		return msgs
	}
	total := 0
	for _, m := range msgs {
		total += c.counter.Count(m.Content)
	}
	start := 0
	for total > c.cfg.MaxPromptTokens && start < len(msgs)-1 {
		total -= c.counter.Count(msgs[start].Content)
		start++
	}
	if start > 0 {
		c.logger.Debug("trimmed conversation history to token budget",
			zap.Int("dropped", start),
			zap.Int("budget", c.cfg.MaxPromptTokens))
	}
	return msgs[start:]
}
