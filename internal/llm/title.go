package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/streampad/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const titleTimeout = 15 * time.Second

// Titler produces a short human-readable label for a just-completed first
// exchange. It never fails outward: every error path degrades to the
// placeholder title.
type Titler struct {
	model  llms.Model
	logger *zap.Logger
}

func NewTitler(cfg Config, logger *zap.Logger) *Titler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return &Titler{logger: logger}
	}
	model := cfg.TitleModel
	if model == "" {
		model = cfg.Model
	}
	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(model),
	)
	if err != nil {
		logger.Warn("title model unavailable, sessions will keep the placeholder title", zap.Error(err))
		return &Titler{logger: logger}
	}
	return &Titler{model: llm, logger: logger}
}

// newTitlerWithModel wires an explicit model, used by tests.
func newTitlerWithModel(model llms.Model, logger *zap.Logger) *Titler {
	return &Titler{model: model, logger: logger}
}

// Title summarizes the exchange into at most a few words. Returns the
// placeholder title when the exchange is empty, no credential is configured,
// or the request fails.
func (t *Titler) Title(ctx context.Context, messages []models.Message) string {
	if len(messages) == 0 || t.model == nil {
		return models.DefaultTitle
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, t.model, buildTitlePrompt(messages))
	if err != nil {
		t.logger.Warn("title generation failed", zap.Error(err))
		return models.DefaultTitle
	}

	title := strings.Trim(strings.TrimSpace(out), "\"'`")
	if title == "" {
		return models.DefaultTitle
	}
	return title
}

func buildTitlePrompt(messages []models.Message) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation into a title of five words or fewer. Respond with the title only, no quotes.\n\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
