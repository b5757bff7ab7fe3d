package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/RichardoC/streampad/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

type fakeModel struct {
	out       string
	err       error
	gotPrompt string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, mc := range messages {
		for _, part := range mc.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.gotPrompt += text.Text
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.out}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.out, f.err
}

var exchange = []models.Message{
	{Role: models.RoleUser, Content: "Hello"},
	{Role: models.RoleModel, Content: "Hi there"},
}

func TestTitleStripsQuotes(t *testing.T) {
	m := &fakeModel{out: "\"Greeting Exchange\"\n"}
	titler := newTitlerWithModel(m, zap.NewNop())

	got := titler.Title(context.Background(), exchange)
	assert.Equal(t, "Greeting Exchange", got)

	// The prompt embeds the conversation verbatim.
	assert.True(t, strings.Contains(m.gotPrompt, "user: Hello"))
	assert.True(t, strings.Contains(m.gotPrompt, "model: Hi there"))
}

func TestTitleEmptyExchangeFallsBack(t *testing.T) {
	titler := newTitlerWithModel(&fakeModel{out: "never used"}, zap.NewNop())
	assert.Equal(t, models.DefaultTitle, titler.Title(context.Background(), nil))
}

func TestTitleNoCredentialFallsBack(t *testing.T) {
	titler := NewTitler(Config{}, zap.NewNop())
	assert.Equal(t, models.DefaultTitle, titler.Title(context.Background(), exchange))
}

func TestTitleRequestFailureFallsBack(t *testing.T) {
	titler := newTitlerWithModel(&fakeModel{err: errors.New("boom")}, zap.NewNop())
	assert.Equal(t, models.DefaultTitle, titler.Title(context.Background(), exchange))
}

func TestTitleBlankResultFallsBack(t *testing.T) {
	titler := newTitlerWithModel(&fakeModel{out: "  \"\"  "}, zap.NewNop())
	assert.Equal(t, models.DefaultTitle, titler.Title(context.Background(), exchange))
}
