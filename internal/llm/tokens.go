package llm

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

type tokenCounter interface {
	Count(text string) int
}

// newTokenCounter prefers a real BPE count; if the encoding cannot be loaded
// (offline first run), it falls back to the usual bytes/4 estimate.
func newTokenCounter(logger *zap.Logger) tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using heuristic token counts", zap.Error(err))
		return heuristicCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	return len(text)/4 + 1
}
