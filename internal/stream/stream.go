// Package stream consumes the line-delimited "data: <json>" response body of a
// streaming chat-completions request and turns it into a sequence of text
// deltas.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// chunk is the wire shape of one streamed record. Only the incremental content
// path is read; everything else the vendor sends is ignored.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Reader yields the text deltas of a single streaming response. It is a lazy,
// non-restartable sequence: records are parsed as lines complete, so chunk
// boundaries (including ones that split a multi-byte character) never corrupt
// a delta.
type Reader struct {
	body   io.ReadCloser
	r      *bufio.Reader
	logger *zap.Logger
	done   bool
}

func NewReader(body io.ReadCloser, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		body:   body,
		r:      bufio.NewReader(body),
		logger: logger,
	}
}

// Next returns the content of the next data record. It returns io.EOF once the
// stream has terminated, either via the [DONE] sentinel or end of body. A
// record may legitimately carry empty content; callers that only want text
// should skip those. Malformed records are logged and skipped, they never end
// the stream.
func (s *Reader) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			s.done = true
			if err != io.EOF {
				return "", fmt.Errorf("reading response stream: %w", err)
			}
			// The body can end on an unterminated line; process what we have.
			if strings.TrimSpace(line) == "" {
				return "", io.EOF
			}
		}

		payload, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), dataPrefix)
		if !ok {
			if s.done {
				return "", io.EOF
			}
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == doneSentinel {
			s.done = true
			return "", io.EOF
		}

		var c chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			s.logger.Warn("skipping malformed stream record", zap.Error(err))
			if s.done {
				return "", io.EOF
			}
			continue
		}
		if len(c.Choices) == 0 {
			if s.done {
				return "", io.EOF
			}
			continue
		}
		return c.Choices[0].Delta.Content, nil
	}
}

// Close releases the underlying response body. Safe to call after Next has
// returned io.EOF.
func (s *Reader) Close() error {
	return s.body.Close()
}
