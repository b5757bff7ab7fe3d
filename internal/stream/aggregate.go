package stream

import "strings"

// DeltaSource is any finite sequence of text deltas ending in io.EOF.
type DeltaSource interface {
	Next() (string, error)
	Close() error
}

// Aggregator maintains a running concatenation of a delta sequence. Each call
// to Next consumes deltas until a non-empty one arrives and returns the full
// text accumulated so far, so downstream consumers never concatenate
// themselves. Errors from the source propagate unchanged; text emitted before
// a failure stays available via Text.
type Aggregator struct {
	src DeltaSource
	buf strings.Builder
}

func NewAggregator(src DeltaSource) *Aggregator {
	return &Aggregator{src: src}
}

func (a *Aggregator) Next() (string, error) {
	for {
		delta, err := a.src.Next()
		if err != nil {
			return "", err
		}
		if delta == "" {
			continue
		}
		a.buf.WriteString(delta)
		return a.buf.String(), nil
	}
}

// Text returns everything accumulated so far.
func (a *Aggregator) Text() string {
	return a.buf.String()
}

func (a *Aggregator) Close() error {
	return a.src.Close()
}
