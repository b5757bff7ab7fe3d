package stream

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns at most size bytes per Read call, simulating
// arbitrary network chunk boundaries.
type chunkedReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func record(content string) string {
	return `data: {"choices":[{"delta":{"content":` + jsonString(content) + `}}]}` + "\n"
}

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func collect(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		delta, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, delta)
	}
}

func newTestReader(body string) *Reader {
	return NewReader(io.NopCloser(strings.NewReader(body)), nil)
}

func TestReaderDeltas(t *testing.T) {
	body := record("Hello") + record(" world") + "data: [DONE]\n"
	got := collect(t, newTestReader(body))
	assert.Equal(t, []string{"Hello", " world"}, got)
}

func TestReaderChunkingInvariance(t *testing.T) {
	// Multi-byte content so small chunk sizes split characters mid-sequence.
	body := record("Hé") + record("llo 世") + record("界") + "data: [DONE]\n"
	want := collect(t, newTestReader(body))
	require.Equal(t, []string{"Hé", "llo 世", "界"}, want)

	for _, size := range []int{1, 2, 3, 5, 7, 16, 64, len(body)} {
		r := NewReader(io.NopCloser(&chunkedReader{data: []byte(body), size: size}), nil)
		assert.Equalf(t, want, collect(t, r), "chunk size %d", size)
	}
}

func TestReaderSentinelStopsStream(t *testing.T) {
	body := record("before") + "data: [DONE]\n" + record("after")
	r := newTestReader(body)
	assert.Equal(t, []string{"before"}, collect(t, r))

	// The sequence is not restartable.
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderSkipsMalformedRecords(t *testing.T) {
	body := record("a") + "data: {not json\n" + record("b") + "data: [DONE]\n"
	assert.Equal(t, []string{"a", "b"}, collect(t, newTestReader(body)))
}

func TestReaderIgnoresNonDataLines(t *testing.T) {
	body := ": keepalive comment\n" +
		"event: message\n" +
		"\n" +
		record("only") +
		"data: [DONE]\n"
	assert.Equal(t, []string{"only"}, collect(t, newTestReader(body)))
}

func TestReaderBareEOFTerminatesGracefully(t *testing.T) {
	// No sentinel, body just ends; the last line has no trailing newline.
	body := record("a") + strings.TrimSuffix(record("b"), "\n")
	assert.Equal(t, []string{"a", "b"}, collect(t, newTestReader(body)))
}

func TestReaderEmptyDeltaRecords(t *testing.T) {
	// Role-announcement chunks carry no content; the reader passes the empty
	// string through and the aggregator filters it.
	body := record("") + record("x") + "data: [DONE]\n"
	got := collect(t, newTestReader(body))
	assert.Equal(t, []string{"", "x"}, got)
}

type fakeSource struct {
	deltas []string
	err    error
	i      int
}

func (f *fakeSource) Next() (string, error) {
	if f.i < len(f.deltas) {
		d := f.deltas[f.i]
		f.i++
		return d, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeSource) Close() error { return nil }

func TestAggregatorEmitsRunningConcatenation(t *testing.T) {
	deltas := []string{"Hi", "", " there", "", "!"}
	agg := NewAggregator(&fakeSource{deltas: deltas})

	// The n-th emitted value equals the concatenation of the first n
	// non-empty deltas.
	var want []string
	acc := ""
	for _, d := range deltas {
		if d == "" {
			continue
		}
		acc += d
		want = append(want, acc)
	}

	var got []string
	for {
		full, err := agg.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, full)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "Hi there!", agg.Text())
}

func TestAggregatorPropagatesFailureAndKeepsText(t *testing.T) {
	boom := errors.New("connection reset")
	agg := NewAggregator(&fakeSource{deltas: []string{"partial"}, err: boom})

	full, err := agg.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", full)

	_, err = agg.Next()
	assert.ErrorIs(t, err, boom)
	// What was emitted before the failure is not retracted.
	assert.Equal(t, "partial", agg.Text())
}

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestTransportErrorFromStructuredBody(t *testing.T) {
	te := NewTransportError(newResponse(401, `{"error":{"message":"invalid key"}}`))
	assert.Equal(t, 401, te.StatusCode)
	assert.Equal(t, "LLM API error: invalid key", te.Error())
}

func TestTransportErrorFromRawBody(t *testing.T) {
	te := NewTransportError(newResponse(502, "upstream exploded\n"))
	assert.Equal(t, "LLM API error: upstream exploded", te.Error())
}

func TestTransportErrorFromStatusOnly(t *testing.T) {
	te := NewTransportError(newResponse(503, ""))
	assert.Equal(t, "LLM API error: Service Unavailable", te.Error())
}
