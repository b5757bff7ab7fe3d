// Package chat owns the session collection and orchestrates a send: appending
// the user turn, streaming the model response into the trailing placeholder,
// and committing the final text or an error back to the store.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/RichardoC/streampad/internal/models"
	"github.com/RichardoC/streampad/internal/stream"
	"go.uber.org/zap"
)

// SendState is the controller's explicit send state machine. The only legal
// transitions are Idle->Sending on send and Sending->Idle on completion or
// failure.
type SendState int

const (
	StateIdle SendState = iota
	StateSending
)

var (
	// ErrSendInFlight rejects a send attempted while another is pending.
	// Session state is untouched in that case.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrEmptyMessage rejects blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoSuchSession reports an unknown session id.
	ErrNoSuchSession = errors.New("no such session")
)

// DeltaStream is one in-progress model response.
type DeltaStream interface {
	Next() (string, error)
	Close() error
}

// Streamer starts a streaming completion over the conversation so far.
type Streamer interface {
	StreamChat(ctx context.Context, history []models.Message) (DeltaStream, error)
}

// Titler summarizes a first exchange into a short session title. It must not
// fail: on any problem it returns a fallback title.
type Titler interface {
	Title(ctx context.Context, messages []models.Message) string
}

// Persister mirrors the session collection to durable storage.
type Persister interface {
	Save(sessions []models.ChatSession, activeID string) error
	Load() ([]models.ChatSession, string, error)
}

// Controller is the single writer over the session collection. Only one send
// may be in flight at a time.
type Controller struct {
	mu         sync.Mutex
	state      SendState
	sessions   []models.ChatSession
	activeID   string
	sendingID  string
	cancelSend context.CancelFunc
	titleWG    sync.WaitGroup

	streamer  Streamer
	titler    Titler
	persister Persister
	logger    *zap.Logger
}

// NewController restores persisted sessions and returns a ready controller. A
// load failure is logged and treated as empty state.
func NewController(streamer Streamer, titler Titler, persister Persister, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		streamer:  streamer,
		titler:    titler,
		persister: persister,
		logger:    logger,
	}
	sessions, activeID, err := persister.Load()
	if err != nil {
		logger.Warn("failed to restore sessions, starting empty", zap.Error(err))
		return c
	}
	c.sessions = sessions
	c.activeID = activeID
	return c
}

// SendMessage runs one full turn: create a session if none is active, append
// the user message and an empty model placeholder, stream the response into
// the placeholder, then commit the final text. Every full-text value is also
// republished through onUpdate (may be nil). On failure the placeholder is
// replaced wholesale by an error-role message; the user message stays.
func (c *Controller) SendMessage(ctx context.Context, content string, onUpdate func(full string)) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.state = StateSending

	ctx, cancel := context.WithCancel(ctx)
	c.cancelSend = cancel

	isNew := c.activeID == ""
	if isNew {
		sess := models.NewSession()
		c.sessions = append([]models.ChatSession{sess}, c.sessions...)
		c.activeID = sess.ID
	}
	sessID := c.activeID
	c.sendingID = sessID

	idx := c.indexOf(sessID)
	c.sessions[idx].Messages = append(c.sessions[idx].Messages,
		models.Message{Role: models.RoleUser, Content: content},
		models.Message{Role: models.RoleModel},
	)
	history := make([]models.Message, len(c.sessions[idx].Messages)-1)
	copy(history, c.sessions[idx].Messages[:len(c.sessions[idx].Messages)-1])
	c.persistLocked()
	c.mu.Unlock()

	final, err := c.runStream(ctx, sessID, history, onUpdate)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.sendingID = ""
	c.cancelSend = nil
	cancel()

	if err != nil {
		c.replaceTrailingLocked(sessID, models.Message{Role: models.RoleError, Content: err.Error()})
		c.persistLocked()
		return err
	}

	c.setTrailingLocked(sessID, final)
	c.persistLocked()

	if isNew {
		exchange := []models.Message{
			{Role: models.RoleUser, Content: content},
			{Role: models.RoleModel, Content: final},
		}
		c.titleWG.Add(1)
		go c.retitle(sessID, exchange)
	}
	return nil
}

func (c *Controller) runStream(ctx context.Context, sessID string, history []models.Message, onUpdate func(string)) (string, error) {
	src, err := c.streamer.StreamChat(ctx, history)
	if err != nil {
		return "", err
	}
	agg := stream.NewAggregator(src)
	defer agg.Close()

	for {
		full, err := agg.Next()
		if errors.Is(err, io.EOF) {
			return agg.Text(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", errors.New("response interrupted")
			}
			return "", err
		}
		c.mu.Lock()
		c.setTrailingLocked(sessID, full)
		c.mu.Unlock()
		if onUpdate != nil {
			onUpdate(full)
		}
	}
}

// retitle runs the one-shot title generation for a new session. The titler
// swallows its own failures, so the worst case is keeping the placeholder.
func (c *Controller) retitle(sessID string, exchange []models.Message) {
	defer c.titleWG.Done()
	title := c.titler.Title(context.Background(), exchange)

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(sessID)
	if idx < 0 {
		return
	}
	c.sessions[idx].Title = title
	c.persistLocked()
}

// Wait blocks until any pending title generation has finished. Used on
// shutdown so the last title still lands in the store.
func (c *Controller) Wait() {
	c.titleWG.Wait()
}

// Snapshot returns deep copies of the sessions plus the active id.
func (c *Controller) Snapshot() ([]models.ChatSession, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatSession, len(c.sessions))
	for i, sess := range c.sessions {
		out[i] = sess.Clone()
	}
	return out, c.activeID
}

// State reports the send state machine's current state.
func (c *Controller) State() SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectSession makes the given session active. Switching away cancels any
// in-flight send; the cancelled send finalizes its placeholder as an
// error-role message in the session it belongs to.
func (c *Controller) SelectSession(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) < 0 {
		return ErrNoSuchSession
	}
	if id == c.activeID {
		return nil
	}
	c.cancelInFlightLocked()
	c.activeID = id
	c.persistLocked()
	return nil
}

// NewChat clears the active-session pointer so the next send starts a fresh
// session. Cancels any in-flight send.
func (c *Controller) NewChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelInFlightLocked()
	c.activeID = ""
	c.persistLocked()
}

// DeleteSession removes a session. Deleting the session a response is
// streaming into cancels that send. When the active session goes, the newest
// remaining session becomes active; deleting the last session clears the
// persisted state entirely.
func (c *Controller) DeleteSession(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(id)
	if idx < 0 {
		return ErrNoSuchSession
	}
	if id == c.sendingID {
		c.cancelInFlightLocked()
	}
	c.sessions = append(c.sessions[:idx], c.sessions[idx+1:]...)
	if c.activeID == id {
		if len(c.sessions) > 0 {
			c.activeID = c.sessions[0].ID
		} else {
			c.activeID = ""
		}
	}
	c.persistLocked()
	return nil
}

func (c *Controller) cancelInFlightLocked() {
	if c.cancelSend != nil {
		c.cancelSend()
	}
}

func (c *Controller) indexOf(id string) int {
	for i, sess := range c.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

// setTrailingLocked overwrites the content of the trailing placeholder while
// it is still a model message. A session deleted mid-stream makes this a
// no-op.
func (c *Controller) setTrailingLocked(sessID, text string) {
	idx := c.indexOf(sessID)
	if idx < 0 {
		return
	}
	msgs := c.sessions[idx].Messages
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != models.RoleModel {
		return
	}
	msgs[len(msgs)-1].Content = text
}

func (c *Controller) replaceTrailingLocked(sessID string, msg models.Message) {
	idx := c.indexOf(sessID)
	if idx < 0 {
		return
	}
	msgs := c.sessions[idx].Messages
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != models.RoleModel {
		return
	}
	msgs[len(msgs)-1] = msg
}

func (c *Controller) persistLocked() {
	if err := c.persister.Save(c.sessions, c.activeID); err != nil {
		c.logger.Warn("failed to persist sessions", zap.Error(err))
	}
}
