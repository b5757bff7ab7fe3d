package models

import "github.com/google/uuid"

// Role tags a message as coming from the user, the model, or a failed request.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleError Role = "error"
)

// DefaultTitle is the placeholder title a session carries until the first
// exchange has been summarized.
const DefaultTitle = "New Chat"

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatSession is one conversation thread. Messages alternate user/model turns;
// the trailing model message may be empty while a response is streaming in, and
// may be replaced by an error-role message if the request fails.
type ChatSession struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// NewSession creates an empty session with a placeholder title.
func NewSession() ChatSession {
	return ChatSession{
		ID:       uuid.NewString(),
		Title:    DefaultTitle,
		Messages: []Message{},
	}
}

// Clone returns a deep copy, so callers can hand out snapshots without
// exposing the live message slice.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}
