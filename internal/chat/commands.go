package chat

import (
	"context"

	"go.uber.org/zap"
)

// Voice-command tokens emitted by the speech collaborator. They are
// programmatic triggers equivalent to the corresponding UI actions.
const (
	CommandSend       = "send message"
	CommandClearInput = "clear input"
	CommandNewChat    = "new chat"
)

// Command is one discrete event from the speech/UI collaborator. Transcript
// carries free text when the command needs it; for CommandSend an empty
// transcript means "send whatever the input box holds".
type Command struct {
	Name       string `json:"name"`
	Transcript string `json:"transcript"`
}

// InputProvider is the collaborator owning the current input text.
type InputProvider interface {
	Text() string
	Clear()
}

// RunCommands subscribes to the command channel and reacts until the channel
// closes or the context is cancelled. Commands are handled one at a time, so
// a send triggered by voice observes the same one-in-flight discipline as a
// send triggered by the UI.
func (c *Controller) RunCommands(ctx context.Context, cmds <-chan Command, input InputProvider, onUpdate func(full string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			c.handleCommand(ctx, cmd, input, onUpdate)
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd Command, input InputProvider, onUpdate func(string)) {
	switch cmd.Name {
	case CommandSend:
		text := cmd.Transcript
		if text == "" && input != nil {
			text = input.Text()
		}
		if err := c.SendMessage(ctx, text, onUpdate); err != nil {
			c.logger.Warn("voice-triggered send failed", zap.Error(err))
			return
		}
		if input != nil {
			input.Clear()
		}
	case CommandClearInput:
		if input != nil {
			input.Clear()
		}
	case CommandNewChat:
		c.NewChat()
	default:
		c.logger.Warn("dropping unknown command", zap.String("name", cmd.Name))
	}
}
