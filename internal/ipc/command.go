package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CommandChannel is the single-slot command mailbox. The controller writes,
// the monitor loop consumes. Last write wins when a command is replaced
// before the loop observes it.
type CommandChannel struct {
	path string
}

// NewCommandChannel binds the channel to the command slot under dir.
func NewCommandChannel(dir string) *CommandChannel {
	return &CommandChannel{path: filepath.Join(dir, CommandFile)}
}

// Path returns the slot file path.
func (c *CommandChannel) Path() string { return c.path }

// Send validates the action and atomically replaces the slot.
func (c *CommandChannel) Send(action string) (Command, error) {
	if !ValidAction(action) {
		return Command{}, fmt.Errorf("unknown command action %q", action)
	}
	cmd := Command{ID: uuid.NewString(), Action: action, IssuedAt: time.Now()}
	if err := writeJSONAtomic(c.path, cmd); err != nil {
		return Command{}, fmt.Errorf("write command: %w", err)
	}
	return cmd, nil
}

// Receive consumes the pending command, deleting the slot once it parses. A
// missing, unreadable, or corrupt slot is "no command": the loop must never
// fail a tick because of what the controller wrote.
func (c *CommandChannel) Receive() (Command, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return Command{}, false
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil || !ValidAction(cmd.Action) {
		// Garbage or an unknown action: consume it so the slot cannot jam.
		_ = os.Remove(c.path)
		return Command{}, false
	}
	_ = os.Remove(c.path)
	return cmd, true
}

// Pending reports whether a command slot exists that the loop has not
// consumed yet.
func (c *CommandChannel) Pending() bool {
	_, err := os.Stat(c.path)
	return err == nil
}
