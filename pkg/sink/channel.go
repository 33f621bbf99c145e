package sink

import (
	"github.com/vnykmshr/taskpool/pkg/task"
)

// Channel forwards notifications to a buffered Go channel.
//
// Sends block when the buffer is full, which in turn stalls the pool's
// delivery loop. Size the buffer for the expected burst or drain C promptly.
type Channel struct {
	c chan task.Notification
}

// NewChannel creates a Channel sink with the given buffer size.
func NewChannel(buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{c: make(chan task.Notification, buffer)}
}

// C returns the receive side of the channel.
func (c *Channel) C() <-chan task.Notification {
	return c.c
}

// Notify implements Notifier.
func (c *Channel) Notify(n task.Notification) {
	c.c <- n
}

// OnProgress implements Sink.
func (c *Channel) OnProgress(id task.ID, message string) {
	c.Notify(FromCallback(task.KindProgress, id, message, task.Outcome{}))
}

// OnCompleted implements Sink.
func (c *Channel) OnCompleted(id task.ID, outcome task.Outcome) {
	c.Notify(FromCallback(task.KindCompleted, id, "", outcome))
}

// Close closes the channel so range loops over C end. Call it only after
// the pool delivering to c has shut down.
func (c *Channel) Close() {
	close(c.c)
}
