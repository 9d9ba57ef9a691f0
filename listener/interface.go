package listener

import "context"

type Mode int

const (
	ModeWake Mode = iota
	ModeCommand
)

func (m Mode) String() string {
	if m == ModeCommand {
		return "command"
	}

	return "wake"
}

// Signals mirrors which loop may hold the capture stream. Exactly one flag is
// set whenever the coordinator is observed from outside.
type Signals struct {
	WakeActive    bool
	CommandActive bool
}

type Interface interface {
	// ListenLoop blocks until ctx is done. It only returns an error when the
	// capture stream cannot be opened or fails while in use.
	ListenLoop(ctx context.Context) error
	Signals() Signals
	Mode() Mode
}
