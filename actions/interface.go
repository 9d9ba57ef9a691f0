package actions

import (
	"context"

	"voice-dispatcher/command_router"
)

// Interface runs the handler for one intent. Dispatch never fails: handler
// errors are spoken as apologies and logged.
type Interface interface {
	Dispatch(ctx context.Context, intent command_router.Intent)
}

// Handler performs one kind of intent. Handlers speak their own apology
// before returning an error.
type Handler interface {
	Handle(ctx context.Context, payload string) error
}

// Speaker queues text to be spoken without waiting for it.
type Speaker interface {
	Submit(text string)
}

// Navigator opens a URL for the user.
type Navigator interface {
	Open(url string) error
}
