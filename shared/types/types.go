package types

import "context"

// Notification is one outbound message. PhotoURL is optional; when set the
// sink should try an image-with-caption send before degrading to text.
type Notification struct {
	ChatID                int64
	Text                  string
	PhotoURL              string
	Markdown              bool
	DisableWebPagePreview bool
}

// Sink delivers notifications to a chat. Both the interactive command path
// and the scheduled jobs talk to one of these rather than to a bot client,
// so either can be pointed at a real chat or at a test double.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
