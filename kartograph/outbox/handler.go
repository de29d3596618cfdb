package outbox

import "context"

// Handler processes one fetched entry. A nil return marks the entry
// processed; any error takes the retry path and eventually dead-letters it.
type Handler interface {
	Handle(ctx context.Context, entry *Entry) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, entry *Entry) error

func (fn HandlerFunc) Handle(ctx context.Context, entry *Entry) error {
	return fn(ctx, entry)
}
