package transport

import "context"

// Message is an inbound chat message, already normalized away from the
// concrete bot library's types.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromFullName string
	Text         string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is a concrete bot transport (Telegram today).
//
// Start begins delivering inbound messages to out; it must not block beyond
// initial setup. Stop is best-effort graceful and must be safe to call when
// not started.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
