package channel

import (
	"context"
	"errors"
)

// Type identifies a concrete transport kind.
type Type string

const (
	TypeTelegram Type = "telegram"
	TypeDiscord  Type = "discord"
	TypeWhatsApp Type = "whatsapp"
	TypePush     Type = "push_notifications"
	TypeLog      Type = "log"
)

// ErrSendFailed wraps transport-level delivery failures. Callers get a typed
// error, never a panic; retry policy lives in the notify pipeline.
var ErrSendFailed = errors.New("notification send failed")

// Option keys for the opts maps passed to SendNotification/HandleCommand.
const (
	OptChatID         = "chat_id"         // int64: destination override
	OptParseMode      = "parse_mode"      // string: transport parse mode
	OptDisablePreview = "disable_preview" // bool
	OptFromName       = "from_name"       // string: inbound sender display name
	OptArgs           = "args"            // []string: inbound command arguments
)

// Channel is a notification transport. It owns no business logic; it is the
// seam between the band pipeline and an external messaging provider.
//
// OnStart/OnStop are invoked by the host runtime and must be idempotent when
// called twice in sequence without the opposite call in between. Instances
// share no mutable state; each is built from its own config.
type Channel interface {
	Name() string

	SendNotification(ctx context.Context, message string, opts map[string]any) error
	HandleCommand(ctx context.Context, command string, opts map[string]any) error

	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
}

// Config is the part of a channel's configuration common to all transports.
// Transport-specific fields live on the concrete implementation's config.
type Config struct {
	ChannelName string `json:"channel_name"`
}

func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

func optInt64(opts map[string]any, key string) int64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
