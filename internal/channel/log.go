package channel

import (
	"context"

	logx "bandbot/pkg/logx"
)

// Log is a channel that writes notifications to the structured log instead
// of an external provider. Used in development and as the fallback when no
// transport is configured.
type Log struct {
	name string
	log  logx.Logger
}

func NewLog(name string, log logx.Logger) *Log {
	if name == "" {
		name = string(TypeLog)
	}
	return &Log{name: name, log: log.With(logx.String("channel", name))}
}

func (l *Log) Name() string { return l.name }

func (l *Log) SendNotification(_ context.Context, message string, opts map[string]any) error {
	l.log.Info("notification", logx.String("message", message), logx.Int64("chat_id", optInt64(opts, OptChatID)))
	return nil
}

func (l *Log) HandleCommand(_ context.Context, command string, _ map[string]any) error {
	l.log.Info("command received", logx.String("command", command))
	return nil
}

func (l *Log) OnStart(context.Context) error { return nil }
func (l *Log) OnStop(context.Context) error  { return nil }
