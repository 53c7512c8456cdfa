package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	rtsup "bandbot/internal/runtime/supervisor"
	kit "bandbot/internal/transport"
	logx "bandbot/pkg/logx"
)

// TelegramConfig configures the Telegram channel. Immutable after
// construction.
type TelegramConfig struct {
	Config
	ChatID        int64
	MessagePrefix string
	UpdateBuffer  int
}

// StatusFunc renders an operational snapshot for the /status command.
type StatusFunc func() string

// DigestFunc renders an on-demand alert digest for the /digest command.
type DigestFunc func(ctx context.Context) (string, error)

// Telegram delivers notifications through a transport.Adapter and answers
// inbound chat commands. The adapter owns polling, chunking and the bot
// session; this type owns command routing and the mute switch.
type Telegram struct {
	cfg     TelegramConfig
	log     logx.Logger
	adapter kit.Adapter

	status StatusFunc
	digest DigestFunc

	mu      sync.Mutex
	started bool
	muted   bool
	sup     *rtsup.Supervisor
	updates chan kit.Message
}

func NewTelegram(cfg TelegramConfig, adapter kit.Adapter, log logx.Logger) *Telegram {
	if cfg.ChannelName == "" {
		cfg.ChannelName = string(TypeTelegram)
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 64
	}
	return &Telegram{
		cfg:     cfg,
		log:     log.With(logx.String("channel", cfg.ChannelName)),
		adapter: adapter,
	}
}

func (t *Telegram) Name() string { return t.cfg.ChannelName }

// SetStatusProvider installs the /status snapshot source. Must be called
// before OnStart.
func (t *Telegram) SetStatusProvider(fn StatusFunc) { t.status = fn }

// SetDigestProvider installs the /digest source. Must be called before
// OnStart.
func (t *Telegram) SetDigestProvider(fn DigestFunc) { t.digest = fn }

// OnStart begins the adapter's polling loop and the command dispatch loop.
// Calling it twice without an intervening OnStop is a no-op.
func (t *Telegram) OnStart(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.updates = make(chan kit.Message, t.cfg.UpdateBuffer)
	t.sup = rtsup.New(ctx, rtsup.WithLogger(t.log))
	sup := t.sup
	updates := t.updates
	t.mu.Unlock()

	if err := t.adapter.Start(ctx, updates); err != nil {
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()
		return fmt.Errorf("start adapter: %w", err)
	}

	sup.Go0("commands.dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case m := <-updates:
				t.dispatch(c, m)
			}
		}
	})

	t.log.Info("telegram channel started", logx.Int64("chat_id", t.cfg.ChatID))
	return nil
}

// OnStop stops the adapter and dispatch loop. Idempotent.
func (t *Telegram) OnStop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	sup := t.sup
	t.sup = nil
	t.mu.Unlock()

	err := t.adapter.Stop(ctx)
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(ctx)
	}
	t.log.Info("telegram channel stopped")
	return err
}

// SendNotification delivers message to the configured chat (or the
// OptChatID override). When the channel is muted the message is dropped
// without error: the band decision has already been committed and muting
// only suppresses delivery.
func (t *Telegram) SendNotification(ctx context.Context, message string, opts map[string]any) error {
	t.mu.Lock()
	muted := t.muted
	t.mu.Unlock()
	if muted {
		t.log.Debug("channel muted, dropping notification")
		return nil
	}

	chatID := optInt64(opts, OptChatID)
	if chatID == 0 {
		chatID = t.cfg.ChatID
	}
	parseMode := optString(opts, OptParseMode)
	if parseMode == "" {
		parseMode = "Markdown"
	}
	disablePreview := true
	if opts != nil {
		if v, ok := opts[OptDisablePreview].(bool); ok {
			disablePreview = v
		}
	}

	_, err := t.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, t.cfg.MessagePrefix+message, &kit.SendOptions{
		ParseMode:      parseMode,
		DisablePreview: disablePreview,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// HandleCommand processes one inbound command (without the leading slash).
func (t *Telegram) HandleCommand(ctx context.Context, command string, opts map[string]any) error {
	chatID := optInt64(opts, OptChatID)
	if chatID == 0 {
		chatID = t.cfg.ChatID
	}
	to := kit.ChatTarget{ChatID: chatID}

	switch command {
	case "start":
		name := optString(opts, OptFromName)
		if name == "" {
			name = "there"
		}
		return t.reply(ctx, to, fmt.Sprintf("Hello, *%s*! I am your trading bot.", name))
	case "status":
		if t.status == nil {
			return t.reply(ctx, to, "status unavailable")
		}
		return t.reply(ctx, to, t.status())
	case "digest":
		if t.digest == nil {
			return t.reply(ctx, to, "digest unavailable")
		}
		text, err := t.digest(ctx)
		if err != nil {
			t.log.Warn("digest command failed", logx.Err(err))
			return t.reply(ctx, to, "digest failed, check logs")
		}
		return t.reply(ctx, to, text)
	case "mute":
		t.setMuted(true)
		return t.reply(ctx, to, "alerts muted")
	case "unmute":
		t.setMuted(false)
		return t.reply(ctx, to, "alerts unmuted")
	default:
		return t.reply(ctx, to, fmt.Sprintf("unknown command: /%s", command))
	}
}

// Muted reports whether alert delivery is currently suppressed.
func (t *Telegram) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *Telegram) setMuted(v bool) {
	t.mu.Lock()
	t.muted = v
	t.mu.Unlock()
	t.log.Info("mute toggled", logx.Bool("muted", v))
}

func (t *Telegram) reply(ctx context.Context, to kit.ChatTarget, text string) error {
	_, err := t.adapter.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// dispatch routes one inbound message: "/cmd args..." goes to HandleCommand,
// anything else is echoed back (the bot's only non-command behavior).
func (t *Telegram) dispatch(ctx context.Context, m kit.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	opts := map[string]any{
		OptChatID:   m.ChatID,
		OptFromName: m.FromFullName,
	}

	if !strings.HasPrefix(text, "/") {
		if err := t.reply(ctx, kit.ChatTarget{ChatID: m.ChatID}, text); err != nil {
			t.log.Warn("echo failed", logx.Err(err))
		}
		return
	}

	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	// Strip the @botname suffix used in group chats.
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if len(fields) > 1 {
		opts[OptArgs] = fields[1:]
	}

	if err := t.HandleCommand(ctx, cmd, opts); err != nil {
		t.log.Warn("command failed", logx.String("command", cmd), logx.Err(err))
	}
}
