package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	kit "bandbot/internal/transport"
	logx "bandbot/pkg/logx"
)

// fakeAdapter records sent texts and feeds inbound messages.
type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	targets []int64
	failErr error
	out     chan<- kit.Message
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Message) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return kit.MessageRef{}, f.failErr
	}
	f.sent = append(f.sent, text)
	f.targets = append(f.targets, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestTelegram(fa *fakeAdapter) *Telegram {
	return NewTelegram(TelegramConfig{
		Config:        Config{ChannelName: "telegram"},
		ChatID:        42,
		MessagePrefix: "[bot] ",
	}, fa, logx.Nop())
}

func TestTelegramSendNotification(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)

	if err := ch.SendNotification(context.Background(), "hello", nil); err != nil {
		t.Fatalf("SendNotification error: %v", err)
	}

	sent := fa.sentTexts()
	if len(sent) != 1 || sent[0] != "[bot] hello" {
		t.Fatalf("unexpected sent texts: %v", sent)
	}
	if fa.targets[0] != 42 {
		t.Fatalf("expected default chat id 42, got %d", fa.targets[0])
	}
}

func TestTelegramSendNotificationChatOverride(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)

	err := ch.SendNotification(context.Background(), "hi", map[string]any{OptChatID: int64(7)})
	if err != nil {
		t.Fatalf("SendNotification error: %v", err)
	}
	if fa.targets[0] != 7 {
		t.Fatalf("expected chat id override 7, got %d", fa.targets[0])
	}
}

func TestTelegramSendFailureIsTyped(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{failErr: errors.New("boom")}
	ch := newTestTelegram(fa)

	err := ch.SendNotification(context.Background(), "hello", nil)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}

func TestTelegramMuteSuppressesDelivery(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)

	if err := ch.HandleCommand(context.Background(), "mute", nil); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if !ch.Muted() {
		t.Fatal("expected channel to be muted")
	}
	if err := ch.SendNotification(context.Background(), "dropped", nil); err != nil {
		t.Fatalf("muted send should not error: %v", err)
	}
	// Only the mute ack went out.
	if got := fa.sentTexts(); len(got) != 1 || got[0] != "alerts muted" {
		t.Fatalf("unexpected sends while muted: %v", got)
	}

	if err := ch.HandleCommand(context.Background(), "unmute", nil); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if ch.Muted() {
		t.Fatal("expected channel to be unmuted")
	}
}

func TestTelegramStartCommandGreetsSender(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)

	err := ch.HandleCommand(context.Background(), "start", map[string]any{
		OptChatID:   int64(7),
		OptFromName: "Ada Lovelace",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := fa.sentTexts()
	if len(got) != 1 || !strings.Contains(got[0], "*Ada Lovelace*") {
		t.Fatalf("unexpected greeting: %v", got)
	}
}

func TestTelegramUnknownCommand(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)

	if err := ch.HandleCommand(context.Background(), "bogus", nil); err != nil {
		t.Fatalf("unknown command should reply, not fail: %v", err)
	}
	got := fa.sentTexts()
	if len(got) != 1 || !strings.Contains(got[0], "/bogus") {
		t.Fatalf("unexpected reply: %v", got)
	}
}

func TestTelegramLifecycleIdempotent(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)
	ctx := context.Background()

	if err := ch.OnStart(ctx); err != nil {
		t.Fatalf("OnStart: %v", err)
	}
	if err := ch.OnStart(ctx); err != nil {
		t.Fatalf("second OnStart should be a no-op: %v", err)
	}
	if err := ch.OnStop(ctx); err != nil {
		t.Fatalf("OnStop: %v", err)
	}
	if err := ch.OnStop(ctx); err != nil {
		t.Fatalf("second OnStop should be a no-op: %v", err)
	}
}

func TestTelegramStatusProvider(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	ch := newTestTelegram(fa)
	ch.SetStatusProvider(func() string { return "all good" })

	if err := ch.HandleCommand(context.Background(), "status", nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	if got := fa.sentTexts(); len(got) != 1 || got[0] != "all good" {
		t.Fatalf("unexpected status reply: %v", got)
	}
}
