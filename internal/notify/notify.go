// Package notify sends operator alerts to a Telegram chat or channel.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers a short alert.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Telegram posts alerts through a bot.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string
	prefix  string
}

// NewTelegram connects the bot. chat is either a numeric chat id or a
// channel username such as "@lab_alerts".
func NewTelegram(token, chat string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(bot, chat)
}

// NewTelegramWithEndpoint is NewTelegram against a custom Bot API endpoint
// of the form "https://host/bot%s/%s".
func NewTelegramWithEndpoint(token, chat, endpoint string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(bot, chat)
}

func newTelegram(bot *tgbotapi.BotAPI, chat string) (*Telegram, error) {
	t := &Telegram{bot: bot, prefix: "pedalcam"}
	if strings.HasPrefix(chat, "@") {
		t.channel = chat
	} else {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: chat must be a numeric id or @channel: %q", chat)
		}
		t.chatID = id
	}
	log.Printf("notify: telegram bot @%s ready", bot.Self.UserName)
	return t, nil
}

// Notify sends text as an HTML message.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := "<b>" + html.EscapeString(t.prefix) + "</b>: " + html.EscapeString(text)

	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, body)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, body)
	}
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Dedup suppresses repeats of the same alert text within a window, so a
// flapping camera does not flood the chat.
type Dedup struct {
	next   Notifier
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewDedup wraps next.
func NewDedup(next Notifier, window time.Duration) *Dedup {
	return &Dedup{next: next, window: window, now: time.Now, sent: make(map[string]time.Time)}
}

// Notify forwards text unless it was sent within the window.
func (d *Dedup) Notify(ctx context.Context, text string) error {
	now := d.now()

	d.mu.Lock()
	if last, ok := d.sent[text]; ok && now.Sub(last) < d.window {
		d.mu.Unlock()
		return nil
	}
	d.sent[text] = now
	for k, t := range d.sent {
		if now.Sub(t) >= d.window {
			delete(d.sent, k)
		}
	}
	d.mu.Unlock()

	return d.next.Notify(ctx, text)
}

// Fake records alerts for tests.
type Fake struct {
	mu       sync.Mutex
	messages []string
	Err      error
}

// Notify records text.
func (f *Fake) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.messages = append(f.messages, text)
	return nil
}

// Messages returns the recorded alerts.
func (f *Fake) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}
