package notifier

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramConfig configures the send-only Telegram sender. There is no
// poller, no command handlers, no inbound update processing: this exists
// purely to push alert text to one operator chat.
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
}

const telegramTextLimit = 4000

// TelegramSender implements Sender on top of gopkg.in/telebot.v4, sending
// alert text to a single fixed chat (and, optionally, forum thread).
type TelegramSender struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

// NewTelegramSender dials out to the Telegram Bot API. It does not start a
// poller; the returned sender only ever calls Bot.Send.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Poller: nil})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{
		bot:    b,
		chat:   &tele.Chat{ID: cfg.ChatID},
		thread: cfg.ThreadID,
	}, nil
}

func (t *TelegramSender) SendText(ctx context.Context, text string) error {
	for _, chunk := range splitTelegramText(text, telegramTextLimit) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: t.thread}
		if _, err := t.bot.Send(t.chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

// splitTelegramText splits long messages into chunks that are safe to send
// to Telegram. It prefers newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			if nl := lastIndexRune(rs[start:end], '\n'); nl > limit/2 {
				end = start + nl + 1
			}
		}

		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
