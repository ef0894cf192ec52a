// Package telegram delivers operator log lines to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Config selects the bot and the chat that receives operator messages.
type Config struct {
	Token    string
	ChatID   int64
	ThreadID int

	// APIURL overrides the Bot API endpoint (tests point it at httptest).
	APIURL string
}

// Notifier implements logx.Notifier. Apply may swap the bot at runtime.
type Notifier struct {
	mu  sync.RWMutex
	cfg Config
	bot *tele.Bot
}

func NewNotifier(cfg Config) (*Notifier, error) {
	n := &Notifier{}
	if err := n.Apply(cfg); err != nil {
		return nil, err
	}
	return n, nil
}

// Apply installs cfg. An empty token disables delivery without error.
func (n *Notifier) Apply(cfg Config) error {
	cfg.Token = strings.TrimSpace(cfg.Token)

	n.mu.RLock()
	same := n.bot != nil && n.cfg.Token == cfg.Token && n.cfg.APIURL == cfg.APIURL
	n.mu.RUnlock()

	var bot *tele.Bot
	switch {
	case cfg.Token == "":
	case same:
		n.mu.RLock()
		bot = n.bot
		n.mu.RUnlock()
	default:
		// Offline skips the getMe round trip; the token is checked on first send.
		b, err := tele.NewBot(tele.Settings{Token: cfg.Token, URL: cfg.APIURL, Offline: true})
		if err != nil {
			return err
		}
		bot = b
	}

	n.mu.Lock()
	n.cfg = cfg
	n.bot = bot
	n.mu.Unlock()
	return nil
}

// Enabled reports whether Notify would attempt a delivery.
func (n *Notifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.bot != nil && n.cfg.ChatID != 0
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	n.mu.RLock()
	bot, cfg := n.bot, n.cfg
	n.mu.RUnlock()
	if bot == nil || cfg.ChatID == 0 {
		return errors.New("telegram notifier not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := bot.Send(&tele.Chat{ID: cfg.ChatID}, text, &tele.SendOptions{
		ThreadID:              cfg.ThreadID,
		DisableWebPagePreview: true,
	})
	return err
}
