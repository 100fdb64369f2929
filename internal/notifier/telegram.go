package notifier

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends operator alerts to one or more chats. Chat ids are numeric ids or
// @channel usernames.
type Telegram struct {
	token    string
	endpoint string
	chatIDs  []string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(botToken string, chatIDs []string) *Telegram {
	return &Telegram{
		token:    botToken,
		endpoint: tgbotapi.APIEndpoint,
		chatIDs:  chatIDs,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.endpoint = strings.TrimSuffix(u, "/") + "/bot%s/%s"
	return t
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	bot, err := t.connect()
	if err != nil {
		return err
	}

	text := formatMessage(n)

	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := newMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send to %s: %w", chatID, err)
		}
	}

	return nil
}

// connect creates the bot client on first use so a Telegram outage never blocks startup.
func (t *Telegram) connect() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}

	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func newMessage(chatID, text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(chatID, text)
}

func formatMessage(n Notification) string {
	switch n.Kind {
	case KindPosted:
		return fmt.Sprintf(`🐦 <b>Posted as @%s</b>

%s

<b>ID:</b> %s`, html.EscapeString(n.Account), html.EscapeString(n.Text), html.EscapeString(n.PostID))
	case KindQuotaExhausted:
		return fmt.Sprintf(`⚠️ <b>Quota exhausted</b>

<b>Account:</b> %s
%s`, html.EscapeString(n.Account), html.EscapeString(n.Text))
	default:
		return html.EscapeString(n.Text)
	}
}
