package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// TelegramNotifier sends alerts through a Telegram bot.
type TelegramNotifier struct {
	bot    *tgbot.BotAPI
	chatID int64
	// channel is used instead of chatID for "@name" targets.
	channel string
}

// NewTelegramNotifier authenticates the bot and targets chat, which is either
// a numeric chat ID or a "@channel" username.
func NewTelegramNotifier(botToken, chat string) (*TelegramNotifier, error) {
	return newTelegramNotifier(botToken, chat, tgbot.APIEndpoint)
}

func newTelegramNotifier(botToken, chat, endpoint string) (*TelegramNotifier, error) {
	bot, err := tgbot.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "telegram: connect bot")
	}
	n := &TelegramNotifier{bot: bot}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		n.chatID = id
	} else {
		n.channel = chat
	}
	return n, nil
}

var levelMarker = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

// Send posts the alert as a MarkdownV2 message. The bot API client takes no
// context; its HTTP client timeout bounds the call.
func (t *TelegramNotifier) Send(_ context.Context, alert Alert) error {
	marker, ok := levelMarker[alert.Level]
	if !ok {
		marker = levelMarker[AlertInfo]
	}
	text := fmt.Sprintf("%s *%s*\n\n%s", marker,
		tgbot.EscapeText(tgbot.ModeMarkdownV2, alert.Title),
		tgbot.EscapeText(tgbot.ModeMarkdownV2, alert.Message))

	var msg tgbot.MessageConfig
	if t.channel != "" {
		msg = tgbot.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbot.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbot.ModeMarkdownV2

	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "telegram: send")
	}
	return nil
}
