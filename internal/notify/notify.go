// Package notify delivers best-effort trade alerts. Delivery failures are
// logged and never returned to the caller.
package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	// channel is set instead of chatID for "@name" destinations.
	channel string
	now     func() time.Time
}

// NewTelegram returns nil when token or chat id is missing; a nil *Telegram
// is a valid, silent notifier. The token is checked against the Bot API
// before returning.
func NewTelegram(token, chatID string) (*Telegram, error) {
	return newTelegram(token, chatID, tgbotapi.APIEndpoint)
}

func newTelegram(token, chatID, endpoint string) (*Telegram, error) {
	if token == "" || chatID == "" {
		return nil, nil
	}
	t := &Telegram{now: time.Now}
	if strings.HasPrefix(chatID, "@") {
		t.channel = chatID
	} else {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram chat id %q: %w", chatID, err)
		}
		t.chatID = id
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	t.bot = bot
	slog.Info("telegram notifications enabled", "bot", bot.Self.UserName)
	return t, nil
}

func (t *Telegram) Notify(text string) {
	if t == nil {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	}
	if _, err := t.bot.Send(msg); err != nil {
		slog.Error("telegram send failed", "error", err)
		return
	}
	slog.Debug("telegram message sent")
}

func (t *Telegram) NotifyTrade(symbol, side string, qty int, price float64, reason string) {
	if t == nil {
		return
	}
	var b strings.Builder
	b.WriteString("TRADE ALERT\n\n")
	fmt.Fprintf(&b, "Symbol: %s\n", symbol)
	fmt.Fprintf(&b, "Action: %s\n", side)
	fmt.Fprintf(&b, "Quantity: %d\n", qty)
	fmt.Fprintf(&b, "Price: $%s\n", decimal.NewFromFloat(price).StringFixed(2))
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Time: %s", t.now().Format("15:04:05"))
	t.Notify(b.String())
}

func (t *Telegram) DailyReport(trades int, pnl float64) {
	if t == nil {
		return
	}
	t.Notify(fmt.Sprintf("DAILY REPORT\n\nTotal Trades: %d\nTotal P&L: $%s\nDate: %s",
		trades, decimal.NewFromFloat(pnl).StringFixed(2), t.now().Format("2006-01-02")))
}
