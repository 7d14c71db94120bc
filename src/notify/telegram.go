package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	logger "github.com/sirupsen/logrus"

	"tradeengine/src/model"
)

// TelegramNotifier pushes pipeline events to a Telegram chat. Construction
// and delivery failures degrade to log-only; the pipeline never waits on or
// fails because of a notification.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
}

func NewTelegramNotifier(cfg Config) *TelegramNotifier {
	if !cfg.TelegramEnabled {
		return &TelegramNotifier{enabled: false}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.WithError(err).Error("failed to create telegram bot, notifications disabled")
		return &TelegramNotifier{enabled: false}
	}

	logger.WithField("username", bot.Self.UserName).Info("telegram notifier connected")

	return &TelegramNotifier{
		bot:     bot,
		chatID:  cfg.TelegramChatID,
		enabled: true,
	}
}

func (n *TelegramNotifier) NotifySignal(sig *model.Signal) {
	n.send(fmt.Sprintf("*SIGNAL* %s %s\nEntry: %.2f\nSL: %.2f | Target: %.2f\nQty: %d | Confidence: %.0f",
		sig.Symbol, sig.Direction, sig.EntryPrice, sig.StopPrice, sig.TargetPrice,
		sig.RequestedQuantity, sig.Confidence))
}

func (n *TelegramNotifier) NotifyEntry(pos *model.Position) {
	stop, target := 0.0, 0.0
	if pos.StopOrder != nil {
		stop = pos.StopOrder.Price
	}
	if pos.TargetOrder != nil {
		target = pos.TargetOrder.Price
	}
	n.send(fmt.Sprintf("*OPEN* %s %s\nEntry: %.2f x%d\nSL: %.2f | Target: %.2f",
		pos.Symbol, pos.Direction, pos.EntryPrice, pos.Quantity, stop, target))
}

func (n *TelegramNotifier) NotifyExit(pos *model.Position) {
	emoji := "🔴"
	if pos.RealizedPnl > 0 {
		emoji = "💰"
	}
	n.send(fmt.Sprintf("%s *CLOSED* %s\nP&L: %.2f\nReason: %s",
		emoji, pos.Symbol, pos.RealizedPnl, pos.CloseReason))
}

func (n *TelegramNotifier) NotifyError(scope string, err error) {
	n.send(fmt.Sprintf("⚠️ *ERROR* [%s]\n%v", scope, err))
}

func (n *TelegramNotifier) NotifyStatus(message string) {
	n.send(message)
}

func (n *TelegramNotifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		logger.WithError(err).Error("failed to send telegram message")
	}
}
