// Package notify implements best-effort consensus event notification:
// when the rule owning a ConsensusEvent enables notification_settings
// .telegram.enabled, a formatted alert is sent over Telegram. Modeled on
// internal/alerts.TelegramAlerter for message formatting and multi-chat
// fan-out, and internal/alerts.Manager for the never-fail Send contract.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// Sender delivers a formatted message to one or more chats, satisfied by
// TelegramSender.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// TelegramSender fans a message out to a fixed set of chat IDs via
// go-telegram-bot-api.
type TelegramSender struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewTelegramSender builds a TelegramSender against botToken, delivering to
// every chat in chatIDs.
func NewTelegramSender(botToken string, chatIDs []int64) (*TelegramSender, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: telegram bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot api: %w", err)
	}
	log.Info().Str("bot_username", api.Self.UserName).Int("chat_count", len(chatIDs)).
		Msg("telegram notification sender initialized")
	return &TelegramSender{api: api, chatIDs: chatIDs}, nil
}

// Send delivers text to every configured chat, continuing past individual
// chat failures and returning the last error seen only if every chat failed.
func (t *TelegramSender) Send(_ context.Context, text string) error {
	if len(t.chatIDs) == 0 {
		log.Warn().Msg("notify: no telegram chat ids configured, skipping")
		return nil
	}

	var lastErr error
	successCount := 0
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		if _, err := t.api.Send(msg); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("notify: telegram send failed")
			lastErr = err
			continue
		}
		successCount++
	}
	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("notify: failed to deliver to any chat: %w", lastErr)
	}
	return nil
}

// Dispatcher decides whether a ConsensusEvent's owning rule wants a
// notification and formats/sends it through Sender.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher builds a Dispatcher around sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// NotifyConsensus sends a formatted alert for ev if rule enables Telegram
// notifications. Any send failure is logged and swallowed: notification is
// best-effort and must never fail the caller's consensus-detection flow.
func (d *Dispatcher) NotifyConsensus(ctx context.Context, ev types.ConsensusEvent, rule types.ConsensusRule) {
	if d == nil || d.sender == nil || !rule.NotificationSettings.Telegram.Enabled {
		return
	}
	text := formatConsensusEvent(ev, rule)
	if err := d.sender.Send(ctx, text); err != nil {
		log.Error().Err(err).Str("event_id", ev.ID).Msg("notify: consensus event notification failed")
	}
}

func formatConsensusEvent(ev types.ConsensusEvent, rule types.ConsensusRule) string {
	text := fmt.Sprintf("📢 *Consensus: %s %s*\n\nRule: %s\nTraders: %d\nStrength: %.0f",
		ev.Ticker, ev.Direction, rule.Name, ev.TradersCount, ev.ConsensusStrength)
	if ev.AvgEntryPrice != nil {
		text += fmt.Sprintf("\nAvg entry: %.4f", *ev.AvgEntryPrice)
	}
	text += fmt.Sprintf("\n\n_Detected: %s_", ev.DetectedAt.Format("2006-01-02 15:04:05"))
	return text
}
