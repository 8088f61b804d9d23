package ingress

import (
	"context"
	"fmt"

	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/router"
)

// subscribeNotifications binds trade/signal lifecycle events to per-tenant
// Telegram messages, matching the teacher's NotifyTrade/NotifyPnL/NotifyError
// pattern but driven by bus events instead of direct callback wiring.
func (s *Service) subscribeNotifications(eventBus *bus.Bus) {
	eventBus.Subscribe(bus.TradeOpened, s.onTradeOpened)
	eventBus.Subscribe(bus.TradeClosed, s.onTradeClosed)
	eventBus.Subscribe(bus.SignalPendingConfirmation, s.onSignalPendingConfirmation)
	eventBus.Subscribe(bus.SignalFailed, s.onSignalFailed)
	eventBus.Subscribe(bus.SystemError, s.onSystemError)
}

func (s *Service) notifyTenant(tenantID, text string) {
	creds, err := s.st.GetCredentials(context.Background(), tenantID)
	if err != nil || creds.NotifyChatID == 0 {
		return
	}
	s.sendMarkdown(creds.NotifyChatID, text)
}

func (s *Service) onTradeOpened(evt bus.Event) {
	switch payload := evt.Payload.(type) {
	case router.MultiAccountExecutionResult:
		s.notifyTenant(evt.TenantID, formatExecutionResult(payload))
	case domain.Signal:
		s.notifyTenant(evt.TenantID, fmt.Sprintf("✅ *Trade Executed*\n\n*%s* %s", payload.Symbol, payload.Direction))
	}
}

func (s *Service) onTradeClosed(evt bus.Event) {
	sig, ok := evt.Payload.(domain.Signal)
	if !ok {
		return
	}
	s.notifyTenant(evt.TenantID, fmt.Sprintf("📊 *Position Closed*\n\n*%s* %s", sig.Symbol, sig.Direction))
}

func (s *Service) onSignalPendingConfirmation(evt bus.Event) {
	sig, ok := evt.Payload.(domain.Signal)
	if !ok {
		return
	}
	lot := "pending"
	if sig.ChosenLotSize != nil {
		lot = sig.ChosenLotSize.StringFixed(2)
	}
	s.notifyTenant(evt.TenantID, fmt.Sprintf(`⏳ *Signal Awaiting Confirmation*

*%s* %s
Entry: %s | SL: %s
Suggested lot: %s`, sig.Symbol, sig.Direction, sig.Entry.StringFixed(4), sig.StopLoss.StringFixed(4), lot))
}

func (s *Service) onSignalFailed(evt bus.Event) {
	sig, ok := evt.Payload.(domain.Signal)
	if !ok {
		return
	}
	s.notifyTenant(evt.TenantID, fmt.Sprintf("❌ *Signal Failed*\n\n*%s* %s\n%s", sig.Symbol, sig.Direction, sig.FailureReason))
}

func (s *Service) onSystemError(evt bus.Event) {
	err, ok := evt.Payload.(error)
	if !ok {
		return
	}
	s.notifyTenant(evt.TenantID, fmt.Sprintf("⚠️ *System Error*\n\n`%s`", err.Error()))
}

// formatExecutionResult summarizes a MultiAccountExecutionResult for a
// tenant notification. Pure function so it can be tested without a bot.
func formatExecutionResult(result router.MultiAccountExecutionResult) string {
	emoji := "✅"
	switch result.OverallStatus {
	case domain.SignalPartial:
		emoji = "⚠️"
	case domain.SignalFailed:
		emoji = "❌"
	}
	return fmt.Sprintf(`%s *Trade Executed*

Accounts: %d/%d succeeded`, emoji, result.SuccessfulAccounts, result.TotalAccounts)
}
