// Package ingress wires Telegram to the signal pipeline: one shared bot
// listener that fans channel posts into internal/router, plus a per-tenant
// command surface and trade/signal notifications driven off internal/bus.
// Grounded on the teacher's bot/telegram.go and internal/bot/telegram.go,
// adapted from a single-operator bot into a multi-tenant one.
package ingress

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/router"
	"github.com/relaycopier/signalcopier/internal/store"
	"github.com/relaycopier/signalcopier/internal/supervisor"
)

// botAPI is the subset of *tgbotapi.BotAPI the service depends on, so tests
// can substitute a fake instead of hitting the real Telegram API.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the shared ingress: one update loop reads every channel post
// the bot account can see and fans it into the router, and dispatches
// private-chat commands to the tenant that owns that chat.
type Service struct {
	api   botAPI
	st    *store.Store
	r     *router.Router
	sup   *supervisor.Supervisor
	log   zerolog.Logger
	mu    sync.Mutex
	stopC chan struct{}
	alive atomic.Bool
}

// New builds a Service against the real Telegram Bot API. It performs a
// network call (GetMe) to validate the token, matching tgbotapi.NewBotAPI.
func New(token string, st *store.Store, r *router.Router, sup *supervisor.Supervisor, eventBus *bus.Bus, log zerolog.Logger) (*Service, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return newService(api, st, r, sup, eventBus, log), nil
}

func newService(api botAPI, st *store.Store, r *router.Router, sup *supervisor.Supervisor, eventBus *bus.Bus, log zerolog.Logger) *Service {
	s := &Service{
		api:   api,
		st:    st,
		r:     r,
		sup:   sup,
		log:   log.With().Str("component", "ingress").Logger(),
		stopC: make(chan struct{}),
	}
	if eventBus != nil {
		s.subscribeNotifications(eventBus)
	}
	return s
}

// Start begins the shared update loop. It returns immediately; the loop
// runs in its own goroutine until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := s.api.GetUpdatesChan(u)
	s.alive.Store(true)

	go func() {
		defer s.alive.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopC:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				s.handleUpdate(ctx, update)
			}
		}
	}()
}

// Healthy reports whether the update loop is still running — the
// connmanager watchdog's transport-health read, distinct from the stored
// telegram_connected flag it reconciles against.
func (s *Service) Healthy() bool {
	return s.alive.Load()
}

// Stop ends the update loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopC:
		// already stopped
	default:
		close(s.stopC)
	}
	s.api.StopReceivingUpdates()
}

func (s *Service) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChannelPost != nil:
		s.handleChannelPost(ctx, update.ChannelPost)
	case update.Message != nil && update.Message.IsCommand():
		s.handleCommand(ctx, update.Message)
	}
}

func (s *Service) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	channelID := strconv.FormatInt(msg.Chat.ID, 10)
	s.r.RouteMessageToSubscribers(ctx, channelID, int64(msg.MessageID), msg.Text)
}

func (s *Service) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	tenantID, err := s.st.TenantIDForChatID(ctx, msg.Chat.ID)
	if err != nil {
		s.send(msg.Chat.ID, "❌ This chat is not linked to a tenant. Contact support to connect it.")
		return
	}

	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		s.cmdHelp(msg.Chat.ID)
	case "status":
		s.cmdStatus(ctx, msg.Chat.ID, tenantID)
	case "balance":
		s.cmdBalance(ctx, msg.Chat.ID, tenantID)
	case "positions":
		s.cmdPositions(ctx, msg.Chat.ID, tenantID)
	case "pause":
		s.cmdPause(ctx, msg.Chat.ID, tenantID)
	case "resume":
		s.cmdResume(ctx, msg.Chat.ID, tenantID)
	default:
		s.send(msg.Chat.ID, "❓ Unknown command. Use /help")
	}
}

func (s *Service) cmdHelp(chatID int64) {
	s.sendMarkdown(chatID, `🤖 *Signal Copier Commands*

📊 /status — connection & account status
💰 /balance — account balance
💼 /positions — open positions
⏸️ /pause — stop copying new signals
▶️ /resume — resume copying signals`)
}

func (s *Service) cmdStatus(ctx context.Context, chatID int64, tenantID string) {
	settings, err := s.st.GetSettings(ctx, tenantID)
	if err != nil {
		s.send(chatID, "❌ Could not load settings")
		return
	}
	pauseState := "🟢 ACTIVE"
	if settings.Paused {
		pauseState = "⏸️ PAUSED"
	}
	conn, connected := s.sup.Get(tenantID)
	accountState := "🔴 No accounts connected"
	if connected {
		accountState = fmt.Sprintf("🟢 %d/%d accounts connected", conn.ConnectedAccountCount(), len(conn.AllExecutors()))
	}
	s.sendMarkdown(chatID, fmt.Sprintf(`📊 *Status*

Copying: %s
Accounts: %s`, pauseState, accountState))
}

func (s *Service) cmdBalance(ctx context.Context, chatID int64, tenantID string) {
	conn, ok := s.sup.Get(tenantID)
	if !ok {
		s.send(chatID, "❌ No accounts connected")
		return
	}
	primary, ok := conn.PrimaryExecutor()
	if !ok {
		s.send(chatID, "❌ No accounts connected")
		return
	}
	snapshot, err := primary.GetAccountSnapshot(ctx)
	if err != nil {
		s.send(chatID, "❌ Failed to fetch balance")
		return
	}
	s.sendMarkdown(chatID, fmt.Sprintf(`💰 *Account Balance*

Balance: *$%s*
Equity: *$%s*
Margin: *$%s*`, snapshot.Balance.StringFixed(2), snapshot.Equity.StringFixed(2), snapshot.Margin.StringFixed(2)))
}

func (s *Service) cmdPositions(ctx context.Context, chatID int64, tenantID string) {
	conn, ok := s.sup.Get(tenantID)
	if !ok {
		s.send(chatID, "❌ No accounts connected")
		return
	}
	primary, ok := conn.PrimaryExecutor()
	if !ok {
		s.send(chatID, "❌ No accounts connected")
		return
	}
	snapshot, err := primary.GetAccountSnapshot(ctx)
	if err != nil {
		s.send(chatID, "❌ Failed to fetch positions")
		return
	}
	if len(snapshot.Positions) == 0 {
		s.send(chatID, "📭 No open positions")
		return
	}
	text := "💼 *Open Positions*\n\n"
	for _, pos := range snapshot.Positions {
		text += fmt.Sprintf("*%s* %s — %s lots @ %s\n", pos.Symbol, pos.Direction, pos.Volume.StringFixed(2), pos.OpenPrice.StringFixed(4))
	}
	s.sendMarkdown(chatID, text)
}

func (s *Service) cmdPause(ctx context.Context, chatID int64, tenantID string) {
	settings, err := s.st.GetSettings(ctx, tenantID)
	if err != nil {
		s.send(chatID, "❌ Could not load settings")
		return
	}
	settings.Paused = true
	if err := s.st.SaveSettings(ctx, settings); err != nil {
		s.send(chatID, "❌ Failed to pause")
		return
	}
	s.send(chatID, "⏸️ Signal copying paused")
}

func (s *Service) cmdResume(ctx context.Context, chatID int64, tenantID string) {
	settings, err := s.st.GetSettings(ctx, tenantID)
	if err != nil {
		s.send(chatID, "❌ Could not load settings")
		return
	}
	settings.Paused = false
	if err := s.st.SaveSettings(ctx, settings); err != nil {
		s.send(chatID, "❌ Failed to resume")
		return
	}
	s.send(chatID, "▶️ Signal copying resumed")
}

func (s *Service) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error().Err(err).Msg("failed to send telegram message")
	}
}

func (s *Service) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error().Err(err).Msg("failed to send telegram message")
	}
}
