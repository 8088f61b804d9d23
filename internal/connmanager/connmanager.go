// Package connmanager owns the full fleet of tenant connections: bringing
// tenants up at startup, and running the background watchdog and trade
// reconciler loops. Grounded on original_source/src/users/manager.py's
// UserConnectionManager (_connection_watchdog, _trade_sync_loop,
// _sync_closed_trades_for_account, _process_closed_trade) and the per-user
// mutex + panic-recover-restart pattern from
// 0xmtnslk-bitget-perp/services/trading_engine.go, plus the teacher's
// execution/reconciler.go RecoverPositions shape.
package connmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/store"
	"github.com/relaycopier/signalcopier/internal/supervisor"
)

// TelegramTransport reports whether the shared ingress update loop is
// actually alive, independent of the per-tenant telegram_connected flag the
// watchdog reconciles against it.
type TelegramTransport interface {
	Healthy() bool
}

// Manager owns tenant connection lifecycle plus the watchdog/reconciler
// background loops, one per-tenant mutex so two events for the same tenant
// never race while the fleet as a whole stays concurrent.
type Manager struct {
	store      *store.Store
	supervisor *supervisor.Supervisor
	bus        *bus.Bus
	log        zerolog.Logger
	transport  TelegramTransport

	watchdogInterval  time.Duration
	reconcileInterval time.Duration

	tenantLocksMu sync.RWMutex
	tenantLocks   map[string]*sync.Mutex

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds a Manager.
func New(st *store.Store, sup *supervisor.Supervisor, eventBus *bus.Bus, log zerolog.Logger, watchdogInterval, reconcileInterval time.Duration) *Manager {
	return &Manager{
		store:             st,
		supervisor:        sup,
		bus:               eventBus,
		log:               log.With().Str("component", "connmanager").Logger(),
		watchdogInterval:  watchdogInterval,
		reconcileInterval: reconcileInterval,
		tenantLocks:       make(map[string]*sync.Mutex),
	}
}

// SetTelegramTransport plugs in the transport-health source the watchdog
// checks each connected tenant's telegram_connected flag against.
func (m *Manager) SetTelegramTransport(t TelegramTransport) {
	m.transport = t
}

// lockFor returns the mutex guarding tenantID's connection operations,
// creating it on first use — mirrors 0xmtnslk-bitget-perp's
// userMutexes/userMutexLock map pattern.
func (m *Manager) lockFor(tenantID string) *sync.Mutex {
	m.tenantLocksMu.RLock()
	l, ok := m.tenantLocks[tenantID]
	m.tenantLocksMu.RUnlock()
	if ok {
		return l
	}

	m.tenantLocksMu.Lock()
	defer m.tenantLocksMu.Unlock()
	if l, ok := m.tenantLocks[tenantID]; ok {
		return l
	}
	l = &sync.Mutex{}
	m.tenantLocks[tenantID] = l
	return l
}

// ConnectTenant connects one tenant's broker accounts, serialized per
// tenant by lockFor so a concurrent reload/disconnect can't interleave.
func (m *Manager) ConnectTenant(ctx context.Context, tenantID string) error {
	lock := m.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	settings, err := m.store.GetSettings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load settings for %s: %w", tenantID, err)
	}
	accounts, err := m.store.BrokerAccountsForTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load accounts for %s: %w", tenantID, err)
	}

	_, err = m.supervisor.ConnectTenant(ctx, tenantID, accounts, settings)
	return err
}

// DisconnectTenant tears a tenant's connection down. Idempotent.
func (m *Manager) DisconnectTenant(tenantID string) {
	lock := m.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()
	m.supervisor.DisconnectTenant(tenantID)
}

// Start connects every active tenant and spawns the watchdog and reconciler
// loops. Mirrors UserConnectionManager.start().
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	tenants, err := m.store.ActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("load active tenants: %w", err)
	}
	for _, t := range tenants {
		if err := m.ConnectTenant(runCtx, t.ID); err != nil {
			m.log.Warn().Str("tenant_id", t.ID).Err(err).Msg("initial connect failed")
		}
	}

	m.wg.Add(2)
	go m.supervisedLoop(runCtx, "watchdog", m.watchdogInterval, m.runWatchdogTick)
	go m.supervisedLoop(runCtx, "reconciler", m.reconcileInterval, m.runReconcileTick)

	return nil
}

// Stop cancels the background loops and waits for them to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
	})
}

// supervisedLoop runs tick on interval until ctx is cancelled, recovering
// from any panic so one bad tick never kills the loop permanently — the
// panic-recover-restart shape grounded on 0xmtnslk-bitget-perp's safeGoTE.
func (m *Manager) supervisedLoop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runTickSafely(ctx, name, tick)
		}
	}
}

func (m *Manager) runTickSafely(ctx context.Context, name string, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("loop", name).Interface("panic", r).Msg("background loop tick panicked, continuing")
		}
	}()
	tick(ctx)
}

// runWatchdogTick checks every connected tenant's stored telegram_connected
// flag against the actual transport-health read and corrects the flag on
// mismatch, but never forces a reconnect — matching _connection_watchdog
// exactly.
func (m *Manager) runWatchdogTick(ctx context.Context) {
	conns := m.supervisor.All()
	healthy, unhealthy := 0, 0
	for _, c := range conns {
		if c.IsFullyConnected() {
			healthy++
		} else {
			unhealthy++
		}
		m.reconcileTelegramFlag(ctx, c)
	}
	m.log.Debug().Int("healthy", healthy).Int("unhealthy", unhealthy).Msg("watchdog tick")
}

// reconcileTelegramFlag compares the tenant's stored telegram_connected flag
// against the live transport-health read and corrects it on mismatch, both
// in the supervisor's in-memory view and in the persisted credentials row.
// No transport means nothing to reconcile against, so it's a no-op.
func (m *Manager) reconcileTelegramFlag(ctx context.Context, conn *supervisor.TenantConnection) {
	if m.transport == nil {
		return
	}
	actual := m.transport.Healthy()
	if conn.TelegramConnected == actual {
		return
	}

	m.log.Warn().Str("tenant_id", shortTag(conn.TenantID)).Bool("stored", conn.TelegramConnected).Bool("actual", actual).
		Msg("telegram_connected flag mismatch; reconciling")
	m.supervisor.SetTelegramConnected(conn.TenantID, actual)

	creds, err := m.store.GetCredentials(ctx, conn.TenantID)
	if err != nil {
		m.log.Warn().Str("tenant_id", shortTag(conn.TenantID)).Err(err).Msg("could not load credentials to reconcile telegram_connected")
		return
	}
	creds.TelegramConnected = actual
	if err := m.store.SaveCredentials(ctx, creds); err != nil {
		m.log.Warn().Str("tenant_id", shortTag(conn.TenantID)).Err(err).Msg("could not persist reconciled telegram_connected")
	}
}

// runReconcileTick diffs each connected tenant's DB {pending,open} trades
// against its live broker positions and closes the ones that vanished.
func (m *Manager) runReconcileTick(ctx context.Context) {
	for _, conn := range m.supervisor.All() {
		if conn.ConnectedAccountCount() == 0 {
			continue
		}
		if err := m.syncClosedTradesForTenant(ctx, conn.TenantID); err != nil {
			m.log.Warn().Str("tenant_id", shortTag(conn.TenantID)).Err(err).Msg("trade sync failed")
		}
	}
}

func (m *Manager) syncClosedTradesForTenant(ctx context.Context, tenantID string) error {
	conn, ok := m.supervisor.Get(tenantID)
	if !ok {
		return nil
	}

	openTrades, err := m.store.OpenTradesForSync(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	if len(openTrades) == 0 {
		return nil
	}

	for _, acct := range conn.AllExecutors() {
		if err := m.syncClosedTradesForAccount(ctx, tenantID, acct, openTrades); err != nil {
			m.log.Warn().Str("tenant_id", shortTag(tenantID)).Str("account_id", acct.Account.ID).Err(err).Msg("account trade sync failed")
		}
	}
	return nil
}

func (m *Manager) syncClosedTradesForAccount(ctx context.Context, tenantID string, acct *supervisor.AccountConnection, openTrades []domain.Trade) error {
	snapshot, err := acct.Executor.GetAccountSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("get account info: %w", err)
	}

	livePositions := make(map[string]struct{}, len(snapshot.Positions))
	for _, p := range snapshot.Positions {
		livePositions[p.ID] = struct{}{}
	}

	for _, trade := range openTrades {
		if trade.BrokerAccountID != acct.Account.ID {
			continue
		}
		if _, stillOpen := livePositions[trade.BrokerOrderID]; stillOpen {
			continue
		}
		if err := m.processClosedTrade(ctx, acct, trade); err != nil {
			m.log.Warn().Str("tenant_id", shortTag(tenantID)).Int64("trade_id", trade.ID).Err(err).Msg("failed to process closed trade")
		}
	}
	return nil
}

// processClosedTrade fetches the full deal history for the vanished
// position and sums profit across every deal (handling partial closes),
// mirroring _process_closed_trade.
func (m *Manager) processClosedTrade(ctx context.Context, acct *supervisor.AccountConnection, trade domain.Trade) error {
	deals, err := acct.Executor.DealsByPosition(ctx, trade.BrokerOrderID)
	if err != nil {
		return fmt.Errorf("get deals for position %s: %w", trade.BrokerOrderID, err)
	}
	if len(deals) == 0 {
		m.log.Warn().Str("tenant_id", shortTag(trade.TenantID)).Int64("trade_id", trade.ID).
			Msg("position closed with no deal history; marking closed with zero p&l")
	}

	profit, openPrice, closePrice, closedAt := summarizeDeals(deals)

	trade.Status = domain.TradeClosed
	trade.Profit = &profit
	if openPrice != nil {
		trade.OpenPrice = openPrice
	}
	trade.ClosePrice = closePrice
	trade.ClosedAt = closedAt
	if err := m.store.UpdateTrade(ctx, trade); err != nil {
		return fmt.Errorf("mark trade closed: %w", err)
	}

	m.bus.Publish(bus.Event{
		Kind:     bus.TradeClosed,
		TenantID: trade.TenantID,
		Payload:  trade,
	})
	return nil
}

// summarizeDeals sums profit across every deal on a position (handling
// partial closes, where several DEAL_ENTRY_OUT deals accumulate before the
// position fully vanishes), takes the open price from the first
// DEAL_ENTRY_IN deal, and returns the final close price/time from the last
// DEAL_ENTRY_OUT deal seen, mirroring _process_closed_trade.
func summarizeDeals(deals []domain.Deal) (profit decimal.Decimal, openPrice, closePrice *decimal.Decimal, closedAt *time.Time) {
	profit = decimal.Zero
	for _, d := range deals {
		profit = profit.Add(d.Profit)
		switch d.EntryType {
		case "DEAL_ENTRY_IN":
			if openPrice == nil {
				p := d.Price
				openPrice = &p
			}
		case "DEAL_ENTRY_OUT":
			p := d.Price
			closePrice = &p
			t := d.Time
			closedAt = &t
		}
	}
	return profit, openPrice, closePrice, closedAt
}

func shortTag(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
