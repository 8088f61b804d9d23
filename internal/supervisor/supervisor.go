// Package supervisor manages one tenant's live connections: its shared
// Telegram ingress registration and every broker account it has connected.
// Grounded on original_source/src/users/manager.py's UserConnection /
// connect_user / _connect_metaapi / reload_user_settings, and the
// teacher's core/engine.go Start/Stop orchestration shape.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycopier/signalcopier/internal/broker"
	"github.com/relaycopier/signalcopier/internal/domain"
)

// BridgeDialer provisions and wraps one broker account as an *broker.Executor.
// Implemented by the process wiring; kept as an interface so supervisor
// doesn't need to know bridge connection details.
type BridgeDialer interface {
	Connect(ctx context.Context, account domain.BrokerAccount, settings broker.ExecutorSettings) (*broker.Executor, error)
}

// AccountConnection pairs a BrokerAccount with its live executor.
type AccountConnection struct {
	Account     domain.BrokerAccount
	Executor    *broker.Executor
	IsConnected bool
}

// TenantConnection is one tenant's full live state.
type TenantConnection struct {
	TenantID          string
	TelegramConnected bool
	Accounts          map[string]*AccountConnection // keyed by BrokerAccount.ID
	ConnectedAt       time.Time
	LastActivity      time.Time
}

// IsFullyConnected reports whether Telegram and at least one account are up.
func (c *TenantConnection) IsFullyConnected() bool {
	return c.TelegramConnected && c.ConnectedAccountCount() > 0
}

// ConnectedAccountCount returns how many broker accounts are live.
func (c *TenantConnection) ConnectedAccountCount() int {
	n := 0
	for _, a := range c.Accounts {
		if a.IsConnected {
			n++
		}
	}
	return n
}

// PrimaryExecutor returns the primary account's executor, or any connected
// account's executor as a fallback, matching _connect_metaapi's
// "primary if connected else any-connected" rule.
func (c *TenantConnection) PrimaryExecutor() (*broker.Executor, bool) {
	var fallback *broker.Executor
	for _, a := range c.Accounts {
		if !a.IsConnected {
			continue
		}
		if a.Account.IsPrimary {
			return a.Executor, true
		}
		if fallback == nil {
			fallback = a.Executor
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

// AllExecutors returns every connected account's executor.
func (c *TenantConnection) AllExecutors() []*AccountConnection {
	out := make([]*AccountConnection, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.IsConnected {
			out = append(out, a)
		}
	}
	return out
}

// Supervisor owns the connect/disconnect lifecycle for every active tenant.
type Supervisor struct {
	mu          sync.RWMutex
	connections map[string]*TenantConnection
	dialer      BridgeDialer
	log         zerolog.Logger
}

// New builds a Supervisor.
func New(dialer BridgeDialer, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		connections: make(map[string]*TenantConnection),
		dialer:      dialer,
		log:         log.With().Str("component", "supervisor").Logger(),
	}
}

// ConnectTenant brings up a tenant's broker accounts and marks Telegram
// connected (the shared-listener model — ingress fans messages in directly,
// so there is no per-tenant Telegram dial here; skipTelegram in the
// original source is effectively always true in this deployment shape).
func (s *Supervisor) ConnectTenant(ctx context.Context, tenantID string, accounts []domain.BrokerAccount, settings domain.TenantSettings) (*TenantConnection, error) {
	s.mu.Lock()
	if _, exists := s.connections[tenantID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("tenant %s already connected", tenantID)
	}
	conn := &TenantConnection{
		TenantID:          tenantID,
		TelegramConnected: true,
		Accounts:          make(map[string]*AccountConnection),
		ConnectedAt:       time.Now(),
		LastActivity:      time.Now(),
	}
	s.connections[tenantID] = conn
	s.mu.Unlock()

	execSettings := broker.FromTenantSettings(settings)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, acct := range accounts {
		if !acct.IsActive {
			continue
		}
		wg.Add(1)
		go func(acct domain.BrokerAccount) {
			defer wg.Done()
			exec, err := s.dialer.Connect(ctx, acct, execSettings)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn().Str("tenant_id", shortTag(tenantID)).Str("account_id", acct.ID).Err(err).Msg("account connect failed")
				conn.Accounts[acct.ID] = &AccountConnection{Account: acct, IsConnected: false}
				return
			}
			conn.Accounts[acct.ID] = &AccountConnection{Account: acct, Executor: exec, IsConnected: true}
		}(acct)
	}
	wg.Wait()

	s.log.Info().Str("tenant_id", shortTag(tenantID)).Int("connected_accounts", conn.ConnectedAccountCount()).Msg("tenant connected")
	return conn, nil
}

// DisconnectTenant tears down a tenant's state. Idempotent: calling it on an
// already-disconnected tenant is a no-op, matching _disconnect_user.
func (s *Supervisor) DisconnectTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, tenantID)
	s.log.Info().Str("tenant_id", shortTag(tenantID)).Msg("tenant disconnected")
}

// Get returns a tenant's connection, if any.
func (s *Supervisor) Get(tenantID string) (*TenantConnection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[tenantID]
	return conn, ok
}

// All returns every currently connected tenant.
func (s *Supervisor) All() []*TenantConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TenantConnection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out
}

// SetTelegramConnected corrects tenantID's in-memory TelegramConnected flag,
// used by the watchdog when the transport-health read disagrees with it.
func (s *Supervisor) SetTelegramConnected(tenantID string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.connections[tenantID]; ok {
		c.TelegramConnected = connected
	}
}

// ReloadSettings rebuilds ExecutorSettings from settings and propagates them
// to every connected account's executor in place — the next execution on
// that account picks up the new values without any reconnect, exactly as
// reload_user_settings does in the original source.
func (s *Supervisor) ReloadSettings(tenantID string, settings domain.TenantSettings) error {
	s.mu.RLock()
	conn, ok := s.connections[tenantID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tenant %s not connected: %w", tenantID, domain.ErrNotFound)
	}

	execSettings := broker.FromTenantSettings(settings)
	for _, a := range conn.Accounts {
		if a.Executor != nil {
			a.Executor.ApplySettings(execSettings)
		}
	}
	s.log.Info().Str("tenant_id", shortTag(tenantID)).Msg("settings reloaded in place")
	return nil
}

func shortTag(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
