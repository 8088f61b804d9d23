package supervisor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycopier/signalcopier/internal/broker"
	"github.com/relaycopier/signalcopier/internal/domain"
)

type stubDialer struct {
	fail map[string]bool
}

func (d *stubDialer) Connect(_ context.Context, account domain.BrokerAccount, settings broker.ExecutorSettings) (*broker.Executor, error) {
	if d.fail[account.ID] {
		return nil, assertErr
	}
	return broker.NewExecutor(nil, account.BridgeAccountID, account.TenantID, settings), nil
}

var assertErr = errDial{}

type errDial struct{}

func (errDial) Error() string { return "dial failed" }

func TestConnectTenantConnectsActiveAccountsOnly(t *testing.T) {
	s := New(&stubDialer{}, zerolog.Nop())
	accounts := []domain.BrokerAccount{
		{ID: "a1", TenantID: "t1", IsActive: true, IsPrimary: true},
		{ID: "a2", TenantID: "t1", IsActive: false},
	}
	conn, err := s.ConnectTenant(context.Background(), "t1", accounts, domain.TenantSettings{})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.ConnectedAccountCount())
}

func TestConnectTenantRejectsDoubleConnect(t *testing.T) {
	s := New(&stubDialer{}, zerolog.Nop())
	_, err := s.ConnectTenant(context.Background(), "t1", nil, domain.TenantSettings{})
	require.NoError(t, err)

	_, err = s.ConnectTenant(context.Background(), "t1", nil, domain.TenantSettings{})
	assert.Error(t, err)
}

func TestPrimaryExecutorPrefersPrimaryAccount(t *testing.T) {
	s := New(&stubDialer{}, zerolog.Nop())
	accounts := []domain.BrokerAccount{
		{ID: "a1", TenantID: "t1", IsActive: true, IsPrimary: false},
		{ID: "a2", TenantID: "t1", IsActive: true, IsPrimary: true},
	}
	conn, err := s.ConnectTenant(context.Background(), "t1", accounts, domain.TenantSettings{})
	require.NoError(t, err)

	exec, ok := conn.PrimaryExecutor()
	require.True(t, ok)
	assert.Same(t, conn.Accounts["a2"].Executor, exec)
	assert.True(t, conn.Accounts["a2"].IsConnected)
}

func TestPrimaryExecutorFallsBackToAnyConnected(t *testing.T) {
	s := New(&stubDialer{fail: map[string]bool{"a2": true}}, zerolog.Nop())
	accounts := []domain.BrokerAccount{
		{ID: "a1", TenantID: "t1", IsActive: true, IsPrimary: false},
		{ID: "a2", TenantID: "t1", IsActive: true, IsPrimary: true},
	}
	conn, err := s.ConnectTenant(context.Background(), "t1", accounts, domain.TenantSettings{})
	require.NoError(t, err)

	_, ok := conn.PrimaryExecutor()
	require.True(t, ok)
	assert.False(t, conn.Accounts["a2"].IsConnected)
	assert.True(t, conn.Accounts["a1"].IsConnected)
}

func TestDisconnectTenantIsIdempotent(t *testing.T) {
	s := New(&stubDialer{}, zerolog.Nop())
	s.DisconnectTenant("never-connected")

	_, err := s.ConnectTenant(context.Background(), "t1", nil, domain.TenantSettings{})
	require.NoError(t, err)
	s.DisconnectTenant("t1")
	s.DisconnectTenant("t1")

	_, ok := s.Get("t1")
	assert.False(t, ok)
}

func TestReloadSettingsUnknownTenantErrors(t *testing.T) {
	s := New(&stubDialer{}, zerolog.Nop())
	err := s.ReloadSettings("missing", domain.TenantSettings{})
	assert.Error(t, err)
}
