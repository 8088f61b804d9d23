package ingress

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycopier/signalcopier/internal/broker"
	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/router"
	"github.com/relaycopier/signalcopier/internal/store"
	"github.com/relaycopier/signalcopier/internal/supervisor"
)

type fakeBotAPI struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBotAPI) GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBotAPI) StopReceivingUpdates() {}

type stubDialerForIngress struct{}

func (stubDialerForIngress) Connect(context.Context, domain.BrokerAccount, broker.ExecutorSettings) (*broker.Executor, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeBotAPI) {
	t.Helper()
	st, err := store.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)

	sup := supervisor.New(stubDialerForIngress{}, zerolog.Nop())
	eventBus := bus.New()
	api := &fakeBotAPI{}
	s := newService(api, st, nil, sup, eventBus, zerolog.Nop())
	return s, st, api
}

func TestCmdPauseAndResumeToggleSettings(t *testing.T) {
	s, st, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSettings(ctx, domain.TenantSettings{TenantID: "tenant-1"}))

	s.cmdPause(ctx, 100, "tenant-1")
	settings, err := st.GetSettings(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, settings.Paused)

	s.cmdResume(ctx, 100, "tenant-1")
	settings, err = st.GetSettings(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, settings.Paused)
}

func TestTenantIDForChatIDResolvesNotifyChat(t *testing.T) {
	_, st, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.SaveCredentials(ctx, domain.TenantCredentials{TenantID: "tenant-1", NotifyChatID: 555}))

	tenantID, err := st.TenantIDForChatID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)

	_, err = st.TenantIDForChatID(ctx, 999)
	require.Error(t, err)
}

func TestNotifyTenantSendsToStoredChatID(t *testing.T) {
	s, st, api := newTestService(t)
	ctx := context.Background()
	require.NoError(t, st.SaveCredentials(ctx, domain.TenantCredentials{TenantID: "tenant-1", NotifyChatID: 42}))

	s.notifyTenant("tenant-1", "hello")
	require.Len(t, api.sent, 1)
}

func TestNotifyTenantSkipsWhenNoChatConfigured(t *testing.T) {
	s, st, api := newTestService(t)
	require.NoError(t, st.SaveCredentials(context.Background(), domain.TenantCredentials{TenantID: "tenant-1"}))

	s.notifyTenant("tenant-1", "hello")
	assert.Len(t, api.sent, 0)
}

func TestFormatExecutionResultReflectsStatus(t *testing.T) {
	executed := formatExecutionResult(router.MultiAccountExecutionResult{
		TotalAccounts: 2, SuccessfulAccounts: 2, OverallStatus: domain.SignalExecuted,
	})
	assert.Contains(t, executed, "✅")

	partial := formatExecutionResult(router.MultiAccountExecutionResult{
		TotalAccounts: 2, SuccessfulAccounts: 1, OverallStatus: domain.SignalPartial,
	})
	assert.Contains(t, partial, "⚠️")
}

