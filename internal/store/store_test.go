package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycopier/signalcopier/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	return s
}

func TestFindOrCreateSignalDedupsOnTriple(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sig := domain.Signal{
		TenantID:   "tenant-1",
		ChannelID:  "chan-1",
		MessageID:  42,
		RawText:    "BUY XAUUSD",
		ReceivedAt: time.Now().UTC(),
		Status:     domain.SignalReceived,
	}

	first, created, err := s.FindOrCreateSignal(ctx, sig)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	second, created2, err := s.FindOrCreateSignal(ctx, sig)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateSignalDistinguishesMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := domain.Signal{
		TenantID:   "tenant-1",
		ChannelID:  "chan-1",
		ReceivedAt: time.Now().UTC(),
		Status:     domain.SignalReceived,
	}
	a := base
	a.MessageID = 1
	b := base
	b.MessageID = 2

	rowA, createdA, err := s.FindOrCreateSignal(ctx, a)
	require.NoError(t, err)
	rowB, createdB, err := s.FindOrCreateSignal(ctx, b)
	require.NoError(t, err)

	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, rowA.ID, rowB.ID)
}

func TestSaveAndGetSettingsRoundTripsListFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	settings := domain.TenantSettings{
		TenantID:                "tenant-1",
		MaxRiskPercent:          decimal.NewFromFloat(2.5),
		MaxLotSize:              decimal.NewFromFloat(0.1),
		MaxOpenTrades:           5,
		LotReferenceBalance:     decimal.NewFromInt(500),
		LotReferenceSizeGold:    decimal.NewFromFloat(0.04),
		LotReferenceSizeDefault: decimal.NewFromFloat(0.01),
		AutoAcceptSymbols:       map[string]struct{}{"XAUUSD": {}, "GOLD": {}},
		GoldMarketThreshold:     decimal.NewFromFloat(3.0),
		SplitTPs:                true,
		TPSplitRatios:           []decimal.Decimal{decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.3), decimal.NewFromFloat(0.2)},
		TPLotMode:               domain.TPLotModeSplit,
		EnableBreakeven:         true,
		SymbolSuffix:            "m",
		TelegramChannelIDs:      map[string]struct{}{"CHAN1": {}},
	}

	require.NoError(t, s.SaveSettings(ctx, settings))

	got, err := s.GetSettings(ctx, "tenant-1")
	require.NoError(t, err)

	assert.True(t, got.SplitTPs)
	assert.Equal(t, domain.TPLotModeSplit, got.TPLotMode)
	assert.Len(t, got.TPSplitRatios, 3)
	assert.Contains(t, got.AutoAcceptSymbols, "XAUUSD")
	assert.Contains(t, got.TelegramChannelIDs, "CHAN1")
}

func TestGetTenantNotFoundWrapsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTenant(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenTradesForSyncFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	open, err := s.SaveTrade(ctx, domain.Trade{
		TenantID: "t1", SignalID: 1, BrokerAccountID: "a1",
		Symbol: "XAUUSD", Direction: domain.Buy, LotSize: decimal.NewFromFloat(0.1),
		Status: domain.TradeOpen,
	})
	require.NoError(t, err)

	_, err = s.SaveTrade(ctx, domain.Trade{
		TenantID: "t1", SignalID: 2, BrokerAccountID: "a1",
		Symbol: "EURUSD", Direction: domain.Sell, LotSize: decimal.NewFromFloat(0.1),
		Status: domain.TradeClosed,
	})
	require.NoError(t, err)

	trades, err := s.OpenTradesForSync(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, open.ID, trades[0].ID)
}
