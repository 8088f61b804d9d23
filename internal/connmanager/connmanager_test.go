package connmanager

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycopier/signalcopier/internal/domain"
)

func TestSummarizeDealsSumsProfitAcrossPartialCloses(t *testing.T) {
	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()
	deals := []domain.Deal{
		{EntryType: "DEAL_ENTRY_IN", Price: decimal.NewFromFloat(1950), Profit: decimal.Zero, Time: t1.Add(-time.Hour)},
		{EntryType: "DEAL_ENTRY_OUT", Price: decimal.NewFromFloat(1955), Profit: decimal.NewFromFloat(25), Time: t1},
		{EntryType: "DEAL_ENTRY_OUT", Price: decimal.NewFromFloat(1960), Profit: decimal.NewFromFloat(15), Time: t2},
	}

	profit, openPrice, closePrice, closedAt := summarizeDeals(deals)

	assert.True(t, profit.Equal(decimal.NewFromFloat(40)))
	require.NotNil(t, openPrice)
	assert.True(t, openPrice.Equal(decimal.NewFromFloat(1950)))
	require.NotNil(t, closePrice)
	assert.True(t, closePrice.Equal(decimal.NewFromFloat(1960)))
	require.NotNil(t, closedAt)
	assert.Equal(t, t2, *closedAt)
}

func TestSummarizeDealsNoExitReturnsNilClose(t *testing.T) {
	deals := []domain.Deal{
		{EntryType: "DEAL_ENTRY_IN", Price: decimal.NewFromFloat(1950), Profit: decimal.Zero},
	}
	profit, openPrice, closePrice, closedAt := summarizeDeals(deals)
	assert.True(t, profit.IsZero())
	require.NotNil(t, openPrice)
	assert.True(t, openPrice.Equal(decimal.NewFromFloat(1950)))
	assert.Nil(t, closePrice)
	assert.Nil(t, closedAt)
}

func TestLockForReturnsSameMutexForSameTenant(t *testing.T) {
	m := &Manager{tenantLocks: make(map[string]*sync.Mutex)}
	l1 := m.lockFor("tenant-1")
	l2 := m.lockFor("tenant-1")
	assert.Same(t, l1, l2)

	l3 := m.lockFor("tenant-2")
	assert.NotSame(t, l1, l3)
}
