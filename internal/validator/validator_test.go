package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/relaycopier/signalcopier/internal/domain"
)

func baseSettings() domain.TenantSettings {
	return domain.TenantSettings{
		MaxRiskPercent:          decimal.NewFromFloat(2),
		MaxLotSize:              decimal.NewFromFloat(0.1),
		MaxOpenTrades:           5,
		LotReferenceBalance:     decimal.NewFromInt(500),
		LotReferenceSizeGold:    decimal.NewFromFloat(0.04),
		LotReferenceSizeDefault: decimal.NewFromFloat(0.01),
	}
}

func TestValidateBuyPassesWithGeometry(t *testing.T) {
	in := Input{
		Symbol:      "XAUUSD",
		Direction:   domain.Buy,
		Entry:       decimal.NewFromFloat(1950),
		StopLoss:    decimal.NewFromFloat(1945),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(1960)},
		Confidence:  decimal.NewFromFloat(0.9),
		Account:     domain.AccountSnapshot{Balance: decimal.NewFromInt(500)},
		Settings:    baseSettings(),
	}
	result := Validate(in)
	assert.True(t, result.Passed, "errors: %v", result.Errors)
}

func TestValidateBuyFailsWhenStopLossAboveEntry(t *testing.T) {
	in := Input{
		Symbol:      "EURUSD",
		Direction:   domain.Buy,
		Entry:       decimal.NewFromFloat(1.1),
		StopLoss:    decimal.NewFromFloat(1.11),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(1.12)},
		Confidence:  decimal.NewFromFloat(0.9),
		Account:     domain.AccountSnapshot{Balance: decimal.NewFromInt(500)},
		Settings:    baseSettings(),
	}
	result := Validate(in)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Errors[0], "stop loss must be below entry")
}

func TestValidateSellFailsWhenTakeProfitAboveEntry(t *testing.T) {
	in := Input{
		Symbol:      "EURUSD",
		Direction:   domain.Sell,
		Entry:       decimal.NewFromFloat(1.1),
		StopLoss:    decimal.NewFromFloat(1.11),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(1.15)},
		Confidence:  decimal.NewFromFloat(0.9),
		Account:     domain.AccountSnapshot{Balance: decimal.NewFromInt(500)},
		Settings:    baseSettings(),
	}
	result := Validate(in)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Errors[0], "take profit must be below entry")
}

func TestValidateConfidenceBoundary(t *testing.T) {
	mk := func(conf float64) Input {
		return Input{
			Symbol:      "EURUSD",
			Direction:   domain.Buy,
			Entry:       decimal.NewFromFloat(1.1),
			StopLoss:    decimal.NewFromFloat(1.09),
			TakeProfits: []decimal.Decimal{decimal.NewFromFloat(1.12)},
			Confidence:  decimal.NewFromFloat(conf),
			Account:     domain.AccountSnapshot{Balance: decimal.NewFromInt(500)},
			Settings:    baseSettings(),
		}
	}
	assert.False(t, Validate(mk(0.599)).Passed)
	assert.True(t, Validate(mk(0.6)).Passed)
}

func TestValidateLotSizeClampedToBounds(t *testing.T) {
	settings := baseSettings()
	settings.MaxLotSize = decimal.NewFromFloat(0.1)

	in := Input{
		Symbol:      "XAUUSD",
		Direction:   domain.Buy,
		Entry:       decimal.NewFromFloat(1950),
		StopLoss:    decimal.NewFromFloat(1945),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(1960)},
		Confidence:  decimal.NewFromFloat(0.9),
		Account:     domain.AccountSnapshot{Balance: decimal.NewFromInt(100000)}, // huge balance
		Settings:    settings,
	}
	result := Validate(in)
	assert.True(t, result.AdjustedLotSize.LessThanOrEqual(settings.MaxLotSize))
	assert.True(t, result.AdjustedLotSize.GreaterThanOrEqual(minLot))
}

func TestValidateMaxOpenTradesReached(t *testing.T) {
	in := Input{
		Symbol:         "EURUSD",
		Direction:      domain.Buy,
		Entry:          decimal.NewFromFloat(1.1),
		StopLoss:       decimal.NewFromFloat(1.09),
		TakeProfits:    []decimal.Decimal{decimal.NewFromFloat(1.12)},
		Confidence:     decimal.NewFromFloat(0.9),
		Account:        domain.AccountSnapshot{Balance: decimal.NewFromInt(500)},
		Settings:       baseSettings(),
		OpenTradeCount: 5,
	}
	result := Validate(in)
	assert.False(t, result.Passed)
}

func TestValidateSymbolWhitelistRejectsUnknown(t *testing.T) {
	in := Input{
		Symbol:         "GBPJPY",
		Direction:      domain.Buy,
		Entry:          decimal.NewFromFloat(190),
		StopLoss:       decimal.NewFromFloat(189),
		TakeProfits:    []decimal.Decimal{decimal.NewFromFloat(191)},
		Confidence:     decimal.NewFromFloat(0.9),
		Account:        domain.AccountSnapshot{Balance: decimal.NewFromInt(500)},
		Settings:       baseSettings(),
		AllowedSymbols: map[string]struct{}{"XAUUSD": {}},
	}
	result := Validate(in)
	assert.False(t, result.Passed)
}

func TestValidateWarnsOnDuplicatePosition(t *testing.T) {
	settings := baseSettings()
	in := Input{
		Symbol:      "XAUUSD",
		Direction:   domain.Buy,
		Entry:       decimal.NewFromFloat(1950),
		StopLoss:    decimal.NewFromFloat(1945),
		TakeProfits: []decimal.Decimal{decimal.NewFromFloat(1960)},
		Confidence:  decimal.NewFromFloat(0.9),
		Settings:    settings,
		Account: domain.AccountSnapshot{
			Balance: decimal.NewFromInt(500),
			Positions: []domain.Position{
				{Symbol: "XAUUSD", Direction: domain.Buy},
			},
		},
	}
	result := Validate(in)
	assert.True(t, result.Passed)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "already have an open BUY position")
}

func TestCalculateLotForSymbolGoldUsesGoldReference(t *testing.T) {
	settings := baseSettings()
	lot := calculateLotForSymbol("XAUUSD", decimal.NewFromInt(500), settings)
	assert.True(t, lot.Equal(decimal.NewFromFloat(0.04)))
}

func TestCalculateLotForSymbolDefaultUsesDefaultReference(t *testing.T) {
	settings := baseSettings()
	lot := calculateLotForSymbol("EURUSD", decimal.NewFromInt(500), settings)
	assert.True(t, lot.Equal(decimal.NewFromFloat(0.01)))
}
