// Package validator implements the trade validation pipeline: symbol
// whitelist, price-drift and stop-loss-distance warnings, dynamic lot
// sizing with risk adjustment, max-open-trades and duplicate-position
// checks, a confidence gate, and BUY/SELL geometric sanity. Every step is
// grounded on original_source/src/trading/validator.py.
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/symbols"
)

var (
	hundred   = decimal.NewFromInt(100)
	oneTenth  = decimal.NewFromFloat(0.01) // 1%
	fivePct   = decimal.NewFromFloat(0.05) // 5%
	minLot    = decimal.NewFromFloat(0.01)
	confGate  = decimal.NewFromFloat(0.6)
)

// Input bundles everything the pipeline needs for one signal.
type Input struct {
	Symbol           string
	Direction        domain.Direction
	Entry            decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfits      []decimal.Decimal
	Confidence       decimal.Decimal
	MarketPrice      decimal.Decimal // live price; zero value means unavailable
	HasMarketPrice   bool
	Account          domain.AccountSnapshot
	Settings         domain.TenantSettings
	AllowedSymbols   map[string]struct{} // empty/nil means no whitelist restriction
	OpenTradeCount   int
}

// Validate runs the full 8-step pipeline and returns a domain.ValidationResult.
func Validate(in Input) domain.ValidationResult {
	result := domain.ValidationResult{Passed: true}

	symbol := symbols.Normalize(in.Symbol)

	// Step 1: symbol whitelist.
	if len(in.AllowedSymbols) > 0 {
		if _, ok := in.AllowedSymbols[symbol]; !ok {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("symbol %s is not in the allowed list", symbol))
		}
	}

	// Step 2: entry vs live market price drift — a network failure to fetch
	// the live price degrades this to a warning, never a hard error, per
	// the original validator.
	if in.HasMarketPrice && !in.MarketPrice.IsZero() && !in.Entry.IsZero() {
		diff := in.Entry.Sub(in.MarketPrice).Abs().Div(in.MarketPrice)
		if diff.GreaterThan(oneTenth) {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"entry price %s differs from market price %s by more than 1%%", in.Entry, in.MarketPrice))
		}
	} else if !in.HasMarketPrice {
		result.Warnings = append(result.Warnings, "could not fetch live market price; skipping entry-price drift check")
	}

	// Step 3: stop-loss distance.
	if !in.Entry.IsZero() {
		slDiff := in.Entry.Sub(in.StopLoss).Abs().Div(in.Entry)
		if slDiff.GreaterThan(fivePct) {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"stop loss is more than 5%% away from entry price (%s%%)", slDiff.Mul(hundred).StringFixed(2)))
		}
	}

	// Step 4: lot sizing + risk adjustment.
	baseLot := calculateLotForSymbol(symbol, in.Account.Balance, in.Settings)
	lot := riskAdjustLot(baseLot, symbol, in.StopLoss, in.Entry, in.Account.Balance, in.Settings)
	if lot.LessThan(minLot) {
		lot = minLot
	}
	if lot.GreaterThan(in.Settings.MaxLotSize) {
		lot = in.Settings.MaxLotSize
	}
	if !lot.Equal(baseLot) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"lot size adjusted from %s to %s for risk management", baseLot, lot))
	}
	result.AdjustedLotSize = lot

	// Step 5: max open trades.
	if in.Settings.MaxOpenTrades > 0 && in.OpenTradeCount >= in.Settings.MaxOpenTrades {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf(
			"max open trades reached (%d/%d)", in.OpenTradeCount, in.Settings.MaxOpenTrades))
	}

	// Step 6: duplicate / opposite open position warnings.
	for _, pos := range in.Account.Positions {
		if !symbols.EqualIgnoringSuffix(pos.Symbol, symbol, in.Settings.SymbolSuffix) {
			continue
		}
		if pos.Direction == in.Direction {
			result.Warnings = append(result.Warnings, fmt.Sprintf("already have an open %s position on %s", pos.Direction, symbol))
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("opposite open position (%s) exists on %s", pos.Direction, symbol))
		}
	}

	// Step 7: confidence gate.
	if in.Confidence.LessThan(confGate) {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("confidence %s below minimum 0.6", in.Confidence))
	}

	// Step 8: BUY/SELL geometric sanity (hard errors).
	if err := geometricSanity(in.Direction, in.Entry, in.StopLoss, in.TakeProfits); err != "" {
		result.Passed = false
		result.Errors = append(result.Errors, err)
	}

	return result
}

// geometricSanity enforces: for BUY, stop loss below entry and every take
// profit above entry; for SELL, the reverse. Returns "" when sane.
func geometricSanity(dir domain.Direction, entry, sl decimal.Decimal, tps []decimal.Decimal) string {
	if entry.IsZero() {
		return ""
	}
	switch dir {
	case domain.Buy:
		if sl.GreaterThanOrEqual(entry) {
			return "BUY signal: stop loss must be below entry price"
		}
		for _, tp := range tps {
			if tp.LessThanOrEqual(entry) {
				return "BUY signal: take profit must be above entry price"
			}
		}
	case domain.Sell:
		if sl.LessThanOrEqual(entry) {
			return "SELL signal: stop loss must be above entry price"
		}
		for _, tp := range tps {
			if tp.GreaterThanOrEqual(entry) {
				return "SELL signal: take profit must be below entry price"
			}
		}
	}
	return ""
}

// referenceLotFor returns (referenceLot) for symbol per settings — gold
// uses its own reference lot, everything else uses the default.
func referenceLotFor(symbol string, settings domain.TenantSettings) decimal.Decimal {
	if symbols.IsGold(symbol) {
		return settings.LotReferenceSizeGold
	}
	return settings.LotReferenceSizeDefault
}

// calculateLotForSymbol applies base_lot = balance/reference_balance *
// reference_lot, clamped to [0.01, MaxLotSize], per
// calculate_dynamic_lot_size in the original validator.
func calculateLotForSymbol(symbol string, balance decimal.Decimal, settings domain.TenantSettings) decimal.Decimal {
	if settings.LotReferenceBalance.IsZero() {
		return settings.LotReferenceSizeDefault
	}
	refLot := referenceLotFor(symbol, settings)
	lot := balance.Div(settings.LotReferenceBalance).Mul(refLot)
	if lot.LessThan(minLot) {
		lot = minLot
	}
	if lot.GreaterThan(settings.MaxLotSize) {
		lot = settings.MaxLotSize
	}
	return lot.Round(2)
}

// pipSize returns the price increment of one pip for symbol.
func pipSize(symbol string) decimal.Decimal {
	switch {
	case symbols.IsJPYPair(symbol):
		return decimal.NewFromFloat(0.01)
	case symbols.IsGold(symbol):
		return decimal.NewFromFloat(0.1)
	case symbols.IsIndex(symbol):
		return decimal.NewFromFloat(1.0)
	default:
		return decimal.NewFromFloat(0.0001)
	}
}

// pipValuePerLot returns the approximate account-currency value of one pip
// for one standard lot of symbol.
func pipValuePerLot(symbol string) decimal.Decimal {
	switch {
	case symbols.IsJPYPair(symbol):
		return decimal.NewFromFloat(7.5)
	case symbols.IsGold(symbol):
		return decimal.NewFromFloat(1.0)
	case symbols.IsIndex(symbol):
		return decimal.NewFromFloat(1.0)
	default:
		return decimal.NewFromFloat(10.0)
	}
}

// riskAdjustLot caps the dynamically-sized lot so a stop-loss hit never
// loses more than MaxRiskPercent of the account balance.
func riskAdjustLot(lot decimal.Decimal, symbol string, sl, entry, balance decimal.Decimal, settings domain.TenantSettings) decimal.Decimal {
	if entry.IsZero() || settings.MaxRiskPercent.IsZero() {
		return lot
	}
	maxRiskAmount := balance.Mul(settings.MaxRiskPercent).Div(hundred)
	slDistance := entry.Sub(sl).Abs()
	pips := slDistance.Div(pipSize(symbol))
	if pips.IsZero() {
		return lot
	}
	riskPerLot := pips.Mul(pipValuePerLot(symbol))
	if riskPerLot.IsZero() {
		return lot
	}
	maxRiskLot := maxRiskAmount.Div(riskPerLot).Round(2)
	if maxRiskLot.LessThan(lot) {
		return maxRiskLot
	}
	return lot
}
