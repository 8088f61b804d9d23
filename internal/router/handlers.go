package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/supervisor"
)

// handleCloseSignal closes the matching open position on every connected
// account in parallel, matching _handle_close_signal.
func (r *Router) handleCloseSignal(ctx context.Context, tenantID string, sig domain.Signal) error {
	conn, ok := r.supervisor.Get(tenantID)
	if !ok {
		return r.failSignal(ctx, tenantID, sig, "No accounts connected")
	}

	accounts := conn.AllExecutors()
	var wg sync.WaitGroup
	var mu sync.Mutex
	totalClosed := 0

	for _, acct := range accounts {
		wg.Add(1)
		go func(acct *supervisor.AccountConnection) {
			defer wg.Done()
			pos, found, err := acct.Executor.FindPosition(ctx, sig.Symbol)
			if err != nil || !found {
				return
			}
			if err := acct.Executor.ClosePosition(ctx, pos.ID); err != nil {
				r.log.Warn().Str("tenant_id", shortTag(tenantID)).Str("account_id", acct.Account.ID).Err(err).Msg("close position failed")
				return
			}
			mu.Lock()
			totalClosed++
			mu.Unlock()
		}(acct)
	}
	wg.Wait()

	if totalClosed == 0 {
		sig.Status = domain.SignalSkipped
		sig.FailureReason = fmt.Sprintf("No open positions found for %s on any account", sig.Symbol)
		if err := r.store.UpdateSignal(ctx, sig); err != nil {
			return fmt.Errorf("persist skipped close signal: %w", err)
		}
		r.bus.Publish(bus.Event{Kind: bus.SignalSkipped, TenantID: tenantID, Payload: sig})
		return nil
	}

	sig.Status = domain.SignalExecuted
	now := time.Now().UTC()
	sig.ExecutedAt = &now
	if err := r.store.UpdateSignal(ctx, sig); err != nil {
		return fmt.Errorf("persist executed close signal: %w", err)
	}
	r.bus.Publish(bus.Event{Kind: bus.TradeClosed, TenantID: tenantID, Payload: sig})
	return nil
}

// handleLotModifierSignal adds to an existing open position by opening a
// fresh order with that position's direction, entry, SL and TP, sized per
// DOUBLE (same lot, opened additively) or ADD (scale original lot by the
// modifier value), matching _handle_lot_modifier_signal. Defaults the
// target symbol to XAUUSD (GOLD normalizes to XAUUSD upstream) when the
// parser didn't name one explicitly.
func (r *Router) handleLotModifierSignal(ctx context.Context, tenantID string, sig domain.Signal, outcome domain.ParseOutcome) error {
	targetSymbol := sig.Symbol
	if targetSymbol == "" {
		targetSymbol = "XAUUSD"
	}

	conn, ok := r.supervisor.Get(tenantID)
	if !ok {
		return r.failSignal(ctx, tenantID, sig, "No accounts connected")
	}

	settings, err := r.store.GetSettings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	accounts := conn.AllExecutors()
	var wg sync.WaitGroup
	var mu sync.Mutex
	modified := 0

	for _, acct := range accounts {
		wg.Add(1)
		go func(acct *supervisor.AccountConnection) {
			defer wg.Done()
			pos, found, err := acct.Executor.FindPosition(ctx, targetSymbol)
			if err != nil || !found {
				return
			}

			newLot := modifiedLot(pos.Volume, outcome.LotModifierKind, outcome.LotModifierValue, settings.MaxLotSize)

			synthetic := domain.Signal{
				TenantID:    tenantID,
				Symbol:      targetSymbol,
				Direction:   pos.Direction,
				Entry:       pos.OpenPrice,
				StopLoss:    pos.StopLoss,
				TakeProfits: []decimal.Decimal{pos.TakeProfit},
			}

			_, err = acct.Executor.Execute(ctx, synthetic, newLot)
			if err != nil {
				r.log.Warn().Str("tenant_id", shortTag(tenantID)).Str("account_id", acct.Account.ID).Err(err).Msg("lot modifier execution failed")
				return
			}
			mu.Lock()
			modified++
			mu.Unlock()
		}(acct)
	}
	wg.Wait()

	if modified == 0 {
		sig.Status = domain.SignalSkipped
		sig.FailureReason = fmt.Sprintf("No open positions found for %s to modify", targetSymbol)
		if err := r.store.UpdateSignal(ctx, sig); err != nil {
			return fmt.Errorf("persist skipped lot-modifier signal: %w", err)
		}
		r.bus.Publish(bus.Event{Kind: bus.SignalSkipped, TenantID: tenantID, Payload: sig})
		return nil
	}

	sig.Status = domain.SignalExecuted
	now := time.Now().UTC()
	sig.ExecutedAt = &now
	if err := r.store.UpdateSignal(ctx, sig); err != nil {
		return fmt.Errorf("persist executed lot-modifier signal: %w", err)
	}
	r.bus.Publish(bus.Event{Kind: bus.TradeOpened, TenantID: tenantID, Payload: sig})
	return nil
}

// modifiedLot computes the new lot size for a lot-modifier signal: DOUBLE
// keeps the original lot (opened additively alongside the existing
// position), ADD scales the original by multiplier, rounded to 2 decimals
// and clamped to maxLot.
func modifiedLot(original decimal.Decimal, kind string, multiplier, maxLot decimal.Decimal) decimal.Decimal {
	var lot decimal.Decimal
	switch kind {
	case "ADD":
		lot = original.Mul(multiplier).Round(2)
	default: // "DOUBLE"
		lot = original
	}
	if !maxLot.IsZero() && lot.GreaterThan(maxLot) {
		lot = maxLot
	}
	return lot
}
