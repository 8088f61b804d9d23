// Package router implements the signal stage machine (C8): shared-listener
// fan-out, per-tenant dedup/parse/validate/execute, and the close and
// lot-modifier signal variants. Grounded in full on
// original_source/src/signal_router.py.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/bus"
	"github.com/relaycopier/signalcopier/internal/broker"
	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/llmparser"
	"github.com/relaycopier/signalcopier/internal/store"
	"github.com/relaycopier/signalcopier/internal/supervisor"
	"github.com/relaycopier/signalcopier/internal/symbols"
	"github.com/relaycopier/signalcopier/internal/validator"
)

const minMessageLength = 10

// PlanLimiter is the named contract to the billing subsystem's plan-limit
// check (check_signal_limit/increment_signal_count in the original
// source): Stripe billing is an out-of-core external collaborator per
// spec.md's scope boundary, so the router calls this port rather than
// implementing billing itself. SetPlanLimiter plugs in a real collaborator;
// the default never limits.
type PlanLimiter interface {
	// CheckSignalLimit reports whether tenantID may execute another signal
	// this period. A false allowed carries the failure reason to surface on
	// the signal.
	CheckSignalLimit(ctx context.Context, tenantID string) (allowed bool, reason string, err error)
	// IncrementSignalCount records that tenantID executed one more signal.
	IncrementSignalCount(ctx context.Context, tenantID string) error
}

// noLimitPlanLimiter is the default PlanLimiter: billing lives outside this
// core, so every signal is allowed and counting is a no-op.
type noLimitPlanLimiter struct{}

func (noLimitPlanLimiter) CheckSignalLimit(context.Context, string) (bool, string, error) {
	return true, "", nil
}

func (noLimitPlanLimiter) IncrementSignalCount(context.Context, string) error { return nil }

// Router is the per-tenant signal stage machine plus the shared-listener
// fan-out entry point.
type Router struct {
	store       *store.Store
	bus         *bus.Bus
	parser      *llmparser.Client
	supervisor  *supervisor.Supervisor
	log         zerolog.Logger
	cache       *subscriberCache
	planLimiter PlanLimiter
}

// New builds a Router.
func New(st *store.Store, eventBus *bus.Bus, parser *llmparser.Client, sup *supervisor.Supervisor, log zerolog.Logger) *Router {
	r := &Router{
		store:       st,
		bus:         eventBus,
		parser:      parser,
		supervisor:  sup,
		log:         log.With().Str("component", "router").Logger(),
		planLimiter: noLimitPlanLimiter{},
	}
	r.cache = newSubscriberCache(60*time.Second, st.AllChannelSubscriptions)
	return r
}

// SetPlanLimiter overrides the default no-op plan limiter with a real
// billing collaborator.
func (r *Router) SetPlanLimiter(pl PlanLimiter) {
	r.planLimiter = pl
}

// RouteMessageToSubscribers is the shared-listener entry point: one channel
// post fans out to every tenant subscribed to that channel. Each
// subscriber's RouteMessage error is logged, never propagated — one
// tenant's failure must not affect another's delivery.
func (r *Router) RouteMessageToSubscribers(ctx context.Context, channelID string, messageID int64, text string) {
	if len(strings.TrimSpace(text)) < minMessageLength {
		return
	}

	subscribers, err := r.cache.subscribersFor(ctx, channelID)
	if err != nil {
		r.log.Warn().Str("channel_id", channelID).Err(err).Msg("failed to load channel subscribers")
		return
	}
	if len(subscribers) == 0 {
		r.log.Info().Str("channel_id", channelID).Msg("no subscribers for channel")
		return
	}

	var wg sync.WaitGroup
	for _, tenantID := range subscribers {
		wg.Add(1)
		go func(tenantID string) {
			defer wg.Done()
			if err := r.RouteMessage(ctx, tenantID, channelID, messageID, text); err != nil {
				r.log.Warn().Str("tenant_id", shortTag(tenantID)).Err(err).Msg("route message failed")
			}
		}(tenantID)
	}
	wg.Wait()
}

// RouteMessage runs one tenant's full stage machine for an inbound message:
// dedup, parse, validate, and either auto-execute or await confirmation.
func (r *Router) RouteMessage(ctx context.Context, tenantID, channelID string, messageID int64, text string) error {
	if len(strings.TrimSpace(text)) < minMessageLength {
		return nil
	}

	settings, err := r.store.GetSettings(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.Paused {
		return nil
	}

	sig, created, err := r.store.FindOrCreateSignal(ctx, domain.Signal{
		TenantID:   tenantID,
		ChannelID:  channelID,
		MessageID:  messageID,
		RawText:    text,
		ReceivedAt: time.Now().UTC(),
		Status:     domain.SignalReceived,
	})
	if err != nil {
		return fmt.Errorf("dedup signal: %w", err)
	}
	if !created {
		return nil // duplicate delivery, silently dropped
	}

	r.bus.Publish(bus.Event{Kind: bus.SignalReceived, TenantID: tenantID, Payload: sig})

	outcome, err := r.parser.Parse(ctx, text)
	if err != nil {
		return fmt.Errorf("parse signal: %w", err)
	}

	if !outcome.IsSignal {
		sig.Status = domain.SignalSkipped
		sig.FailureReason = outcome.RejectionReason
		if err := r.store.UpdateSignal(ctx, sig); err != nil {
			return fmt.Errorf("persist skipped signal: %w", err)
		}
		r.bus.Publish(bus.Event{Kind: bus.SignalSkipped, TenantID: tenantID, Payload: sig})
		return nil
	}

	sig.Symbol = symbols.Normalize(outcome.Symbol)
	sig.Direction = outcome.Direction
	sig.OriginalDirection = outcome.OriginalDirection
	sig.Entry = outcome.Entry
	sig.StopLoss = outcome.StopLoss
	sig.TakeProfits = outcome.TakeProfits
	sig.Confidence = outcome.Confidence
	sig.Warnings = outcome.Warnings
	sig.Status = domain.SignalParsed
	now := time.Now().UTC()
	sig.ParsedAt = &now
	if err := r.store.UpdateSignal(ctx, sig); err != nil {
		return fmt.Errorf("persist parsed signal: %w", err)
	}
	r.bus.Publish(bus.Event{Kind: bus.SignalParsed, TenantID: tenantID, Payload: sig})

	switch outcome.SignalType {
	case domain.SignalTypeClose:
		return r.handleCloseSignal(ctx, tenantID, sig)
	case domain.SignalTypeLotModifier:
		return r.handleLotModifierSignal(ctx, tenantID, sig, outcome)
	default:
		return r.handleOpenSignal(ctx, tenantID, sig, settings)
	}
}

func (r *Router) handleOpenSignal(ctx context.Context, tenantID string, sig domain.Signal, settings domain.TenantSettings) error {
	conn, ok := r.supervisor.Get(tenantID)
	if !ok || conn.ConnectedAccountCount() == 0 {
		return r.failSignal(ctx, tenantID, sig, "No accounts connected")
	}

	primary, ok := conn.PrimaryExecutor()
	if !ok {
		return r.failSignal(ctx, tenantID, sig, "No accounts connected")
	}

	snapshot, err := primary.GetAccountSnapshot(ctx)
	if err != nil {
		return r.failSignal(ctx, tenantID, sig, fmt.Sprintf("could not fetch account info: %v", err))
	}

	marketPrice, hasMarketPrice := decimal.Zero, false
	if price, err := primary.QuotePrice(ctx, sig.Symbol, sig.Direction); err == nil {
		marketPrice, hasMarketPrice = price, true
	} else {
		r.log.Warn().Str("tenant_id", shortTag(tenantID)).Str("symbol", sig.Symbol).Err(err).Msg("could not fetch live quote for validation")
	}

	result := validator.Validate(validator.Input{
		Symbol:         sig.Symbol,
		Direction:      sig.Direction,
		Entry:          sig.Entry,
		StopLoss:       sig.StopLoss,
		TakeProfits:    sig.TakeProfits,
		Confidence:     sig.Confidence,
		MarketPrice:    marketPrice,
		HasMarketPrice: hasMarketPrice,
		Account:        snapshot,
		Settings:       settings,
		OpenTradeCount: openPositionCount(conn),
	})

	sig.Warnings = append(sig.Warnings, result.Warnings...)
	r.bus.Publish(bus.Event{Kind: bus.SignalValidated, TenantID: tenantID, Payload: result})

	if !result.Passed {
		return r.failSignal(ctx, tenantID, sig, strings.Join(result.Errors, "; "))
	}

	_, isAutoAccept := settings.AutoAcceptSymbols[sig.Symbol]
	lotSize := result.AdjustedLotSize

	if !isAutoAccept {
		sig.Status = domain.SignalPendingConfirmation
		sig.ChosenLotSize = &lotSize
		if err := r.store.UpdateSignal(ctx, sig); err != nil {
			return fmt.Errorf("persist pending-confirmation signal: %w", err)
		}
		r.bus.Publish(bus.Event{Kind: bus.SignalPendingConfirmation, TenantID: tenantID, Payload: sig})
		return nil
	}

	if allowed, reason, err := r.planLimiter.CheckSignalLimit(ctx, tenantID); err != nil {
		r.log.Warn().Str("tenant_id", shortTag(tenantID)).Err(err).Msg("plan limit check failed; allowing signal through")
	} else if !allowed {
		return r.failSignal(ctx, tenantID, sig, reason)
	}

	if err := r.executeAndFinalize(ctx, tenantID, sig, conn, lotSize); err != nil {
		return err
	}
	if err := r.planLimiter.IncrementSignalCount(ctx, tenantID); err != nil {
		r.log.Warn().Str("tenant_id", shortTag(tenantID)).Err(err).Msg("failed to increment plan signal count")
	}
	return nil
}

// ConfirmSignal re-executes a signal awaiting manual confirmation. lotSize
// comes from the signal's ChosenLotSize when present, falling back to a
// fresh validator pass against the current live balance when absent (e.g.
// a signal created before that field existed).
func (r *Router) ConfirmSignal(ctx context.Context, tenantID string, signalID int64) error {
	sig, err := r.store.GetSignal(ctx, signalID)
	if err != nil {
		return fmt.Errorf("load signal: %w", err)
	}
	if sig.TenantID != tenantID {
		return fmt.Errorf("signal %d does not belong to tenant %s: %w", signalID, tenantID, domain.ErrAuthorization)
	}
	if sig.Status != domain.SignalPendingConfirmation {
		return fmt.Errorf("signal %d is not pending confirmation: %w", signalID, domain.ErrValidation)
	}

	conn, ok := r.supervisor.Get(tenantID)
	if !ok || conn.ConnectedAccountCount() == 0 {
		return r.failSignal(ctx, tenantID, sig, "No accounts connected")
	}

	lotSize := decimal.Zero
	if sig.ChosenLotSize != nil {
		lotSize = *sig.ChosenLotSize
	} else {
		settings, err := r.store.GetSettings(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		primary, ok := conn.PrimaryExecutor()
		if !ok {
			return r.failSignal(ctx, tenantID, sig, "No accounts connected")
		}
		snapshot, err := primary.GetAccountSnapshot(ctx)
		if err != nil {
			return r.failSignal(ctx, tenantID, sig, fmt.Sprintf("could not fetch account info: %v", err))
		}
		result := validator.Validate(validator.Input{
			Symbol: sig.Symbol, Direction: sig.Direction, Entry: sig.Entry, StopLoss: sig.StopLoss,
			TakeProfits: sig.TakeProfits, Confidence: sig.Confidence, Account: snapshot, Settings: settings,
		})
		lotSize = result.AdjustedLotSize
	}

	return r.executeAndFinalize(ctx, tenantID, sig, conn, lotSize)
}

// MultiAccountExecutionResult summarizes a fanned-out execution across every
// connected account on a tenant.
type MultiAccountExecutionResult struct {
	TotalAccounts      int
	SuccessfulAccounts int
	FailedAccounts     int
	OverallStatus      domain.SignalStatus
	Orders             []accountOrders
}

type accountOrders struct {
	Account domain.BrokerAccount
	Orders  []broker.PlacedOrder
	Err     error
}

func (r *Router) executeOnAllAccounts(ctx context.Context, conn *supervisor.TenantConnection, sig domain.Signal, lotSize decimal.Decimal) MultiAccountExecutionResult {
	accounts := conn.AllExecutors()
	result := MultiAccountExecutionResult{TotalAccounts: len(accounts)}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, acct := range accounts {
		wg.Add(1)
		go func(acct *supervisor.AccountConnection) {
			defer wg.Done()
			orders, err := acct.Executor.Execute(ctx, sig, lotSize)
			mu.Lock()
			defer mu.Unlock()
			result.Orders = append(result.Orders, accountOrders{Account: acct.Account, Orders: orders, Err: err})
			if err != nil {
				result.FailedAccounts++
			} else {
				result.SuccessfulAccounts++
			}
		}(acct)
	}
	wg.Wait()

	switch {
	case result.SuccessfulAccounts == 0:
		result.OverallStatus = domain.SignalFailed
	case result.FailedAccounts > 0:
		result.OverallStatus = domain.SignalPartial
	default:
		result.OverallStatus = domain.SignalExecuted
	}
	return result
}

func (r *Router) executeAndFinalize(ctx context.Context, tenantID string, sig domain.Signal, conn *supervisor.TenantConnection, lotSize decimal.Decimal) error {
	result := r.executeOnAllAccounts(ctx, conn, sig, lotSize)

	if result.OverallStatus == domain.SignalFailed {
		return r.failSignal(ctx, tenantID, sig, "execution failed on all accounts")
	}

	for _, ao := range result.Orders {
		if ao.Err != nil {
			continue
		}
		for _, order := range ao.Orders {
			_, err := r.store.SaveTrade(ctx, domain.Trade{
				TenantID:        tenantID,
				SignalID:        sig.ID,
				BrokerAccountID: ao.Account.ID,
				BrokerOrderID:   order.PositionID,
				Symbol:          order.Symbol,
				Direction:       sig.Direction,
				LotSize:         order.LotSize,
				Entry:           sig.Entry,
				StopLoss:        sig.StopLoss,
				TakeProfit:      order.TakeProfit,
				TPIndex:         order.TPIndex,
				Status:          domain.TradeOpen,
			})
			if err != nil {
				r.log.Warn().Str("tenant_id", shortTag(tenantID)).Err(err).Msg("failed to persist trade")
			}
		}
	}

	sig.Status = result.OverallStatus
	now := time.Now().UTC()
	sig.ExecutedAt = &now
	if err := r.store.UpdateSignal(ctx, sig); err != nil {
		return fmt.Errorf("persist executed signal: %w", err)
	}

	r.bus.Publish(bus.Event{
		Kind:     bus.TradeOpened,
		TenantID: tenantID,
		Payload:  result,
	})
	return nil
}

func (r *Router) failSignal(ctx context.Context, tenantID string, sig domain.Signal, reason string) error {
	sig.Status = domain.SignalFailed
	sig.FailureReason = reason
	if err := r.store.UpdateSignal(ctx, sig); err != nil {
		return fmt.Errorf("persist failed signal: %w", err)
	}
	r.bus.Publish(bus.Event{Kind: bus.SignalFailed, TenantID: tenantID, Payload: sig})
	return nil
}

func openPositionCount(conn *supervisor.TenantConnection) int {
	primary, ok := conn.PrimaryExecutor()
	if !ok {
		return 0
	}
	snapshot, err := primary.GetAccountSnapshot(context.Background())
	if err != nil {
		return 0
	}
	return len(snapshot.Positions)
}

func shortTag(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
