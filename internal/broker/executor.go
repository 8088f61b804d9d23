package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/domain"
	"github.com/relaycopier/signalcopier/internal/symbols"
)

// ExecutorSettings is the per-account execution policy, built from a
// tenant's TenantSettings, mirroring ExecutorSettings.from_user_settings in
// the original source.
type ExecutorSettings struct {
	SymbolSuffix    string
	SplitTPs        bool
	TPRatios        []decimal.Decimal
	TPLotMode       domain.TPLotMode
	GoldThreshold   decimal.Decimal
	MaxLotSize      decimal.Decimal
	DefaultLotSize  decimal.Decimal
}

// FromTenantSettings builds ExecutorSettings from a tenant's stored policy.
func FromTenantSettings(s domain.TenantSettings) ExecutorSettings {
	ratios := s.TPSplitRatios
	if len(ratios) == 0 {
		ratios = []decimal.Decimal{decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.3), decimal.NewFromFloat(0.2)}
	}
	return ExecutorSettings{
		SymbolSuffix:   s.SymbolSuffix,
		SplitTPs:       s.SplitTPs,
		TPRatios:       ratios,
		TPLotMode:      s.TPLotMode,
		GoldThreshold:  s.GoldMarketThreshold,
		MaxLotSize:     s.MaxLotSize,
		DefaultLotSize: s.LotReferenceSizeDefault,
	}
}

// Executor places and manages orders on one broker account via the bridge.
type Executor struct {
	bridge    *BridgeClient
	accountID string
	userTag   string // short tenant id used in the broker comment field

	mu       sync.RWMutex
	settings ExecutorSettings
}

// NewExecutor builds an Executor bound to one bridge account.
func NewExecutor(bridge *BridgeClient, accountID, userTag string, settings ExecutorSettings) *Executor {
	return &Executor{bridge: bridge, accountID: accountID, userTag: userTag, settings: settings}
}

// ApplySettings replaces the executor's live settings in place — used by
// reload_user_settings so a running connection picks up new risk/TP policy
// without a reconnect.
func (e *Executor) ApplySettings(settings ExecutorSettings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = settings
}

func (e *Executor) currentSettings() ExecutorSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// PlacedOrder is one order resulting from Execute — a signal with N take
// profits under split mode produces N PlacedOrders.
type PlacedOrder struct {
	OrderID    string
	PositionID string
	Symbol     string
	LotSize    decimal.Decimal
	TPIndex    int
	TakeProfit decimal.Decimal
}

// Execute resolves the tradable symbol and its live price (suffix
// fallback), computes per-TP lot sizes, selects the order type from the
// signal's entry price vs the live market price and the symbol's threshold
// (the same type for every take profit), and places one order per take
// profit.
// lotSize is the already-validated total lot size for the signal.
func (e *Executor) Execute(ctx context.Context, sig domain.Signal, lotSize decimal.Decimal) ([]PlacedOrder, error) {
	resolvedSymbol, marketPrice, err := e.resolveSymbolAndPrice(ctx, sig.Symbol, sig.Direction)
	if err != nil {
		return nil, err
	}

	tps := sig.TakeProfits
	if len(tps) == 0 {
		tps = []decimal.Decimal{sig.StopLoss} // shouldn't happen; validator guards this
	}

	lots := e.splitLots(lotSize, len(tps))

	orders := make([]PlacedOrder, 0, len(tps))
	for i, tp := range tps {
		orderType := e.orderType(sig.Direction, sig.Entry, marketPrice, resolvedSymbol)
		req := CreateOrderRequest{
			Symbol:     resolvedSymbol,
			ActionType: orderType,
			Volume:     lots[i],
			StopLoss:   sig.StopLoss,
			TakeProfit: tp,
			Comment:    fmt.Sprintf("U:%s TP%d", shortTag(e.userTag), i+1),
		}
		if orderType != marketOrderType(sig.Direction) {
			req.OpenPrice = sig.Entry
		}

		resp, err := e.bridge.CreateOrder(ctx, e.accountID, req)
		if err != nil {
			return orders, e.wrapSymbolError(err, resolvedSymbol)
		}
		orders = append(orders, PlacedOrder{
			OrderID:    resp.OrderID,
			PositionID: resp.PositionID,
			Symbol:     resolvedSymbol,
			LotSize:    lots[i],
			TPIndex:    i + 1,
			TakeProfit: tp,
		})
	}

	return orders, nil
}

func shortTag(tag string) string {
	if len(tag) <= 8 {
		return tag
	}
	return tag[:8]
}

// QuotePrice fetches the live price for symbol — the ask for BUY, the bid
// for SELL — using the same suffixed-then-bare probe Execute uses. The
// validator feeds this into its entry-vs-market drift check.
func (e *Executor) QuotePrice(ctx context.Context, symbol string, dir domain.Direction) (decimal.Decimal, error) {
	_, price, err := e.resolveSymbolAndPrice(ctx, symbol, dir)
	return price, err
}

// resolveSymbolAndPrice tries symbol+suffix first, then the bare symbol,
// fetching each candidate's live price until one resolves — mirroring the
// original executor's symbols_to_try probe, which tries each candidate via
// get_symbol_price and stops at the first one the broker recognizes. The
// returned price is the ask for BUY signals and the bid for SELL, the same
// side the original reads for current_price.
func (e *Executor) resolveSymbolAndPrice(ctx context.Context, symbol string, dir domain.Direction) (string, decimal.Decimal, error) {
	normalized := symbols.Normalize(symbol)
	suffix := e.currentSettings().SymbolSuffix

	candidates := []string{normalized}
	if suffix != "" {
		candidates = []string{normalized + suffix, normalized}
	}

	for _, candidate := range candidates {
		price, err := e.bridge.GetSymbolPrice(ctx, e.accountID, candidate)
		if err != nil {
			continue
		}
		if dir == domain.Sell {
			return candidate, price.Bid, nil
		}
		return candidate, price.Ask, nil
	}

	return "", decimal.Decimal{}, classifySymbolError(normalized)
}

// wrapSymbolError turns an E_NO_SYMBOLS bridge error into a friendly
// "market closed" or "symbol not found" message depending on whether the
// instrument trades through the weekend, per the original executor's
// weekend/crypto detection.
func (e *Executor) wrapSymbolError(err error, symbol string) error {
	var bridgeErr *BridgeError
	if !asBridgeError(err, &bridgeErr) || bridgeErr.Code != ErrNoSymbols {
		return err
	}
	return classifySymbolError(symbols.Normalize(symbol))
}

// classifySymbolError builds the same friendly message the original
// executor raises when no symbol candidate resolves: crypto pairs trade
// through the weekend, so they're reported as simply not found, while
// everything else checks the weekend clock first.
func classifySymbolError(bare string) error {
	if symbols.IsCrypto(bare) {
		return fmt.Errorf("%w: symbol %s not found on this account", domain.ErrExecution, bare)
	}
	if isWeekend(time.Now().UTC()) {
		return fmt.Errorf("%w: market is closed for %s (weekend)", domain.ErrExecution, bare)
	}
	return fmt.Errorf("%w: symbol %s not found on this account", domain.ErrExecution, bare)
}

func asBridgeError(err error, target **BridgeError) bool {
	be, ok := err.(*BridgeError)
	if !ok {
		return false
	}
	*target = be
	return true
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// splitLots divides total across n take profits per SplitTPs/TPLotMode: in
// equal mode every TP gets the full lot; in split mode the lot is divided
// by the configured ratios (normalized to sum to 1), falling back to an
// even split if ratios don't cover n.
func (e *Executor) splitLots(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 1 || !e.currentSettings().SplitTPs {
		out := make([]decimal.Decimal, n)
		for i := range out {
			out[i] = total
		}
		return out
	}

	if e.currentSettings().TPLotMode == domain.TPLotModeEqual {
		out := make([]decimal.Decimal, n)
		for i := range out {
			out[i] = total
		}
		return out
	}

	ratios := e.currentSettings().TPRatios
	if len(ratios) < n {
		even := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
		ratios = make([]decimal.Decimal, n)
		for i := range ratios {
			ratios[i] = even
		}
	}
	sum := decimal.Zero
	for _, r := range ratios[:n] {
		sum = sum.Add(r)
	}
	out := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		out[i] = total.Mul(ratios[i]).Div(sum).Round(2)
	}
	return out
}

// priceThreshold returns the distance (in price units) beyond which an
// entry vs market-price gap selects a pending order instead of a market
// order, per _get_price_threshold in the original executor.
func priceThreshold(symbol string, goldThreshold decimal.Decimal) decimal.Decimal {
	switch {
	case symbols.IsJPYPair(symbol):
		return decimal.NewFromFloat(0.05)
	case symbols.IsGold(symbol):
		if goldThreshold.IsZero() {
			return decimal.NewFromFloat(3.0)
		}
		return goldThreshold
	case symbols.IsIndex(symbol):
		return decimal.NewFromFloat(10.0)
	default:
		return decimal.NewFromFloat(0.0005)
	}
}

func marketOrderType(dir domain.Direction) string {
	if dir == domain.Buy {
		return "ORDER_TYPE_BUY"
	}
	return "ORDER_TYPE_SELL"
}

// orderType selects BUY/SELL x MARKET/LIMIT/STOP by comparing the signal's
// entry price to the live market price against the symbol's threshold, per
// _get_order_type in the original executor.
func (e *Executor) orderType(dir domain.Direction, entry, market decimal.Decimal, symbol string) string {
	if market.IsZero() {
		return marketOrderType(dir)
	}

	diff := entry.Sub(market)
	threshold := priceThreshold(symbol, e.currentSettings().GoldThreshold)
	if diff.Abs().LessThanOrEqual(threshold) {
		return marketOrderType(dir)
	}

	if dir == domain.Buy {
		if entry.GreaterThan(market) {
			return "ORDER_TYPE_BUY_STOP"
		}
		return "ORDER_TYPE_BUY_LIMIT"
	}
	if entry.LessThan(market) {
		return "ORDER_TYPE_SELL_STOP"
	}
	return "ORDER_TYPE_SELL_LIMIT"
}

// ModifyPositionSL updates the stop loss (and take profit, unchanged) on an
// open position.
func (e *Executor) ModifyPositionSL(ctx context.Context, positionID string, sl, tp decimal.Decimal) error {
	return e.bridge.ModifyPosition(ctx, e.accountID, positionID, sl, tp)
}

// ClosePosition closes one open position on this account.
func (e *Executor) ClosePosition(ctx context.Context, positionID string) error {
	return e.bridge.ClosePosition(ctx, e.accountID, positionID)
}

// DealsByPosition fetches the deal history for a position, mapped to
// domain.Deal for the reconciler's profit-summation logic.
func (e *Executor) DealsByPosition(ctx context.Context, positionID string) ([]domain.Deal, error) {
	raw, err := e.bridge.DealsByPosition(ctx, e.accountID, positionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Deal, len(raw))
	for i, d := range raw {
		out[i] = domain.Deal{
			PositionID: d.PositionID,
			EntryType:  d.EntryType,
			Price:      d.Price,
			Profit:     d.Profit,
			Time:       d.Time,
		}
	}
	return out, nil
}

// GetAccountSnapshot fetches the live account state mapped into
// domain.AccountSnapshot for the validator and reconciler.
func (e *Executor) GetAccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	info, err := e.bridge.GetAccountInfo(ctx, e.accountID)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	positions := make([]domain.Position, len(info.Positions))
	for i, p := range info.Positions {
		dir := domain.Buy
		if p.Type == "POSITION_TYPE_SELL" {
			dir = domain.Sell
		}
		positions[i] = domain.Position{
			ID:         p.ID,
			Symbol:     p.Symbol,
			Direction:  dir,
			Volume:     p.Volume,
			OpenPrice:  p.OpenPrice,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
		}
	}
	return domain.AccountSnapshot{
		Balance:   info.Balance,
		Equity:    info.Equity,
		Margin:    info.Margin,
		Positions: positions,
	}, nil
}

// FindPosition returns the first open position, in the order the bridge
// lists them, whose symbol matches (ignoring the configured suffix,
// case-insensitive) — used by the close and lot-modifier signal handlers.
// Positions are not sorted by open time, so with several matches the one
// returned is not necessarily the most recent.
func (e *Executor) FindPosition(ctx context.Context, symbol string) (domain.Position, bool, error) {
	snap, err := e.GetAccountSnapshot(ctx)
	if err != nil {
		return domain.Position{}, false, err
	}
	for _, p := range snap.Positions {
		if symbols.EqualIgnoringSuffix(p.Symbol, symbol, e.currentSettings().SymbolSuffix) {
			return p, true, nil
		}
	}
	return domain.Position{}, false, nil
}
