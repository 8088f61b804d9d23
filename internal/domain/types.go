// Package domain holds the framework-agnostic entities shared across the
// signal pipeline: tenants, credentials, settings, broker accounts, signals
// and trades. These types carry no persistence tags — internal/store maps
// them to gorm models.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TenantStatus is the lifecycle state of a Tenant.
type TenantStatus string

const (
	TenantPending    TenantStatus = "pending"
	TenantOnboarding TenantStatus = "onboarding"
	TenantActive     TenantStatus = "active"
	TenantSuspended  TenantStatus = "suspended"
)

// TenantRole distinguishes admin tenants from ordinary customers.
type TenantRole string

const (
	RoleUser  TenantRole = "user"
	RoleAdmin TenantRole = "admin"
)

// Tenant is an isolated customer of the system. Created externally (onboarding
// flow, outside core scope); the core treats it as read-only.
type Tenant struct {
	ID       string
	Status   TenantStatus
	Role     TenantRole
	PlanTier string
}

// TenantCredentials holds the Telegram session for a tenant. TelegramSession
// is opaque and mutable — it MUST be persisted whenever the ingress layer
// rotates it.
type TenantCredentials struct {
	TenantID          string
	TelegramAPIID     int64
	TelegramAPIHash   string
	TelegramPhone     string
	TelegramSession   string
	TelegramConnected bool
	// NotifyChatID is the bot-API chat the tenant's command/notification
	// surface binds to, separate from the MTProto session above.
	NotifyChatID int64
}

// TPLotMode controls how a signal's total lot size is divided across split
// take-profit orders.
type TPLotMode string

const (
	TPLotModeSplit TPLotMode = "split"
	TPLotModeEqual TPLotMode = "equal"
)

// TenantSettings is a tenant's trading policy.
type TenantSettings struct {
	TenantID                string
	MaxRiskPercent          decimal.Decimal
	MaxLotSize              decimal.Decimal
	MaxOpenTrades           int
	LotReferenceBalance     decimal.Decimal
	LotReferenceSizeGold    decimal.Decimal
	LotReferenceSizeDefault decimal.Decimal
	AutoAcceptSymbols       map[string]struct{}
	GoldMarketThreshold     decimal.Decimal
	SplitTPs                bool
	TPSplitRatios           []decimal.Decimal
	TPLotMode               TPLotMode
	EnableBreakeven         bool
	SymbolSuffix            string
	TelegramChannelIDs      map[string]struct{}
	Paused                  bool
}

// Platform is the trading platform a BrokerAccount runs on.
type Platform string

const (
	PlatformMT4 Platform = "mt4"
	PlatformMT5 Platform = "mt5"
)

// BrokerAccount is one broker login a tenant has connected. Invariant:
// exactly one primary account per tenant when any account exists.
type BrokerAccount struct {
	ID              string
	TenantID        string
	Alias           string
	Login           string
	Server          string
	Platform        Platform
	BridgeAccountID string
	IsActive        bool
	IsConnected     bool
	IsPrimary       bool
}

// SignalStatus is the stage a Signal currently occupies in the pipeline.
type SignalStatus string

const (
	SignalReceived            SignalStatus = "received"
	SignalParsed              SignalStatus = "parsed"
	SignalValidated           SignalStatus = "validated"
	SignalPendingConfirmation SignalStatus = "pending_confirmation"
	SignalExecuted            SignalStatus = "executed"
	SignalPartial             SignalStatus = "partial"
	SignalSkipped             SignalStatus = "skipped"
	SignalFailed              SignalStatus = "failed"
	SignalRejected            SignalStatus = "rejected"
)

// Terminal reports whether status permits no further transition, except the
// single allowed pending_confirmation -> {executed,rejected,failed}.
func (s SignalStatus) Terminal() bool {
	switch s {
	case SignalExecuted, SignalSkipped, SignalFailed, SignalRejected, SignalPartial:
		return true
	default:
		return false
	}
}

// Direction is a trade side.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the flipped direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// SignalType distinguishes the three shapes a parsed message can take.
type SignalType string

const (
	SignalTypeOpen         SignalType = "OPEN"
	SignalTypeClose        SignalType = "CLOSE"
	SignalTypeLotModifier SignalType = "LOT_MODIFIER"
)

// ParseOutcome is the tagged union the signal parser returns: either a
// rejection (IsSignal=false) or a parsed signal of one of the three types.
type ParseOutcome struct {
	IsSignal          bool
	RejectionReason   string
	SignalType        SignalType
	Direction         Direction
	OriginalDirection Direction
	Symbol            string
	Entry             decimal.Decimal
	StopLoss          decimal.Decimal
	TakeProfits       []decimal.Decimal
	Confidence        decimal.Decimal
	Warnings          []string
	SuggestedCorrection string
	// LotModifierKind/LotModifierValue apply only when SignalType is
	// SignalTypeLotModifier ("DOUBLE" keeps the same lot additively, "ADD"
	// scales the original lot by LotModifierValue).
	LotModifierKind  string
	LotModifierValue decimal.Decimal
}

// Signal is the stage-machine record carrying one inbound message from
// received through its terminal status.
type Signal struct {
	ID                int64
	TenantID          string
	ChannelID         string
	MessageID         int64
	RawText           string
	ReceivedAt        time.Time
	Symbol            string
	Direction         Direction
	OriginalDirection Direction
	Entry             decimal.Decimal
	StopLoss          decimal.Decimal
	TakeProfits       []decimal.Decimal
	Confidence        decimal.Decimal
	Warnings          []string
	Status            SignalStatus
	FailureReason     string
	ChosenLotSize     *decimal.Decimal
	ParsedAt          *time.Time
	ExecutedAt        *time.Time
}

// ValidationResult is the output of the trade validator's 8-step pipeline.
type ValidationResult struct {
	Passed          bool
	Errors          []string
	Warnings        []string
	AdjustedLotSize decimal.Decimal
}

// TradeStatus is the lifecycle state of an executed order.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

// Trade is one broker order resulting from a Signal on one BrokerAccount.
type Trade struct {
	ID              int64
	TenantID        string
	SignalID        int64
	BrokerAccountID string
	BrokerOrderID   string
	Symbol          string
	Direction       Direction
	LotSize         decimal.Decimal
	Entry           decimal.Decimal
	StopLoss        decimal.Decimal
	TakeProfit      decimal.Decimal
	TPIndex         int
	Status          TradeStatus
	OpenPrice       *decimal.Decimal
	ClosePrice      *decimal.Decimal
	Profit          *decimal.Decimal
	OpenedAt        *time.Time
	ClosedAt        *time.Time
}

// AccountSnapshot is the live state of a broker account used for validation
// and reconciliation.
type AccountSnapshot struct {
	Balance   decimal.Decimal
	Equity    decimal.Decimal
	Margin    decimal.Decimal
	Positions []Position
}

// Position is a broker-reported open position.
type Position struct {
	ID         string
	Symbol     string
	Direction  Direction
	Volume     decimal.Decimal
	OpenPrice  decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Deal is a broker-side atomic fill record.
type Deal struct {
	PositionID string
	EntryType  string // DEAL_ENTRY_IN or DEAL_ENTRY_OUT
	Price      decimal.Decimal
	Profit     decimal.Decimal
	Time       time.Time
}
