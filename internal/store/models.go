// Package store adapts internal/domain entities to gorm-backed persistence,
// mirroring the teacher's internal/database/database.go model style
// (explicit primary keys, indexed foreign keys, decimal columns stored as
// fixed-precision strings).
package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/relaycopier/signalcopier/internal/domain"
)

// TenantRow is the persisted form of domain.Tenant.
type TenantRow struct {
	ID        string `gorm:"primaryKey"`
	Status    string `gorm:"index"`
	Role      string
	PlanTier  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantCredentialsRow is the persisted form of domain.TenantCredentials.
type TenantCredentialsRow struct {
	TenantID          string `gorm:"primaryKey"`
	TelegramAPIID     int64
	TelegramAPIHash   string
	TelegramPhone     string
	TelegramSession   string
	TelegramConnected bool
	NotifyChatID      int64
	UpdatedAt         time.Time
}

// TenantSettingsRow is the persisted form of domain.TenantSettings. List
// fields are stored comma-separated, matching the Python source's
// comma-separated env/DB columns (channel_list, symbol_whitelist, tp_ratios).
type TenantSettingsRow struct {
	TenantID                string `gorm:"primaryKey"`
	MaxRiskPercent          decimal.Decimal `gorm:"type:decimal(18,8)"`
	MaxLotSize              decimal.Decimal `gorm:"type:decimal(18,8)"`
	MaxOpenTrades           int
	LotReferenceBalance     decimal.Decimal `gorm:"type:decimal(18,8)"`
	LotReferenceSizeGold    decimal.Decimal `gorm:"type:decimal(18,8)"`
	LotReferenceSizeDefault decimal.Decimal `gorm:"type:decimal(18,8)"`
	AutoAcceptSymbolsCSV    string
	GoldMarketThreshold     decimal.Decimal `gorm:"type:decimal(18,8)"`
	SplitTPs                bool
	TPSplitRatiosCSV        string
	TPLotMode               string
	EnableBreakeven         bool
	SymbolSuffix            string
	TelegramChannelIDsCSV   string
	Paused                  bool
	UpdatedAt               time.Time
}

// BrokerAccountRow is the persisted form of domain.BrokerAccount.
type BrokerAccountRow struct {
	ID              string `gorm:"primaryKey"`
	TenantID        string `gorm:"index"`
	Alias           string
	Login           string
	Server          string
	Platform        string
	BridgeAccountID string
	IsActive        bool
	IsConnected     bool
	IsPrimary       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SignalRow is the persisted form of domain.Signal. The (TenantID,
// ChannelID, MessageID) triple carries a unique index, which is what makes
// FindOrCreateSignal an atomic dedup check rather than a race.
type SignalRow struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	TenantID          string `gorm:"index:idx_signal_dedup,unique"`
	ChannelID         string `gorm:"index:idx_signal_dedup,unique"`
	MessageID         int64  `gorm:"index:idx_signal_dedup,unique"`
	RawText           string
	ReceivedAt        time.Time
	Symbol            string
	Direction         string
	OriginalDirection string
	Entry             decimal.Decimal `gorm:"type:decimal(18,8)"`
	StopLoss          decimal.Decimal `gorm:"type:decimal(18,8)"`
	TakeProfitsCSV    string
	Confidence        decimal.Decimal `gorm:"type:decimal(6,4)"`
	WarningsCSV       string
	Status            string `gorm:"index"`
	FailureReason     string
	ChosenLotSize     *decimal.Decimal `gorm:"type:decimal(18,8)"`
	ParsedAt          *time.Time
	ExecutedAt        *time.Time
}

// TradeRow is the persisted form of domain.Trade.
type TradeRow struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	TenantID        string `gorm:"index"`
	SignalID        int64  `gorm:"index"`
	BrokerAccountID string `gorm:"index"`
	BrokerOrderID   string `gorm:"index"`
	Symbol          string
	Direction       string
	LotSize         decimal.Decimal `gorm:"type:decimal(18,8)"`
	Entry           decimal.Decimal `gorm:"type:decimal(18,8)"`
	StopLoss        decimal.Decimal `gorm:"type:decimal(18,8)"`
	TakeProfit      decimal.Decimal `gorm:"type:decimal(18,8)"`
	TPIndex         int
	Status          string `gorm:"index"`
	OpenPrice       *decimal.Decimal `gorm:"type:decimal(18,8)"`
	ClosePrice      *decimal.Decimal `gorm:"type:decimal(18,8)"`
	Profit          *decimal.Decimal `gorm:"type:decimal(18,8)"`
	OpenedAt        *time.Time
	ClosedAt        *time.Time
}

func tenantFromRow(r TenantRow) domain.Tenant {
	return domain.Tenant{
		ID:       r.ID,
		Status:   domain.TenantStatus(r.Status),
		Role:     domain.TenantRole(r.Role),
		PlanTier: r.PlanTier,
	}
}

func signalFromRow(r SignalRow) domain.Signal {
	return domain.Signal{
		ID:                r.ID,
		TenantID:          r.TenantID,
		ChannelID:         r.ChannelID,
		MessageID:         r.MessageID,
		RawText:           r.RawText,
		ReceivedAt:        r.ReceivedAt,
		Symbol:            r.Symbol,
		Direction:         domain.Direction(r.Direction),
		OriginalDirection: domain.Direction(r.OriginalDirection),
		Entry:             r.Entry,
		StopLoss:          r.StopLoss,
		TakeProfits:       splitDecimals(r.TakeProfitsCSV),
		Confidence:        r.Confidence,
		Warnings:          splitStrings(r.WarningsCSV),
		Status:            domain.SignalStatus(r.Status),
		FailureReason:     r.FailureReason,
		ChosenLotSize:     r.ChosenLotSize,
		ParsedAt:          r.ParsedAt,
		ExecutedAt:        r.ExecutedAt,
	}
}

func rowFromSignal(s domain.Signal) SignalRow {
	return SignalRow{
		ID:                s.ID,
		TenantID:          s.TenantID,
		ChannelID:         s.ChannelID,
		MessageID:         s.MessageID,
		RawText:           s.RawText,
		ReceivedAt:        s.ReceivedAt,
		Symbol:            s.Symbol,
		Direction:         string(s.Direction),
		OriginalDirection: string(s.OriginalDirection),
		Entry:             s.Entry,
		StopLoss:          s.StopLoss,
		TakeProfitsCSV:    joinDecimals(s.TakeProfits),
		Confidence:        s.Confidence,
		WarningsCSV:       joinStrings(s.Warnings),
		Status:            string(s.Status),
		FailureReason:     s.FailureReason,
		ChosenLotSize:     s.ChosenLotSize,
		ParsedAt:          s.ParsedAt,
		ExecutedAt:        s.ExecutedAt,
	}
}

func tradeFromRow(r TradeRow) domain.Trade {
	return domain.Trade{
		ID:              r.ID,
		TenantID:        r.TenantID,
		SignalID:        r.SignalID,
		BrokerAccountID: r.BrokerAccountID,
		BrokerOrderID:   r.BrokerOrderID,
		Symbol:          r.Symbol,
		Direction:       domain.Direction(r.Direction),
		LotSize:         r.LotSize,
		Entry:           r.Entry,
		StopLoss:        r.StopLoss,
		TakeProfit:      r.TakeProfit,
		TPIndex:         r.TPIndex,
		Status:          domain.TradeStatus(r.Status),
		OpenPrice:       r.OpenPrice,
		ClosePrice:      r.ClosePrice,
		Profit:          r.Profit,
		OpenedAt:        r.OpenedAt,
		ClosedAt:        r.ClosedAt,
	}
}

func rowFromTrade(tr domain.Trade) TradeRow {
	return TradeRow{
		ID:              tr.ID,
		TenantID:        tr.TenantID,
		SignalID:        tr.SignalID,
		BrokerAccountID: tr.BrokerAccountID,
		BrokerOrderID:   tr.BrokerOrderID,
		Symbol:          tr.Symbol,
		Direction:       string(tr.Direction),
		LotSize:         tr.LotSize,
		Entry:           tr.Entry,
		StopLoss:        tr.StopLoss,
		TakeProfit:      tr.TakeProfit,
		TPIndex:         tr.TPIndex,
		Status:          string(tr.Status),
		OpenPrice:       tr.OpenPrice,
		ClosePrice:      tr.ClosePrice,
		Profit:          tr.Profit,
		OpenedAt:        tr.OpenedAt,
		ClosedAt:        tr.ClosedAt,
	}
}

func brokerAccountFromRow(r BrokerAccountRow) domain.BrokerAccount {
	return domain.BrokerAccount{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Alias:           r.Alias,
		Login:           r.Login,
		Server:          r.Server,
		Platform:        domain.Platform(r.Platform),
		BridgeAccountID: r.BridgeAccountID,
		IsActive:        r.IsActive,
		IsConnected:     r.IsConnected,
		IsPrimary:       r.IsPrimary,
	}
}

func rowFromBrokerAccount(a domain.BrokerAccount) BrokerAccountRow {
	return BrokerAccountRow{
		ID:              a.ID,
		TenantID:        a.TenantID,
		Alias:           a.Alias,
		Login:           a.Login,
		Server:          a.Server,
		Platform:        string(a.Platform),
		BridgeAccountID: a.BridgeAccountID,
		IsActive:        a.IsActive,
		IsConnected:     a.IsConnected,
		IsPrimary:       a.IsPrimary,
	}
}

func settingsFromRow(r TenantSettingsRow) domain.TenantSettings {
	return domain.TenantSettings{
		TenantID:                r.TenantID,
		MaxRiskPercent:          r.MaxRiskPercent,
		MaxLotSize:              r.MaxLotSize,
		MaxOpenTrades:           r.MaxOpenTrades,
		LotReferenceBalance:     r.LotReferenceBalance,
		LotReferenceSizeGold:    r.LotReferenceSizeGold,
		LotReferenceSizeDefault: r.LotReferenceSizeDefault,
		AutoAcceptSymbols:       setFromCSV(r.AutoAcceptSymbolsCSV),
		GoldMarketThreshold:     r.GoldMarketThreshold,
		SplitTPs:                r.SplitTPs,
		TPSplitRatios:           splitDecimals(r.TPSplitRatiosCSV),
		TPLotMode:               domain.TPLotMode(r.TPLotMode),
		EnableBreakeven:         r.EnableBreakeven,
		SymbolSuffix:            r.SymbolSuffix,
		TelegramChannelIDs:      setFromCSV(r.TelegramChannelIDsCSV),
		Paused:                  r.Paused,
	}
}

func rowFromSettings(s domain.TenantSettings) TenantSettingsRow {
	return TenantSettingsRow{
		TenantID:                s.TenantID,
		MaxRiskPercent:          s.MaxRiskPercent,
		MaxLotSize:              s.MaxLotSize,
		MaxOpenTrades:           s.MaxOpenTrades,
		LotReferenceBalance:     s.LotReferenceBalance,
		LotReferenceSizeGold:    s.LotReferenceSizeGold,
		LotReferenceSizeDefault: s.LotReferenceSizeDefault,
		AutoAcceptSymbolsCSV:    csvFromSet(s.AutoAcceptSymbols),
		GoldMarketThreshold:     s.GoldMarketThreshold,
		SplitTPs:                s.SplitTPs,
		TPSplitRatiosCSV:        joinDecimals(s.TPSplitRatios),
		TPLotMode:               string(s.TPLotMode),
		EnableBreakeven:         s.EnableBreakeven,
		SymbolSuffix:            s.SymbolSuffix,
		TelegramChannelIDsCSV:   csvFromSet(s.TelegramChannelIDs),
		Paused:                  s.Paused,
	}
}
