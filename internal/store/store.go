package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaycopier/signalcopier/internal/domain"
)

// Store is the settings-store adapter (C2): gorm-backed CRUD over the
// tenant/signal/trade data model, driver-agnostic the way the teacher's
// internal/database/database.go supports both postgres and sqlite.
type Store struct {
	db *gorm.DB
}

// Open connects to driver ("postgres" or "sqlite") using dsn and runs
// AutoMigrate for every row model, exactly as the teacher does at startup.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.AutoMigrate(
		&TenantRow{},
		&TenantCredentialsRow{},
		&TenantSettingsRow{},
		&BrokerAccountRow{},
		&SignalRow{},
		&TradeRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &Store{db: db}, nil
}

// FromDB wraps an already-open *gorm.DB, used by tests that want an
// in-memory sqlite instance with custom settings.
func FromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetTenant loads a tenant by id.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error) {
	var row TenantRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
		}
		return domain.Tenant{}, err
	}
	return tenantFromRow(row), nil
}

// ActiveTenants returns every tenant whose status is "active".
func (s *Store) ActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	var rows []TenantRow
	if err := s.db.WithContext(ctx).Where("status = ?", string(domain.TenantActive)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Tenant, len(rows))
	for i, r := range rows {
		out[i] = tenantFromRow(r)
	}
	return out, nil
}

// GetCredentials loads a tenant's Telegram credentials.
func (s *Store) GetCredentials(ctx context.Context, tenantID string) (domain.TenantCredentials, error) {
	var row TenantCredentialsRow
	if err := s.db.WithContext(ctx).First(&row, "tenant_id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TenantCredentials{}, fmt.Errorf("credentials for %s: %w", tenantID, domain.ErrNotFound)
		}
		return domain.TenantCredentials{}, err
	}
	return domain.TenantCredentials{
		TenantID:          row.TenantID,
		TelegramAPIID:     row.TelegramAPIID,
		TelegramAPIHash:   row.TelegramAPIHash,
		TelegramPhone:     row.TelegramPhone,
		TelegramSession:   row.TelegramSession,
		TelegramConnected: row.TelegramConnected,
		NotifyChatID:      row.NotifyChatID,
	}, nil
}

// TenantIDForChatID resolves which tenant owns a notification chat, for
// routing an inbound private-chat command to the right tenant.
func (s *Store) TenantIDForChatID(ctx context.Context, chatID int64) (string, error) {
	var row TenantCredentialsRow
	if err := s.db.WithContext(ctx).First(&row, "notify_chat_id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("no tenant for chat %d: %w", chatID, domain.ErrNotFound)
		}
		return "", err
	}
	return row.TenantID, nil
}

// SaveCredentials upserts a tenant's Telegram credentials, including the
// opaque session blob and the telegram_connected flag that the connmanager
// watchdog corrects.
func (s *Store) SaveCredentials(ctx context.Context, c domain.TenantCredentials) error {
	row := TenantCredentialsRow{
		TenantID:          c.TenantID,
		TelegramAPIID:     c.TelegramAPIID,
		TelegramAPIHash:   c.TelegramAPIHash,
		TelegramPhone:     c.TelegramPhone,
		TelegramSession:   c.TelegramSession,
		TelegramConnected: c.TelegramConnected,
		NotifyChatID:      c.NotifyChatID,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// GetSettings loads a tenant's trading policy.
func (s *Store) GetSettings(ctx context.Context, tenantID string) (domain.TenantSettings, error) {
	var row TenantSettingsRow
	if err := s.db.WithContext(ctx).First(&row, "tenant_id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TenantSettings{}, fmt.Errorf("settings for %s: %w", tenantID, domain.ErrNotFound)
		}
		return domain.TenantSettings{}, err
	}
	return settingsFromRow(row), nil
}

// SaveSettings upserts a tenant's trading policy. Used by the ingress
// /pause and /resume commands; the router reads settings from the store on
// every message, while a connected tenant's executors keep their
// ExecutorSettings until supervisor.ReloadSettings is called.
func (s *Store) SaveSettings(ctx context.Context, settings domain.TenantSettings) error {
	row := rowFromSettings(settings)
	return s.db.WithContext(ctx).Save(&row).Error
}

// BrokerAccountsForTenant returns every broker account belonging to tenantID.
func (s *Store) BrokerAccountsForTenant(ctx context.Context, tenantID string) ([]domain.BrokerAccount, error) {
	var rows []BrokerAccountRow
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.BrokerAccount, len(rows))
	for i, r := range rows {
		out[i] = brokerAccountFromRow(r)
	}
	return out, nil
}

// SetBrokerAccountConnected updates the connected flag for one account.
func (s *Store) SetBrokerAccountConnected(ctx context.Context, accountID string, connected bool) error {
	return s.db.WithContext(ctx).Model(&BrokerAccountRow{}).
		Where("id = ?", accountID).
		Update("is_connected", connected).Error
}

// SaveBrokerAccount upserts a broker account row.
func (s *Store) SaveBrokerAccount(ctx context.Context, a domain.BrokerAccount) error {
	row := rowFromBrokerAccount(a)
	return s.db.WithContext(ctx).Save(&row).Error
}

// AllChannelSubscriptions loads every tenant's subscribed channel IDs,
// building the channel->tenants reverse index the router's subscriber
// cache refreshes periodically, mirroring
// _refresh_channel_subscribers_cache's full-table scan of user_settings_v2.
func (s *Store) AllChannelSubscriptions(ctx context.Context) (map[string][]string, error) {
	var rows []TenantSettingsRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range rows {
		for _, channelID := range splitStrings(r.TelegramChannelIDsCSV) {
			out[channelID] = append(out[channelID], r.TenantID)
		}
	}
	return out, nil
}

// FindOrCreateSignal atomically inserts a new Signal for
// (tenantID, channelID, messageID). If a row already exists for that triple
// it returns the existing signal and created=false — this is the dedup
// check the router uses to silently drop a re-delivered Telegram update.
func (s *Store) FindOrCreateSignal(ctx context.Context, sig domain.Signal) (result domain.Signal, created bool, err error) {
	row := rowFromSignal(sig)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing SignalRow
		findErr := tx.Where(
			"tenant_id = ? AND channel_id = ? AND message_id = ?",
			sig.TenantID, sig.ChannelID, sig.MessageID,
		).First(&existing).Error

		if findErr == nil {
			result = signalFromRow(existing)
			created = false
			return nil
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create signal: %w", err)
		}
		result = signalFromRow(row)
		created = true
		return nil
	})
	if txErr != nil {
		return domain.Signal{}, false, txErr
	}
	return result, created, nil
}

// UpdateSignal persists the current state of an existing signal.
func (s *Store) UpdateSignal(ctx context.Context, sig domain.Signal) error {
	row := rowFromSignal(sig)
	return s.db.WithContext(ctx).Save(&row).Error
}

// GetSignal loads a signal by id.
func (s *Store) GetSignal(ctx context.Context, id int64) (domain.Signal, error) {
	var row SignalRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Signal{}, fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
		}
		return domain.Signal{}, err
	}
	return signalFromRow(row), nil
}

// SaveTrade inserts a new trade row.
func (s *Store) SaveTrade(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	row := rowFromTrade(t)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Trade{}, err
	}
	return tradeFromRow(row), nil
}

// UpdateTrade persists the current state of an existing trade.
func (s *Store) UpdateTrade(ctx context.Context, t domain.Trade) error {
	row := rowFromTrade(t)
	return s.db.WithContext(ctx).Save(&row).Error
}

// OpenTradesForSync returns every trade in {pending, open} for tenantID —
// the set the reconciler diffs against the broker's live positions.
func (s *Store) OpenTradesForSync(ctx context.Context, tenantID string) ([]domain.Trade, error) {
	var rows []TradeRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, []string{string(domain.TradePending), string(domain.TradeOpen)}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Trade, len(rows))
	for i, r := range rows {
		out[i] = tradeFromRow(r)
	}
	return out, nil
}
