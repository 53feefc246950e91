package db

import (
	"time"
)

// OnboardingState model (one record per account)
type OnboardingState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Account   string    `gorm:"not null;uniqueIndex" json:"account"`
	Completed bool      `gorm:"not null" json:"completed"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// WalletSession model (only 1 record), the auto-reconnect hint. A session is
// honored only within the configured freshness window.
type WalletSession struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProviderType string    `gorm:"not null" json:"provider_type"`
	Account      string    `gorm:"not null" json:"account"`
	ChainID      int64     `gorm:"not null" json:"chain_id"`
	ConnectedAt  time.Time `gorm:"not null" json:"connected_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// BetArchive model, resolved bet records mirrored locally so history is
// available across restarts even when the chain's ring buffer rotates.
type BetArchive struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Account      string    `gorm:"not null;uniqueIndex:idx_account_bet" json:"account"`
	Timestamp    uint64    `gorm:"not null;uniqueIndex:idx_account_bet" json:"timestamp"`
	ChosenNumber uint8     `gorm:"not null;uniqueIndex:idx_account_bet" json:"chosen_number"`
	RolledNumber uint8     `gorm:"not null" json:"rolled_number"`
	Amount       string    `gorm:"not null;uniqueIndex:idx_account_bet" json:"amount"`
	Payout       string    `gorm:"not null" json:"payout"`
	Result       string    `gorm:"not null" json:"result"` // "normal", "force_stopped", "recovered", "unknown"
	IsWin        bool      `gorm:"not null" json:"is_win"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}
