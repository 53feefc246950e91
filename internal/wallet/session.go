package wallet

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/db"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/state"
)

// Manager owns the wallet session records: the auto-reconnect hint, the
// per-account onboarding flag, and the account/chain switch fan-out. Switch
// handling is centralized here so every cache that depends on identity is
// invalidated in one place.
type Manager struct {
	st       *state.State
	dbm      *db.DatabaseManager
	notifier *notify.Router

	freshness time.Duration
}

func NewManager(st *state.State, dbm *db.DatabaseManager, notifier *notify.Router) *Manager {
	return &Manager{
		st:        st,
		dbm:       dbm,
		notifier:  notifier,
		freshness: config.AppConfig.SessionFreshness,
	}
}

func (m *Manager) clientDB() *gorm.DB {
	if m.dbm == nil {
		return nil
	}
	return m.dbm.GetClientDB()
}

// SaveSession records the connected wallet as the reconnect hint. A single
// row is kept; each connect overwrites it.
func (m *Manager) SaveSession(providerType string, account common.Address, chainID int64) error {
	clientDb := m.clientDB()
	if clientDb == nil {
		return nil
	}
	session := db.WalletSession{
		ID:           1,
		ProviderType: providerType,
		Account:      account.Hex(),
		ChainID:      chainID,
		ConnectedAt:  time.Now(),
		UpdatedAt:    time.Now(),
	}
	return clientDb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&session).Error
}

// FreshSession returns the stored session if it is recent enough to honor
// for auto-reconnect, or nil.
func (m *Manager) FreshSession() (*db.WalletSession, error) {
	clientDb := m.clientDB()
	if clientDb == nil {
		return nil, nil
	}
	var session db.WalletSession
	err := clientDb.First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	if time.Since(session.ConnectedAt) > m.freshness {
		log.WithFields(log.Fields{"connected_at": session.ConnectedAt}).
			Debug("Stored wallet session too old, ignoring")
		return nil, nil
	}
	return &session, nil
}

// ClearSession drops the reconnect hint, e.g. on explicit disconnect.
func (m *Manager) ClearSession() error {
	clientDb := m.clientDB()
	if clientDb == nil {
		return nil
	}
	return clientDb.Where("1 = 1").Delete(&db.WalletSession{}).Error
}

// CompleteOnboarding marks the account as having seen the first-run flow.
func (m *Manager) CompleteOnboarding(account common.Address) error {
	clientDb := m.clientDB()
	if clientDb == nil {
		return nil
	}
	row := db.OnboardingState{
		Account:   account.Hex(),
		Completed: true,
		UpdatedAt: time.Now(),
	}
	return clientDb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (m *Manager) IsOnboarded(account common.Address) (bool, error) {
	clientDb := m.clientDB()
	if clientDb == nil {
		return false, nil
	}
	var row db.OnboardingState
	err := clientDb.Where("account = ?", account.Hex()).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	return row.Completed, nil
}

// OnAccountChanged rebinds the session to a new account: all identity-scoped
// state resets and subscribers are told.
func (m *Manager) OnAccountChanged(account common.Address, chainID int64) {
	log.WithFields(log.Fields{"account": account.Hex()}).Info("Account changed")
	m.st.SetAccount(account, chainID)
	m.st.EventBus.Publish(state.AccountChanged, account)
}

// OnChainChanged handles a network switch. An unsupported chain is surfaced
// to the user but still recorded so the UI can prompt a switch back.
func (m *Manager) OnChainChanged(account common.Address, chainID int64) {
	log.WithFields(log.Fields{"chain_id": chainID, "chain": chain.ChainName(chainID)}).Info("Chain changed")
	m.st.SetAccount(account, chainID)
	if !chain.IsSupportedChain(chainID) && m.notifier != nil {
		m.notifier.PushError(chain.ErrUnsupportedNetwork)
	}
	m.st.EventBus.Publish(state.ChainChanged, chainID)
}
