package wallet

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/db"
	"github.com/flipverse/coinflip-agent/internal/state"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newTestManager(t *testing.T) (*Manager, *state.State) {
	config.AppConfig.SessionFreshness = 6 * time.Hour
	dbm, err := db.OpenDatabaseManager(":memory:")
	assert.Nil(t, err)
	st := state.InitializeState()
	return NewManager(st, dbm, nil), st
}

func TestSaveAndLoadFreshSession(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Nil(t, m.SaveSession("injected", testAccount, 51))

	session, err := m.FreshSession()
	assert.Nil(t, err)
	assert.NotNil(t, session)
	assert.Equal(t, "injected", session.ProviderType)
	assert.Equal(t, testAccount.Hex(), session.Account)
	assert.Equal(t, int64(51), session.ChainID)
}

func TestSaveSessionOverwritesPrevious(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Nil(t, m.SaveSession("injected", testAccount, 51))
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	assert.Nil(t, m.SaveSession("walletconnect", other, 50))

	session, err := m.FreshSession()
	assert.Nil(t, err)
	assert.NotNil(t, session)
	assert.Equal(t, "walletconnect", session.ProviderType)
	assert.Equal(t, other.Hex(), session.Account)

	var count int64
	m.dbm.GetClientDB().Model(&db.WalletSession{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestStaleSessionIgnored(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Nil(t, m.SaveSession("injected", testAccount, 51))
	m.dbm.GetClientDB().Model(&db.WalletSession{}).Where("id = ?", 1).
		Update("connected_at", time.Now().Add(-7*time.Hour))

	session, err := m.FreshSession()
	assert.Nil(t, err)
	assert.Nil(t, session, "sessions older than the freshness window are not honored")
}

func TestNoSessionReturnsNil(t *testing.T) {
	m, _ := newTestManager(t)
	session, err := m.FreshSession()
	assert.Nil(t, err)
	assert.Nil(t, session)
}

func TestClearSession(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Nil(t, m.SaveSession("injected", testAccount, 51))
	assert.Nil(t, m.ClearSession())

	session, err := m.FreshSession()
	assert.Nil(t, err)
	assert.Nil(t, session)
}

func TestOnboardingFlagPerAccount(t *testing.T) {
	m, _ := newTestManager(t)

	done, err := m.IsOnboarded(testAccount)
	assert.Nil(t, err)
	assert.False(t, done)

	assert.Nil(t, m.CompleteOnboarding(testAccount))

	done, err = m.IsOnboarded(testAccount)
	assert.Nil(t, err)
	assert.True(t, done)

	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	done, err = m.IsOnboarded(other)
	assert.Nil(t, err)
	assert.False(t, done, "onboarding is per account")
}

func TestCompleteOnboardingIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Nil(t, m.CompleteOnboarding(testAccount))
	assert.Nil(t, m.CompleteOnboarding(testAccount))

	var count int64
	m.dbm.GetClientDB().Model(&db.OnboardingState{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAccountChangeInvalidatesStateAndPublishes(t *testing.T) {
	m, st := newTestManager(t)
	ch := make(chan interface{}, 1)
	st.EventBus.Subscribe(state.AccountChanged, ch)

	m.OnAccountChanged(testAccount, 51)

	assert.Len(t, ch, 1)
	account, chainID := st.Account()
	assert.Equal(t, testAccount, account)
	assert.Equal(t, int64(51), chainID)
}

func TestChainChangePublishes(t *testing.T) {
	m, st := newTestManager(t)
	ch := make(chan interface{}, 1)
	st.EventBus.Subscribe(state.ChainChanged, ch)

	m.OnChainChanged(testAccount, 50)

	assert.Len(t, ch, 1)
	_, chainID := st.Account()
	assert.Equal(t, int64(50), chainID)
}
