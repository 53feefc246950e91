package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/flipverse/coinflip-agent/internal/game"
)

func TestInitialViewIsLoadingNewUser(t *testing.T) {
	s := InitializeState()
	view := s.GetMergedView()
	assert.True(t, view.IsLoading)
	assert.True(t, view.IsNewUser)
	assert.Empty(t, view.Entries)
}

func TestSetAccountChangeInvalidatesCaches(t *testing.T) {
	s := InitializeState()
	s.SetAccount(common.HexToAddress("0x01"), 51)
	s.SetMergedView(game.MergedView{IsNewUser: false, HasActiveGame: true})
	s.SetGameStatus(&game.GameStatus{IsActive: true})
	s.SetFunds(big.NewInt(100), big.NewInt(50))

	s.SetAccount(common.HexToAddress("0x02"), 51)

	view := s.GetMergedView()
	assert.True(t, view.IsLoading)
	assert.True(t, view.IsNewUser)
	assert.Nil(t, s.GetGameStatus())
	balance, allowance, _ := s.GetFunds()
	assert.Nil(t, balance)
	assert.Nil(t, allowance)
}

func TestSetAccountSameAccountKeepsCaches(t *testing.T) {
	s := InitializeState()
	s.SetAccount(common.HexToAddress("0x01"), 51)
	s.SetGameStatus(&game.GameStatus{IsActive: true})

	s.SetAccount(common.HexToAddress("0x01"), 51)

	assert.NotNil(t, s.GetGameStatus())
}

func TestChainSwitchInvalidates(t *testing.T) {
	s := InitializeState()
	s.SetAccount(common.HexToAddress("0x01"), 51)
	s.SetGameStatus(&game.GameStatus{IsActive: true})

	s.SetAccount(common.HexToAddress("0x01"), 50)

	assert.Nil(t, s.GetGameStatus())
	_, chainID := s.Account()
	assert.Equal(t, int64(50), chainID)
}

func TestMergedViewSwapIsWhole(t *testing.T) {
	s := InitializeState()
	v1 := game.MergedView{Entries: []game.Entry{{Timestamp: 1}}, IsNewUser: false}
	s.SetMergedView(v1)

	got := s.GetMergedView()
	assert.Len(t, got.Entries, 1)
	assert.False(t, got.IsLoading)
}
