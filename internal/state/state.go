package state

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/game"
)

// State holds the per-account caches the engines produce and the HTTP layer
// reads. Each slice is single-writer (the reconciler for view/status, the
// lifecycle controller for balances) and multi-reader behind RWMutexes.
type State struct {
	EventBus *EventBus

	accountMu sync.RWMutex
	account   common.Address
	chainID   int64

	viewMu sync.RWMutex
	view   game.MergedView

	statusMu sync.RWMutex
	status   *game.GameStatus

	fundsMu   sync.RWMutex
	balance   *big.Int
	allowance *big.Int
	fundsAt   time.Time
}

func InitializeState() *State {
	return &State{
		EventBus: NewEventBus(),
		view:     game.MergedView{IsNewUser: true, IsLoading: true},
	}
}

func (s *State) SetAccount(account common.Address, chainID int64) {
	s.accountMu.Lock()
	changed := s.account != account || s.chainID != chainID
	s.account = account
	s.chainID = chainID
	s.accountMu.Unlock()

	if changed {
		s.Invalidate()
	}
}

func (s *State) Account() (common.Address, int64) {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.account, s.chainID
}

// Invalidate discards every cached per-account slice. Called on account or
// chain switch; the next poll refetches everything.
func (s *State) Invalidate() {
	s.viewMu.Lock()
	s.view = game.MergedView{IsNewUser: true, IsLoading: true}
	s.viewMu.Unlock()

	s.statusMu.Lock()
	s.status = nil
	s.statusMu.Unlock()

	s.fundsMu.Lock()
	s.balance = nil
	s.allowance = nil
	s.fundsAt = time.Time{}
	s.fundsMu.Unlock()

	log.Debug("State caches invalidated")
}

// SetMergedView atomically swaps in a complete view. Partial results are
// never mixed in; the reconciler builds the whole view first.
func (s *State) SetMergedView(view game.MergedView) {
	s.viewMu.Lock()
	s.view = view
	s.viewMu.Unlock()
}

func (s *State) GetMergedView() game.MergedView {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

func (s *State) SetGameStatus(status *game.GameStatus) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}

func (s *State) GetGameStatus() *game.GameStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *State) SetFunds(balance, allowance *big.Int) {
	s.fundsMu.Lock()
	s.balance = balance
	s.allowance = allowance
	s.fundsAt = time.Now()
	s.fundsMu.Unlock()
}

func (s *State) GetFunds() (balance, allowance *big.Int, at time.Time) {
	s.fundsMu.RLock()
	defer s.fundsMu.RUnlock()
	return s.balance, s.allowance, s.fundsAt
}
