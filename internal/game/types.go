package game

import (
	"math/big"
	"time"
)

// Side is the number the player bets on. The contract encodes heads as 1
// and tails as 2; zero means "no side chosen".
type Side uint8

const (
	SideNone  Side = 0
	SideHeads Side = 1
	SideTails Side = 2
)

func (s Side) Valid() bool {
	return s == SideHeads || s == SideTails
}

func (s Side) String() string {
	switch s {
	case SideHeads:
		return "heads"
	case SideTails:
		return "tails"
	}
	return "none"
}

// Sentinel rolled numbers the contract writes into history for games that
// did not resolve through the VRF.
const (
	RolledForceStopped uint8 = 254
	RolledRecovered    uint8 = 255
)

// ResultType is the tagged classification of a raw rolled number. Raw
// sentinels are folded into the variant at the read boundary so downstream
// code never re-checks magic numbers.
type ResultType string

const (
	ResultNormal       ResultType = "normal"
	ResultForceStopped ResultType = "force_stopped"
	ResultRecovered    ResultType = "recovered"
	ResultUnknown      ResultType = "unknown"
	ResultPending      ResultType = "pending"
)

// GameStatus mirrors the contract's per-account live game slot.
type GameStatus struct {
	IsActive          bool     `json:"is_active"`
	ChosenSide        Side     `json:"chosen_side"`
	BetAmount         *big.Int `json:"bet_amount"`
	LastPlayTimestamp uint64   `json:"last_play_timestamp"`
	RequestID         *big.Int `json:"request_id"`
	RequestExists     bool     `json:"request_exists"`
	RequestProcessed  bool     `json:"request_processed"`
	RecoveryEligible  bool     `json:"recovery_eligible"`
	Result            uint8    `json:"result"`
	Payout            *big.Int `json:"payout"`
}

// BetRecord is one raw entry of the contract's bounded history ring buffer.
// Immutable once fetched; the whole collection is replaced on each refresh.
type BetRecord struct {
	Timestamp    uint64   `json:"timestamp"`
	ChosenNumber uint8    `json:"chosen_number"`
	RolledNumber uint8    `json:"rolled_number"`
	Amount       *big.Int `json:"amount"`
	Payout       *big.Int `json:"payout"`
}

// Entry is a classified view row: a BetRecord plus its derived result, or a
// synthetic pending row for the current active game.
type Entry struct {
	Timestamp    uint64     `json:"timestamp"`
	ChosenNumber uint8      `json:"chosen_number"`
	RolledNumber uint8      `json:"rolled_number"`
	Amount       *big.Int   `json:"amount"`
	Payout       *big.Int   `json:"payout"`
	Result       ResultType `json:"result"`
	IsWin        bool       `json:"is_win"`
	Pending      bool       `json:"pending"`
}

// MergedView is the reconciler's output: active game status merged with
// history, deduplicated, newest first. Swapped atomically on every poll.
type MergedView struct {
	Entries       []Entry `json:"entries"`
	IsNewUser     bool    `json:"is_new_user"`
	HasActiveGame bool    `json:"has_active_game"`
	// IsLoading means no data yet: the pristine view before the first
	// successful poll, or right after an account or chain switch wipes the
	// caches. It does not track whether a fetch is in flight.
	IsLoading bool      `json:"is_loading"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Constants is the contract's exposed constants surface, read once and cached.
type Constants struct {
	MaxBetAmount   *big.Int
	MaxHistorySize uint64
	Heads          uint8
	Tails          uint8
	ForceStopped   uint8
	Recovered      uint8
}
