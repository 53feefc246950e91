package game

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func record(ts uint64, chosen, rolled uint8, amount int64) BetRecord {
	return BetRecord{
		Timestamp:    ts,
		ChosenNumber: chosen,
		RolledNumber: rolled,
		Amount:       big.NewInt(amount),
		Payout:       big.NewInt(amount * 2),
	}
}

func TestMergeViewNewestFirst(t *testing.T) {
	history := []BetRecord{
		record(100, 1, 1, 500),
		record(300, 2, 1, 500),
		record(200, 1, 2, 500),
	}
	view := MergeView(nil, history, false)

	assert.Len(t, view.Entries, 3)
	assert.Equal(t, uint64(300), view.Entries[0].Timestamp)
	assert.Equal(t, uint64(200), view.Entries[1].Timestamp)
	assert.Equal(t, uint64(100), view.Entries[2].Timestamp)
	assert.False(t, view.HasActiveGame)
}

func TestMergeViewPrependsPendingForActiveGame(t *testing.T) {
	status := &GameStatus{
		IsActive:          true,
		ChosenSide:        SideHeads,
		BetAmount:         big.NewInt(1000),
		LastPlayTimestamp: 400,
	}
	history := []BetRecord{record(100, 1, 1, 500)}

	view := MergeView(status, history, false)

	assert.True(t, view.HasActiveGame)
	assert.Len(t, view.Entries, 2)
	assert.True(t, view.Entries[0].Pending)
	assert.Equal(t, ResultPending, view.Entries[0].Result)
	assert.Equal(t, uint64(400), view.Entries[0].Timestamp)
}

func TestMergeViewDoesNotDuplicateActiveBetAlreadyInHistory(t *testing.T) {
	// The contract may append the record while the game is still flagged
	// active; the same logical bet must not show twice.
	status := &GameStatus{
		IsActive:          true,
		ChosenSide:        SideTails,
		BetAmount:         big.NewInt(777000),
		LastPlayTimestamp: 500,
	}
	history := []BetRecord{record(500, 2, 2, 777000)}

	view := MergeView(status, history, false)

	assert.Len(t, view.Entries, 1)
	assert.False(t, view.Entries[0].Pending)
}

func TestMergeViewDedupTolerantToAmountTail(t *testing.T) {
	status := &GameStatus{
		IsActive:          true,
		ChosenSide:        SideHeads,
		BetAmount:         big.NewInt(1000000000),
		LastPlayTimestamp: 500,
	}
	// Same bet, amount differs past the significant prefix.
	history := []BetRecord{record(500, 1, 1, 1000099999)}

	view := MergeView(status, history, false)

	assert.Len(t, view.Entries, 1)
}

func TestMergeViewDifferentTimestampIsDifferentBet(t *testing.T) {
	status := &GameStatus{
		IsActive:          true,
		ChosenSide:        SideHeads,
		BetAmount:         big.NewInt(500),
		LastPlayTimestamp: 600,
	}
	history := []BetRecord{record(500, 1, 1, 500)}

	view := MergeView(status, history, false)

	assert.Len(t, view.Entries, 2)
	assert.True(t, view.Entries[0].Pending)
}

func TestMergeViewActiveWithoutChosenSideAddsNoPending(t *testing.T) {
	status := &GameStatus{IsActive: true, ChosenSide: SideNone}
	view := MergeView(status, nil, true)

	assert.True(t, view.HasActiveGame)
	assert.Empty(t, view.Entries)
	assert.True(t, view.IsNewUser)
}

func TestMergeViewNilInputs(t *testing.T) {
	view := MergeView(nil, nil, true)
	assert.Empty(t, view.Entries)
	assert.True(t, view.IsNewUser)
	assert.False(t, view.HasActiveGame)
}
