package game

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCoversEveryRolledNumber(t *testing.T) {
	for v := 0; v <= 255; v++ {
		rt := Classify(uint8(v))
		switch uint8(v) {
		case RolledForceStopped:
			assert.Equal(t, ResultForceStopped, rt)
		case RolledRecovered:
			assert.Equal(t, ResultRecovered, rt)
		default:
			if v >= 1 && v <= 2 {
				assert.Equal(t, ResultNormal, rt)
			} else {
				assert.Equal(t, ResultUnknown, rt, "rolled %d", v)
			}
		}
	}
}

func TestSentinelsNeverCountAsWins(t *testing.T) {
	assert.False(t, IsWin(RolledForceStopped, 1))
	assert.False(t, IsWin(RolledForceStopped, 2))
	assert.False(t, IsWin(RolledRecovered, 1))
	assert.False(t, IsWin(RolledRecovered, 2))
}

func TestIsWinMatchesChosenSide(t *testing.T) {
	assert.True(t, IsWin(1, 1))
	assert.True(t, IsWin(2, 2))
	assert.False(t, IsWin(1, 2))
	assert.False(t, IsWin(2, 1))
}

func TestClassifyRecordForceStoppedReturnsBet(t *testing.T) {
	rec := BetRecord{
		Timestamp:    1700000000,
		ChosenNumber: 1,
		RolledNumber: RolledForceStopped,
		Amount:       big.NewInt(500),
		Payout:       big.NewInt(500),
	}
	e := ClassifyRecord(rec)
	assert.Equal(t, ResultForceStopped, e.Result)
	assert.False(t, e.IsWin)
	assert.False(t, e.Pending)
}

func TestClassifyRecordRecovered(t *testing.T) {
	rec := BetRecord{
		Timestamp:    1700000000,
		ChosenNumber: 2,
		RolledNumber: RolledRecovered,
		Amount:       big.NewInt(500),
		Payout:       big.NewInt(500),
	}
	e := ClassifyRecord(rec)
	assert.Equal(t, ResultRecovered, e.Result)
	assert.False(t, e.IsWin)
}

func TestClassifyRecordNormalWin(t *testing.T) {
	rec := BetRecord{
		Timestamp:    1700000000,
		ChosenNumber: 1,
		RolledNumber: 1,
		Amount:       big.NewInt(100),
		Payout:       big.NewInt(196),
	}
	e := ClassifyRecord(rec)
	assert.Equal(t, ResultNormal, e.Result)
	assert.True(t, e.IsWin)
}

func TestSameLogicalAmountPrefixTolerance(t *testing.T) {
	// Equal in the significant prefix even when trailing digits differ.
	assert.True(t, SameLogicalAmount("1000000000000000000", "1000009999999999999"))
	assert.True(t, SameLogicalAmount("123", "123"))
	assert.False(t, SameLogicalAmount("10000", "20000"))
	assert.False(t, SameLogicalAmount("999", "9990"))
}
