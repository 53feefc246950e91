package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpenAndMigrate(t *testing.T) {
	dm, err := OpenDatabaseManager(":memory:")
	assert.Nil(t, err)
	assert.NotNil(t, dm.GetClientDB())

	assert.True(t, dm.GetClientDB().Migrator().HasTable(&OnboardingState{}))
	assert.True(t, dm.GetClientDB().Migrator().HasTable(&WalletSession{}))
	assert.True(t, dm.GetClientDB().Migrator().HasTable(&BetArchive{}))
}

func TestBetArchiveUniquePerLogicalBet(t *testing.T) {
	dm, err := OpenDatabaseManager(":memory:")
	assert.Nil(t, err)

	row := BetArchive{
		Account:      "0xaa",
		Timestamp:    1700000000,
		ChosenNumber: 1,
		RolledNumber: 1,
		Amount:       "100",
		Payout:       "196",
		Result:       "normal",
		IsWin:        true,
		UpdatedAt:    time.Now(),
	}
	assert.Nil(t, dm.GetClientDB().Create(&row).Error)

	dup := row
	dup.ID = 0
	assert.NotNil(t, dm.GetClientDB().Create(&dup).Error, "composite key rejects duplicates")

	other := row
	other.ID = 0
	other.Timestamp = 1700000100
	assert.Nil(t, dm.GetClientDB().Create(&other).Error)
}
