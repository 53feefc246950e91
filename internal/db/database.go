package db

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/flipverse/coinflip-agent/internal/config"
)

type DatabaseManager struct {
	clientDb *gorm.DB
}

func NewDatabaseManager() *DatabaseManager {
	dbDir := config.AppConfig.DbDir
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	dm, err := OpenDatabaseManager(filepath.Join(dbDir, "client_state.db"))
	if err != nil {
		log.Fatalf("Failed to connect to client state database: %v", err)
	}
	return dm
}

// OpenDatabaseManager opens the client state database at an explicit path.
// Tests pass ":memory:".
func OpenDatabaseManager(path string) (*DatabaseManager, error) {
	clientDb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Client state database connected, path: %s", path)

	dm := &DatabaseManager{clientDb: clientDb}
	if err := dm.autoMigrate(); err != nil {
		return nil, err
	}
	log.Debugf("Database migration completed successfully")
	return dm, nil
}

func (dm *DatabaseManager) GetClientDB() *gorm.DB {
	return dm.clientDb
}

func (dm *DatabaseManager) autoMigrate() error {
	return dm.clientDb.AutoMigrate(&OnboardingState{}, &WalletSession{}, &BetArchive{})
}
