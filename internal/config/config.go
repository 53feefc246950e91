package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

func InitConfig() {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded environment from .env")
	}
	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("ETH_RPC", "http://localhost:8545")
	viper.SetDefault("ETH_JWT_SECRET", "")
	viper.SetDefault("CHAIN_ID", int64(51))
	viper.SetDefault("MAINNET_RPC", "")
	viper.SetDefault("TESTNET_RPC", "")
	viper.SetDefault("FLIP_CONTRACT", "")
	viper.SetDefault("TOKEN_CONTRACT", "")
	viper.SetDefault("PRIVATE_KEY", "")
	viper.SetDefault("DB_DIR", "/app/db")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("POLL_ACTIVE_INTERVAL", "2s")
	viper.SetDefault("POLL_IDLE_INTERVAL", "10s")
	viper.SetDefault("VRF_POLL_INTERVAL", "5s")
	viper.SetDefault("APPROVE_TIMEOUT", "60s")
	viper.SetDefault("BET_TIMEOUT", "90s")
	viper.SetDefault("LONG_WAIT_THRESHOLD", "60s")
	viper.SetDefault("RECOVERY_TIMEOUT", "3600s")
	viper.SetDefault("APPROVE_RETRY", 2)
	viper.SetDefault("CALL_TIMEOUT", "15s")
	viper.SetDefault("HEALTH_INTERVAL", "30s")
	viper.SetDefault("SESSION_FRESHNESS", "6h")
	viper.SetDefault("NOTIFY_DEDUP_WINDOW", "5s")
	viper.SetDefault("NOTIFY_MAX_QUEUE", 50)
	viper.SetDefault("API_JWT_SECRET", "")

	logLevel, err := logrus.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}

	AppConfig = Config{
		HTTPPort:           viper.GetString("HTTP_PORT"),
		EthRPC:             viper.GetString("ETH_RPC"),
		EthJwtSecret:       viper.GetString("ETH_JWT_SECRET"),
		ChainID:            viper.GetInt64("CHAIN_ID"),
		MainnetRPC:         viper.GetString("MAINNET_RPC"),
		TestnetRPC:         viper.GetString("TESTNET_RPC"),
		FlipContract:       viper.GetString("FLIP_CONTRACT"),
		TokenContract:      viper.GetString("TOKEN_CONTRACT"),
		PrivateKey:         viper.GetString("PRIVATE_KEY"),
		DbDir:              viper.GetString("DB_DIR"),
		LogLevel:           logLevel,
		PollActiveInterval: viper.GetDuration("POLL_ACTIVE_INTERVAL"),
		PollIdleInterval:   viper.GetDuration("POLL_IDLE_INTERVAL"),
		VrfPollInterval:    viper.GetDuration("VRF_POLL_INTERVAL"),
		ApproveTimeout:     viper.GetDuration("APPROVE_TIMEOUT"),
		BetTimeout:         viper.GetDuration("BET_TIMEOUT"),
		LongWaitThreshold:  viper.GetDuration("LONG_WAIT_THRESHOLD"),
		RecoveryTimeout:    viper.GetDuration("RECOVERY_TIMEOUT"),
		ApproveRetry:       viper.GetInt("APPROVE_RETRY"),
		CallTimeout:        viper.GetDuration("CALL_TIMEOUT"),
		HealthInterval:     viper.GetDuration("HEALTH_INTERVAL"),
		SessionFreshness:   viper.GetDuration("SESSION_FRESHNESS"),
		NotifyDedupWindow:  viper.GetDuration("NOTIFY_DEDUP_WINDOW"),
		NotifyMaxQueue:     viper.GetInt("NOTIFY_MAX_QUEUE"),
		APIJwtSecret:       viper.GetString("API_JWT_SECRET"),
	}

	if AppConfig.PollActiveInterval > AppConfig.PollIdleInterval {
		logrus.Warnf("Active poll interval %v is longer than idle interval %v, swapping",
			AppConfig.PollActiveInterval, AppConfig.PollIdleInterval)
		AppConfig.PollActiveInterval, AppConfig.PollIdleInterval = AppConfig.PollIdleInterval, AppConfig.PollActiveInterval
	}

	logrus.Infof("Init config, ChainID %d, PollActiveInterval %v, PollIdleInterval %v, RecoveryTimeout %v",
		AppConfig.ChainID, AppConfig.PollActiveInterval, AppConfig.PollIdleInterval, AppConfig.RecoveryTimeout)

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(AppConfig.LogLevel)
}

type Config struct {
	HTTPPort           string
	EthRPC             string
	EthJwtSecret       string
	ChainID            int64
	MainnetRPC         string
	TestnetRPC         string
	FlipContract       string
	TokenContract      string
	PrivateKey         string
	DbDir              string
	LogLevel           logrus.Level
	PollActiveInterval time.Duration
	PollIdleInterval   time.Duration
	VrfPollInterval    time.Duration
	ApproveTimeout     time.Duration
	BetTimeout         time.Duration
	LongWaitThreshold  time.Duration
	RecoveryTimeout    time.Duration
	ApproveRetry       int
	CallTimeout        time.Duration
	HealthInterval     time.Duration
	SessionFreshness   time.Duration
	NotifyDedupWindow  time.Duration
	NotifyMaxQueue     int
	APIJwtSecret       string
}
