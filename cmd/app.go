package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/db"
	"github.com/flipverse/coinflip-agent/internal/http"
	"github.com/flipverse/coinflip-agent/internal/lifecycle"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/reconciler"
	"github.com/flipverse/coinflip-agent/internal/recovery"
	"github.com/flipverse/coinflip-agent/internal/state"
	"github.com/flipverse/coinflip-agent/internal/wallet"
)

type Application struct {
	DatabaseManager *db.DatabaseManager
	State           *state.State
	Notifier        *notify.Router
	Reconciler      *reconciler.Reconciler
	Controller      *lifecycle.Controller
	Advisor         *recovery.Advisor
	Sessions        *wallet.Manager
	HealthMonitor   *chain.HealthMonitor
	HTTPServer      *http.HTTPServerImpl

	gwMu sync.RWMutex
	gw   chain.Gateway
}

func NewApplication() *Application {
	config.InitConfig()

	client, err := chain.DialEthClient()
	if err != nil {
		log.Fatalf("Failed to connect to ethereum rpc: %v", err)
	}
	gw := buildGateway(client, config.AppConfig.ChainID)

	dbm := db.NewDatabaseManager()
	st := state.InitializeState()
	st.SetAccount(gw.Account(), config.AppConfig.ChainID)

	notifier := notify.NewRouter(st.EventBus,
		config.AppConfig.NotifyDedupWindow, config.AppConfig.NotifyMaxQueue)
	rec := reconciler.NewReconciler(gw, st, notifier, dbm,
		config.AppConfig.PollActiveInterval, config.AppConfig.PollIdleInterval)
	controller := lifecycle.NewController(gw, st, notifier)
	advisor := recovery.NewAdvisor(st, controller, notifier)
	sessions := wallet.NewManager(st, dbm, notifier)

	endpoints := make(map[int64]string)
	if config.AppConfig.MainnetRPC != "" {
		endpoints[chain.MainnetChainID] = config.AppConfig.MainnetRPC
	}
	if config.AppConfig.TestnetRPC != "" {
		endpoints[chain.TestnetChainID] = config.AppConfig.TestnetRPC
	}
	healthMonitor := chain.NewHealthMonitor(endpoints, config.AppConfig.HealthInterval)

	app := &Application{
		DatabaseManager: dbm,
		State:           st,
		Notifier:        notifier,
		Reconciler:      rec,
		Controller:      controller,
		Advisor:         advisor,
		Sessions:        sessions,
		HealthMonitor:   healthMonitor,
		gw:              gw,
	}
	controller.SetReinit(app.rebuildGateway)
	app.HTTPServer = http.NewHTTPServer(st, controller, advisor, notifier, sessions, healthMonitor, app.Gateway)
	return app
}

func (app *Application) Gateway() chain.Gateway {
	app.gwMu.RLock()
	defer app.gwMu.RUnlock()
	return app.gw
}

func (app *Application) setGateway(gw chain.Gateway) {
	app.gwMu.Lock()
	app.gw = gw
	app.gwMu.Unlock()
	app.Controller.SetGateway(gw)
	app.Reconciler.SetGateway(gw)
}

// rebuildGateway re-dials the RPC for the session's current chain and
// reconstructs the signing gateway around the configured key.
func (app *Application) rebuildGateway() (chain.Gateway, error) {
	_, chainID := app.State.Account()

	endpoint := config.AppConfig.EthRPC
	switch chainID {
	case chain.MainnetChainID:
		if config.AppConfig.MainnetRPC != "" {
			endpoint = config.AppConfig.MainnetRPC
		}
	case chain.TestnetChainID:
		if config.AppConfig.TestnetRPC != "" {
			endpoint = config.AppConfig.TestnetRPC
		}
	}

	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, err
	}
	gw := buildGateway(client, chainID)
	app.gwMu.Lock()
	app.gw = gw
	app.gwMu.Unlock()
	return gw, nil
}

func buildGateway(client *ethclient.Client, chainID int64) chain.Gateway {
	gw, err := chain.NewEthGateway(client, chainID,
		config.AppConfig.PrivateKey,
		common.HexToAddress(config.AppConfig.FlipContract),
		common.HexToAddress(config.AppConfig.TokenContract))
	if err != nil {
		log.Fatalf("Failed to initialize chain gateway: %v", err)
	}
	return gw
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	app.Reconciler.Start(ctx)
	app.HealthMonitor.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.watchSessionEvents(ctx)
	}()

	go app.HTTPServer.StartHTTPServer()

	<-stop
	log.Info("Receiving exit signal...")

	app.Controller.Teardown()
	cancel()

	wg.Wait()
	log.Info("Server stopped")
}

// watchSessionEvents reacts to account and chain switches: tear down any
// in-flight operation, rebuild the gateway, reset the reconciler's caches.
func (app *Application) watchSessionEvents(ctx context.Context) {
	accountCh := make(chan interface{}, 4)
	chainCh := make(chan interface{}, 4)
	app.State.EventBus.Subscribe(state.AccountChanged, accountCh)
	app.State.EventBus.Subscribe(state.ChainChanged, chainCh)

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-accountCh:
			app.Controller.Teardown()
			if account, ok := data.(common.Address); ok {
				app.Reconciler.OnAccountChanged(account)
			}
		case <-chainCh:
			app.Controller.Teardown()
			gw, err := app.rebuildGateway()
			if err != nil {
				log.Errorf("Failed to rebuild gateway after chain switch: %v", err)
				app.Notifier.PushError(err)
				_, chainID := app.State.Account()
				app.Reconciler.OnChainChanged(chainID)
				continue
			}
			app.setGateway(gw)
		}
	}
}

func main() {
	app := NewApplication()
	app.Run()
}
