package reconciler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/flipverse/coinflip-agent/internal/db"
	"github.com/flipverse/coinflip-agent/internal/game"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/state"
)

type fakeGateway struct {
	mu           sync.Mutex
	account      common.Address
	status       *game.GameStatus
	statusErr    error
	history      []game.BetRecord
	historyErr   error
	statusCalls  int
	historyCalls int
}

func (f *fakeGateway) Account() common.Address { return f.account }
func (f *fakeGateway) ChainID() int64          { return 51 }

func (f *fakeGateway) GetGameStatus(ctx context.Context, account common.Address) (*game.GameStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeGateway) GetBetHistory(ctx context.Context, account common.Address) ([]game.BetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeGateway) Constants(ctx context.Context) (*game.Constants, error) {
	return &game.Constants{MaxBetAmount: big.NewInt(1e18)}, nil
}

func (f *fakeGateway) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeGateway) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeGateway) Approve(ctx context.Context, amount *big.Int) (*ethtypes.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) FlipCoin(ctx context.Context, side game.Side, amount *big.Int) (*ethtypes.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) RecoverStuckGame(ctx context.Context) (*ethtypes.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) set(status *game.GameStatus, history []game.BetRecord) {
	f.mu.Lock()
	f.status = status
	f.history = history
	f.mu.Unlock()
}

func (f *fakeGateway) calls() (status, history int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.historyCalls
}

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newTestReconciler(gw *fakeGateway) (*Reconciler, *state.State, *notify.Router) {
	gw.account = testAccount
	st := state.InitializeState()
	st.SetAccount(testAccount, 51)
	notifier := notify.NewRouter(st.EventBus, 5*time.Second, 50)
	r := NewReconciler(gw, st, notifier, nil, 2*time.Second, 10*time.Second)
	return r, st, notifier
}

func TestNewUserSkipsHistoryFetch(t *testing.T) {
	gw := &fakeGateway{}
	gw.set(&game.GameStatus{IsActive: false}, nil)
	r, st, _ := newTestReconciler(gw)

	r.pollOnce(context.Background())

	_, historyCalls := gw.calls()
	assert.Equal(t, 0, historyCalls)
	view := st.GetMergedView()
	assert.True(t, view.IsNewUser)
	assert.Empty(t, view.Entries)
}

func TestGraduationIsMonotonic(t *testing.T) {
	gw := &fakeGateway{}
	gw.set(&game.GameStatus{IsActive: false, LastPlayTimestamp: 1700000000}, nil)
	r, st, _ := newTestReconciler(gw)

	r.pollOnce(context.Background())
	assert.False(t, st.GetMergedView().IsNewUser)

	// Later polls returning empty data never flip the account back to new.
	gw.set(&game.GameStatus{IsActive: false}, nil)
	r.pollOnce(context.Background())
	assert.False(t, st.GetMergedView().IsNewUser)

	_, historyCalls := gw.calls()
	assert.Equal(t, 1, historyCalls, "graduated account fetches history")
}

func TestActiveGameFetchesHistoryEvenForNewUser(t *testing.T) {
	gw := &fakeGateway{}
	active := &game.GameStatus{
		IsActive:          true,
		ChosenSide:        game.SideHeads,
		BetAmount:         big.NewInt(500),
		LastPlayTimestamp: 1700000000,
	}
	gw.set(active, nil)
	r, st, _ := newTestReconciler(gw)

	// First poll: not yet known to be active, history skipped.
	assert.True(t, r.pollOnce(context.Background()))
	// Second poll: cached status is active, history now included.
	r.pollOnce(context.Background())

	_, historyCalls := gw.calls()
	assert.Equal(t, 1, historyCalls)
	assert.True(t, st.GetMergedView().HasActiveGame)
	assert.True(t, st.GetMergedView().Entries[0].Pending)
}

func TestPartialFailureKeepsCachedHistory(t *testing.T) {
	gw := &fakeGateway{}
	history := []game.BetRecord{{
		Timestamp: 1700000000, ChosenNumber: 1, RolledNumber: 1,
		Amount: big.NewInt(100), Payout: big.NewInt(196),
	}}
	gw.set(&game.GameStatus{IsActive: false, LastPlayTimestamp: 1700000000}, history)
	r, st, _ := newTestReconciler(gw)

	r.pollOnce(context.Background()) // graduates
	r.pollOnce(context.Background()) // caches history

	gw.mu.Lock()
	gw.historyErr = errors.New("connection refused")
	gw.mu.Unlock()

	r.pollOnce(context.Background())

	view := st.GetMergedView()
	assert.Len(t, view.Entries, 1, "stale history better than none")
	assert.NotEmpty(t, view.LastError)
}

func TestThirdConsecutiveStatusFailureNotifies(t *testing.T) {
	gw := &fakeGateway{statusErr: errors.New("connection refused")}
	gw.set(nil, nil)
	r, _, notifier := newTestReconciler(gw)

	r.pollOnce(context.Background())
	r.pollOnce(context.Background())
	assert.Empty(t, notifier.List(), "two failures stay silent")

	r.pollOnce(context.Background())
	list := notifier.List()
	assert.Len(t, list, 1)
	assert.Equal(t, notify.SeverityWarning, list[0].Severity)
}

func TestResolutionTransitionPublishesAndArchives(t *testing.T) {
	gw := &fakeGateway{}
	active := &game.GameStatus{
		IsActive:          true,
		ChosenSide:        game.SideHeads,
		BetAmount:         big.NewInt(100),
		LastPlayTimestamp: 1700000100,
	}
	gw.set(active, nil)

	dbm, err := db.OpenDatabaseManager(":memory:")
	assert.Nil(t, err)

	st := state.InitializeState()
	st.SetAccount(testAccount, 51)
	notifier := notify.NewRouter(st.EventBus, 5*time.Second, 50)
	gw.account = testAccount
	r := NewReconciler(gw, st, notifier, dbm, 2*time.Second, 10*time.Second)

	resolvedCh := make(chan interface{}, 1)
	st.EventBus.Subscribe(state.BetResolved, resolvedCh)

	r.pollOnce(context.Background())

	resolved := []game.BetRecord{{
		Timestamp: 1700000100, ChosenNumber: 1, RolledNumber: 1,
		Amount: big.NewInt(100), Payout: big.NewInt(196),
	}}
	gw.set(&game.GameStatus{IsActive: false, LastPlayTimestamp: 1700000100}, resolved)

	r.pollOnce(context.Background())

	select {
	case data := <-resolvedCh:
		entry, ok := data.(game.Entry)
		assert.True(t, ok)
		assert.True(t, entry.IsWin)
	default:
		t.Fatal("expected resolution event")
	}

	var count int64
	dbm.GetClientDB().Model(&db.BetArchive{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var row db.BetArchive
	dbm.GetClientDB().First(&row)
	assert.Equal(t, testAccount.Hex(), row.Account)
	assert.True(t, row.IsWin)
	assert.Equal(t, "normal", row.Result)
}

func TestRepolledResolvedHistoryArchivesOnce(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	gw := &fakeGateway{}
	resolved := []game.BetRecord{{
		Timestamp: 1700000300, ChosenNumber: 1, RolledNumber: 2,
		Amount: big.NewInt(100), Payout: big.NewInt(0),
	}}
	gw.set(&game.GameStatus{IsActive: false, LastPlayTimestamp: 1700000300}, resolved)

	dbm, err := db.OpenDatabaseManager(":memory:")
	assert.Nil(t, err)

	st := state.InitializeState()
	st.SetAccount(testAccount, 51)
	notifier := notify.NewRouter(st.EventBus, 5*time.Second, 50)
	gw.account = testAccount
	r := NewReconciler(gw, st, notifier, dbm, 2*time.Second, 10*time.Second)

	r.pollOnce(context.Background()) // graduates
	r.pollOnce(context.Background()) // archives the record
	r.pollOnce(context.Background()) // same history again, archive is a no-op

	var count int64
	dbm.GetClientDB().Model(&db.BetArchive{}).Count(&count)
	assert.Equal(t, int64(1), count)

	for _, entry := range hook.AllEntries() {
		assert.NotContains(t, entry.Message, "Failed to archive")
	}
}

func TestRecoveredSentinelPublishesGameRecovered(t *testing.T) {
	gw := &fakeGateway{}
	active := &game.GameStatus{
		IsActive:          true,
		ChosenSide:        game.SideTails,
		BetAmount:         big.NewInt(100),
		LastPlayTimestamp: 1700000200,
	}
	gw.set(active, nil)
	r, st, _ := newTestReconciler(gw)

	recoveredCh := make(chan interface{}, 1)
	st.EventBus.Subscribe(state.GameRecovered, recoveredCh)

	r.pollOnce(context.Background())

	gw.set(&game.GameStatus{IsActive: false, LastPlayTimestamp: 1700000200}, []game.BetRecord{{
		Timestamp: 1700000200, ChosenNumber: 2, RolledNumber: game.RolledRecovered,
		Amount: big.NewInt(100), Payout: big.NewInt(100),
	}})
	r.pollOnce(context.Background())

	select {
	case data := <-recoveredCh:
		entry := data.(game.Entry)
		assert.Equal(t, game.ResultRecovered, entry.Result)
		assert.False(t, entry.IsWin)
	default:
		t.Fatal("expected recovery event")
	}
}

func TestAccountChangeResetsGraduation(t *testing.T) {
	gw := &fakeGateway{}
	gw.set(&game.GameStatus{IsActive: false, LastPlayTimestamp: 1700000000}, nil)
	r, st, _ := newTestReconciler(gw)

	r.pollOnce(context.Background())
	assert.False(t, st.GetMergedView().IsNewUser)

	r.OnAccountChanged(common.HexToAddress("0x00000000000000000000000000000000000000bb"))
	assert.True(t, st.GetMergedView().IsNewUser)
}

func TestPollReportsActiveForIntervalSelection(t *testing.T) {
	gw := &fakeGateway{}
	gw.set(&game.GameStatus{IsActive: true, ChosenSide: game.SideHeads, BetAmount: big.NewInt(1), LastPlayTimestamp: 1}, nil)
	r, _, _ := newTestReconciler(gw)
	assert.True(t, r.pollOnce(context.Background()))

	gw.set(&game.GameStatus{IsActive: false}, nil)
	assert.False(t, r.pollOnce(context.Background()))
}
