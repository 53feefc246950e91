package reconciler

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/db"
	"github.com/flipverse/coinflip-agent/internal/game"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/state"
)

// failureThreshold is how many consecutive failures of one fetch type are
// tolerated silently before a recoverable error is surfaced. Polling always
// continues either way.
const failureThreshold = 3

// Reconciler maintains an eventually-consistent, deduplicated view of one
// account's game activity by polling status and history and merging them.
// Single writer of the merged view; the poll loop always reads its current
// gateway/account fields rather than values captured at construction.
type Reconciler struct {
	st       *state.State
	notifier *notify.Router
	dbm      *db.DatabaseManager

	mu      sync.Mutex
	gw      chain.Gateway
	account common.Address

	activeInterval time.Duration
	idleInterval   time.Duration

	graduated       bool
	statusFailures  int
	historyFailures int
	lastStatus      *game.GameStatus
	lastHistory     []game.BetRecord
	lastErr         string

	forceCh chan struct{}
	busCh   chan interface{}
}

func NewReconciler(gw chain.Gateway, st *state.State, notifier *notify.Router, dbm *db.DatabaseManager, activeInterval, idleInterval time.Duration) *Reconciler {
	var account common.Address
	if gw != nil {
		account = gw.Account()
	}
	return &Reconciler{
		st:             st,
		notifier:       notifier,
		dbm:            dbm,
		gw:             gw,
		account:        account,
		activeInterval: activeInterval,
		idleInterval:   idleInterval,
		forceCh:        make(chan struct{}, 1),
		busCh:          make(chan interface{}, 8),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.st.EventBus.Subscribe(state.ForcePoll, r.busCh)
	go r.pollLoop(ctx)
}

// ForcePoll schedules an immediate poll instead of waiting for the next tick.
func (r *Reconciler) ForcePoll() {
	select {
	case r.forceCh <- struct{}{}:
	default:
	}
}

// SetGateway swaps the chain gateway, typically after an account or chain
// switch rebuilt the signer. All per-account session state resets.
func (r *Reconciler) SetGateway(gw chain.Gateway) {
	r.mu.Lock()
	r.gw = gw
	if gw != nil {
		r.account = gw.Account()
	} else {
		r.account = common.Address{}
	}
	r.resetSessionLocked()
	r.mu.Unlock()

	r.st.Invalidate()
	r.ForcePoll()
}

// OnAccountChanged invalidates everything cached for the previous account.
func (r *Reconciler) OnAccountChanged(account common.Address) {
	r.mu.Lock()
	r.account = account
	r.resetSessionLocked()
	r.mu.Unlock()

	r.st.Invalidate()
	log.WithFields(log.Fields{"account": account.Hex()}).Info("Reconciler account changed, caches reset")
	r.ForcePoll()
}

// OnChainChanged handles a network switch the same way as an account switch:
// all cached data is stale.
func (r *Reconciler) OnChainChanged(chainID int64) {
	r.mu.Lock()
	r.resetSessionLocked()
	r.mu.Unlock()

	r.st.Invalidate()
	log.WithFields(log.Fields{"chain": chain.ChainName(chainID)}).Info("Reconciler chain changed, caches reset")
	r.ForcePoll()
}

func (r *Reconciler) resetSessionLocked() {
	r.graduated = false
	r.statusFailures = 0
	r.historyFailures = 0
	r.lastStatus = nil
	r.lastHistory = nil
	r.lastErr = ""
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	// First poll fires immediately; the interval in effect is recomputed
	// after each poll, so a switch takes effect on the next scheduled tick.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Reconciler stopping...")
			return
		case <-r.forceCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-r.busCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		active := r.pollOnce(ctx)

		interval := r.idleInterval
		if active {
			interval = r.activeInterval
		}
		timer.Reset(interval)
	}
}

// pollOnce runs one reconcile cycle and reports whether a game is active.
func (r *Reconciler) pollOnce(ctx context.Context) bool {
	r.mu.Lock()
	gw := r.gw
	account := r.account
	wasActive := r.lastStatus != nil && r.lastStatus.IsActive
	graduated := r.graduated
	r.mu.Unlock()

	if gw == nil || account == (common.Address{}) {
		return false
	}

	// History is skipped for accounts that have never played, unless a game
	// is currently active. Bounds RPC load for fresh users.
	fetchHistory := graduated || wasActive

	var (
		status     *game.GameStatus
		statusErr  error
		history    []game.BetRecord
		historyErr error
		wg         sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		status, statusErr = gw.GetGameStatus(ctx, account)
	}()
	if fetchHistory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			history, historyErr = gw.GetBetHistory(ctx, account)
		}()
	}
	wg.Wait()

	r.mu.Lock()
	prev := r.lastStatus

	if statusErr != nil {
		r.statusFailures++
		log.WithFields(log.Fields{"account": account.Hex(), "failures": r.statusFailures}).
			Warnf("Game status fetch failed: %v", statusErr)
		status = r.lastStatus
		if r.statusFailures == failureThreshold && r.notifier != nil {
			r.notifier.Push(notify.SeverityWarning, "having trouble reading game state, retrying")
		}
	} else {
		r.statusFailures = 0
		r.lastStatus = status
	}

	if fetchHistory {
		if historyErr != nil {
			r.historyFailures++
			log.WithFields(log.Fields{"account": account.Hex(), "failures": r.historyFailures}).
				Warnf("Bet history fetch failed: %v", historyErr)
			history = r.lastHistory
			if r.historyFailures == failureThreshold && r.notifier != nil {
				r.notifier.Push(notify.SeverityWarning, "having trouble reading bet history, retrying")
			}
		} else {
			r.historyFailures = 0
			r.lastHistory = history
		}
	} else {
		history = r.lastHistory
	}

	// New-user graduation is monotonic for the session: once any poll shows
	// a prior play, a transient empty fetch never flips it back.
	if (status != nil && status.LastPlayTimestamp > 0) || len(history) > 0 {
		r.graduated = true
	}
	isNew := !r.graduated

	r.lastErr = ""
	if statusErr != nil {
		r.lastErr = chain.Classify(statusErr).Message
	} else if historyErr != nil {
		r.lastErr = chain.Classify(historyErr).Message
	}
	lastErr := r.lastErr
	r.mu.Unlock()

	view := game.MergeView(status, history, isNew)
	view.LastError = lastErr

	r.st.SetGameStatus(status)
	r.st.SetMergedView(view)

	if wasActive && status != nil && !status.IsActive {
		r.handleResolution(prev, history)
	}
	r.archiveResolved(account, history)

	return status != nil && status.IsActive
}

// handleResolution fires when a poll observes the active game going terminal.
// The terminal record is looked up in the fresh history so the outcome can be
// classified and announced.
func (r *Reconciler) handleResolution(prev *game.GameStatus, history []game.BetRecord) {
	var resolved *game.Entry
	for _, rec := range history {
		if rec.Timestamp != prev.LastPlayTimestamp || rec.ChosenNumber != uint8(prev.ChosenSide) {
			continue
		}
		e := game.ClassifyRecord(rec)
		resolved = &e
		break
	}
	if resolved == nil {
		// Resolution observed but record not in history yet; the next poll
		// picks it up.
		log.Debug("Game resolved but record not yet in history")
		return
	}

	switch resolved.Result {
	case game.ResultRecovered:
		r.st.EventBus.Publish(state.GameRecovered, *resolved)
		if r.notifier != nil {
			r.notifier.Push(notify.SeverityInfo, "stuck game recovered, bet returned")
		}
	case game.ResultForceStopped:
		r.st.EventBus.Publish(state.BetResolved, *resolved)
		if r.notifier != nil {
			r.notifier.Push(notify.SeverityWarning, "game was force stopped, bet returned")
		}
	default:
		r.st.EventBus.Publish(state.BetResolved, *resolved)
		if r.notifier != nil {
			if resolved.IsWin {
				r.notifier.Push(notify.SeveritySuccess, "you won the flip!")
			} else {
				r.notifier.Push(notify.SeverityInfo, "you lost the flip")
			}
		}
	}
}

// archiveResolved mirrors resolved records into the local archive. Inserts
// are keyed on (account, timestamp, chosenNumber, amount); records already
// archived are left untouched.
func (r *Reconciler) archiveResolved(account common.Address, history []game.BetRecord) {
	if r.dbm == nil || len(history) == 0 {
		return
	}
	clientDb := r.dbm.GetClientDB()
	for _, rec := range history {
		e := game.ClassifyRecord(rec)
		row := db.BetArchive{
			Account:      account.Hex(),
			Timestamp:    e.Timestamp,
			ChosenNumber: e.ChosenNumber,
			RolledNumber: e.RolledNumber,
			Amount:       amountOrZero(e.Amount),
			Payout:       amountOrZero(e.Payout),
			Result:       string(e.Result),
			IsWin:        e.IsWin,
			UpdatedAt:    time.Now(),
		}
		err := clientDb.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account"}, {Name: "timestamp"},
				{Name: "chosen_number"}, {Name: "amount"},
			},
			DoNothing: true,
		}).Create(&row).Error
		if err != nil {
			log.Warnf("Failed to archive bet record: %v", err)
		}
	}
}

func amountOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
