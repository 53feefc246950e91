package lifecycle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/game"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/state"
)

// OpState is the controller's coarse phase, exposed so the presentation layer
// can render what the wallet is doing.
type OpState string

const (
	StateIdle                 OpState = "idle"
	StateApproving            OpState = "approving"
	StatePlacing              OpState = "placing_bet"
	StateAwaitingConfirmation OpState = "awaiting_confirmation"
	StatePollingForVrf        OpState = "polling_for_vrf"
)

// allowanceVerifyReads bounds the post-approve allowance re-reads before the
// approval is accepted as probably settled anyway.
const allowanceVerifyReads = 3

const allowanceSettleDelay = 2 * time.Second

// Snapshot is a point-in-time copy of the controller phase.
type Snapshot struct {
	State     OpState   `json:"state"`
	Busy      bool      `json:"busy"`
	LongWait  bool      `json:"long_wait"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Controller drives approve and bet operations as single-flight state
// machines. Exactly one exclusive operation runs at a time; a second request
// is rejected synchronously before any network traffic. The VRF wait after a
// mined bet is a background watch that keeps the controller in
// StatePollingForVrf without holding the exclusive lock, so a stuck game can
// still be recovered through BeginExclusive.
type Controller struct {
	st       *state.State
	notifier *notify.Router

	mu        sync.Mutex
	gw        chain.Gateway
	busy      bool
	opState   OpState
	longWait  bool
	startedAt time.Time
	vrfCancel context.CancelFunc
	vrfGen    uint64

	// reinit is called when the gateway's signer no longer matches the
	// session account, so the caller can rebuild the gateway before the
	// operation retries once.
	reinit func() (chain.Gateway, error)

	approveTimeout time.Duration
	betTimeout     time.Duration
	longWaitAfter  time.Duration
	vrfInterval    time.Duration
	approveRetries int
	retryBackoff   time.Duration
	settleDelay    time.Duration
}

func NewController(gw chain.Gateway, st *state.State, notifier *notify.Router) *Controller {
	return &Controller{
		st:             st,
		notifier:       notifier,
		gw:             gw,
		opState:        StateIdle,
		approveTimeout: config.AppConfig.ApproveTimeout,
		betTimeout:     config.AppConfig.BetTimeout,
		longWaitAfter:  config.AppConfig.LongWaitThreshold,
		vrfInterval:    config.AppConfig.VrfPollInterval,
		approveRetries: config.AppConfig.ApproveRetry,
		retryBackoff:   time.Second,
		settleDelay:    allowanceSettleDelay,
	}
}

// SetReinit installs the gateway rebuild hook used on signer/account mismatch.
func (c *Controller) SetReinit(fn func() (chain.Gateway, error)) {
	c.mu.Lock()
	c.reinit = fn
	c.mu.Unlock()
}

func (c *Controller) SetGateway(gw chain.Gateway) {
	c.mu.Lock()
	c.gw = gw
	c.mu.Unlock()
}

func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.opState,
		Busy:      c.busy,
		LongWait:  c.longWait,
		StartedAt: c.startedAt,
	}
}

// acquire takes the exclusive operation slot or fails synchronously. A bet
// still waiting on the VRF also blocks new bets and approvals.
func (c *Controller) acquire(next OpState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy || c.opState != StateIdle {
		return chain.ErrOperationInProgress
	}
	c.busy = true
	c.opState = next
	c.startedAt = time.Now()
	c.longWait = false
	return nil
}

func (c *Controller) release(final OpState) {
	c.mu.Lock()
	c.busy = false
	c.opState = final
	c.mu.Unlock()
}

// BeginExclusive takes the operation slot for an externally driven exclusive
// action (stuck-game recovery). Allowed while idle or while only the VRF
// watch is running.
func (c *Controller) BeginExclusive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return chain.ErrOperationInProgress
	}
	if c.opState != StateIdle && c.opState != StatePollingForVrf {
		return chain.ErrOperationInProgress
	}
	c.busy = true
	return nil
}

func (c *Controller) EndExclusive() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Teardown cancels any background VRF watch and resets the phase. Used on
// account or chain switches where everything in flight belongs to the old
// session.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.vrfCancel != nil {
		c.vrfCancel()
		c.vrfCancel = nil
	}
	c.vrfGen++
	c.busy = false
	c.opState = StateIdle
	c.longWait = false
	c.mu.Unlock()
}

func (c *Controller) gateway() (chain.Gateway, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gw == nil {
		return nil, chain.NewError(chain.KindNetworkTransient, "wallet not connected")
	}
	return c.gw, nil
}

// checkSigner verifies the gateway still signs for the session account; on
// mismatch the reinit hook rebuilds it once before giving up.
func (c *Controller) checkSigner() (chain.Gateway, error) {
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	account, _ := c.st.Account()
	if account == gw.Account() || account == (common.Address{}) {
		return gw, nil
	}
	c.mu.Lock()
	reinit := c.reinit
	c.mu.Unlock()
	if reinit == nil {
		return nil, chain.NewError(chain.KindNetworkTransient, "signer does not match session account")
	}
	log.WithFields(log.Fields{"session": account.Hex(), "signer": gw.Account().Hex()}).
		Warn("Signer mismatch, rebuilding gateway")
	fresh, err := reinit()
	if err != nil {
		return nil, err
	}
	c.SetGateway(fresh)
	return fresh, nil
}

// Approve grants the game contract a token allowance. Transient failures are
// retried a limited number of times; a user rejection ends the operation
// immediately. After the transaction mines, the allowance is re-read a few
// times because some RPC nodes lag the head; if it still reads short, the
// approval is reported as settled with a note rather than failed, since the
// chain state is what it is.
func (c *Controller) Approve(ctx context.Context, amount *big.Int) error {
	if err := c.acquire(StateApproving); err != nil {
		return err
	}
	defer c.release(StateIdle)

	if amount == nil || amount.Sign() <= 0 {
		return chain.NewError(chain.KindContractReverted, "approval amount must be positive")
	}

	opCtx, cancel := context.WithTimeout(ctx, c.approveTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.approveRetries; attempt++ {
		if attempt > 0 {
			log.WithFields(log.Fields{"attempt": attempt}).Info("Retrying approval")
			select {
			case <-opCtx.Done():
				return chain.NewError(chain.KindTimeout, "approval timed out")
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		gw, err := c.checkSigner()
		if err != nil {
			return err
		}

		err = c.approveOnce(opCtx, gw, amount)
		if err == nil {
			c.st.EventBus.Publish(state.ForcePoll, nil)
			return nil
		}
		lastErr = err

		kind := chain.KindOf(err)
		if kind == chain.KindUserRejected {
			return err
		}
		if !chain.IsTransient(err) {
			return err
		}
		if opCtx.Err() != nil {
			return chain.NewError(chain.KindTimeout, "approval timed out")
		}
	}
	return lastErr
}

func (c *Controller) approveOnce(ctx context.Context, gw chain.Gateway, amount *big.Int) error {
	tx, err := gw.Approve(ctx, amount)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"tx": tx.Hash().Hex(), "amount": amount.String()}).Info("Approval submitted")

	receipt, err := gw.WaitMined(ctx, tx)
	if err != nil {
		return err
	}
	if receipt.Status != 1 {
		return chain.NewError(chain.KindContractReverted, "approval transaction reverted")
	}

	account := gw.Account()
	for i := 0; i < allowanceVerifyReads; i++ {
		select {
		case <-ctx.Done():
			return chain.NewError(chain.KindTimeout, "approval timed out")
		case <-time.After(c.settleDelay):
		}
		allowance, err := gw.Allowance(ctx, account)
		if err != nil {
			continue
		}
		if allowance.Cmp(amount) >= 0 {
			balance, _, _ := c.st.GetFunds()
			c.st.SetFunds(balance, allowance)
			return nil
		}
	}

	// Mined with status 1 but the node still reads the old allowance; trust
	// the receipt over a lagging read.
	log.Warn("Approval mined but allowance read still short, treating as settled")
	if c.notifier != nil {
		c.notifier.Push(notify.SeverityInfo, "approval confirmed, balance may take a moment to update")
	}
	return nil
}

// PlaceBet submits a coin flip. Preconditions run before anything is signed:
// valid side, positive amount within the contract maximum, sufficient
// allowance and balance, no game already active. After the transaction mines
// the exclusive slot is released and a background watch follows the VRF
// resolution.
func (c *Controller) PlaceBet(ctx context.Context, side game.Side, amount *big.Int) error {
	if err := c.acquire(StatePlacing); err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			c.release(StateIdle)
		}
	}()

	if !side.Valid() {
		return chain.NewError(chain.KindContractReverted, "side must be heads or tails")
	}
	if amount == nil || amount.Sign() <= 0 {
		return chain.NewError(chain.KindContractReverted, "bet amount must be positive")
	}

	gw, err := c.checkSigner()
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.betTimeout)
	defer cancel()

	if status := c.st.GetGameStatus(); status != nil && status.IsActive {
		return chain.NewError(chain.KindContractReverted, "a game is already in progress")
	}

	account := gw.Account()
	constants, err := gw.Constants(opCtx)
	if err == nil && constants.MaxBetAmount != nil && constants.MaxBetAmount.Sign() > 0 &&
		amount.Cmp(constants.MaxBetAmount) > 0 {
		return chain.NewError(chain.KindContractReverted, "bet exceeds the maximum allowed")
	}

	allowance, err := gw.Allowance(opCtx, account)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return chain.NewError(chain.KindInsufficientAllowance, "token allowance too low, approve first")
	}
	balance, err := gw.BalanceOf(opCtx, account)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return chain.NewError(chain.KindInsufficientBalance, "token balance too low for this bet")
	}
	c.st.SetFunds(balance, allowance)

	c.setState(StatePlacing)
	tx, err := gw.FlipCoin(opCtx, side, amount)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"tx":     tx.Hash().Hex(),
		"side":   side.String(),
		"amount": amount.String(),
	}).Info("Bet submitted")

	c.setState(StateAwaitingConfirmation)
	receipt, err := gw.WaitMined(opCtx, tx)
	if err != nil {
		if opCtx.Err() != nil {
			return chain.NewError(chain.KindTimeout, "bet confirmation timed out")
		}
		return err
	}
	if receipt.Status != 1 {
		return chain.NewError(chain.KindContractReverted, "bet transaction reverted")
	}

	// Mined. Hand off to the VRF watch and free the exclusive slot so a
	// stuck game stays recoverable.
	watchCtx, watchCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.busy = false
	c.opState = StatePollingForVrf
	c.longWait = false
	c.vrfCancel = watchCancel
	c.vrfGen++
	gen := c.vrfGen
	c.mu.Unlock()
	released = true

	c.st.EventBus.Publish(state.BetPlaced, game.Entry{
		ChosenNumber: uint8(side),
		Amount:       amount,
		Result:       game.ResultPending,
		Pending:      true,
	})
	c.st.EventBus.Publish(state.ForcePoll, nil)

	go c.watchVrf(watchCtx, gw, account, time.Now(), gen)
	return nil
}

func (c *Controller) setState(s OpState) {
	c.mu.Lock()
	c.opState = s
	c.mu.Unlock()
}

// watchVrf polls until the active game leaves the slot. It owns the
// StatePollingForVrf phase and flags a long wait once; there is no timeout,
// the VRF can legitimately take a while and the recovery path exists for the
// pathological case. gen identifies this watch: a teardown or a successor bet
// bumps the counter, and a watch whose generation no longer matches must not
// touch shared phase state.
func (c *Controller) watchVrf(ctx context.Context, gw chain.Gateway, account common.Address, since time.Time, gen uint64) {
	ticker := time.NewTicker(c.vrfInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := gw.GetGameStatus(ctx, account)
		if err != nil {
			log.Debugf("VRF watch status read failed: %v", err)
			continue
		}
		if !status.IsActive || status.RequestProcessed {
			c.mu.Lock()
			if c.vrfGen != gen {
				c.mu.Unlock()
				return
			}
			if c.opState == StatePollingForVrf {
				c.opState = StateIdle
			}
			c.longWait = false
			c.vrfCancel = nil
			c.mu.Unlock()
			c.st.EventBus.Publish(state.ForcePoll, nil)
			return
		}

		if time.Since(since) > c.longWaitAfter {
			c.mu.Lock()
			if c.vrfGen != gen {
				c.mu.Unlock()
				return
			}
			first := !c.longWait
			c.longWait = true
			c.mu.Unlock()
			if first && c.notifier != nil {
				c.notifier.Push(notify.SeverityInfo, "the flip is taking longer than usual, hang tight")
			}
		}
	}
}
