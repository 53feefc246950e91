package recovery

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/chain"
	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/game"
	"github.com/flipverse/coinflip-agent/internal/lifecycle"
	"github.com/flipverse/coinflip-agent/internal/notify"
	"github.com/flipverse/coinflip-agent/internal/state"
)

type Phase string

const (
	PhaseIneligible Phase = "ineligible"
	PhaseEligible   Phase = "eligible"
)

// Assessment describes where a stuck game stands on the road to recovery.
// Eligibility mirrors the contract's own flag; the progress figure is a pure
// local-clock estimate, so it can read 100% slightly before the contract
// agrees.
type Assessment struct {
	Phase       Phase         `json:"phase"`
	Eligible    bool          `json:"eligible"`
	ProgressPct int           `json:"progress_pct"`
	Remaining   time.Duration `json:"remaining"`
}

// Advisor evaluates stuck games and drives the recovery transaction through
// the controller's exclusive slot so it can never race an approve or bet.
type Advisor struct {
	st         *state.State
	controller *lifecycle.Controller
	notifier   *notify.Router

	recoveryTimeout time.Duration
}

func NewAdvisor(st *state.State, controller *lifecycle.Controller, notifier *notify.Router) *Advisor {
	return &Advisor{
		st:              st,
		controller:      controller,
		notifier:        notifier,
		recoveryTimeout: config.AppConfig.RecoveryTimeout,
	}
}

// Evaluate assesses the given status at the given instant. Only the contract
// flag decides eligibility; elapsed time feeds the progress display alone.
func (a *Advisor) Evaluate(status *game.GameStatus, now time.Time) Assessment {
	if status == nil || !status.IsActive {
		return Assessment{Phase: PhaseIneligible}
	}

	started := time.Unix(int64(status.LastPlayTimestamp), 0)
	elapsed := now.Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}

	pct := 0
	if a.recoveryTimeout > 0 {
		pct = int(elapsed * 100 / a.recoveryTimeout)
	}
	if pct > 100 {
		pct = 100
	}

	remaining := a.recoveryTimeout - elapsed
	if remaining < 0 {
		remaining = 0
	}

	if status.RecoveryEligible {
		return Assessment{Phase: PhaseEligible, Eligible: true, ProgressPct: pct, Remaining: 0}
	}
	return Assessment{Phase: PhaseIneligible, ProgressPct: pct, Remaining: remaining}
}

// Recover submits the stuck-game recovery transaction. On success the cached
// view is invalidated and a fresh poll requested; on failure the game stays
// recoverable and the revert reason, if any, surfaces to the user. There is
// no automatic retry.
func (a *Advisor) Recover(ctx context.Context, gw chain.Gateway) error {
	if err := a.controller.BeginExclusive(); err != nil {
		return err
	}
	defer a.controller.EndExclusive()

	status := a.st.GetGameStatus()
	assessment := a.Evaluate(status, time.Now())
	if !assessment.Eligible {
		return chain.NewError(chain.KindContractReverted, "game is not yet eligible for recovery")
	}

	tx, err := gw.RecoverStuckGame(ctx)
	if err != nil {
		if a.notifier != nil {
			a.notifier.PushError(err)
		}
		return err
	}
	log.WithFields(log.Fields{"tx": tx.Hash().Hex()}).Info("Recovery submitted")

	receipt, err := gw.WaitMined(ctx, tx)
	if err != nil {
		if a.notifier != nil {
			a.notifier.PushError(err)
		}
		return err
	}
	if receipt.Status != 1 {
		err := chain.NewError(chain.KindContractReverted, "recovery transaction reverted")
		if a.notifier != nil {
			a.notifier.PushError(err)
		}
		return err
	}

	a.st.Invalidate()
	a.st.EventBus.Publish(state.GameRecovered, nil)
	a.st.EventBus.Publish(state.ForcePoll, nil)
	if a.notifier != nil {
		a.notifier.Push(notify.SeveritySuccess, "stuck game recovered, bet returned")
	}
	return nil
}
