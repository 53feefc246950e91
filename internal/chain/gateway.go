package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"

	"github.com/flipverse/coinflip-agent/internal/chain/abis"
	"github.com/flipverse/coinflip-agent/internal/config"
	"github.com/flipverse/coinflip-agent/internal/game"
)

// Gateway is the capability surface to the coin-flip and token contracts.
// The engines depend on this interface only; EthGateway is the production
// implementation and tests supply in-memory fakes.
type Gateway interface {
	Account() common.Address
	ChainID() int64

	GetGameStatus(ctx context.Context, account common.Address) (*game.GameStatus, error)
	GetBetHistory(ctx context.Context, account common.Address) ([]game.BetRecord, error)
	Constants(ctx context.Context) (*game.Constants, error)

	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner common.Address) (*big.Int, error)

	Approve(ctx context.Context, amount *big.Int) (*types.Transaction, error)
	FlipCoin(ctx context.Context, side game.Side, amount *big.Int) (*types.Transaction, error)
	RecoverStuckGame(ctx context.Context) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// EthGateway talks to the contracts over an ethclient connection signing with
// a local key. When the configured chain id is not in the allow-list every
// method fails fast with ErrUnsupportedNetwork and no RPC call is attempted.
type EthGateway struct {
	client      *ethclient.Client
	flip        *abis.CoinFlipperContract
	token       *abis.TokenContract
	auth        *bind.TransactOpts
	account     common.Address
	chainID     int64
	suppressed  bool
	callTimeout time.Duration

	constOnce sync.Once
	constants *game.Constants
	constErr  error
}

func NewEthGateway(client *ethclient.Client, chainID int64, privateKeyHex string, flipAddr, tokenAddr common.Address) (*EthGateway, error) {
	flip, err := abis.NewCoinFlipperContract(flipAddr, client)
	if err != nil {
		return nil, err
	}
	token, err := abis.NewTokenContract(tokenAddr, client)
	if err != nil {
		return nil, err
	}

	var (
		auth    *bind.TransactOpts
		key     *ecdsa.PrivateKey
		account common.Address
	)
	if privateKeyHex != "" {
		key, err = crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, err
		}
		auth, err = bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
		if err != nil {
			return nil, err
		}
		account = crypto.PubkeyToAddress(key.PublicKey)
	}

	suppressed := !IsSupportedChain(chainID)
	if suppressed {
		log.Warnf("Chain id %d is not supported, contract calls suppressed", chainID)
	}

	callTimeout := config.AppConfig.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}

	return &EthGateway{
		client:      client,
		flip:        flip,
		token:       token,
		auth:        auth,
		account:     account,
		chainID:     chainID,
		suppressed:  suppressed,
		callTimeout: callTimeout,
	}, nil
}

func (g *EthGateway) Account() common.Address {
	return g.account
}

func (g *EthGateway) ChainID() int64 {
	return g.chainID
}

func (g *EthGateway) callOpts(ctx context.Context) (*bind.CallOpts, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	return &bind.CallOpts{Context: ctx}, cancel
}

func (g *EthGateway) GetGameStatus(ctx context.Context, account common.Address) (*game.GameStatus, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, cancel := g.callOpts(ctx)
	defer cancel()

	raw, err := g.flip.GetGameStatus(opts, account)
	if err != nil {
		return nil, Classify(err)
	}
	return &game.GameStatus{
		IsActive:          raw.IsActive,
		ChosenSide:        game.Side(raw.ChosenNumber),
		BetAmount:         raw.BetAmount,
		LastPlayTimestamp: bigUint64(raw.LastPlayTimestamp),
		RequestID:         raw.RequestId,
		RequestExists:     raw.RequestExists,
		RequestProcessed:  raw.RequestProcessed,
		RecoveryEligible:  raw.RecoveryEligible,
		Result:            raw.Result,
		Payout:            raw.Payout,
	}, nil
}

func (g *EthGateway) GetBetHistory(ctx context.Context, account common.Address) ([]game.BetRecord, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, cancel := g.callOpts(ctx)
	defer cancel()

	raw, err := g.flip.GetBetHistory(opts, account)
	if err != nil {
		return nil, Classify(err)
	}
	records := make([]game.BetRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, game.BetRecord{
			Timestamp:    bigUint64(r.Timestamp),
			ChosenNumber: r.ChosenNumber,
			RolledNumber: r.RolledNumber,
			Amount:       r.Amount,
			Payout:       r.Payout,
		})
	}
	return records, nil
}

// Constants reads the contract constants surface once and caches it.
func (g *EthGateway) Constants(ctx context.Context) (*game.Constants, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	g.constOnce.Do(func() {
		opts, cancel := g.callOpts(ctx)
		defer cancel()

		c := &game.Constants{}
		var err error
		if c.MaxBetAmount, err = g.flip.MaxBetAmount(opts); err != nil {
			g.constErr = Classify(err)
			return
		}
		maxHistory, err := g.flip.MaxHistorySize(opts)
		if err != nil {
			g.constErr = Classify(err)
			return
		}
		c.MaxHistorySize = bigUint64(maxHistory)
		if c.Heads, err = g.flip.Heads(opts); err != nil {
			g.constErr = Classify(err)
			return
		}
		if c.Tails, err = g.flip.Tails(opts); err != nil {
			g.constErr = Classify(err)
			return
		}
		if c.ForceStopped, err = g.flip.ResultForceStopped(opts); err != nil {
			g.constErr = Classify(err)
			return
		}
		if c.Recovered, err = g.flip.ResultRecovered(opts); err != nil {
			g.constErr = Classify(err)
			return
		}
		g.constants = c
	})
	return g.constants, g.constErr
}

func (g *EthGateway) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, cancel := g.callOpts(ctx)
	defer cancel()

	balance, err := g.token.BalanceOf(opts, account)
	if err != nil {
		return nil, Classify(err)
	}
	return balance, nil
}

func (g *EthGateway) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, cancel := g.callOpts(ctx)
	defer cancel()

	allowance, err := g.token.Allowance(opts, owner, g.flip.Address())
	if err != nil {
		return nil, Classify(err)
	}
	return allowance, nil
}

func (g *EthGateway) Approve(ctx context.Context, amount *big.Int) (*types.Transaction, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := g.token.Approve(opts, g.flip.Address(), amount)
	if err != nil {
		return nil, Classify(err)
	}
	log.WithFields(log.Fields{
		"tx":      tx.Hash().Hex(),
		"amount":  amount.String(),
		"spender": g.flip.Address().Hex(),
	}).Info("Submitted token approval")
	return tx, nil
}

func (g *EthGateway) FlipCoin(ctx context.Context, side game.Side, amount *big.Int) (*types.Transaction, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := g.flip.FlipCoin(opts, uint8(side), amount)
	if err != nil {
		return nil, Classify(err)
	}
	log.WithFields(log.Fields{
		"tx":     tx.Hash().Hex(),
		"side":   side.String(),
		"amount": amount.String(),
	}).Info("Submitted coin flip")
	return tx, nil
}

func (g *EthGateway) RecoverStuckGame(ctx context.Context) (*types.Transaction, error) {
	if g.suppressed {
		return nil, ErrUnsupportedNetwork
	}
	opts, err := g.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := g.flip.RecoverOwnStuckGame(opts)
	if err != nil {
		return nil, Classify(err)
	}
	log.WithFields(log.Fields{"tx": tx.Hash().Hex()}).Info("Submitted stuck game recovery")
	return tx, nil
}

func (g *EthGateway) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return nil, Classify(err)
	}
	return receipt, nil
}

func (g *EthGateway) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if g.auth == nil {
		return nil, NewError(KindUnknown, "no signing key configured")
	}
	opts := *g.auth
	opts.Context = ctx
	return &opts, nil
}

func bigUint64(v *big.Int) uint64 {
	if v == nil {
		return 0
	}
	return v.Uint64()
}
