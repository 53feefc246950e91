package abis

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CoinFlipperABI covers the slice of the game contract the agent consumes:
// per-player status, bounded bet history, bet placement, self recovery and
// the constants surface.
const CoinFlipperABI = `[
{"inputs":[{"internalType":"address","name":"player","type":"address"}],"name":"getGameStatus","outputs":[{"internalType":"bool","name":"isActive","type":"bool"},{"internalType":"uint8","name":"chosenNumber","type":"uint8"},{"internalType":"uint256","name":"betAmount","type":"uint256"},{"internalType":"uint256","name":"lastPlayTimestamp","type":"uint256"},{"internalType":"uint256","name":"requestId","type":"uint256"},{"internalType":"bool","name":"requestExists","type":"bool"},{"internalType":"bool","name":"requestProcessed","type":"bool"},{"internalType":"bool","name":"recoveryEligible","type":"bool"},{"internalType":"uint8","name":"result","type":"uint8"},{"internalType":"uint256","name":"payout","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"player","type":"address"}],"name":"getBetHistory","outputs":[{"components":[{"internalType":"uint256","name":"timestamp","type":"uint256"},{"internalType":"uint8","name":"chosenNumber","type":"uint8"},{"internalType":"uint8","name":"rolledNumber","type":"uint8"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"payout","type":"uint256"}],"internalType":"struct CoinFlipper.BetRecord[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint8","name":"chosenNumber","type":"uint8"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"flipCoin","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"recoverOwnStuckGame","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"MAX_BET_AMOUNT","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"MAX_HISTORY_SIZE","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"HEADS","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"TAILS","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"RESULT_FORCE_STOPPED","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"RESULT_RECOVERED","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// CoinFlipperGameStatus is the unpacked getGameStatus tuple.
type CoinFlipperGameStatus struct {
	IsActive          bool
	ChosenNumber      uint8
	BetAmount         *big.Int
	LastPlayTimestamp *big.Int
	RequestId         *big.Int
	RequestExists     bool
	RequestProcessed  bool
	RecoveryEligible  bool
	Result            uint8
	Payout            *big.Int
}

// CoinFlipperBetRecord is one unpacked entry of the getBetHistory tuple array.
type CoinFlipperBetRecord struct {
	Timestamp    *big.Int
	ChosenNumber uint8
	RolledNumber uint8
	Amount       *big.Int
	Payout       *big.Int
}

// CoinFlipperContract is a typed wrapper around the game contract.
type CoinFlipperContract struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewCoinFlipperContract(address common.Address, backend bind.ContractBackend) (*CoinFlipperContract, error) {
	parsed, err := abi.JSON(strings.NewReader(CoinFlipperABI))
	if err != nil {
		return nil, err
	}
	return &CoinFlipperContract{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (c *CoinFlipperContract) Address() common.Address {
	return c.address
}

func (c *CoinFlipperContract) GetGameStatus(opts *bind.CallOpts, player common.Address) (CoinFlipperGameStatus, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getGameStatus", player)
	if err != nil {
		return CoinFlipperGameStatus{}, err
	}
	return CoinFlipperGameStatus{
		IsActive:          *abi.ConvertType(out[0], new(bool)).(*bool),
		ChosenNumber:      *abi.ConvertType(out[1], new(uint8)).(*uint8),
		BetAmount:         *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		LastPlayTimestamp: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		RequestId:         *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
		RequestExists:     *abi.ConvertType(out[5], new(bool)).(*bool),
		RequestProcessed:  *abi.ConvertType(out[6], new(bool)).(*bool),
		RecoveryEligible:  *abi.ConvertType(out[7], new(bool)).(*bool),
		Result:            *abi.ConvertType(out[8], new(uint8)).(*uint8),
		Payout:            *abi.ConvertType(out[9], new(*big.Int)).(**big.Int),
	}, nil
}

func (c *CoinFlipperContract) GetBetHistory(opts *bind.CallOpts, player common.Address) ([]CoinFlipperBetRecord, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getBetHistory", player)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]CoinFlipperBetRecord)).(*[]CoinFlipperBetRecord), nil
}

func (c *CoinFlipperContract) FlipCoin(opts *bind.TransactOpts, chosenNumber uint8, amount *big.Int) (*types.Transaction, error) {
	return c.contract.Transact(opts, "flipCoin", chosenNumber, amount)
}

func (c *CoinFlipperContract) RecoverOwnStuckGame(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.contract.Transact(opts, "recoverOwnStuckGame")
}

func (c *CoinFlipperContract) MaxBetAmount(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "MAX_BET_AMOUNT")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *CoinFlipperContract) MaxHistorySize(opts *bind.CallOpts) (*big.Int, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "MAX_HISTORY_SIZE")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *CoinFlipperContract) constantUint8(opts *bind.CallOpts, method string) (uint8, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, method)
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (c *CoinFlipperContract) Heads(opts *bind.CallOpts) (uint8, error) {
	return c.constantUint8(opts, "HEADS")
}

func (c *CoinFlipperContract) Tails(opts *bind.CallOpts) (uint8, error) {
	return c.constantUint8(opts, "TAILS")
}

func (c *CoinFlipperContract) ResultForceStopped(opts *bind.CallOpts) (uint8, error) {
	return c.constantUint8(opts, "RESULT_FORCE_STOPPED")
}

func (c *CoinFlipperContract) ResultRecovered(opts *bind.CallOpts) (uint8, error) {
	return c.constantUint8(opts, "RESULT_RECOVERED")
}
