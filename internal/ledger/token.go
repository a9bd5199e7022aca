// Package ledger holds the embedded token ledger: fungible asset and
// currency tokens with snapshot-capable balances. Engines are the only
// authorized movers; every transfer names its source account explicitly.
package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaused              = errors.New("token transfers paused")
	ErrSnapshotNotFound    = errors.New("snapshot id does not exist")
	ErrNegativeAmount      = errors.New("amount must not be negative")
)

// Token is the minimal fungible-token surface engines move value with.
type Token interface {
	Symbol() string
	Decimals() uint8
	BalanceOf(account common.Address) int64
	TotalSupply() int64
	Transfer(from, to common.Address, amount int64) error
	Paused() bool
}

// SnapshotToken extends Token with point-in-time balance queries backed
// by incrementing snapshot ids.
type SnapshotToken interface {
	Token

	// Snapshot freezes the current balances under a new id and returns it.
	Snapshot() int64
	BalanceOfAt(account common.Address, snapshotID int64) (int64, error)
	TotalSupplyAt(snapshotID int64) (int64, error)
}

// Registry resolves asset ids and currency symbols to their tokens.
type Registry interface {
	Asset(id string) (SnapshotToken, bool)
	Currency(symbol string) (Token, bool)

	// AssetGroup returns the group tag the asset was registered under.
	AssetGroup(id string) (string, bool)
}

// ModuleAddress derives the deterministic address of a platform-owned
// account from its name, e.g. the order escrow or a distribution pool.
func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("assetvault/" + name))[12:])
}
