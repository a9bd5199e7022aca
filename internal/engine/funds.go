package engine

import (
	"errors"
	"fmt"

	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// wrapLedgerErr classifies embedded-ledger failures on user-initiated
// movements. Unknown errors pass through as infrastructure failures.
func wrapLedgerErr(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fmt.Errorf("%s: %w: %w", op, ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrPaused):
		return fmt.Errorf("%s: %w: %w", op, ErrState, err)
	case errors.Is(err, ledger.ErrNegativeAmount):
		return fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// mustMove performs an escrow-outbound transfer. Pause and balance are
// checked before the owning entity flips state, so a failure here means
// the ledger no longer covers recorded obligations. The process
// fail-stops; recovery replays a clean image without the half-applied
// operation.
func mustMove(t ledger.Token, from, to common.Address, amount int64) {
	if amount == 0 {
		return
	}
	if err := t.Transfer(from, to, amount); err != nil {
		panic(fmt.Sprintf("FATAL: escrow transfer %s %s -> %s (%d): %v",
			t.Symbol(), from.Hex(), to.Hex(), amount, err))
	}
}
