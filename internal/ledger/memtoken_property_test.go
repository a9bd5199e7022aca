package ledger_test

import (
	"fmt"
	"testing"

	"AssetVault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"
)

// TestProperty_SnapshotMatchesRecordedHistory drives a random sequence
// of mints, burns, transfers and snapshots against a MemToken while
// keeping a naive full-copy history, then checks every BalanceOfAt and
// TotalSupplyAt answer against the recordings.
func TestProperty_SnapshotMatchesRecordedHistory(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAccounts := rapid.IntRange(2, 5).Draw(t, "numAccounts")
		numOps := rapid.IntRange(1, 60).Draw(t, "numOps")

		accounts := make([]common.Address, numAccounts)
		for i := range accounts {
			accounts[i][19] = byte(i + 1)
		}

		tok := ledger.NewMemToken("PROP", 6)

		// recorded[id] = balances and supply exactly when snapshot id was taken
		type record struct {
			balances map[common.Address]int64
			supply   int64
		}
		recorded := make(map[int64]record)

		live := make(map[common.Address]int64)
		var liveSupply int64

		snapshotNow := func() {
			id := tok.Snapshot()
			copied := make(map[common.Address]int64, len(live))
			for a, v := range live {
				copied[a] = v
			}
			recorded[id] = record{balances: copied, supply: liveSupply}
		}

		for op := 0; op < numOps; op++ {
			kind := rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("kind-%d", op))
			switch kind {
			case 0: // mint
				who := accounts[rapid.IntRange(0, numAccounts-1).Draw(t, fmt.Sprintf("mintWho-%d", op))]
				amt := rapid.Int64Range(1, 10_000).Draw(t, fmt.Sprintf("mintAmt-%d", op))
				if err := tok.Mint(who, amt); err != nil {
					t.Fatalf("mint: %v", err)
				}
				live[who] += amt
				liveSupply += amt
			case 1: // burn what we can
				who := accounts[rapid.IntRange(0, numAccounts-1).Draw(t, fmt.Sprintf("burnWho-%d", op))]
				if live[who] == 0 {
					continue
				}
				amt := rapid.Int64Range(1, live[who]).Draw(t, fmt.Sprintf("burnAmt-%d", op))
				if err := tok.Burn(who, amt); err != nil {
					t.Fatalf("burn: %v", err)
				}
				live[who] -= amt
				liveSupply -= amt
			case 2: // transfer what we can
				from := accounts[rapid.IntRange(0, numAccounts-1).Draw(t, fmt.Sprintf("xferFrom-%d", op))]
				to := accounts[rapid.IntRange(0, numAccounts-1).Draw(t, fmt.Sprintf("xferTo-%d", op))]
				if live[from] == 0 || from == to {
					continue
				}
				amt := rapid.Int64Range(1, live[from]).Draw(t, fmt.Sprintf("xferAmt-%d", op))
				if err := tok.Transfer(from, to, amt); err != nil {
					t.Fatalf("transfer: %v", err)
				}
				live[from] -= amt
				live[to] += amt
			case 3: // snapshot
				snapshotNow()
			}
		}

		// One final snapshot so the tail of the history is covered too
		snapshotNow()

		for id, rec := range recorded {
			for _, a := range accounts {
				got, err := tok.BalanceOfAt(a, id)
				if err != nil {
					t.Fatalf("balanceOfAt(%s, %d): %v", a.Hex(), id, err)
				}
				if got != rec.balances[a] {
					t.Fatalf("balanceOfAt(%s, %d): got %d, want %d",
						a.Hex(), id, got, rec.balances[a])
				}
			}
			gotSupply, err := tok.TotalSupplyAt(id)
			if err != nil {
				t.Fatalf("totalSupplyAt(%d): %v", id, err)
			}
			if gotSupply != rec.supply {
				t.Fatalf("totalSupplyAt(%d): got %d, want %d", id, gotSupply, rec.supply)
			}
		}

		// Live balances agree with the shadow model
		for _, a := range accounts {
			if got := tok.BalanceOf(a); got != live[a] {
				t.Fatalf("live balance %s: got %d, want %d", a.Hex(), got, live[a])
			}
		}
		if got := tok.TotalSupply(); got != liveSupply {
			t.Fatalf("live supply: got %d, want %d", got, liveSupply)
		}
	})
}
