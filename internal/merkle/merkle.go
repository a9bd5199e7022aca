// Package merkle builds and verifies inclusion proofs for off-platform
// payout distributions. A leaf commits to an (account, amount) pair and
// interior nodes hash the sorted pair of their children, so a proof
// carries no left/right flags.
package merkle

import (
	"bytes"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Entry is one payout row of a distribution tree.
type Entry struct {
	Account common.Address
	Amount  int64
}

// Leaf commits to a single entitlement: keccak256(account || amount),
// with the amount widened to 32 bytes big-endian.
func Leaf(account common.Address, amount int64) common.Hash {
	var amt [32]byte
	binary.BigEndian.PutUint64(amt[24:], uint64(amount))

	buf := make([]byte, 0, common.AddressLength+32)
	buf = append(buf, account.Bytes()...)
	buf = append(buf, amt[:]...)

	return crypto.Keccak256Hash(buf)
}

// Verify folds the proof siblings into the leaf and compares against the
// expected root. An empty proof verifies a single-leaf tree.
func Verify(root, leaf common.Hash, proof []common.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// Tree is an in-memory payout tree able to produce proofs for its
// entries. Odd nodes at a level carry up unchanged.
type Tree struct {
	layers [][]common.Hash
}

// NewTree hashes the entries into leaves and builds all interior layers.
func NewTree(entries []Entry) *Tree {
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		leaves[i] = Leaf(e.Account, e.Amount)
	}

	layers := [][]common.Hash{leaves}
	level := leaves
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		layers = append(layers, next)
		level = next
	}

	return &Tree{layers: layers}
}

// Root returns the tree root, or the zero hash for an empty tree.
func (t *Tree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

// Proof returns the sibling path for the leaf at index, nil if the index
// is out of range.
func (t *Tree) Proof(index int) []common.Hash {
	if index < 0 || index >= len(t.layers[0]) {
		return nil
	}

	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof
}

// NumLeaves reports how many entries the tree was built from.
func (t *Tree) NumLeaves() int {
	return len(t.layers[0])
}
