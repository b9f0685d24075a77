package merkle

import (
	"github.com/holiman/uint256"

	"github.com/dropop-labs/dropop-go/pkg/types"
)

// MerkleTree is a binary merkle tree over airdrop leaves.
// Leaves are sorted and sibling pairs are hashed in sorted order, so neither
// construction nor verification depends on input or sibling position.
type MerkleTree struct {
	// Leaves contains the leaf hashes in sorted order
	Leaves [][32]byte

	// Root is the merkle root, the zero hash for an empty tree
	Root [32]byte

	// levels[0] = sorted leaves, levels[len-1] = root
	levels [][][32]byte
}

// Entitlement is one recipient's share of a claim-mode airdrop.
type Entitlement struct {
	Recipient types.Address
	Amount    *uint256.Int
}

// ClaimData is everything a recipient submits to claim: the amount and a proof
// for the leaf HashLeaf(recipient, amount).
type ClaimData struct {
	Recipient types.Address
	Amount    *uint256.Int
	Leaf      [32]byte
	Proof     [][32]byte
}
