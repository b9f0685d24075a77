package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/dropop-labs/dropop-go/pkg/types"
)

var (
	// ErrLeafNotFound is returned when a proof is requested for a leaf that is not in the tree.
	ErrLeafNotFound = errors.New("leaf not found in tree")

	// ErrRecipientNotFound is returned when claim data is requested for an unknown recipient.
	ErrRecipientNotFound = errors.New("recipient not found in entitlements")

	// ErrDuplicateRecipient is returned when an entitlement list names a recipient twice.
	ErrDuplicateRecipient = errors.New("duplicate recipient")
)

// HashLeaf computes SHA256(recipientKey || amount as 32-byte big-endian).
// recipientKey must already be raw bytes; use NormalizeKey for hex input.
func HashLeaf(recipientKey []byte, amount *uint256.Int) [32]byte {
	if amount == nil {
		amount = new(uint256.Int)
	}
	amountBytes := amount.Bytes32()

	data := make([]byte, 0, len(recipientKey)+32)
	data = append(data, recipientKey...)
	data = append(data, amountBytes[:]...)

	return sha256.Sum256(data)
}

// NormalizeKey converts a hex recipient key, with or without a 0x prefix, into raw bytes.
func NormalizeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "0x") && !strings.HasPrefix(key, "0X") {
		key = "0x" + key
	}
	raw, err := hexutil.Decode(strings.ToLower(key))
	if err != nil {
		return nil, fmt.Errorf("invalid recipient key %q: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("recipient key is empty")
	}
	return raw, nil
}

// HashPair computes SHA256(min(a,b) || max(a,b)) using lexicographic byte order.
func HashPair(a, b [32]byte) [32]byte {
	var data [64]byte
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(data[0:32], a[:])
		copy(data[32:64], b[:])
	} else {
		copy(data[0:32], b[:])
		copy(data[32:64], a[:])
	}
	return sha256.Sum256(data[:])
}

// SortLeaves returns a sorted copy of leaves. The input slice is not modified.
func SortLeaves(leaves [][32]byte) [][32]byte {
	sorted := make([][32]byte, len(leaves))
	copy(sorted, leaves)

	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	return sorted
}

// BuildTree returns every layer of the tree, bottom (sorted leaves) to top (root).
// An odd trailing node is promoted to the next layer unchanged.
// An empty input yields a single empty layer.
func BuildTree(leaves [][32]byte) [][][32]byte {
	if len(leaves) == 0 {
		return [][][32]byte{{}}
	}

	current := SortLeaves(leaves)
	layers := [][][32]byte{current}

	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, HashPair(current[i], current[i+1]))
			} else {
				next = append(next, current[i])
			}
		}
		layers = append(layers, next)
		current = next
	}

	return layers
}

// GetRoot returns the merkle root of leaves. Zero leaves give the zero hash and a
// single leaf is its own root.
func GetRoot(leaves [][32]byte) [32]byte {
	return NewMerkleTree(leaves).Root
}

// GetProof returns the sibling hashes needed to recompute the root from target.
func GetProof(leaves [][32]byte, target [32]byte) ([][32]byte, error) {
	return NewMerkleTree(leaves).Proof(target)
}

// VerifyProof folds HashPair over leaf and proof and compares the result with root.
// It never fails; malformed input simply does not verify.
func VerifyProof(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed == root
}

// NewMerkleTree builds a tree once so that many proofs can be served from it.
func NewMerkleTree(leaves [][32]byte) *MerkleTree {
	layers := BuildTree(leaves)

	var root [32]byte
	top := layers[len(layers)-1]
	if len(top) == 1 {
		root = top[0]
	}

	return &MerkleTree{
		Leaves: layers[0],
		Root:   root,
		levels: layers,
	}
}

// Layers returns the tree layers, bottom to top.
func (mt *MerkleTree) Layers() [][][32]byte {
	return mt.levels
}

// indexOf returns the index of the first occurrence of leaf in the sorted bottom layer.
func (mt *MerkleTree) indexOf(leaf [32]byte) int {
	i := sort.Search(len(mt.Leaves), func(i int) bool {
		return bytes.Compare(mt.Leaves[i][:], leaf[:]) >= 0
	})
	if i < len(mt.Leaves) && mt.Leaves[i] == leaf {
		return i
	}
	return -1
}

// Contains reports whether leaf is part of the tree.
func (mt *MerkleTree) Contains(leaf [32]byte) bool {
	return mt.indexOf(leaf) >= 0
}

// Proof returns the proof for leaf, bottom-up. Levels where the node was promoted
// without a sibling contribute nothing.
func (mt *MerkleTree) Proof(leaf [32]byte) ([][32]byte, error) {
	index := mt.indexOf(leaf)
	if index < 0 {
		return nil, ErrLeafNotFound
	}

	proof := make([][32]byte, 0, len(mt.levels))
	for level := 0; level < len(mt.levels)-1; level++ {
		layer := mt.levels[level]

		var sibling int
		if index%2 == 0 {
			sibling = index + 1
		} else {
			sibling = index - 1
		}
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}

		index = index / 2
	}

	return proof, nil
}

// HashEntitlement hashes an entitlement into its claim leaf.
func HashEntitlement(e Entitlement) [32]byte {
	return HashLeaf(e.Recipient.Bytes(), e.Amount)
}

// BuildEntitlementTree hashes entitlements into leaves and builds the tree the
// creator commits to with createAirdrop.
func BuildEntitlementTree(entitlements []Entitlement) (*MerkleTree, error) {
	seen := make(map[types.Address]struct{}, len(entitlements))
	leaves := make([][32]byte, 0, len(entitlements))

	for i, e := range entitlements {
		if e.Amount == nil {
			return nil, fmt.Errorf("entitlement %d for %s has no amount", i, e.Recipient.Hex())
		}
		if _, ok := seen[e.Recipient]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecipient, e.Recipient.Hex())
		}
		seen[e.Recipient] = struct{}{}
		leaves = append(leaves, HashEntitlement(e))
	}

	return NewMerkleTree(leaves), nil
}

// GetClaimData builds the tree over entitlements and returns the claim for recipient.
func GetClaimData(entitlements []Entitlement, recipient types.Address) (*ClaimData, error) {
	tree, err := BuildEntitlementTree(entitlements)
	if err != nil {
		return nil, err
	}
	return tree.ClaimData(entitlements, recipient)
}

// ClaimData returns the claim for recipient from a tree built over entitlements.
func (mt *MerkleTree) ClaimData(entitlements []Entitlement, recipient types.Address) (*ClaimData, error) {
	for _, e := range entitlements {
		if e.Recipient != recipient {
			continue
		}

		leaf := HashEntitlement(e)
		proof, err := mt.Proof(leaf)
		if err != nil {
			return nil, fmt.Errorf("failed to build proof for %s: %w", recipient.Hex(), err)
		}

		return &ClaimData{
			Recipient: recipient,
			Amount:    new(uint256.Int).Set(e.Amount),
			Leaf:      leaf,
			Proof:     proof,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, recipient.Hex())
}
