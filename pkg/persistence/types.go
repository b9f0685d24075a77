package persistence

import "errors"

// ErrClosed is returned by every operation on a store after Close.
var ErrClosed = errors.New("persistence layer is closed")

// KV is a single key/value write.
type KV struct {
	Key   []byte
	Value []byte
}

// StoredAirdropRecord is the on-disk form of an airdrop record.
// Unsigned 256-bit quantities are stored as decimal strings.
type StoredAirdropRecord struct {
	ID             string `json:"id"`
	Creator        string `json:"creator"`
	TokenAddress   string `json:"tokenAddress"`
	TotalAmount    string `json:"totalAmount"`
	ClaimedAmount  string `json:"claimedAmount"`
	RecipientCount string `json:"recipientCount"`
	ClaimedCount   string `json:"claimedCount"`
	MerkleRoot     string `json:"merkleRoot"`
	Mode           uint8  `json:"mode"`
	Status         uint8  `json:"status"`
	CreatedAt      uint64 `json:"createdAt"`
}

// StoredCreatorIndex is the on-disk form of a creator's airdrop list, oldest first.
type StoredCreatorIndex struct {
	AirdropIDs []string `json:"airdropIds"`
}
