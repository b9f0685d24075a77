package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/dropop-labs/dropop-go/pkg/types"
)

// counterLength is the width of a stored sequence counter (big-endian uint256).
const counterLength = 32

// MarshalAirdropRecord serializes an AirdropRecord to JSON bytes.
func MarshalAirdropRecord(r *types.AirdropRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil AirdropRecord")
	}

	stored := &StoredAirdropRecord{
		ID:             r.ID.Dec(),
		Creator:        r.Creator.Hex(),
		TokenAddress:   r.TokenAddress.Hex(),
		TotalAmount:    r.TotalAmount.Dec(),
		ClaimedAmount:  r.ClaimedAmount.Dec(),
		RecipientCount: r.RecipientCount.Dec(),
		ClaimedCount:   r.ClaimedCount.Dec(),
		MerkleRoot:     hexutil.Encode(r.MerkleRoot[:]),
		Mode:           uint8(r.Mode),
		Status:         uint8(r.Status),
		CreatedAt:      r.CreatedAt,
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AirdropRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalAirdropRecord deserializes an AirdropRecord from JSON bytes.
func UnmarshalAirdropRecord(data []byte) (*types.AirdropRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var stored StoredAirdropRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to AirdropRecord: %w", err)
	}

	r := &types.AirdropRecord{
		Mode:      types.AirdropMode(stored.Mode),
		Status:    types.AirdropStatus(stored.Status),
		CreatedAt: stored.CreatedAt,
	}

	decimals := []struct {
		field string
		value string
		dst   *uint256.Int
	}{
		{"id", stored.ID, &r.ID},
		{"totalAmount", stored.TotalAmount, &r.TotalAmount},
		{"claimedAmount", stored.ClaimedAmount, &r.ClaimedAmount},
		{"recipientCount", stored.RecipientCount, &r.RecipientCount},
		{"claimedCount", stored.ClaimedCount, &r.ClaimedCount},
	}
	for _, d := range decimals {
		v, err := uint256.FromDecimal(d.value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s %q in AirdropRecord", d.field, d.value)
		}
		d.dst.Set(v)
	}

	var err error
	if r.Creator, err = types.HexToAddress(stored.Creator); err != nil {
		return nil, errors.Wrapf(err, "invalid creator in AirdropRecord")
	}
	if r.TokenAddress, err = types.HexToAddress(stored.TokenAddress); err != nil {
		return nil, errors.Wrapf(err, "invalid tokenAddress in AirdropRecord")
	}

	root, err := hexutil.Decode(stored.MerkleRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid merkleRoot in AirdropRecord")
	}
	if len(root) != len(r.MerkleRoot) {
		return nil, fmt.Errorf("invalid merkleRoot length %d in AirdropRecord", len(root))
	}
	copy(r.MerkleRoot[:], root)

	return r, nil
}

// MarshalCreatorIndex serializes a creator's ordered airdrop ids to JSON bytes.
func MarshalCreatorIndex(ids []uint256.Int) ([]byte, error) {
	stored := &StoredCreatorIndex{AirdropIDs: make([]string, len(ids))}
	for i := range ids {
		stored.AirdropIDs[i] = ids[i].Dec()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal creator index to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalCreatorIndex deserializes a creator index. Empty data is an empty index.
func UnmarshalCreatorIndex(data []byte) ([]uint256.Int, error) {
	if len(data) == 0 {
		return []uint256.Int{}, nil
	}

	var stored StoredCreatorIndex
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to creator index: %w", err)
	}

	ids := make([]uint256.Int, len(stored.AirdropIDs))
	for i, s := range stored.AirdropIDs {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid airdrop id %q in creator index", s)
		}
		ids[i].Set(v)
	}
	return ids, nil
}

// MarshalCounter encodes a sequence counter as 32 big-endian bytes.
func MarshalCounter(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

// UnmarshalCounter decodes a sequence counter. Empty data is zero.
func UnmarshalCounter(data []byte) (*uint256.Int, error) {
	if len(data) == 0 {
		return new(uint256.Int), nil
	}
	if len(data) != counterLength {
		return nil, fmt.Errorf("invalid counter data length: %d", len(data))
	}
	return new(uint256.Int).SetBytes32(data), nil
}
