package ledger

import (
	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/holiman/uint256"
)

// Flat key layout. Ids and addresses are fixed-width so no key is a prefix of another
// key in the same namespace.
//
//	count                      -> 32-byte big-endian airdrop counter
//	record:<id32>              -> JSON AirdropRecord
//	claimed:<id32><address32>  -> 0x01 once claimed
//	creator:<address32>        -> JSON list of the creator's airdrop ids
var (
	keyCount         = []byte("count")
	keyPrefixRecord  = []byte("record:")
	keyPrefixClaimed = []byte("claimed:")
	keyPrefixCreator = []byte("creator:")
	claimedFlag      = []byte{0x01}
)

func recordKey(id *uint256.Int) []byte {
	b := id.Bytes32()
	return concat(keyPrefixRecord, b[:])
}

func claimedKey(id *uint256.Int, claimer types.Address) []byte {
	b := id.Bytes32()
	return concat(keyPrefixClaimed, b[:], claimer[:])
}

func creatorKey(creator types.Address) []byte {
	return concat(keyPrefixCreator, creator[:])
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
