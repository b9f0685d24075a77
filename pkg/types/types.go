package types

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// AddressLength is the width of a ledger party key in bytes.
const AddressLength = 32

// legacyAddressLength is the width of 20-byte account addresses, which are
// left-padded to AddressLength when parsed.
const legacyAddressLength = 20

// Address identifies a creator, claimer, recipient or token on the ledger.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address.
var ZeroAddress = Address{}

// BytesToAddress converts b to an Address. If b is longer than AddressLength the
// leading bytes are cropped, if shorter it is left-padded with zeros.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a hex encoded address, with or without a 0x prefix.
// Both 32-byte keys and 20-byte account addresses are accepted.
func HexToAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(strings.ToLower(s))
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != AddressLength && len(raw) != legacyAddressLength {
		return ZeroAddress, fmt.Errorf("invalid address %q: expected %d or %d bytes, got %d",
			s, AddressLength, legacyAddressLength, len(raw))
	}
	return BytesToAddress(raw), nil
}

// Bytes returns the raw bytes of the address.
func (a Address) Bytes() []byte {
	return a[:]
}

// Hex returns the 0x prefixed lower-case hex encoding of the address.
func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Cmp compares two addresses byte-wise.
func (a Address) Cmp(other Address) int {
	return bytes.Compare(a[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(input []byte) error {
	parsed, err := HexToAddress(string(input))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AirdropMode selects how an airdrop distributes its tokens. It is fixed at creation.
type AirdropMode uint8

const (
	// AirdropModeDirect airdrops distribute to every recipient at creation.
	AirdropModeDirect AirdropMode = 0
	// AirdropModeClaim airdrops hold a pool that recipients claim from with a merkle proof.
	AirdropModeClaim AirdropMode = 1
)

func (m AirdropMode) String() string {
	switch m {
	case AirdropModeDirect:
		return "direct"
	case AirdropModeClaim:
		return "claim"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// AirdropStatus is the lifecycle state of an airdrop.
//
//	Active --[claimedCount >= recipientCount]--> Completed
//	Active --[creator withdraw]--> Withdrawn
//
// Pending is never assigned; direct airdrops start Completed and claim airdrops start Active.
type AirdropStatus uint8

const (
	AirdropStatusPending   AirdropStatus = 0
	AirdropStatusActive    AirdropStatus = 1
	AirdropStatusCompleted AirdropStatus = 2
	AirdropStatusWithdrawn AirdropStatus = 3
)

func (s AirdropStatus) String() string {
	switch s {
	case AirdropStatusPending:
		return "pending"
	case AirdropStatusActive:
		return "active"
	case AirdropStatusCompleted:
		return "completed"
	case AirdropStatusWithdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// IsTerminal reports whether no further claims or withdrawals are possible.
func (s AirdropStatus) IsTerminal() bool {
	return s == AirdropStatusCompleted || s == AirdropStatusWithdrawn
}

// AirdropRecord is the ledger's single source of truth for one airdrop.
type AirdropRecord struct {
	ID             uint256.Int
	Creator        Address
	TokenAddress   Address
	TotalAmount    uint256.Int
	ClaimedAmount  uint256.Int
	RecipientCount uint256.Int
	ClaimedCount   uint256.Int
	MerkleRoot     [32]byte
	Mode           AirdropMode
	Status         AirdropStatus
	CreatedAt      uint64 // block height at creation
}

// Pool returns the undistributed balance, TotalAmount - ClaimedAmount.
// The second return value is false if ClaimedAmount exceeds TotalAmount.
func (r *AirdropRecord) Pool() (*uint256.Int, bool) {
	remaining, underflow := new(uint256.Int).SubOverflow(&r.TotalAmount, &r.ClaimedAmount)
	return remaining, !underflow
}

// Copy returns a copy of the record. All fields are values so a shallow copy suffices.
func (r *AirdropRecord) Copy() *AirdropRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Recipient is one entry of a direct airdrop.
type Recipient struct {
	Address Address
	Amount  uint256.Int
}
