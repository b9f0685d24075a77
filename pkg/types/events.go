package types

import "github.com/holiman/uint256"

// EventType names a ledger event as it appears to indexers.
type EventType string

const (
	EventTypeAirdropCreated EventType = "AirdropCreated"
	EventTypeClaimed        EventType = "Claimed"
	EventTypeWithdrawn      EventType = "Withdrawn"
)

// Event is emitted as a side effect of a committed state-mutating call.
type Event interface {
	Type() EventType
}

// AirdropCreatedEvent is emitted by both createAirdrop and directAirdrop.
type AirdropCreatedEvent struct {
	AirdropID    uint256.Int
	Creator      Address
	TokenAddress Address
	TotalAmount  uint256.Int
	Mode         AirdropMode
}

func (e *AirdropCreatedEvent) Type() EventType { return EventTypeAirdropCreated }

// ClaimedEvent is emitted for every successful claim.
type ClaimedEvent struct {
	AirdropID uint256.Int
	Claimer   Address
	Amount    uint256.Int
}

func (e *ClaimedEvent) Type() EventType { return EventTypeClaimed }

// WithdrawnEvent is emitted when a creator recovers the unclaimed pool.
type WithdrawnEvent struct {
	AirdropID uint256.Int
	Amount    uint256.Int
}

func (e *WithdrawnEvent) Type() EventType { return EventTypeWithdrawn }
