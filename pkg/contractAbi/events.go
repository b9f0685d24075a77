package contractAbi

import (
	"fmt"
	"math/big"

	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	EventAirdropCreated = "AirdropCreated"
	EventClaimed        = "Claimed"
	EventWithdrawn      = "Withdrawn"
)

// Log is an event in indexer form: topics[0] is the event id, followed by the indexed
// fields; Data holds the ABI-encoded non-indexed fields.
type Log struct {
	Topics []common.Hash
	Data   []byte
}

// EncodeEvent converts a ledger event into log form.
func EncodeEvent(evt types.Event) (*Log, error) {
	parsed, err := GetAbi()
	if err != nil {
		return nil, err
	}

	switch e := evt.(type) {
	case *types.AirdropCreatedEvent:
		return encodeLog(parsed, EventAirdropCreated,
			[]interface{}{e.AirdropID.ToBig(), common.Hash(e.Creator), common.Hash(e.TokenAddress)},
			e.TotalAmount.ToBig(), uint8(e.Mode))
	case *types.ClaimedEvent:
		return encodeLog(parsed, EventClaimed,
			[]interface{}{e.AirdropID.ToBig(), common.Hash(e.Claimer)},
			e.Amount.ToBig())
	case *types.WithdrawnEvent:
		return encodeLog(parsed, EventWithdrawn,
			[]interface{}{e.AirdropID.ToBig()},
			e.Amount.ToBig())
	}
	return nil, fmt.Errorf("unsupported event type %T", evt)
}

func encodeLog(parsed *abi.ABI, name string, indexed []interface{}, data ...interface{}) (*Log, error) {
	event, ok := parsed.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %s not in ABI", name)
	}

	query := make([][]interface{}, len(indexed))
	for i, v := range indexed {
		query[i] = []interface{}{v}
	}
	topics, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s topics: %w", name, err)
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s data: %w", name, err)
	}

	log := &Log{Topics: make([]common.Hash, 0, len(topics)+1), Data: packed}
	log.Topics = append(log.Topics, event.ID)
	for _, t := range topics {
		log.Topics = append(log.Topics, t[0])
	}
	return log, nil
}

// DecodeEvent converts a log produced by EncodeEvent back into a ledger event.
func DecodeEvent(log *Log) (types.Event, error) {
	if log == nil || len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	parsed, err := GetAbi()
	if err != nil {
		return nil, err
	}
	event, err := parsed.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unknown event id %s: %w", log.Topics[0].Hex(), err)
	}

	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	fields := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to decode %s topics: %w", event.Name, err)
	}
	if err := event.Inputs.UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("failed to decode %s data: %w", event.Name, err)
	}

	d := fieldDecoder{fields: fields}
	var out types.Event
	switch event.Name {
	case EventAirdropCreated:
		out = &types.AirdropCreatedEvent{
			AirdropID:    d.u256("airdropId"),
			Creator:      d.bytes32("creator"),
			TokenAddress: d.bytes32("tokenAddress"),
			TotalAmount:  d.u256("totalAmount"),
			Mode:         types.AirdropMode(d.u8("mode")),
		}
	case EventClaimed:
		out = &types.ClaimedEvent{
			AirdropID: d.u256("airdropId"),
			Claimer:   d.bytes32("claimer"),
			Amount:    d.u256("amount"),
		}
	case EventWithdrawn:
		out = &types.WithdrawnEvent{
			AirdropID: d.u256("airdropId"),
			Amount:    d.u256("amount"),
		}
	default:
		return nil, fmt.Errorf("unsupported event %s", event.Name)
	}
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", event.Name, d.err)
	}
	return out, nil
}

// fieldDecoder pulls typed values out of an unpacked field map, keeping the first error.
type fieldDecoder struct {
	fields map[string]interface{}
	err    error
}

func (d *fieldDecoder) fail(name, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("field %s is not a %s", name, want)
	}
}

func (d *fieldDecoder) u256(name string) uint256.Int {
	v, ok := d.fields[name].(*big.Int)
	if !ok {
		d.fail(name, "uint256")
		return uint256.Int{}
	}
	out, err := toUint256(v)
	if err != nil {
		d.fail(name, "uint256")
		return uint256.Int{}
	}
	return *out
}

func (d *fieldDecoder) bytes32(name string) types.Address {
	v, ok := d.fields[name].([32]byte)
	if !ok {
		d.fail(name, "bytes32")
	}
	return types.Address(v)
}

func (d *fieldDecoder) u8(name string) uint8 {
	v, ok := d.fields[name].(uint8)
	if !ok {
		d.fail(name, "uint8")
	}
	return v
}
