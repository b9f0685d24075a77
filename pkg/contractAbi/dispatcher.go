package contractAbi

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrShortCalldata      = errors.New("calldata shorter than a selector")
	ErrUnknownSelector    = errors.New("unknown method selector")
	ErrMalformedArguments = errors.New("malformed call arguments")
)

// ILedger is the ledger surface reachable through encoded calls.
type ILedger interface {
	CreateAirdrop(ctx context.Context, caller, tokenAddress types.Address, merkleRoot [32]byte, totalAmount, recipientCount *uint256.Int) (*uint256.Int, error)
	DirectAirdrop(ctx context.Context, caller, tokenAddress types.Address, recipients []types.Recipient) (*uint256.Int, error)
	Claim(ctx context.Context, caller types.Address, id, amount *uint256.Int, proof [][32]byte) error
	Withdraw(ctx context.Context, caller types.Address, id *uint256.Int) (*uint256.Int, error)
	GetAirdrop(ctx context.Context, id *uint256.Int) (*types.AirdropRecord, error)
	GetAirdropCount(ctx context.Context) (*uint256.Int, error)
	HasClaimed(ctx context.Context, id *uint256.Int, addr types.Address) (bool, error)
	GetAirdropsByCreator(ctx context.Context, addr types.Address) ([]uint256.Int, error)
}

// Dispatcher decodes a selector and its arguments, invokes the ledger on behalf of the
// caller, and encodes the result. Ledger errors are returned unchanged.
type Dispatcher struct {
	abi    *abi.ABI
	ledger ILedger
	logger *zap.Logger
}

func NewDispatcher(ledger ILedger, logger *zap.Logger) (*Dispatcher, error) {
	if ledger == nil {
		return nil, fmt.Errorf("dispatcher ledger cannot be nil")
	}
	parsed, err := GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger ABI: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{abi: parsed, ledger: ledger, logger: logger}, nil
}

// Call executes one encoded call as caller and returns the encoded return values.
func (d *Dispatcher) Call(ctx context.Context, caller types.Address, calldata []byte) ([]byte, error) {
	if len(calldata) < 4 {
		return nil, ErrShortCalldata
	}
	method, err := d.abi.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, hexutil.Encode(calldata[:4]))
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArguments, method.Name, err)
	}

	d.logger.Sugar().Debugw("Dispatching call", "method", method.Name, "caller", caller)

	results, err := d.invoke(ctx, caller, method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(results...)
}

func (d *Dispatcher) invoke(ctx context.Context, caller types.Address, name string, args []interface{}) ([]interface{}, error) {
	switch name {
	case MethodCreateAirdrop:
		tokenAddress, root := bytes32Arg(args, 0), bytes32Arg(args, 1)
		total, err := uint256Arg(args, 2)
		if err != nil {
			return nil, err
		}
		count, err := uint256Arg(args, 3)
		if err != nil {
			return nil, err
		}
		id, err := d.ledger.CreateAirdrop(ctx, caller, types.Address(tokenAddress), root, total, count)
		if err != nil {
			return nil, err
		}
		return []interface{}{id.ToBig()}, nil

	case MethodDirectAirdrop:
		tokenAddress := bytes32Arg(args, 0)
		tuples, ok := abi.ConvertType(args[1], new([]DirectRecipient)).(*[]DirectRecipient)
		if !ok {
			return nil, fmt.Errorf("%w: recipients", ErrMalformedArguments)
		}
		recipients := make([]types.Recipient, len(*tuples))
		for i, r := range *tuples {
			amount, err := toUint256(r.Amount)
			if err != nil {
				return nil, err
			}
			recipients[i] = types.Recipient{Address: types.Address(r.Account), Amount: *amount}
		}
		id, err := d.ledger.DirectAirdrop(ctx, caller, types.Address(tokenAddress), recipients)
		if err != nil {
			return nil, err
		}
		return []interface{}{id.ToBig()}, nil

	case MethodClaim:
		id, err := uint256Arg(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := uint256Arg(args, 1)
		if err != nil {
			return nil, err
		}
		proof, ok := args[2].([][32]byte)
		if !ok {
			return nil, fmt.Errorf("%w: proof", ErrMalformedArguments)
		}
		if err := d.ledger.Claim(ctx, caller, id, amount, proof); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil

	case MethodWithdraw:
		id, err := uint256Arg(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := d.ledger.Withdraw(ctx, caller, id)
		if err != nil {
			return nil, err
		}
		return []interface{}{amount.ToBig()}, nil

	case MethodGetAirdrop:
		id, err := uint256Arg(args, 0)
		if err != nil {
			return nil, err
		}
		r, err := d.ledger.GetAirdrop(ctx, id)
		if err != nil {
			return nil, err
		}
		return []interface{}{
			[32]byte(r.Creator),
			[32]byte(r.TokenAddress),
			r.TotalAmount.ToBig(),
			r.ClaimedAmount.ToBig(),
			r.RecipientCount.ToBig(),
			r.ClaimedCount.ToBig(),
			r.MerkleRoot,
			uint8(r.Mode),
			uint8(r.Status),
			r.CreatedAt,
		}, nil

	case MethodGetAirdropCount:
		count, err := d.ledger.GetAirdropCount(ctx)
		if err != nil {
			return nil, err
		}
		return []interface{}{count.ToBig()}, nil

	case MethodHasClaimed:
		id, err := uint256Arg(args, 0)
		if err != nil {
			return nil, err
		}
		claimed, err := d.ledger.HasClaimed(ctx, id, types.Address(bytes32Arg(args, 1)))
		if err != nil {
			return nil, err
		}
		return []interface{}{claimed}, nil

	case MethodGetAirdropsByCreator:
		ids, err := d.ledger.GetAirdropsByCreator(ctx, types.Address(bytes32Arg(args, 0)))
		if err != nil {
			return nil, err
		}
		out := make([]*big.Int, len(ids))
		for i := range ids {
			out[i] = ids[i].ToBig()
		}
		return []interface{}{out}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, name)
}

func bytes32Arg(args []interface{}, i int) [32]byte {
	v, _ := args[i].([32]byte)
	return v
}

func uint256Arg(args []interface{}, i int) (*uint256.Int, error) {
	v, ok := args[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is not a uint256", ErrMalformedArguments, i)
	}
	return toUint256(v)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative or missing integer", ErrMalformedArguments)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: integer exceeds 256 bits", ErrMalformedArguments)
	}
	return out, nil
}
