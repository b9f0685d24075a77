package ledger

import "errors"

// Every ledger error aborts the whole call: no state is written and no event is emitted.
var (
	ErrInvalidAmount         = errors.New("amount must be > 0")
	ErrInvalidRecipientCount = errors.New("recipient count must be > 0")
	ErrInvalidMerkleRoot     = errors.New("merkle root cannot be zero")
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrNoRecipients          = errors.New("no recipients")
	ErrTooManyRecipients     = errors.New("too many recipients (max 1000)")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrAirdropNotActive      = errors.New("airdrop is not active")
	ErrNotClaimMode          = errors.New("not a claim-mode airdrop")
	ErrAlreadyClaimed        = errors.New("already claimed")
	ErrInvalidProof          = errors.New("invalid merkle proof")
	ErrInsufficientPool      = errors.New("insufficient pool balance")
	ErrNotCreator            = errors.New("only creator can withdraw")
	ErrNothingToWithdraw     = errors.New("nothing to withdraw")
	ErrAirdropNotFound       = errors.New("airdrop does not exist")
)

var errorReasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidRecipientCount, "invalid_recipient_count"},
	{ErrInvalidMerkleRoot, "invalid_merkle_root"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrNoRecipients, "no_recipients"},
	{ErrTooManyRecipients, "too_many_recipients"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrAirdropNotActive, "not_active"},
	{ErrNotClaimMode, "not_claim_mode"},
	{ErrAlreadyClaimed, "already_claimed"},
	{ErrInvalidProof, "invalid_proof"},
	{ErrInsufficientPool, "insufficient_pool"},
	{ErrNotCreator, "not_creator"},
	{ErrNothingToWithdraw, "nothing_to_withdraw"},
	{ErrAirdropNotFound, "not_found"},
}

// errorReason maps an error to a low-cardinality metric label.
func errorReason(err error) string {
	for _, r := range errorReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
