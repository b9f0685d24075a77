package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dropop-labs/dropop-go/pkg/merkle"
	"github.com/dropop-labs/dropop-go/pkg/recipients"
	"github.com/dropop-labs/dropop-go/pkg/types"
)

type claimOutput struct {
	Address string   `json:"address"`
	Amount  string   `json:"amount"`
	Leaf    string   `json:"leaf"`
	Proof   []string `json:"proof"`
}

type treeOutput struct {
	Root           string        `json:"root"`
	Decimals       int32         `json:"decimals"`
	TotalAmount    string        `json:"totalAmount"`
	RecipientCount int           `json:"recipientCount"`
	Recipients     []claimOutput `json:"recipients"`
}

func newClaimOutput(cd *merkle.ClaimData) claimOutput {
	proof := make([]string, len(cd.Proof))
	for i := range cd.Proof {
		proof[i] = hexutil.Encode(cd.Proof[i][:])
	}
	return claimOutput{
		Address: cd.Recipient.Hex(),
		Amount:  cd.Amount.Dec(),
		Leaf:    hexutil.Encode(cd.Leaf[:]),
		Proof:   proof,
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadEntitlements reads a recipient list and converts it for the tree. Every rejected
// line is logged before the list as a whole is refused.
func loadEntitlements(path string, decimals int32, l *zap.Logger) ([]merkle.Entitlement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient list: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := recipients.Parse(f)
	if err != nil {
		return nil, err
	}
	if invalid := recipients.Invalid(rows); len(invalid) > 0 {
		for _, r := range invalid {
			l.Sugar().Warnw("Rejected recipient line", "line", r.Line, "address", r.RawAddress, "amount", r.RawAmount, "error", r.Err)
		}
		return nil, fmt.Errorf("recipient list has %d invalid line(s)", len(invalid))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("recipient list %s is empty", path)
	}
	return recipients.Entitlements(rows, decimals)
}

func buildTree(c *cli.Context, l *zap.Logger) ([]merkle.Entitlement, *merkle.MerkleTree, error) {
	entitlements, err := loadEntitlements(c.String("file"), int32(c.Int("decimals")), l)
	if err != nil {
		return nil, nil, err
	}
	tree, err := merkle.BuildEntitlementTree(entitlements)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}
	return entitlements, tree, nil
}

func treeCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	entitlements, tree, err := buildTree(c, l)
	if err != nil {
		return err
	}

	out := treeOutput{
		Root:           hexutil.Encode(tree.Root[:]),
		Decimals:       int32(c.Int("decimals")),
		RecipientCount: len(entitlements),
		Recipients:     make([]claimOutput, 0, len(entitlements)),
	}
	total := new(uint256.Int)
	for _, e := range entitlements {
		if _, overflow := total.AddOverflow(total, e.Amount); overflow {
			return fmt.Errorf("total amount exceeds 256 bits")
		}
		cd, err := tree.ClaimData(entitlements, e.Recipient)
		if err != nil {
			return err
		}
		out.Recipients = append(out.Recipients, newClaimOutput(cd))
	}
	out.TotalAmount = total.Dec()

	l.Sugar().Infow("Built merkle tree", "root", out.Root, "recipients", len(entitlements), "totalAmount", out.TotalAmount)
	return writeJSON(c.App.Writer, out)
}

func proofCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	recipient, err := types.HexToAddress(c.String("recipient"))
	if err != nil {
		return err
	}
	entitlements, tree, err := buildTree(c, l)
	if err != nil {
		return err
	}
	cd, err := tree.ClaimData(entitlements, recipient)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, struct {
		Root string `json:"root"`
		claimOutput
	}{
		Root:        hexutil.Encode(tree.Root[:]),
		claimOutput: newClaimOutput(cd),
	})
}

func verifyCommand(c *cli.Context) error {
	root, err := decodeHash(c.String("root"))
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	recipient, err := types.HexToAddress(c.String("recipient"))
	if err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
	}

	raw := c.StringSlice("proof")
	proof := make([][32]byte, len(raw))
	for i, p := range raw {
		if proof[i], err = decodeHash(p); err != nil {
			return fmt.Errorf("invalid proof element %d: %w", i, err)
		}
	}

	leaf := merkle.HashLeaf(recipient.Bytes(), amount)
	if !merkle.VerifyProof(leaf, proof, root) {
		return cli.Exit("proof is invalid", 1)
	}
	_, err = fmt.Fprintln(c.App.Writer, "proof is valid")
	return err
}

func decodeHash(s string) ([32]byte, error) {
	var h [32]byte
	raw, err := hexutil.Decode(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
