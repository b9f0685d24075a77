// Package recipients parses airdrop recipient lists and converts human-readable token
// amounts into smallest units.
//
// A list holds one recipient per line as "address,amount", "address amount" or
// "address<TAB>amount". Blank lines are ignored and a first line mentioning "address" or
// "recipient" is treated as a header.
package recipients

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/dropop-labs/dropop-go/pkg/merkle"
	"github.com/dropop-labs/dropop-go/pkg/types"
)

// MaxDecimals bounds the token decimals accepted for amount conversion.
const MaxDecimals = 77

var (
	ErrMissingField     = errors.New("expected address and amount")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidAmount    = errors.New("amount must be a positive number")
	ErrDuplicateAddress = errors.New("duplicate address")
	ErrInvalidDecimals  = errors.New("invalid token decimals")
	ErrAmountTooSmall   = errors.New("amount is below the token's smallest unit")
	ErrAmountTooLarge   = errors.New("amount does not fit in 256 bits")
)

// plain decimal numbers only: no sign, exponent or bare dot
var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Row is one parsed recipient line. Err is set when the line was rejected; the raw
// fields are kept so the caller can report it.
type Row struct {
	Line       int
	RawAddress string
	RawAmount  string
	Address    types.Address
	Amount     decimal.Decimal
	Err        error
}

func (r Row) Valid() bool {
	return r.Err == nil
}

// Parse reads a recipient list. Rejected lines are returned with Err set; the error
// return is reserved for read failures.
func Parse(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)

	var rows []Row
	seen := make(map[types.Address]int)
	lineNo := 0
	first := true
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			lower := strings.ToLower(line)
			if strings.Contains(lower, "address") || strings.Contains(lower, "recipient") {
				continue
			}
		}

		row := parseLine(lineNo, line)
		if row.Valid() {
			if prev, ok := seen[row.Address]; ok {
				row.Err = fmt.Errorf("%w %s (first seen on line %d)", ErrDuplicateAddress, row.RawAddress, prev)
			} else {
				seen[row.Address] = lineNo
			}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipient list: %w", err)
	}
	return rows, nil
}

// ParseString parses a recipient list held in memory.
func ParseString(raw string) []Row {
	// reading from a strings.Reader cannot fail
	rows, _ := Parse(strings.NewReader(raw))
	return rows
}

func parseLine(lineNo int, line string) Row {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	row := Row{Line: lineNo}
	if len(fields) > 0 {
		row.RawAddress = fields[0]
	}
	if len(fields) < 2 {
		row.Err = fmt.Errorf("%w, got %d field(s)", ErrMissingField, len(fields))
		return row
	}
	row.RawAmount = fields[1]

	addr, err := types.HexToAddress(row.RawAddress)
	if err != nil {
		row.Err = fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		return row
	}
	row.Address = addr

	if !amountPattern.MatchString(row.RawAmount) {
		row.Err = fmt.Errorf("%w: %q", ErrInvalidAmount, row.RawAmount)
		return row
	}
	amount, err := decimal.NewFromString(row.RawAmount)
	if err != nil {
		row.Err = fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		return row
	}
	if !amount.IsPositive() {
		row.Err = fmt.Errorf("%w: %q", ErrInvalidAmount, row.RawAmount)
		return row
	}
	row.Amount = amount
	return row
}

// Invalid returns the rejected rows.
func Invalid(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if !r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// ToSmallestUnit converts a human-readable amount into smallest units for a token with
// the given decimals. Digits beyond the token's precision are truncated.
func ToSmallestUnit(amount decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	units := amount.Shift(decimals).Truncate(0).BigInt()
	if units.Sign() == 0 && !amount.IsZero() {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrAmountTooSmall, amount, decimals)
	}
	out, overflow := uint256.FromBig(units)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrAmountTooLarge, amount)
	}
	return out, nil
}

// FormatAmount renders smallest units as a decimal string without trailing zeros.
func FormatAmount(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}

// Entitlements converts valid rows into claim entitlements. Any rejected row or amount
// that cannot be converted fails the whole list.
func Entitlements(rows []Row, decimals int32) ([]merkle.Entitlement, error) {
	out := make([]merkle.Entitlement, 0, len(rows))
	err := convert(rows, decimals, func(addr types.Address, amount *uint256.Int) {
		out = append(out, merkle.Entitlement{Recipient: addr, Amount: amount})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DirectRecipients converts valid rows into a direct airdrop recipient list.
func DirectRecipients(rows []Row, decimals int32) ([]types.Recipient, error) {
	out := make([]types.Recipient, 0, len(rows))
	err := convert(rows, decimals, func(addr types.Address, amount *uint256.Int) {
		out = append(out, types.Recipient{Address: addr, Amount: *amount})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func convert(rows []Row, decimals int32, add func(types.Address, *uint256.Int)) error {
	for _, r := range rows {
		if !r.Valid() {
			return fmt.Errorf("line %d: %w", r.Line, r.Err)
		}
		amount, err := ToSmallestUnit(r.Amount, decimals)
		if err != nil {
			return fmt.Errorf("line %d: %w", r.Line, err)
		}
		add(r.Address, amount)
	}
	return nil
}
