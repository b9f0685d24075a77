// Package contractAbi exposes the ledger over contract-ABI encoded calls and encodes its
// events into log form for indexers.
package contractAbi

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DropOpABI is the JSON ABI of the ledger's call and event surface. Addresses are
// 32-byte keys and travel as bytes32.
const DropOpABI = `[
	{"type":"function","name":"createAirdrop","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"tokenAddress","type":"bytes32"},
		{"name":"merkleRoot","type":"bytes32"},
		{"name":"totalAmount","type":"uint256"},
		{"name":"recipientCount","type":"uint256"}],
	 "outputs":[{"name":"airdropId","type":"uint256"}]},
	{"type":"function","name":"directAirdrop","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"tokenAddress","type":"bytes32"},
		{"name":"recipients","type":"tuple[]","components":[
			{"name":"account","type":"bytes32"},
			{"name":"amount","type":"uint256"}]}],
	 "outputs":[{"name":"airdropId","type":"uint256"}]},
	{"type":"function","name":"claim","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"airdropId","type":"uint256"},
		{"name":"amount","type":"uint256"},
		{"name":"proof","type":"bytes32[]"}],
	 "outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable",
	 "inputs":[{"name":"airdropId","type":"uint256"}],
	 "outputs":[{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"getAirdrop","stateMutability":"view",
	 "inputs":[{"name":"airdropId","type":"uint256"}],
	 "outputs":[
		{"name":"creator","type":"bytes32"},
		{"name":"tokenAddress","type":"bytes32"},
		{"name":"totalAmount","type":"uint256"},
		{"name":"claimedAmount","type":"uint256"},
		{"name":"recipientCount","type":"uint256"},
		{"name":"claimedCount","type":"uint256"},
		{"name":"merkleRoot","type":"bytes32"},
		{"name":"mode","type":"uint8"},
		{"name":"status","type":"uint8"},
		{"name":"createdAt","type":"uint64"}]},
	{"type":"function","name":"getAirdropCount","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"count","type":"uint256"}]},
	{"type":"function","name":"hasClaimed","stateMutability":"view",
	 "inputs":[
		{"name":"airdropId","type":"uint256"},
		{"name":"account","type":"bytes32"}],
	 "outputs":[{"name":"claimed","type":"bool"}]},
	{"type":"function","name":"getAirdropsByCreator","stateMutability":"view",
	 "inputs":[{"name":"creator","type":"bytes32"}],
	 "outputs":[{"name":"airdropIds","type":"uint256[]"}]},
	{"type":"event","name":"AirdropCreated","anonymous":false,
	 "inputs":[
		{"name":"airdropId","type":"uint256","indexed":true},
		{"name":"creator","type":"bytes32","indexed":true},
		{"name":"tokenAddress","type":"bytes32","indexed":true},
		{"name":"totalAmount","type":"uint256","indexed":false},
		{"name":"mode","type":"uint8","indexed":false}]},
	{"type":"event","name":"Claimed","anonymous":false,
	 "inputs":[
		{"name":"airdropId","type":"uint256","indexed":true},
		{"name":"claimer","type":"bytes32","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdrawn","anonymous":false,
	 "inputs":[
		{"name":"airdropId","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

const (
	MethodCreateAirdrop        = "createAirdrop"
	MethodDirectAirdrop        = "directAirdrop"
	MethodClaim                = "claim"
	MethodWithdraw             = "withdraw"
	MethodGetAirdrop           = "getAirdrop"
	MethodGetAirdropCount      = "getAirdropCount"
	MethodHasClaimed           = "hasClaimed"
	MethodGetAirdropsByCreator = "getAirdropsByCreator"
)

var (
	parsedOnce sync.Once
	parsedABI  *abi.ABI
	parseErr   error
)

// GetAbi returns the parsed ledger ABI. It is parsed once and shared.
func GetAbi() (*abi.ABI, error) {
	parsedOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(DropOpABI))
		if err != nil {
			parseErr = err
			return
		}
		parsedABI = &parsed
	})
	return parsedABI, parseErr
}

// DirectRecipient is the tuple element of directAirdrop's recipient list.
type DirectRecipient struct {
	Account [32]byte
	Amount  *big.Int
}
