// internal/hedera/params.go
package hedera

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Currency unit scales: HBAR amounts are submitted in tinybars, USDC in
// 6-decimal token units.
const (
	HBARUnit = 100_000_000
	USDCUnit = 1_000_000
)

const ZeroAddress = "0000000000000000000000000000000000000000"

type ArgType string

const (
	ArgString       ArgType = "string"
	ArgAddress      ArgType = "address"
	ArgUint8        ArgType = "uint8"
	ArgUint16       ArgType = "uint16"
	ArgUint32       ArgType = "uint32"
	ArgUint256      ArgType = "uint256"
	ArgStringArray  ArgType = "string[]"
	ArgUint8Array   ArgType = "uint8[]"
	ArgUint32Array  ArgType = "uint32[]"
	ArgUint256Array ArgType = "uint256[]"
)

type Arg struct {
	Type  ArgType     `json:"type"`
	Value interface{} `json:"value"`
}

// CallParams is an ordered list of typed contract call arguments. uint256
// values travel as decimal strings so amounts are never truncated.
type CallParams struct {
	args []Arg
}

func NewCallParams() *CallParams {
	return &CallParams{}
}

func (p *CallParams) add(t ArgType, v interface{}) *CallParams {
	p.args = append(p.args, Arg{Type: t, Value: v})
	return p
}

func (p *CallParams) AddString(v string) *CallParams  { return p.add(ArgString, v) }
func (p *CallParams) AddAddress(v string) *CallParams { return p.add(ArgAddress, v) }
func (p *CallParams) AddUint8(v uint8) *CallParams    { return p.add(ArgUint8, v) }
func (p *CallParams) AddUint16(v uint16) *CallParams  { return p.add(ArgUint16, v) }
func (p *CallParams) AddUint32(v uint32) *CallParams  { return p.add(ArgUint32, v) }

func (p *CallParams) AddUint256(v *big.Int) *CallParams {
	return p.add(ArgUint256, v.String())
}

func (p *CallParams) AddStringArray(v []string) *CallParams { return p.add(ArgStringArray, v) }
func (p *CallParams) AddUint8Array(v []uint8) *CallParams   { return p.add(ArgUint8Array, v) }
func (p *CallParams) AddUint32Array(v []uint32) *CallParams { return p.add(ArgUint32Array, v) }

func (p *CallParams) AddUint256Array(v []*big.Int) *CallParams {
	strs := make([]string, len(v))
	for i, n := range v {
		strs[i] = n.String()
	}
	return p.add(ArgUint256Array, strs)
}

func (p *CallParams) Args() []Arg {
	return p.args
}

// SolidityAddress converts a "shard.realm.num" account or contract id to
// its 20-byte EVM address in hex (4-byte shard, 8-byte realm, 8-byte num).
func SolidityAddress(id string) (string, error) {
	parts := strings.Split(id, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid entity id %q", id)
	}

	shard, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid shard in %q: %w", id, err)
	}
	realm, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid realm in %q: %w", id, err)
	}
	num, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid entity number in %q: %w", id, err)
	}

	return fmt.Sprintf("%08x%016x%016x", shard, realm, num), nil
}

// AccountFromEVMAddress maps an EVM address back to shard 0 / realm 0
// account notation, the format stored on transaction audit rows.
func AccountFromEVMAddress(addr string) string {
	hexStr := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if hexStr == "" {
		return ""
	}

	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return ""
	}
	return fmt.Sprintf("0.0.%s", n.String())
}

// ScaleAmount converts a decimal string amount in whole currency units into
// the integer on-chain representation using the given unit scale. The
// result is rounded to the nearest unit.
func ScaleAmount(amount string, unit int64) (*big.Int, error) {
	f, ok := new(big.Float).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}

	scaled := new(big.Float).Mul(f, new(big.Float).SetInt64(unit))
	// round half away from zero
	half := big.NewFloat(0.5)
	if scaled.Sign() < 0 {
		scaled.Sub(scaled, half)
	} else {
		scaled.Add(scaled, half)
	}

	result, _ := scaled.Int(nil)
	return result, nil
}

// UnitFor returns the on-chain unit scale for a currency symbol.
func UnitFor(currency string) int64 {
	if currency == "USDC" {
		return USDCUnit
	}
	return HBARUnit
}
