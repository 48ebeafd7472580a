// internal/hedera/params_test.go
package hedera

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolidityAddress(t *testing.T) {
	addr, err := SolidityAddress("0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, "00000000000000000000000000000000000004d2", addr)
	assert.Len(t, addr, 40)

	addr, err = SolidityAddress("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "0000000100000000000000020000000000000003", addr)

	_, err = SolidityAddress("not-an-id")
	assert.Error(t, err)

	_, err = SolidityAddress("0.0.abc")
	assert.Error(t, err)
}

func TestAccountFromEVMAddress(t *testing.T) {
	assert.Equal(t, "0.0.1234", AccountFromEVMAddress("0x00000000000000000000000000000000000004d2"))
	assert.Equal(t, "0.0.1234", AccountFromEVMAddress("00000000000000000000000000000000000004D2"))
	assert.Equal(t, "", AccountFromEVMAddress(""))
	assert.Equal(t, "", AccountFromEVMAddress("0xzz"))
}

func TestScaleAmount(t *testing.T) {
	tests := []struct {
		amount string
		unit   int64
		want   string
	}{
		{"1", HBARUnit, "100000000"},
		{"0.5", HBARUnit, "50000000"},
		{"1.23456789", HBARUnit, "123456789"},
		{"100", USDCUnit, "100000000"},
		{"0.000001", USDCUnit, "1"},
		{"0", USDCUnit, "0"},
	}
	for _, tt := range tests {
		got, err := ScaleAmount(tt.amount, tt.unit)
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got.String(), tt.amount)
	}

	_, err := ScaleAmount("abc", HBARUnit)
	assert.Error(t, err)
}

func TestUnitFor(t *testing.T) {
	assert.Equal(t, int64(USDCUnit), UnitFor("USDC"))
	assert.Equal(t, int64(HBARUnit), UnitFor("HBAR"))
	assert.Equal(t, int64(HBARUnit), UnitFor(""))
}

func TestCallParamsOrdering(t *testing.T) {
	params := NewCallParams().
		AddString("p-1").
		AddAddress(ZeroAddress).
		AddUint16(250).
		AddUint256(big.NewInt(100000000)).
		AddUint8(1)

	args := params.Args()
	require.Len(t, args, 5)
	assert.Equal(t, ArgString, args[0].Type)
	assert.Equal(t, "p-1", args[0].Value)
	assert.Equal(t, ArgAddress, args[1].Type)
	assert.Equal(t, ArgUint16, args[2].Type)
	assert.Equal(t, ArgUint256, args[3].Type)
	assert.Equal(t, "100000000", args[3].Value)
	assert.Equal(t, ArgUint8, args[4].Type)
}

func TestCallParamsUint256Array(t *testing.T) {
	params := NewCallParams().AddUint256Array([]*big.Int{big.NewInt(1), big.NewInt(2)})
	args := params.Args()
	require.Len(t, args, 1)
	assert.Equal(t, ArgUint256Array, args[0].Type)
	assert.Equal(t, []string{"1", "2"}, args[0].Value)
}
