// internal/utils/validator_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletFixture struct {
	Wallet string `validate:"required,hedera_id"`
}

type amountFixture struct {
	Amount string `validate:"required,amount"`
}

func TestValidateHederaID(t *testing.T) {
	valid := []string{"0.0.1234", "1.2.3", "0.0.999999999"}
	for _, w := range valid {
		assert.NoError(t, ValidateStruct(&walletFixture{Wallet: w}), w)
	}

	invalid := []string{"0.0", "0.0.abc", "0x1234", "1234", "0.0.12.34", ""}
	for _, w := range invalid {
		assert.Error(t, ValidateStruct(&walletFixture{Wallet: w}), w)
	}
}

func TestValidateAmount(t *testing.T) {
	valid := []string{"0", "100", "0.5", "1234.567890"}
	for _, a := range valid {
		assert.NoError(t, ValidateStruct(&amountFixture{Amount: a}), a)
	}

	invalid := []string{"-1", "1,000", "abc", ".5", "1.", ""}
	for _, a := range invalid {
		assert.Error(t, ValidateStruct(&amountFixture{Amount: a}), a)
	}
}

func TestGetValidationErrors(t *testing.T) {
	err := ValidateStruct(&walletFixture{Wallet: "nope"})
	require.Error(t, err)

	errs := GetValidationErrors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "wallet", errs[0].Field)
	assert.Equal(t, "hedera_id", errs[0].Tag)
	assert.Contains(t, errs[0].Message, "shard.realm.num")
}
