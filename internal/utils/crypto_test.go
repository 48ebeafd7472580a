// internal/utils/crypto_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	// sha256 of the empty input is a fixed vector
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Checksum(nil))

	data := []byte("deliverable")
	sum := Checksum(data)
	assert.True(t, VerifyChecksum(data, sum))
	assert.False(t, VerifyChecksum([]byte("tampered"), sum))
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, a, 16)

	b, err := GenerateRandomString(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
