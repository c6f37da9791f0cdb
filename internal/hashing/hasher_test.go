package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashOTPRoundTrip(t *testing.T) {
	h := NewHasher()

	result, err := h.HashOTP("123456")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hash)
	assert.NotEmpty(t, result.Salt)
	assert.Equal(t, "argon2id-v1", result.Algorithm)

	ok, err := h.VerifyOTP("123456", result)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyOTP("654321", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashOTPSaltsDiffer(t *testing.T) {
	h := NewHasher()

	a, err := h.HashOTP("123456")
	require.NoError(t, err)
	b, err := h.HashOTP("123456")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestVerifyOTPRejectsCorruptRecord(t *testing.T) {
	h := NewHasher()

	result, err := h.HashOTP("123456")
	require.NoError(t, err)

	_, err = h.VerifyOTP("123456", &HashResult{Hash: "!!!", Salt: result.Salt})
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = h.VerifyOTP("123456", &HashResult{Hash: result.Hash, Salt: "!!!"})
	assert.ErrorIs(t, err, ErrInvalidHash)
}
