package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid hash format")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams keeps hashing cheap enough for a per-request code check while
// still making offline guessing of a 6-digit space non-free.
var DefaultParams = Argon2Params{
	Memory:      32 * 1024,
	Iterations:  2,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes OTP codes before they reach the challenge directory, so a
// leaked table never exposes live codes.
type Hasher struct {
	params Argon2Params
}

type HashResult struct {
	Hash      string `json:"hash"`
	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"`
}

func NewHasher() *Hasher {
	return &Hasher{params: DefaultParams}
}

func (h *Hasher) HashOTP(code string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(code),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &HashResult{
		Hash:      base64.RawURLEncoding.EncodeToString(hash),
		Salt:      base64.RawURLEncoding.EncodeToString(salt),
		Algorithm: "argon2id-v1",
	}, nil
}

func (h *Hasher) VerifyOTP(code string, result *HashResult) (bool, error) {
	salt, err := base64.RawURLEncoding.DecodeString(result.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}

	expected, err := base64.RawURLEncoding.DecodeString(result.Hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(code),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	// Constant time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
