package common

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// MakeRandURLToken returns size random bytes encoded with unpadded base64url.
// Used for opaque session and refresh tokens.
func MakeRandURLToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MakeRandDigits returns a string of n decimal digits drawn uniformly from
// [0, 10^n). Leading zeros are kept.
func MakeRandDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid digit count %d", n)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

// WipeByteArray overwrites b with zeros. A nil slice is ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
