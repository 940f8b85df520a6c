package pkg

import (
	"crypto/rand"
	"errors"
	"math/big"
	"unsafe"
)

const randStringChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// BytesToString converts bytes slice to a string without extra allocation
func BytesToString(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

// GenerateRandomString returns a securely generated random
// alphanumeric string of length s.
func GenerateRandomString(s int) (string, error) {
	if s <= 0 {
		return "", errors.New("random string length must be positive")
	}

	b := make([]byte, s)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(randStringChars))))
		if err != nil {
			return "", err
		}
		b[i] = randStringChars[idx.Int64()]
	}

	return BytesToString(b), nil
}
