package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// RandomDigits returns a string of n decimal digits. Leading zeros are
// allowed, so the width is always exactly n.
func RandomDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid digit count %d", n)
	}
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// IsDigits reports whether s is non-empty and made only of 0-9.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ContainsFold reports whether substr is within s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
