package auth

import (
	"fmt"
	"math"
	"unicode"
)

// KeyPolicy defines the minimum quality of a user-chosen API key.
type KeyPolicy struct {
	MinLength  int
	MinEntropy float64 // bits
}

// DefaultKeyPolicy requires 16 characters and roughly 80 bits.
func DefaultKeyPolicy() KeyPolicy {
	return KeyPolicy{
		MinLength:  16,
		MinEntropy: 80,
	}
}

// KeyStrength is the estimated strength of a key.
type KeyStrength struct {
	Length      int
	Classes     int
	CharsetSize int
	Entropy     float64 // length * log2(charset size)
}

// ValidateKey checks key against policy.
func ValidateKey(key string, policy KeyPolicy) error {
	if len(key) < policy.MinLength {
		return fmt.Errorf("api key must be at least %d characters", policy.MinLength)
	}
	s := CalculateStrength(key)
	if s.Entropy < policy.MinEntropy {
		return fmt.Errorf("api key is not strong enough (%.1f bits of entropy, need %.1f)",
			s.Entropy, policy.MinEntropy)
	}
	return nil
}

// CalculateStrength estimates the entropy of key from its length and the
// character classes it uses.
func CalculateStrength(key string) KeyStrength {
	classes := characterClasses(key)
	size := charsetSize(classes)
	return KeyStrength{
		Length:      len(key),
		Classes:     classes,
		CharsetSize: size,
		Entropy:     float64(len(key)) * math.Log2(float64(size)),
	}
}

func charsetSize(classes int) int {
	switch classes {
	case 2:
		return 36
	case 3:
		return 62
	case 4:
		return 95
	default:
		return 26
	}
}

func characterClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, c := range s {
		switch {
		case unicode.IsLower(c):
			lower = true
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			symbol = true
		}
	}
	n := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			n++
		}
	}
	return n
}
