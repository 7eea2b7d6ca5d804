package utils

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// OrderNumber mints a numeric order number: millisecond timestamp, four
// random digits, and a Luhn check digit. The check digit lets downstream
// systems reject mistyped numbers without a lookup.
func OrderNumber() string {
	base := fmt.Sprintf("%d%04d", time.Now().UnixMilli(), rand.Intn(10000))
	return base + strconv.Itoa(luhnCheckDigit(base))
}

// ValidateNumber reports whether s is a numeric string with a valid Luhn
// check digit.
func ValidateNumber(s string) bool {
	return IsNumeric(s) && ValidateLuhn(s)
}

// luhnCheckDigit computes the digit that makes number+digit pass ValidateLuhn.
func luhnCheckDigit(number string) int {
	sum := 0
	double := true
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidateLuhn checks if a string passes the Luhn algorithm check
func ValidateLuhn(number string) bool {
	// Convert string to slice of digits
	digits := make([]int, 0, len(number))
	for _, r := range number {
		if r < '0' || r > '9' {
			return false // Non-digit character
		}
		digits = append(digits, int(r-'0'))
	}

	// Luhn algorithm
	sum := 0
	parity := len(digits) % 2
	for i, digit := range digits {
		if i%2 == parity {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}

	return sum%10 == 0
}

// IsNumeric checks if a string contains only digits
func IsNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
