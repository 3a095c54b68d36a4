package waitingroom

import (
	"errors"
	"math/rand"
	"strings"
)

// GenerateCode returns a 4-letter room code not present in usedCodes.
func GenerateCode(usedCodes map[string]bool) string {
	for {
		code := make([]byte, 4)
		for i := range code {
			code[i] = 'A' + byte(rand.Intn(26))
		}
		if !usedCodes[string(code)] {
			return string(code)
		}
	}
}

func ValidateCode(code string) error {
	if len(code) != 4 {
		return errors.New("room code must be exactly 4 characters")
	}
	for _, ch := range strings.ToUpper(code) {
		if ch < 'A' || ch > 'Z' {
			return errors.New("room code must contain only letters A-Z")
		}
	}
	return nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(code)
}
