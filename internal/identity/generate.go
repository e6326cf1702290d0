package identity

import (
	"fmt"
	"math/rand/v2"

	"scanflow/internal/services"
)

const generateMaxAttempts = 100000

// GenerateDeidentifiedID draws a random identifier of the form
// prefix+digits that does not appear in used. The numeric part never starts
// with zero. Fails only when the attempt budget is exhausted, which in
// practice means the identifier space is full.
func GenerateDeidentifiedID(used []string, prefix string, digits int) (string, error) {
	taken := make(map[string]struct{}, len(used))
	for _, id := range used {
		taken[id] = struct{}{}
	}

	min := 1
	for i := 1; i < digits; i++ {
		min *= 10
	}
	max := min*10 - 1

	for attempt := 0; attempt < generateMaxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%0*d", prefix, digits, min+rand.IntN(max-min+1))
		if _, exists := taken[candidate]; !exists {
			return candidate, nil
		}
	}
	return "", services.Wrap(
		services.ErrValidation, "identity", "generate deidentified id",
		fmt.Sprintf("no unused %d-digit identifier found after %d attempts", digits, generateMaxAttempts), nil)
}
