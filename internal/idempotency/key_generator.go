package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key from all provided parts.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// CoinOperationKey scopes a caller-supplied request id to one account so
// two accounts never share a stored result.
func CoinOperationKey(accountID uint32, requestID string) string {
	return GenerateKey("coins", accountID, requestID)
}
