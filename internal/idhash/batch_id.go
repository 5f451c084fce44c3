package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ComputeBatchID computes a deterministic batch_id using SHA256.
// Formula: SHA256(wallet|batch_index|sorted_accounts joined by ",")
// Returns hex-encoded hash (64 characters).
// Account order does not affect the result.
func ComputeBatchID(wallet string, index int, accounts []string) string {
	sorted := append([]string(nil), accounts...)
	sort.Strings(sorted)

	data := fmt.Sprintf("%s|%d|%s",
		wallet,
		index,
		strings.Join(sorted, ","),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
