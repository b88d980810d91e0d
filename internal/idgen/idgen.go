// Package idgen generates the opaque ids used throughout DMM: memory ids
// (by convention mem_<date>_<seq>, spec.md §3.1), proposal ids, conflict
// ids, and scan ids. The base36 hash encoder is adapted from the teacher's
// internal/idgen/hash.go, which derives short, collision-resistant ids by
// base36-encoding a truncated SHA-256 digest; here it backs proposal/
// conflict/scan ids instead of human-facing issue short codes.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts data to a base36 string of exactly length chars,
// zero-padded on the left or truncated to the least-significant digits.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var result strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// hashSuffix derives a stable-looking but collision-resistant suffix from
// arbitrary content plus a disambiguating nonce.
func hashSuffix(length int, nonce int, parts ...string) string {
	content := fmt.Sprintf("%s|%d|%d", strings.Join(parts, "|"), time.Now().UnixNano(), nonce)
	sum := sha256.Sum256([]byte(content))
	numBytes := (length*log2_36 + 7) / 8
	if numBytes < 1 {
		numBytes = 1
	}
	if numBytes > len(sum) {
		numBytes = len(sum)
	}
	return EncodeBase36(sum[:numBytes], length)
}

// log2_36 approximates bits-per-base36-digit (log2(36) ≈ 5.17), rounded up
// for safety margin when sizing the hash slice.
const log2_36 = 6

// NewMemoryID returns an id of the convention mem_<date>_<seq> (spec.md
// §3.1), where seq is caller-supplied (e.g. a per-day counter from the
// store) so ids sort chronologically within a day.
func NewMemoryID(date time.Time, seq int) string {
	return fmt.Sprintf("mem_%s_%03d", date.UTC().Format("20060102"), seq)
}

// NewProposalID returns a proposal id derived from the proposing agent,
// target path, and a caller-supplied nonce (to disambiguate retries of the
// same logical proposal).
func NewProposalID(proposedBy, targetPath string, nonce int) string {
	return fmt.Sprintf("proposal_%s", hashSuffix(10, nonce, proposedBy, targetPath))
}

// NewConflictID returns a timestamped conflict id of the form
// conflict_<ts>_<suffix>, where suffix is 8 base36 characters.
func NewConflictID(now time.Time, nonce int) string {
	ts := now.UTC().Format("20060102_150405")
	return fmt.Sprintf("conflict_%s_%s", ts, hashSuffix(8, nonce, ts))
}

// NewScanID returns a timestamped scan id.
func NewScanID(now time.Time, nonce int) string {
	ts := now.UTC().Format("20060102_150405")
	return fmt.Sprintf("scan_%s_%s", ts, hashSuffix(8, nonce, ts))
}
