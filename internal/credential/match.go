// Package credential holds the secret comparison and generation helpers used by
// login, token issuance and two-factor recovery.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// HashesMatch reports whether the supplied master password hash equals the
// stored one. Both sides are digested first so the comparison time depends on
// neither their content nor their length. Empty inputs never match.
func HashesMatch(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(supplied))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// RecoveryCodesMatch compares recovery codes ignoring case and whitespace.
func RecoveryCodesMatch(stored, supplied string) bool {
	return HashesMatch(normalizeRecoveryCode(stored), normalizeRecoveryCode(supplied))
}

func normalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}
