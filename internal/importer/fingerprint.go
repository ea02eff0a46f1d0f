package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
)

// Fingerprint hashes the identity of a transaction for duplicate detection:
// SHA256("{date}|{type}|{amount}|{normalized description}") with the amount
// fixed at two decimals and the description lowercased with whitespace runs
// collapsed. Source formatting noise must not change the fingerprint.
func Fingerprint(date time.Time, txType domain.TransactionType, amount decimal.Decimal, description string) string {
	source := date.Format("2006-01-02") + "|" + string(txType) + "|" +
		amount.StringFixed(2) + "|" + normalizeForFingerprint(description)
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func normalizeForFingerprint(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
