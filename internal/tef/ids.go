package tef

import (
	"strings"

	"github.com/google/uuid"
)

// NewTransactionID generates a transaction_id for a caller that has no
// upstream POS-assigned ID of its own (the bridge-cli's default), sized to
// fit the 10-character field width of §4.1's data model.
func NewTransactionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}
