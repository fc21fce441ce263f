package appointments

import (
	"strings"

	"github.com/google/uuid"
)

// NewTransactionID returns the 8-character uppercase booking reference
// shown to patients.
func NewTransactionID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
