package orders

import (
	"strings"

	"github.com/ManuelReschke/ArtFox/app/models"
)

// NormalizeStatus upper-cases a provider status string.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// StatusRank orders payment states: PENDING < APPROVED and unknown values <
// FAILED, CANCELED < COMPLETED.
func StatusRank(status string) int {
	switch NormalizeStatus(status) {
	case "", models.PaymentStatusPending:
		return 0
	case models.PaymentStatusFailed, models.PaymentStatusCanceled:
		return 2
	case models.PaymentStatusCompleted:
		return 3
	default:
		return 1
	}
}

// CanTransition reports whether moving from current to next is allowed.
// Equal ranks are accepted so FAILED can become CANCELED and vice versa.
func CanTransition(current, next string) bool {
	if NormalizeStatus(current) == models.PaymentStatusCompleted {
		return NormalizeStatus(next) == models.PaymentStatusCompleted
	}
	return StatusRank(next) >= StatusRank(current)
}
