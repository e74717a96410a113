package dunning

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/types"
)

// FailedPayment tracks a charge that could not be collected, independent of
// the subscription ledger. The renewal scanner drives its retries; the
// ledger's billing_attempts counter stays the per-subscription source of
// truth for how close the subscription is to cancellation.
type FailedPayment struct {
	ID             string `db:"id" json:"id"`
	CustomerID     string `db:"customer_id" json:"customer_id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`
	Reason   string          `db:"reason" json:"reason"`

	Attempts  int                       `db:"attempts" json:"attempts"`
	NextRetry *time.Time                `db:"next_retry" json:"next_retry"`
	State     types.FailedPaymentStatus `db:"state" json:"state"`

	types.BaseModel
}

// IsRetryDue reports whether the scanner may attempt this payment again.
// A record already waiting on a future retry is skipped, which is what makes
// re-entering the scan idempotent.
func (f *FailedPayment) IsRetryDue(now time.Time) bool {
	if f.State == types.FailedPaymentStatusFailed {
		return false
	}
	return f.NextRetry == nil || !f.NextRetry.After(now)
}

// RecordAttempt advances the dunning state after another failed charge.
func (f *FailedPayment) RecordAttempt(now, nextRetry time.Time) {
	f.Attempts++
	f.State = types.FailedPaymentStatusRetrying
	t := nextRetry.UTC()
	f.NextRetry = &t
}

// MarkExhausted closes the record once retries are spent.
func (f *FailedPayment) MarkExhausted() {
	f.State = types.FailedPaymentStatusFailed
	f.NextRetry = nil
}

// MarkRecovered closes the record after a successful charge.
func (f *FailedPayment) MarkRecovered() {
	f.State = types.FailedPaymentStatusRecovered
	f.NextRetry = nil
}
