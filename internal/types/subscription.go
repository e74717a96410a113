package types

import (
	"github.com/samber/lo"
	ierr "github.com/subcycle/subcycle/internal/errors"
)

// SubscriptionStatus is the lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial             SubscriptionStatus = "trial"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
	SubscriptionStatusSuspended         SubscriptionStatus = "suspended"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no operation may transition out of this status.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrial,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
		SubscriptionStatusPaused,
		SubscriptionStatusSuspended,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ScheduledChangeType is the kind of a deferred subscription mutation
type ScheduledChangeType string

const (
	ScheduledChangeTypePlanChange   ScheduledChangeType = "plan_change"
	ScheduledChangeTypeCancellation ScheduledChangeType = "cancellation"
	ScheduledChangeTypePause        ScheduledChangeType = "pause"
	ScheduledChangeTypeResume       ScheduledChangeType = "resume"
)

func (t ScheduledChangeType) String() string {
	return string(t)
}

func (t ScheduledChangeType) Validate() error {
	allowed := []ScheduledChangeType{
		ScheduledChangeTypePlanChange,
		ScheduledChangeTypeCancellation,
		ScheduledChangeTypePause,
		ScheduledChangeTypeResume,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid scheduled change type").
			WithHint("Invalid scheduled change type").
			WithReportableDetails(map[string]any{
				"type":          t,
				"allowed_types": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ScheduledChangeStatus tracks consumption of a scheduled change.
// A change is consumed exactly once; reprocessing a processed entry is a no-op.
type ScheduledChangeStatus string

const (
	ScheduledChangeStatusScheduled ScheduledChangeStatus = "scheduled"
	ScheduledChangeStatusProcessed ScheduledChangeStatus = "processed"
	ScheduledChangeStatusCancelled ScheduledChangeStatus = "cancelled"
)

func (s ScheduledChangeStatus) String() string {
	return string(s)
}

// CancellationPolicy determines when a cancellation takes effect
// when the caller does not pass an explicit effective date.
type CancellationPolicy string

const (
	CancellationPolicyImmediate   CancellationPolicy = "immediate"
	CancellationPolicyEndOfPeriod CancellationPolicy = "end_of_period"
)

// ChangeTimingPolicy determines when a plan change (upgrade/downgrade)
// takes effect relative to the billing period.
type ChangeTimingPolicy string

const (
	ChangeTimingPolicyImmediate   ChangeTimingPolicy = "immediate"
	ChangeTimingPolicyEndOfPeriod ChangeTimingPolicy = "end_of_period"
)

// CancellationReasonPaymentFailed is set when dunning exhausts its retries.
const CancellationReasonPaymentFailed = "payment_failed"

// ChurnRiskLevel buckets a churn risk score
type ChurnRiskLevel string

const (
	ChurnRiskLevelLow    ChurnRiskLevel = "low"
	ChurnRiskLevelMedium ChurnRiskLevel = "medium"
	ChurnRiskLevelHigh   ChurnRiskLevel = "high"
)

// ChurnRiskFactor names an independent contribution to the churn score
type ChurnRiskFactor string

const (
	ChurnRiskFactorPaymentIssues ChurnRiskFactor = "payment_issues"
	ChurnRiskFactorLowUsage      ChurnRiskFactor = "low_usage"
	ChurnRiskFactorSupportIssues ChurnRiskFactor = "support_issues"
	ChurnRiskFactorNewSubscriber ChurnRiskFactor = "new_subscriber"
)

// TransactionKind classifies a recorded payment transaction
type TransactionKind string

const (
	TransactionKindInitial TransactionKind = "initial"
	TransactionKindRenewal TransactionKind = "renewal"
	TransactionKindUpgrade TransactionKind = "upgrade"
)

// FailedPaymentStatus is the dunning state of a failed payment record
type FailedPaymentStatus string

const (
	FailedPaymentStatusPending   FailedPaymentStatus = "pending"
	FailedPaymentStatusRetrying  FailedPaymentStatus = "retrying"
	FailedPaymentStatusFailed    FailedPaymentStatus = "failed"
	FailedPaymentStatusRecovered FailedPaymentStatus = "recovered"
)
