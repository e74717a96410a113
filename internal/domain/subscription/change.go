package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/types"
)

// ScheduledChange is a deferred ledger mutation: it is consumed exactly once
// by the renewal scanner when ScheduledAt is reached, then marked processed.
// Reprocessing a processed entry is a no-op.
//
// The payload is a per-kind tagged value serialized to JSON; at most one
// scheduled (not yet processed or cancelled) entry of a given kind may exist
// per subscription.
type ScheduledChange struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	ChangeType   types.ScheduledChangeType   `db:"change_type" json:"change_type"`
	ChangeStatus types.ScheduledChangeStatus `db:"change_status" json:"change_status"`

	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at"`

	Payload json.RawMessage `db:"payload" json:"payload"`

	types.BaseModel
}

// PlanChangePayload carries a deferred plan swap (downgrade end-of-period path).
type PlanChangePayload struct {
	NewPlanID   string          `json:"new_plan_id"`
	NewPlanName string          `json:"new_plan_name"`
	NewPrice    decimal.Decimal `json:"new_price"`
	Reason      string          `json:"reason,omitempty"`
}

// CancellationPayload carries a future-dated cancellation.
type CancellationPayload struct {
	Reason string `json:"reason,omitempty"`
	Note   string `json:"note,omitempty"`
}

// PausePayload carries a scheduled pause.
type PausePayload struct {
	Reason string     `json:"reason,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// ResumePayload carries a scheduled resume. A pause with an until date
// schedules one of these.
type ResumePayload struct{}

func newChange(ctx context.Context, subscriptionID string, changeType types.ScheduledChangeType, scheduledAt time.Time, payload any) (*ScheduledChange, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode scheduled change payload").
			Mark(ierr.ErrSystem)
	}
	return &ScheduledChange{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SCHEDULED_CHANGE),
		SubscriptionID: subscriptionID,
		ChangeType:     changeType,
		ChangeStatus:   types.ScheduledChangeStatusScheduled,
		ScheduledAt:    scheduledAt.UTC(),
		Payload:        raw,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}, nil
}

// NewPlanChange builds a scheduled plan_change entry.
func NewPlanChange(ctx context.Context, subscriptionID string, scheduledAt time.Time, payload PlanChangePayload) (*ScheduledChange, error) {
	return newChange(ctx, subscriptionID, types.ScheduledChangeTypePlanChange, scheduledAt, payload)
}

// NewCancellation builds a scheduled cancellation entry.
func NewCancellation(ctx context.Context, subscriptionID string, scheduledAt time.Time, payload CancellationPayload) (*ScheduledChange, error) {
	return newChange(ctx, subscriptionID, types.ScheduledChangeTypeCancellation, scheduledAt, payload)
}

// NewPause builds a scheduled pause entry.
func NewPause(ctx context.Context, subscriptionID string, scheduledAt time.Time, payload PausePayload) (*ScheduledChange, error) {
	return newChange(ctx, subscriptionID, types.ScheduledChangeTypePause, scheduledAt, payload)
}

// NewResume builds a scheduled resume entry.
func NewResume(ctx context.Context, subscriptionID string, scheduledAt time.Time) (*ScheduledChange, error) {
	return newChange(ctx, subscriptionID, types.ScheduledChangeTypeResume, scheduledAt, ResumePayload{})
}

// PlanChange decodes the payload of a plan_change entry.
func (c *ScheduledChange) PlanChange() (*PlanChangePayload, error) {
	if c.ChangeType != types.ScheduledChangeTypePlanChange {
		return nil, wrongPayloadErr(c, types.ScheduledChangeTypePlanChange)
	}
	var p PlanChangePayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return nil, decodeErr(c, err)
	}
	return &p, nil
}

// Cancellation decodes the payload of a cancellation entry.
func (c *ScheduledChange) Cancellation() (*CancellationPayload, error) {
	if c.ChangeType != types.ScheduledChangeTypeCancellation {
		return nil, wrongPayloadErr(c, types.ScheduledChangeTypeCancellation)
	}
	var p CancellationPayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return nil, decodeErr(c, err)
	}
	return &p, nil
}

// Pause decodes the payload of a pause entry.
func (c *ScheduledChange) Pause() (*PausePayload, error) {
	if c.ChangeType != types.ScheduledChangeTypePause {
		return nil, wrongPayloadErr(c, types.ScheduledChangeTypePause)
	}
	var p PausePayload
	if err := json.Unmarshal(c.Payload, &p); err != nil {
		return nil, decodeErr(c, err)
	}
	return &p, nil
}

// IsDue reports whether the entry should be consumed at the given instant.
func (c *ScheduledChange) IsDue(now time.Time) bool {
	return c.ChangeStatus == types.ScheduledChangeStatusScheduled && !c.ScheduledAt.After(now)
}

// MarkProcessed stamps the entry as consumed.
func (c *ScheduledChange) MarkProcessed(now time.Time) {
	c.ChangeStatus = types.ScheduledChangeStatusProcessed
	t := now.UTC()
	c.ProcessedAt = &t
}

// MarkCancelled voids the entry without applying it.
func (c *ScheduledChange) MarkCancelled() {
	c.ChangeStatus = types.ScheduledChangeStatusCancelled
}

func wrongPayloadErr(c *ScheduledChange, want types.ScheduledChangeType) error {
	return ierr.NewError("scheduled change payload type mismatch").
		WithReportableDetails(map[string]any{
			"change_id": c.ID,
			"have":      c.ChangeType,
			"want":      want,
		}).
		Mark(ierr.ErrSystem)
}

func decodeErr(c *ScheduledChange, err error) error {
	return ierr.WithError(err).
		WithMessage("failed to decode scheduled change payload").
		WithReportableDetails(map[string]any{
			"change_id":   c.ID,
			"change_type": c.ChangeType,
		}).
		Mark(ierr.ErrSystem)
}
