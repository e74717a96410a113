package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/subcycle/subcycle/internal/domain/subscription"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
	"github.com/subcycle/subcycle/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const subscriptionColumns = `
	id, customer_id, plan_id, plan_name, subscription_status, billing_cycle,
	current_price, currency, start_date, end_date, trial_start, trial_end,
	next_billing_date, last_billing_date, canceled_at, paused_at, resumed_at,
	auto_renew, prorated_credits, cancellation_reason, cancellation_note,
	pause_reason, paused_until, billing_attempts, churn_risk_score,
	churn_risk_level, churn_risk_factors, churn_risk_last_calculated,
	seats_allocated, seats_used, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id, :customer_id, :plan_id, :plan_name, :subscription_status, :billing_cycle,
			:current_price, :currency, :start_date, :end_date, :trial_start, :trial_end,
			:next_billing_date, :last_billing_date, :canceled_at, :paused_at, :resumed_at,
			:auto_renew, :prorated_credits, :cancellation_reason, :cancellation_note,
			:pause_reason, :paused_until, :billing_attempts, :churn_risk_score,
			:churn_risk_level, :churn_risk_factors, :churn_risk_last_calculated,
			:seats_allocated, :seats_used, :tenant_id, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE
			id = :id AND
			tenant_id = :tenant_id AND
			status != :deleted
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription not found").
			WithHintf("Subscription %s does not exist", id).
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrNotFound)
	}

	var sub subscription.Subscription
	if err := rows.StructScan(&sub); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to scan subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.Touch(ctx)

	query := `
		UPDATE subscriptions SET
			plan_id = :plan_id,
			plan_name = :plan_name,
			subscription_status = :subscription_status,
			current_price = :current_price,
			end_date = :end_date,
			trial_start = :trial_start,
			trial_end = :trial_end,
			next_billing_date = :next_billing_date,
			last_billing_date = :last_billing_date,
			canceled_at = :canceled_at,
			paused_at = :paused_at,
			resumed_at = :resumed_at,
			auto_renew = :auto_renew,
			prorated_credits = :prorated_credits,
			cancellation_reason = :cancellation_reason,
			cancellation_note = :cancellation_note,
			pause_reason = :pause_reason,
			paused_until = :paused_until,
			billing_attempts = :billing_attempts,
			churn_risk_score = :churn_risk_score,
			churn_risk_level = :churn_risk_level,
			churn_risk_factors = :churn_risk_factors,
			churn_risk_last_calculated = :churn_risk_last_calculated,
			seats_allocated = :seats_allocated,
			seats_used = :seats_used,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update subscription").
			Mark(ierr.ErrDatabase)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("subscription not found").
			WithReportableDetails(map[string]any{"subscription_id": sub.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE tenant_id = :tenant_id AND status != :deleted
	`
	params := map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
		"limit":     filter.GetLimit(),
		"offset":    filter.GetOffset(),
	}

	if filter.CustomerID != "" {
		query += " AND customer_id = :customer_id"
		params["customer_id"] = filter.CustomerID
	}
	if filter.PlanID != "" {
		query += " AND plan_id = :plan_id"
		params["plan_id"] = filter.PlanID
	}
	if len(filter.Statuses) > 0 {
		query += " AND subscription_status = ANY(:statuses)"
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = s.String()
		}
		params["statuses"] = pq.Array(statuses)
	}
	if filter.AutoRenew != nil {
		query += " AND auto_renew = :auto_renew"
		params["auto_renew"] = *filter.AutoRenew
	}
	if filter.NextBillingBefore != nil {
		query += " AND next_billing_date IS NOT NULL AND next_billing_date <= :next_billing_before"
		params["next_billing_before"] = *filter.NextBillingBefore
	}

	if filter.IsUnlimited() {
		query += " ORDER BY next_billing_date ASC"
	} else {
		query += " ORDER BY created_at DESC LIMIT :limit OFFSET :offset"
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		var sub subscription.Subscription
		if err := rows.StructScan(&sub); err != nil {
			return nil, ierr.WithError(err).
				WithMessage("failed to scan subscription").
				Mark(ierr.ErrDatabase)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (r *subscriptionRepository) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM subscriptions
		WHERE tenant_id = :tenant_id AND status != :deleted
	`
	params := map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	}
	if filter.CustomerID != "" {
		query += " AND customer_id = :customer_id"
		params["customer_id"] = filter.CustomerID
	}
	if filter.PlanID != "" {
		query += " AND plan_id = :plan_id"
		params["plan_id"] = filter.PlanID
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return 0, ierr.WithError(err).
			WithMessage("failed to count subscriptions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, ierr.WithError(err).
				WithMessage("failed to scan subscription count").
				Mark(ierr.ErrDatabase)
		}
	}
	return count, nil
}

func (r *subscriptionRepository) ListDueForRenewal(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	autoRenew := true
	// past_due rows come back through the sweep for dunning retries and
	// trial rows convert when the trial window ends
	return r.List(ctx, &types.SubscriptionFilter{
		Statuses: []types.SubscriptionStatus{
			types.SubscriptionStatusActive,
			types.SubscriptionStatusTrial,
			types.SubscriptionStatusPastDue,
		},
		AutoRenew:         &autoRenew,
		NextBillingBefore: &before,
	})
}

const scheduledChangeColumns = `
	id, subscription_id, change_type, change_status, scheduled_at,
	processed_at, payload, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

func (r *subscriptionRepository) CreateScheduledChange(ctx context.Context, change *subscription.ScheduledChange) error {
	query := `
		INSERT INTO subscription_scheduled_changes (` + scheduledChangeColumns + `
		) VALUES (
			:id, :subscription_id, :change_type, :change_status, :scheduled_at,
			:processed_at, :payload, :tenant_id, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, change); err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create scheduled change").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) UpdateScheduledChange(ctx context.Context, change *subscription.ScheduledChange) error {
	change.Touch(ctx)

	query := `
		UPDATE subscription_scheduled_changes SET
			change_status = :change_status,
			scheduled_at = :scheduled_at,
			processed_at = :processed_at,
			payload = :payload,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, change)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update scheduled change").
			Mark(ierr.ErrDatabase)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("scheduled change not found").
			WithReportableDetails(map[string]any{"change_id": change.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *subscriptionRepository) ListScheduledChanges(ctx context.Context, subscriptionID string, statuses []types.ScheduledChangeStatus) ([]*subscription.ScheduledChange, error) {
	query := `
		SELECT ` + scheduledChangeColumns + ` FROM subscription_scheduled_changes
		WHERE
			subscription_id = :subscription_id AND
			tenant_id = :tenant_id
	`
	params := map[string]interface{}{
		"subscription_id": subscriptionID,
		"tenant_id":       types.GetTenantID(ctx),
	}
	if len(statuses) > 0 {
		query += " AND change_status = ANY(:change_statuses)"
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = s.String()
		}
		params["change_statuses"] = pq.Array(values)
	}
	query += " ORDER BY scheduled_at ASC"

	return r.scanScheduledChanges(ctx, query, params)
}

func (r *subscriptionRepository) ListDueScheduledChanges(ctx context.Context, before time.Time) ([]*subscription.ScheduledChange, error) {
	query := `
		SELECT ` + scheduledChangeColumns + ` FROM subscription_scheduled_changes
		WHERE
			tenant_id = :tenant_id AND
			change_status = :scheduled AND
			scheduled_at <= :before
		ORDER BY scheduled_at ASC
	`
	params := map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
		"scheduled": types.ScheduledChangeStatusScheduled,
		"before":    before,
	}

	return r.scanScheduledChanges(ctx, query, params)
}

func (r *subscriptionRepository) scanScheduledChanges(ctx context.Context, query string, params map[string]interface{}) ([]*subscription.ScheduledChange, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, ierr.WithError(err).
			WithMessage("failed to list scheduled changes").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var changes []*subscription.ScheduledChange
	for rows.Next() {
		var change subscription.ScheduledChange
		if err := rows.StructScan(&change); err != nil {
			return nil, ierr.WithError(err).
				WithMessage("failed to scan scheduled change").
				Mark(ierr.ErrDatabase)
		}
		changes = append(changes, &change)
	}
	return changes, nil
}
