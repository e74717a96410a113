package postgres

import (
	"context"

	"github.com/lib/pq"

	"github.com/subcycle/subcycle/internal/domain/dunning"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
	"github.com/subcycle/subcycle/internal/types"
)

type dunningRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDunningRepository(db *postgres.DB, logger *logger.Logger) dunning.Repository {
	return &dunningRepository{db: db, logger: logger}
}

const failedPaymentColumns = `
	id, customer_id, subscription_id, amount, currency, reason, attempts,
	next_retry, state, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

func (r *dunningRepository) Create(ctx context.Context, fp *dunning.FailedPayment) error {
	query := `
		INSERT INTO failed_payments (` + failedPaymentColumns + `
		) VALUES (
			:id, :customer_id, :subscription_id, :amount, :currency, :reason, :attempts,
			:next_retry, :state, :tenant_id, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, fp); err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create failed payment record").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *dunningRepository) Get(ctx context.Context, id string) (*dunning.FailedPayment, error) {
	query := `
		SELECT ` + failedPaymentColumns + ` FROM failed_payments
		WHERE id = :id AND tenant_id = :tenant_id
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
	})
}

func (r *dunningRepository) GetOpenBySubscription(ctx context.Context, subscriptionID string) (*dunning.FailedPayment, error) {
	query := `
		SELECT ` + failedPaymentColumns + ` FROM failed_payments
		WHERE
			subscription_id = :subscription_id AND
			tenant_id = :tenant_id AND
			state = ANY(:open_states)
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.getOne(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"tenant_id":       types.GetTenantID(ctx),
		"open_states": pq.Array([]string{
			string(types.FailedPaymentStatusPending),
			string(types.FailedPaymentStatusRetrying),
		}),
	})
}

func (r *dunningRepository) getOne(ctx context.Context, query string, params map[string]interface{}) (*dunning.FailedPayment, error) {
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to get failed payment record").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("failed payment record not found").
			Mark(ierr.ErrNotFound)
	}

	var fp dunning.FailedPayment
	if err := rows.StructScan(&fp); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to scan failed payment record").
			Mark(ierr.ErrDatabase)
	}
	return &fp, nil
}

func (r *dunningRepository) Update(ctx context.Context, fp *dunning.FailedPayment) error {
	fp.Touch(ctx)

	query := `
		UPDATE failed_payments SET
			amount = :amount,
			reason = :reason,
			attempts = :attempts,
			next_retry = :next_retry,
			state = :state,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, fp)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update failed payment record").
			Mark(ierr.ErrDatabase)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("failed payment record not found").
			WithReportableDetails(map[string]any{"failed_payment_id": fp.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
