package postgres

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/payment"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
	"github.com/subcycle/subcycle/internal/types"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: logger}
}

const transactionColumns = `
	id, reference, customer_id, subscription_id, kind, amount, currency,
	payment_method, gateway_ref, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

func (r *paymentRepository) Create(ctx context.Context, txn *payment.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `
		) VALUES (
			:id, :reference, :customer_id, :subscription_id, :kind, :amount, :currency,
			:payment_method, :gateway_ref, :tenant_id, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, txn); err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE id = :id AND tenant_id = :tenant_id
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"id":        id,
		"tenant_id": types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to get transaction").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("transaction not found").
			WithReportableDetails(map[string]any{"transaction_id": id}).
			Mark(ierr.ErrNotFound)
	}

	var txn payment.Transaction
	if err := rows.StructScan(&txn); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to scan transaction").
			Mark(ierr.ErrDatabase)
	}
	return &txn, nil
}

func (r *paymentRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*payment.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE subscription_id = :subscription_id AND tenant_id = :tenant_id
		ORDER BY created_at DESC
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"tenant_id":       types.GetTenantID(ctx),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list transactions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var txns []*payment.Transaction
	for rows.Next() {
		var txn payment.Transaction
		if err := rows.StructScan(&txn); err != nil {
			return nil, ierr.WithError(err).
				WithMessage("failed to scan transaction").
				Mark(ierr.ErrDatabase)
		}
		txns = append(txns, &txn)
	}
	return txns, nil
}
