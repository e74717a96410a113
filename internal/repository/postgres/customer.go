package postgres

import (
	"context"

	"github.com/subcycle/subcycle/internal/domain/customer"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
	"github.com/subcycle/subcycle/internal/types"
)

type customerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCustomerRepository(db *postgres.DB, logger *logger.Logger) customer.Repository {
	return &customerRepository{db: db, logger: logger}
}

const customerColumns = `
	id, external_id, email, name, timezone, subscription_status,
	subscription_plan_id, subscription_plan_name, next_billing_date,
	last_billing_date, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

func (r *customerRepository) Create(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `
		) VALUES (
			:id, :external_id, :email, :name, :timezone, :subscription_status,
			:subscription_plan_id, :subscription_plan_name, :next_billing_date,
			:last_billing_date, :tenant_id, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create customer").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	return r.getBy(ctx, "id = :key", id)
}

func (r *customerRepository) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	return r.getBy(ctx, "external_id = :key", externalID)
}

func (r *customerRepository) getBy(ctx context.Context, clause, key string) (*customer.Customer, error) {
	query := `
		SELECT ` + customerColumns + ` FROM customers
		WHERE ` + clause + ` AND
			tenant_id = :tenant_id AND
			status != :deleted
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"key":       key,
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to get customer").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("customer not found").
			WithHint("The customer does not exist").
			WithReportableDetails(map[string]any{"customer": key}).
			Mark(ierr.ErrNotFound)
	}

	var c customer.Customer
	if err := rows.StructScan(&c); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to scan customer").
			Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *customerRepository) Update(ctx context.Context, c *customer.Customer) error {
	c.Touch(ctx)

	query := `
		UPDATE customers SET
			email = :email,
			name = :name,
			timezone = :timezone,
			subscription_status = :subscription_status,
			subscription_plan_id = :subscription_plan_id,
			subscription_plan_name = :subscription_plan_name,
			next_billing_date = :next_billing_date,
			last_billing_date = :last_billing_date,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE
			id = :id AND
			tenant_id = :tenant_id
	`

	result, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return ierr.WithError(err).
			WithMessage("failed to update customer").
			Mark(ierr.ErrDatabase)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": c.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
