package postgres

import (
	"context"

	"github.com/subcycle/subcycle/internal/cache"
	"github.com/subcycle/subcycle/internal/domain/plan"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/postgres"
	"github.com/subcycle/subcycle/internal/types"
)

type planRepository struct {
	db     *postgres.DB
	logger *logger.Logger
	cache  cache.Cache
}

// NewPlanRepository returns a plan catalog repository. Reads are cached:
// plans change rarely and are consulted on every plan-change operation.
func NewPlanRepository(db *postgres.DB, logger *logger.Logger, c cache.Cache) plan.Repository {
	return &planRepository{db: db, logger: logger, cache: c}
}

const planColumns = `
	id, name, lookup_key, description, trial_period_days, prices,
	cancellation_policy, upgrade_policy, downgrade_policy, tenant_id,
	status, created_at, updated_at, created_by, updated_by`

func (r *planRepository) cacheKey(ctx context.Context, key string) string {
	return cache.GenerateKey("plan", types.GetTenantID(ctx), key)
}

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (` + planColumns + `
		) VALUES (
			:id, :name, :lookup_key, :description, :trial_period_days, :prices,
			:cancellation_policy, :upgrade_policy, :downgrade_policy, :tenant_id,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return ierr.WithError(err).
			WithMessage("failed to create plan").
			Mark(ierr.ErrDatabase)
	}
	r.cache.DeleteByPrefix(ctx, cache.GenerateKey("plan", types.GetTenantID(ctx)))
	return nil
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	key := r.cacheKey(ctx, id)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if p, ok := cached.(*plan.Plan); ok {
			return p, nil
		}
	}

	p, err := r.getBy(ctx, "id = :key", id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, p, 0)
	return p, nil
}

func (r *planRepository) GetByLookupKey(ctx context.Context, lookupKey string) (*plan.Plan, error) {
	return r.getBy(ctx, "lookup_key = :key", lookupKey)
}

func (r *planRepository) getBy(ctx context.Context, clause, key string) (*plan.Plan, error) {
	query := `
		SELECT ` + planColumns + ` FROM plans
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
			WithMessage("failed to get plan").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("plan not found").
			WithHint("The plan does not exist").
			WithReportableDetails(map[string]any{"plan": key}).
			Mark(ierr.ErrNotFound)
	}

	var p plan.Plan
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to scan plan").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *planRepository) List(ctx context.Context) ([]*plan.Plan, error) {
	query := `
		SELECT ` + planColumns + ` FROM plans
		WHERE tenant_id = :tenant_id AND status != :deleted
		ORDER BY created_at DESC
	`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
		"deleted":   types.StatusDeleted,
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to list plans").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		var p plan.Plan
		if err := rows.StructScan(&p); err != nil {
			return nil, ierr.WithError(err).
				WithMessage("failed to scan plan").
				Mark(ierr.ErrDatabase)
		}
		plans = append(plans, &p)
	}
	return plans, nil
}
