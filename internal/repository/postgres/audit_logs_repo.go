package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tundeabiodun/lms-backend/internal/models"
)

type auditLogsRepo struct{ pool *pgxpool.Pool }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (entity_type, entity_id, action, details) VALUES ($1,$2,$3,$4)`,
		l.EntityType, l.EntityID, l.Action, l.Details,
	)
	return err
}
