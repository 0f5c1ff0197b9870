package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// TemplateRepository provides read access to the email_templates table.
// Template authoring happens in the admin surface; this service only selects
// templates for rendering.
type TemplateRepository struct {
	db DBTX
}

// NewTemplateRepository creates a TemplateRepository backed by the given
// database connection (pool or transaction).
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FetchTemplate returns the selected template for a notification type:
// active templates only, system templates preferred over custom ones, most
// recently updated first as the tie-breaker. Returns (nil, nil) when no
// active template exists for the type.
func (r *TemplateRepository) FetchTemplate(ctx context.Context, notificationType string) (*types.Template, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, type, subject_template, html_template,
		        COALESCE(text_template, ''), is_system, is_active,
		        created_at, updated_at
		 FROM email_templates
		 WHERE type = $1 AND is_active = TRUE
		 ORDER BY is_system DESC, updated_at DESC
		 LIMIT 1`,
		notificationType,
	)

	var t types.Template
	err := row.Scan(
		&t.ID,
		&t.Type,
		&t.SubjectTemplate,
		&t.HTMLTemplate,
		&t.TextTemplate,
		&t.IsSystem,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch template", err)
	}
	return &t, nil
}
