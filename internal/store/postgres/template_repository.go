package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vigil-go/internal/domain"
)

// TemplateRepository implements store.TemplateRepository using PostgreSQL.
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new PostgreSQL-backed template repository.
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `
	id, channel, alert_type, subject, body, variables, created_at, updated_at
`

// GetByChannelAndType retrieves the template for a channel and alert type.
func (r *TemplateRepository) GetByChannelAndType(ctx context.Context, channel domain.NotificationChannel, alertType domain.AlertRuleType) (*domain.NotificationTemplate, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM notification_templates WHERE channel = $1 AND alert_type = $2",
		templateColumns,
	)

	tmpl, err := scanTemplate(r.db.pool.QueryRow(ctx, query, channel, alertType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// GetByID retrieves a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM notification_templates WHERE id = $1", templateColumns)

	tmpl, err := scanTemplate(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// Save stores a new template.
func (r *TemplateRepository) Save(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	variablesJSON, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	query := `
		INSERT INTO notification_templates (
			id, channel, alert_type, subject, body, variables, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.pool.Exec(ctx, query,
		tmpl.ID,
		tmpl.Channel,
		tmpl.AlertType,
		tmpl.Subject,
		tmpl.Body,
		variablesJSON,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

// Update modifies an existing template.
func (r *TemplateRepository) Update(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	variablesJSON, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	query := `
		UPDATE notification_templates SET
			channel = $2,
			alert_type = $3,
			subject = $4,
			body = $5,
			variables = $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.pool.Exec(ctx, query,
		tmpl.ID,
		tmpl.Channel,
		tmpl.AlertType,
		tmpl.Subject,
		tmpl.Body,
		variablesJSON,
		tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}

	return nil
}

// Delete removes a template by ID.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, "DELETE FROM notification_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// scanTemplate reads one template row.
func scanTemplate(row pgx.Row) (*domain.NotificationTemplate, error) {
	var (
		tmpl          domain.NotificationTemplate
		variablesJSON []byte
	)

	err := row.Scan(
		&tmpl.ID,
		&tmpl.Channel,
		&tmpl.AlertType,
		&tmpl.Subject,
		&tmpl.Body,
		&variablesJSON,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &tmpl.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &tmpl, nil
}
