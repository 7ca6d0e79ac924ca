package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vigil-go/internal/domain"
)

// AlertRepository implements store.AlertRepository using PostgreSQL.
// Alert context and recommendations are stored as JSONB.
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new PostgreSQL-backed alert repository.
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Save stores a new alert.
func (r *AlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	contextJSON, err := json.Marshal(alert.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal alert context: %w", err)
	}
	recsJSON, err := json.Marshal(alert.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	query := `
		INSERT INTO alerts (
			id, rule_id, dedup_key, type, severity, status, title, message,
			context, recommendations, triggered_at, acknowledged_at,
			acknowledged_by, resolved_at, resolved_by, escalation_level,
			suppressed_until, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.pool.Exec(ctx, query,
		alert.ID,
		nullableString(alert.RuleID),
		alert.DedupKey(),
		alert.Type,
		alert.Severity,
		alert.Status,
		alert.Title,
		alert.Message,
		contextJSON,
		recsJSON,
		alert.TriggeredAt,
		alert.AcknowledgedAt,
		nullableString(alert.AcknowledgedBy),
		alert.ResolvedAt,
		nullableString(alert.ResolvedBy),
		alert.EscalationLevel,
		alert.SuppressedUntil,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	return nil
}

// Update modifies an existing alert.
func (r *AlertRepository) Update(ctx context.Context, alert *domain.Alert) error {
	query := `
		UPDATE alerts SET
			severity = $2,
			status = $3,
			acknowledged_at = $4,
			acknowledged_by = $5,
			resolved_at = $6,
			resolved_by = $7,
			escalation_level = $8,
			suppressed_until = $9,
			updated_at = $10
		WHERE id = $1
	`

	result, err := r.db.pool.Exec(ctx, query,
		alert.ID,
		alert.Severity,
		alert.Status,
		alert.AcknowledgedAt,
		nullableString(alert.AcknowledgedBy),
		alert.ResolvedAt,
		nullableString(alert.ResolvedBy),
		alert.EscalationLevel,
		alert.SuppressedUntil,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrAlertNotFound
	}

	return nil
}

const alertColumns = `
	id, rule_id, type, severity, status, title, message,
	context, recommendations, triggered_at, acknowledged_at,
	acknowledged_by, resolved_at, resolved_by, escalation_level,
	suppressed_until, updated_at
`

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE id = $1", alertColumns)

	alert, err := scanAlert(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// List retrieves alerts matching the filter criteria.
func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE 1=1", alertColumns)
	var args []interface{}

	if filter.RuleID != "" {
		args = append(args, filter.RuleID)
		query += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND context->>'user_id' = $%d", len(args))
	}

	query += " ORDER BY triggered_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// GetActive retrieves all alerts currently in the active state.
func (r *AlertRepository) GetActive(ctx context.Context) ([]*domain.Alert, error) {
	return r.List(ctx, domain.AlertFilter{Status: domain.AlertStatusActive})
}

// History retrieves the full alert history.
func (r *AlertRepository) History(ctx context.Context) ([]*domain.Alert, error) {
	return r.List(ctx, domain.AlertFilter{})
}

// FindOpenByDedupKey retrieves the most recent open alert occupying the given
// rule-and-subject slot.
func (r *AlertRepository) FindOpenByDedupKey(ctx context.Context, dedupKey string) (*domain.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alerts
		WHERE dedup_key = $1 AND status IN ('active', 'suppressed')
		ORDER BY triggered_at DESC
		LIMIT 1
	`, alertColumns)

	alert, err := scanAlert(r.db.pool.QueryRow(ctx, query, dedupKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open alert: %w", err)
	}
	return alert, nil
}

// Delete removes an alert by ID.
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, "DELETE FROM alerts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

// scanAlert reads one alert row.
func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var (
		alert          domain.Alert
		ruleID         *string
		acknowledgedBy *string
		resolvedBy     *string
		contextJSON    []byte
		recsJSON       []byte
	)

	err := row.Scan(
		&alert.ID,
		&ruleID,
		&alert.Type,
		&alert.Severity,
		&alert.Status,
		&alert.Title,
		&alert.Message,
		&contextJSON,
		&recsJSON,
		&alert.TriggeredAt,
		&alert.AcknowledgedAt,
		&acknowledgedBy,
		&alert.ResolvedAt,
		&resolvedBy,
		&alert.EscalationLevel,
		&alert.SuppressedUntil,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ruleID != nil {
		alert.RuleID = *ruleID
	}
	if acknowledgedBy != nil {
		alert.AcknowledgedBy = *acknowledgedBy
	}
	if resolvedBy != nil {
		alert.ResolvedBy = *resolvedBy
	}
	if err := json.Unmarshal(contextJSON, &alert.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert context: %w", err)
	}
	if len(recsJSON) > 0 {
		if err := json.Unmarshal(recsJSON, &alert.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
		}
	}

	return &alert, nil
}

// nullableString converts an empty string to a NULL parameter.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
