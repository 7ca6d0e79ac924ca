package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vigil-go/internal/domain"
)

// RuleRepository implements store.AlertRuleRepository using PostgreSQL.
// Conditions and actions are stored as JSONB.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new PostgreSQL-backed rule repository.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Save stores a new rule.
func (r *RuleRepository) Save(ctx context.Context, rule *domain.AlertRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO alert_rules (
			id, name, description, type, severity, enabled, conditions,
			actions, cooldown_minutes, escalation_policy, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		nullableString(rule.Description),
		rule.Type,
		rule.Severity,
		rule.Enabled,
		conditionsJSON,
		actionsJSON,
		rule.CooldownMinutes,
		nullableString(rule.EscalationPolicy),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	return nil
}

// Update modifies an existing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.AlertRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		UPDATE alert_rules SET
			name = $2,
			description = $3,
			type = $4,
			severity = $5,
			enabled = $6,
			conditions = $7,
			actions = $8,
			cooldown_minutes = $9,
			escalation_policy = $10,
			updated_at = $11
		WHERE id = $1
	`

	result, err := r.db.pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		nullableString(rule.Description),
		rule.Type,
		rule.Severity,
		rule.Enabled,
		conditionsJSON,
		actionsJSON,
		rule.CooldownMinutes,
		nullableString(rule.EscalationPolicy),
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}

	return nil
}

const ruleColumns = `
	id, name, description, type, severity, enabled, conditions,
	actions, cooldown_minutes, escalation_policy, created_at, updated_at
`

// GetByID retrieves a rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.AlertRule, error) {
	query := fmt.Sprintf("SELECT %s FROM alert_rules WHERE id = $1", ruleColumns)

	rule, err := scanRule(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List retrieves rules matching the filter criteria.
func (r *RuleRepository) List(ctx context.Context, filter domain.RuleFilter) ([]*domain.AlertRule, error) {
	query := fmt.Sprintf("SELECT %s FROM alert_rules WHERE 1=1", ruleColumns)
	var args []interface{}

	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		query += fmt.Sprintf(" AND enabled = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	query += " ORDER BY name"

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Delete removes a rule by ID.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, "DELETE FROM alert_rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// scanRule reads one rule row.
func scanRule(row pgx.Row) (*domain.AlertRule, error) {
	var (
		rule             domain.AlertRule
		description      *string
		escalationPolicy *string
		conditionsJSON   []byte
		actionsJSON      []byte
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&description,
		&rule.Type,
		&rule.Severity,
		&rule.Enabled,
		&conditionsJSON,
		&actionsJSON,
		&rule.CooldownMinutes,
		&escalationPolicy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description != nil {
		rule.Description = *description
	}
	if escalationPolicy != nil {
		rule.EscalationPolicy = *escalationPolicy
	}
	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
		}
	}

	return &rule, nil
}
