package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vigil-go/internal/domain"
)

// NotificationRepository implements store.NotificationRepository using
// PostgreSQL.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new PostgreSQL-backed delivery repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// SaveDelivery stores a new delivery record.
func (r *NotificationRepository) SaveDelivery(ctx context.Context, delivery *domain.NotificationDelivery) error {
	query := `
		INSERT INTO notification_deliveries (
			id, alert_id, channel, recipient, status, sent_at,
			delivered_at, error, retry_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.pool.Exec(ctx, query,
		delivery.ID,
		delivery.AlertID,
		delivery.Channel,
		delivery.Recipient,
		delivery.Status,
		delivery.SentAt,
		delivery.DeliveredAt,
		nullableString(delivery.Error),
		delivery.RetryCount,
		delivery.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}

	return nil
}

// UpdateDelivery modifies an existing delivery record.
func (r *NotificationRepository) UpdateDelivery(ctx context.Context, delivery *domain.NotificationDelivery) error {
	query := `
		UPDATE notification_deliveries SET
			status = $2,
			sent_at = $3,
			delivered_at = $4,
			error = $5,
			retry_count = $6
		WHERE id = $1
	`

	result, err := r.db.pool.Exec(ctx, query,
		delivery.ID,
		delivery.Status,
		delivery.SentAt,
		delivery.DeliveredAt,
		nullableString(delivery.Error),
		delivery.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}

	return nil
}

const deliveryColumns = `
	id, alert_id, channel, recipient, status, sent_at,
	delivered_at, error, retry_count, created_at
`

// GetDelivery retrieves a delivery record by ID.
func (r *NotificationRepository) GetDelivery(ctx context.Context, id string) (*domain.NotificationDelivery, error) {
	query := fmt.Sprintf("SELECT %s FROM notification_deliveries WHERE id = $1", deliveryColumns)

	delivery, err := scanDelivery(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return delivery, nil
}

// GetDeliveries retrieves all delivery records for an alert.
func (r *NotificationRepository) GetDeliveries(ctx context.Context, alertID string) ([]*domain.NotificationDelivery, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM notification_deliveries WHERE alert_id = $1 ORDER BY created_at",
		deliveryColumns,
	)
	return r.queryMany(ctx, query, alertID)
}

// GetFailedDeliveries retrieves failed deliveries with retries remaining.
func (r *NotificationRepository) GetFailedDeliveries(ctx context.Context, maxRetries int) ([]*domain.NotificationDelivery, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM notification_deliveries
		WHERE status = 'failed' AND retry_count < $1
		ORDER BY created_at
	`, deliveryColumns)
	return r.queryMany(ctx, query, maxRetries)
}

func (r *NotificationRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*domain.NotificationDelivery, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*domain.NotificationDelivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
}

// scanDelivery reads one delivery row.
func scanDelivery(row pgx.Row) (*domain.NotificationDelivery, error) {
	var (
		delivery domain.NotificationDelivery
		errMsg   *string
	)

	err := row.Scan(
		&delivery.ID,
		&delivery.AlertID,
		&delivery.Channel,
		&delivery.Recipient,
		&delivery.Status,
		&delivery.SentAt,
		&delivery.DeliveredAt,
		&errMsg,
		&delivery.RetryCount,
		&delivery.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errMsg != nil {
		delivery.Error = *errMsg
	}
	return &delivery, nil
}
