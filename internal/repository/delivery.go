package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glizzus/kafka-connector/internal/broker"
)

type DeliveryPersister interface {
	SaveDelivery(ctx context.Context, report broker.DeliveryReport) error
}

type PostgresDeliveryRepository struct {
	db *pgxpool.Pool
}

func NewPostgresDeliveryRepository(db *pgxpool.Pool) *PostgresDeliveryRepository {
	return &PostgresDeliveryRepository{db: db}
}

func (r *PostgresDeliveryRepository) SaveDelivery(ctx context.Context, report broker.DeliveryReport) error {
	const query = `
	INSERT INTO delivery_report (topic, message_partition, message_offset, delivery_error)
	VALUES ($1, $2, $3, $4)
	`

	var deliveryErr *string
	if report.Err != nil {
		s := report.Err.Error()
		deliveryErr = &s
	}
	msg := report.Message
	if _, err := r.db.Exec(ctx, query, msg.Topic, msg.Partition, msg.Offset, deliveryErr); err != nil {
		return fmt.Errorf("failed to insert delivery report: %w", err)
	}
	return nil
}

// FailedDeliveries counts reports carrying an error for a topic.
func (r *PostgresDeliveryRepository) FailedDeliveries(ctx context.Context, topic string) (int, error) {
	const query = `SELECT count(*) FROM delivery_report WHERE topic = $1 AND delivery_error IS NOT NULL`
	var n int
	if err := r.db.QueryRow(ctx, query, topic).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failed deliveries: %w", err)
	}
	return n, nil
}

var _ DeliveryPersister = (*PostgresDeliveryRepository)(nil)
