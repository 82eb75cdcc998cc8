package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glizzus/kafka-connector/internal/broker"
)

// ConsumedMessage is a message as archived by the consumer.
type ConsumedMessage struct {
	ID         int64
	Topic      string
	Partition  int32
	Offset     int64
	Key        []byte
	Value      []byte
	Timestamp  time.Time
	ConsumedAt time.Time
}

type MessagePersister interface {
	Save(ctx context.Context, msgs ...*broker.Message) error
}

type MessageLister interface {
	List(ctx context.Context, topic string, limit int) ([]ConsumedMessage, error)
}

type PostgresMessageRepository struct {
	db *pgxpool.Pool
}

func NewPostgresMessageRepository(db *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// MessageToRowParams flattens a message into insert parameters. Decoded
// keys and values that are not bytes or strings are stored as JSON.
func MessageToRowParams(msg *broker.Message) ([]any, error) {
	key, err := payloadBytes(msg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key: %w", err)
	}
	value, err := payloadBytes(msg.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var ts *time.Time
	if !msg.Timestamp.IsZero() {
		ts = &msg.Timestamp
	}
	return []any{msg.Topic, msg.Partition, msg.Offset, key, value, ts}, nil
}

// Save archives messages in one transaction.
func (r *PostgresMessageRepository) Save(ctx context.Context, msgs ...*broker.Message) error {
	const query = `
	INSERT INTO consumed_message (topic, message_partition, message_offset, message_key, message_value, message_time)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			fmt.Printf("failed to rollback transaction: %v\n", err)
		}
	}()

	for _, msg := range msgs {
		params, err := MessageToRowParams(msg)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, params...); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns the most recently consumed messages of a topic, newest first.
func (r *PostgresMessageRepository) List(ctx context.Context, topic string, limit int) ([]ConsumedMessage, error) {
	const query = `
	SELECT id, topic, message_partition, message_offset, message_key, message_value, message_time, consumed_at
	FROM consumed_message
	WHERE topic = $1
	ORDER BY consumed_at DESC, id DESC
	LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []ConsumedMessage
	for rows.Next() {
		var m ConsumedMessage
		var ts *time.Time
		if err := rows.Scan(&m.ID, &m.Topic, &m.Partition, &m.Offset, &m.Key, &m.Value, &ts, &m.ConsumedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if ts != nil {
			m.Timestamp = *ts
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func payloadBytes(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.Marshal(p)
	}
}

var (
	_ MessagePersister = (*PostgresMessageRepository)(nil)
	_ MessageLister    = (*PostgresMessageRepository)(nil)
)
