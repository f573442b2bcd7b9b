package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if err := insertOutboxMessage(ctx, r.db, msg); err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// insertOutboxMessage пишет pending-сообщение через db или открытую транзакцию.
func insertOutboxMessage(ctx context.Context, exec execer, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := exec.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return domain.PersistenceError("enqueue outbox message", err)
	}
	return nil
}

// PullPending возвращает pending-события заказов в порядке seq.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending' AND aggregate_type = $1
		ORDER BY seq
		LIMIT $2
	`, domain.AggregateTypeOrder, limit)
	if err != nil {
		return nil, domain.PersistenceError("pull pending outbox messages", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
		); err != nil {
			return nil, domain.PersistenceError("scan outbox message", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError("iterate outbox rows", err)
	}

	return result, nil
}

// Stats возвращает backlog событий заказов: размер, возраст самого старого сообщения и разбивку по типу события.
func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
		err    error
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending' AND aggregate_type = $1
	`, domain.AggregateTypeOrder).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, domain.PersistenceError("outbox stats", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	stats.PendingByEventType, err = r.pendingByEventType(ctx)
	if err != nil {
		return domain.OutboxStats{}, err
	}
	return stats, nil
}

func (r *outboxRepository) pendingByEventType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM outbox_messages
		WHERE status = 'pending' AND aggregate_type = $1
		GROUP BY event_type
	`, domain.AggregateTypeOrder)
	if err != nil {
		return nil, domain.PersistenceError("outbox pending by event type", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, domain.PersistenceError("scan outbox event type count", err)
		}
		result[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError("iterate outbox event type counts", err)
	}
	return result, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, "sent")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(ctx, id, "failed")
}

func (r *outboxRepository) markStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return domain.PersistenceError("mark outbox message as "+status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.PersistenceError("rows affected for outbox "+status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
