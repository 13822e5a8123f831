package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Receipt is the durable record of one confirmed message-pack purchase, kept
// for reconciliation against the payment processor. Quota state itself stays
// ephemeral; this is bookkeeping, not the quota ledger.
type Receipt struct {
	ID        string
	CallerID  string
	ExpertID  string
	IntentID  string
	Amount    int64
	CreatedAt time.Time
}

// Repository persists receipts.
type Repository interface {
	Record(ctx context.Context, receipt Receipt) error
	ListByCaller(ctx context.Context, callerID string) ([]Receipt, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed receipt repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record inserts a receipt row.
func (r *PostgresRepository) Record(ctx context.Context, receipt Receipt) error {
	id, err := uuid.Parse(receipt.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payment_receipts (id, caller_id, expert_id, intent_id, amount, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		id, receipt.CallerID, receipt.ExpertID, receipt.IntentID, receipt.Amount, receipt.CreatedAt.UTC())
	return err
}

// ListByCaller returns all receipts recorded for a caller, newest first.
func (r *PostgresRepository) ListByCaller(ctx context.Context, callerID string) ([]Receipt, error) {
	rows, err := r.db.Query(ctx, `SELECT id, caller_id, expert_id, intent_id, amount, created_at
        FROM payment_receipts WHERE caller_id = $1 ORDER BY created_at DESC`, callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var (
			id      uuid.UUID
			receipt Receipt
			at      time.Time
		)
		if err := rows.Scan(&id, &receipt.CallerID, &receipt.ExpertID, &receipt.IntentID, &receipt.Amount, &at); err != nil {
			return nil, err
		}
		receipt.ID = id.String()
		receipt.CreatedAt = at.UTC()
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}
