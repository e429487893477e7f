package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	c *Client
}

// NewOrderStore creates a new OrderStore backed by the given client.
func NewOrderStore(c *Client) *OrderStore {
	return &OrderStore{c: c}
}

const orderSelectCols = `id, position_id, symbol, venue, side, order_type,
	amount, filled, price, status, created_at`

func scanOrder(row pgx.Row) (domain.OrderRecord, error) {
	var o domain.OrderRecord
	var venue, side, orderType, status string

	err := row.Scan(
		&o.ID, &o.PositionID, &o.Symbol, &venue, &side, &orderType,
		&o.Amount, &o.Filled, &o.Price, &status, &o.CreatedAt,
	)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	o.Venue = domain.Venue(venue)
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new order audit row.
func (s *OrderStore) Create(ctx context.Context, o domain.OrderRecord) error {
	const query = `
		INSERT INTO orders (
			id, position_id, symbol, venue, side, order_type,
			amount, filled, price, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			filled = EXCLUDED.filled,
			status = EXCLUDED.status,
			updated_at = NOW()`

	_, err := s.c.db(ctx).Exec(ctx, query,
		o.ID, o.PositionID, o.Symbol, string(o.Venue),
		string(o.Side), string(o.Type),
		o.Amount, o.Filled, o.Price, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order by its venue order id.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.OrderRecord, error) {
	row := s.c.db(ctx).QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderRecord{}, domain.ErrNotFound
		}
		return domain.OrderRecord{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByPosition returns all orders recorded for a position.
func (s *OrderStore) ListByPosition(ctx context.Context, positionID string) ([]domain.OrderRecord, error) {
	rows, err := s.c.db(ctx).Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE position_id = $1 ORDER BY created_at ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for position %s: %w", positionID, err)
	}
	defer rows.Close()

	var orders []domain.OrderRecord
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan orders for position %s: %w", positionID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
