package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	c *Client
}

// NewTradeStore creates a new TradeStore backed by the given client.
func NewTradeStore(c *Client) *TradeStore {
	return &TradeStore{c: c}
}

// Create inserts an executed trade row.
func (s *TradeStore) Create(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, position_id, order_id, symbol, venue, side,
			quantity, price, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.c.db(ctx).Exec(ctx, query,
		t.ID, t.PositionID, t.OrderID, t.Symbol, string(t.Venue),
		string(t.Side), t.Quantity, t.Price, t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByPosition returns all trades recorded for a position.
func (s *TradeStore) ListByPosition(ctx context.Context, positionID string) ([]domain.TradeRecord, error) {
	rows, err := s.c.db(ctx).Query(ctx,
		`SELECT id, position_id, order_id, symbol, venue, side, quantity, price, executed_at
		 FROM trades WHERE position_id = $1 ORDER BY executed_at ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for position %s: %w", positionID, err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var venue, side string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.OrderID, &t.Symbol, &venue,
			&side, &t.Quantity, &t.Price, &t.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trades for position %s: %w", positionID, err)
		}
		t.Venue = domain.Venue(venue)
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
