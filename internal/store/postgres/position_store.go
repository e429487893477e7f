package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	c *Client
}

// NewPositionStore creates a new PositionStore backed by the given client.
func NewPositionStore(c *Client) *PositionStore {
	return &PositionStore{c: c}
}

const positionSelectCols = `id, symbol, venue, side, quantity, entry_price,
	current_price, stop_loss_price, leverage, status, created_at, closed_at, exit_reason`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var venue, side, status string

	err := row.Scan(
		&p.ID, &p.Symbol, &venue, &side, &p.Quantity, &p.EntryPrice,
		&p.CurrentPrice, &p.StopLossPrice, &p.Leverage, &status,
		&p.CreatedAt, &p.ClosedAt, &p.ExitReason,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Venue = domain.Venue(venue)
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, symbol, venue, side, quantity, entry_price, current_price,
			stop_loss_price, leverage, status, created_at, closed_at,
			exit_reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, NOW()
		)`

	_, err := s.c.db(ctx).Exec(ctx, query,
		p.ID, p.Symbol, string(p.Venue), string(p.Side),
		p.Quantity, p.EntryPrice, p.CurrentPrice,
		p.StopLossPrice, p.Leverage, string(p.Status),
		p.CreatedAt, p.ClosedAt, p.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			quantity        = $2,
			entry_price     = $3,
			current_price   = $4,
			stop_loss_price = $5,
			leverage        = $6,
			status          = $7,
			closed_at       = $8,
			exit_reason     = $9,
			updated_at      = NOW()
		WHERE id = $1`

	tag, err := s.c.db(ctx).Exec(ctx, query,
		p.ID, p.Quantity, p.EntryPrice, p.CurrentPrice,
		p.StopLossPrice, p.Leverage, string(p.Status),
		p.ClosedAt, p.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus moves a position to the given status; terminal states also
// set closed_at.
func (s *PositionStore) UpdateStatus(ctx context.Context, id string, status domain.PositionStatus, exitReason string) error {
	var query string
	if status.Terminal() {
		query = `UPDATE positions SET status = $2, exit_reason = $3, closed_at = NOW(), updated_at = NOW() WHERE id = $1`
	} else {
		query = `UPDATE positions SET status = $2, exit_reason = $3, updated_at = NOW() WHERE id = $1`
	}

	tag, err := s.c.db(ctx).Exec(ctx, query, id, string(status), exitReason)
	if err != nil {
		return fmt.Errorf("postgres: update position status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Activate flips the position to active, recording the stop price in the
// same statement so an active row can never lack one.
func (s *PositionStore) Activate(ctx context.Context, id string, stopPrice float64) error {
	const query = `
		UPDATE positions SET
			status          = 'active',
			stop_loss_price = $2,
			updated_at      = NOW()
		WHERE id = $1`

	tag, err := s.c.db(ctx).Exec(ctx, query, id, stopPrice)
	if err != nil {
		return fmt.Errorf("postgres: activate position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.c.db(ctx).QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetByStatus returns positions in any of the given states, oldest first.
func (s *PositionStore) GetByStatus(ctx context.Context, statuses []domain.PositionStatus) ([]domain.Position, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}

	rows, err := s.c.db(ctx).Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = ANY($1)
		 ORDER BY created_at ASC`, vals)
	if err != nil {
		return nil, fmt.Errorf("postgres: get positions by status: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by status: %w", err)
	}
	return positions, nil
}

// GetActiveBySymbol returns active positions for a symbol on a venue.
func (s *PositionStore) GetActiveBySymbol(ctx context.Context, symbol string, venue domain.Venue) ([]domain.Position, error) {
	rows, err := s.c.db(ctx).Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE symbol = $1 AND venue = $2 AND status = 'active'
		 ORDER BY created_at ASC`, symbol, string(venue))
	if err != nil {
		return nil, fmt.Errorf("postgres: get active positions for %s: %w", symbol, err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active positions for %s: %w", symbol, err)
	}
	return positions, nil
}

// ListHistory returns positions for the given venue with pagination and
// optional time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, venue domain.Venue, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE venue = $1`
	args := []any{string(venue)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.c.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
