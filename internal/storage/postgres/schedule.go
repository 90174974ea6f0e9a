package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

const getOrderingTimesSQL = `SELECT branch_id, timezone, weekly, closed
	FROM ordering_times WHERE branch_id = $1`

var _ schedule.Repository = (*ScheduleRepository)(nil)

// ScheduleRepository implements schedule.Repository backed by PostgreSQL.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository returns a ScheduleRepository that uses the given pool.
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// Get returns the ordering times of a branch.
func (r *ScheduleRepository) Get(ctx context.Context, branchID string) (*schedule.OrderingTimes, error) {
	var (
		doc                  document.OrderingTimes
		weeklyRaw, closedRaw []byte
	)
	err := r.pool.QueryRow(ctx, getOrderingTimesSQL, branchID).Scan(&doc.BranchID, &doc.Timezone, &weeklyRaw, &closedRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrNotFound
		}
		return nil, fmt.Errorf("getting ordering times of %q: %w", branchID, err)
	}
	if err := json.Unmarshal(weeklyRaw, &doc.Weekly); err != nil {
		return nil, fmt.Errorf("decoding weekly schedule of %q: %w", branchID, err)
	}
	if err := json.Unmarshal(closedRaw, &doc.Closed); err != nil {
		return nil, fmt.Errorf("decoding closed dates of %q: %w", branchID, err)
	}
	t := doc.ToOrderingTimes()
	return &t, nil
}
