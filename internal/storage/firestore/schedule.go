package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

var _ schedule.Repository = (*ScheduleRepository)(nil)

// ScheduleRepository implements schedule.Repository backed by Firestore.
type ScheduleRepository struct {
	client *firestore.Client
}

// Get returns the ordering times of a branch.
func (r *ScheduleRepository) Get(ctx context.Context, branchID string) (*schedule.OrderingTimes, error) {
	snap, err := r.client.Collection(orderingTimesCollection).Doc(branchID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, schedule.ErrNotFound
		}
		return nil, wrapError("ordering_times.get", err)
	}
	var doc document.OrderingTimes
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding ordering times of %q: %w", branchID, err)
	}
	t := doc.ToOrderingTimes()
	return &t, nil
}
