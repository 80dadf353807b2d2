package custody

import (
	"context"
	"fmt"

	"github.com/solwager/custody/internal/repos/failedops"
)

// ListFailedOperations exposes the recovery queue for the admin surface.
func (c *Coordinator) ListFailedOperations(ctx context.Context, status failedops.Status, limit int) ([]failedops.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	recs, err := c.failed.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed operations: %w", err)
	}

	return recs, nil
}
