package recorder

import (
	"context"

	"YieldKeeper/internal/model"
)

// Recorder appends cycle results to an audit log. Nothing in the keeper reads
// the log back; it exists for operators and dashboards.
type Recorder interface {
	RecordCycle(ctx context.Context, res *model.CycleResult) error
	Close() error
}
