package store

import (
	"context"

	"github.com/me/kthread/pkg/model"
)

// Store defines the persistence layer for recorded scheduler runs.
type Store interface {
	// Run CRUD
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error
	DeleteRun(ctx context.Context, id string) error

	// Switch trace
	AddSwitchEvents(ctx context.Context, runID string, events []model.SwitchEvent) error
	ListSwitchEvents(ctx context.Context, runID string) ([]model.SwitchEvent, error)

	// Registry snapshot taken when the run ended
	SaveTaskSnapshot(ctx context.Context, runID string, tasks []model.TaskInfo) error
	ListTaskSnapshot(ctx context.Context, runID string) ([]model.TaskInfo, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
