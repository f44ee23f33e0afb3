package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/me/kthread/internal/store"
	"github.com/me/kthread/pkg/model"
)

// runSource is where the read commands find recorded runs: the local
// database or a kthread server.
type runSource interface {
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListSwitchEvents(ctx context.Context, runID string) ([]model.SwitchEvent, error)
	ListTaskSnapshot(ctx context.Context, runID string) ([]model.TaskInfo, error)
	Close() error
}

// openSource picks the server when --server is set, the database otherwise.
func openSource(ctx context.Context) (runSource, error) {
	if flagServer != "" {
		return &remoteSource{client: NewClient(flagServer, logger)}, nil
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	return storeSource{st}, nil
}

// storeSource reads from the local database. A missing run is an error
// here, as it is for the server.
type storeSource struct {
	store.Store
}

func (s storeSource) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run, err := s.Store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, model.NewNotFoundError("run", id)
	}
	return run, nil
}

// remoteSource reads from the API.
type remoteSource struct {
	client *Client
}

func (s *remoteSource) ListRuns(_ context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	var runs []*model.Run
	resp, err := s.client.Get("/api/v1/runs/?"+q.Encode(), &runs)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	total := len(runs)
	if resp.Pagination != nil {
		total = resp.Pagination.Total
	}
	return runs, total, nil
}

func (s *remoteSource) GetRun(_ context.Context, id string) (*model.Run, error) {
	var run model.Run
	if _, err := s.client.Get("/api/v1/runs/"+url.PathEscape(id)+"/", &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *remoteSource) ListSwitchEvents(_ context.Context, runID string) ([]model.SwitchEvent, error) {
	var events []model.SwitchEvent
	if _, err := s.client.Get("/api/v1/runs/"+url.PathEscape(runID)+"/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *remoteSource) ListTaskSnapshot(_ context.Context, runID string) ([]model.TaskInfo, error) {
	var tasks []model.TaskInfo
	if _, err := s.client.Get("/api/v1/runs/"+url.PathEscape(runID)+"/tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *remoteSource) Close() error { return nil }
