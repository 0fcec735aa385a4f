package cache

import (
	"context"

	domain "github.com/example/taskboard/domain/task"
)

// TaskListCache caches the result of listing an owner's tasks.
type TaskListCache interface {
	GetTasks(ctx context.Context, ownerID string) ([]domain.Task, bool, error)
	SetTasks(ctx context.Context, ownerID string, tasks []domain.Task) error
	Invalidate(ctx context.Context, ownerIDs ...string) error
}

type taskListCache struct {
	cache CacheService
}

// NewTaskListCache stores task lists in svc under "tasks:<ownerID>".
func NewTaskListCache(svc CacheService) TaskListCache {
	return &taskListCache{cache: svc}
}

func taskListKey(ownerID string) string {
	return "tasks:" + ownerID
}

func (c *taskListCache) GetTasks(ctx context.Context, ownerID string) ([]domain.Task, bool, error) {
	var tasks []domain.Task
	found, err := c.cache.Get(ctx, taskListKey(ownerID), &tasks)
	if err != nil || !found {
		return nil, false, err
	}
	return tasks, true, nil
}

func (c *taskListCache) SetTasks(ctx context.Context, ownerID string, tasks []domain.Task) error {
	return c.cache.Set(ctx, taskListKey(ownerID), tasks)
}

func (c *taskListCache) Invalidate(ctx context.Context, ownerIDs ...string) error {
	keys := make([]string, 0, len(ownerIDs))
	seen := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, taskListKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.cache.Delete(ctx, keys...)
}

// NoopTaskListCache never hits. It is used when Redis is not configured.
type NoopTaskListCache struct{}

var _ TaskListCache = NoopTaskListCache{}

func (NoopTaskListCache) GetTasks(context.Context, string) ([]domain.Task, bool, error) {
	return nil, false, nil
}

func (NoopTaskListCache) SetTasks(context.Context, string, []domain.Task) error { return nil }

func (NoopTaskListCache) Invalidate(context.Context, ...string) error { return nil }
