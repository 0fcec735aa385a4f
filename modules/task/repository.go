package task

import (
	"context"
	"errors"

	domain "github.com/example/taskboard/domain/task"
	"gorm.io/gorm"
)

// Repository handles task, subtask and image persistence using GORM.
// A non-empty scope restricts every lookup to tasks of that owner.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func imagesInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

// fillEmpty makes nil collections encode as [] rather than null.
func fillEmpty(t *domain.Task) {
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Images == nil {
		t.Images = []domain.TaskImage{}
	}
}

// CreateTask inserts the task and its images in one transaction.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(task).Error
	})
}

// ListTasks returns the owner's tasks with images, earliest due date first
// and tasks without a due date last.
func (r *Repository) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	var tasks []domain.Task
	err := r.db.WithContext(ctx).
		Preload("Images", imagesInOrder).
		Where("user_id = ?", ownerID).
		Order("due_date IS NULL").
		Order("due_date ASC").
		Order("created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	if tasks == nil {
		tasks = []domain.Task{}
	}
	for i := range tasks {
		fillEmpty(&tasks[i])
	}
	return tasks, nil
}

// FindTask returns one task with its images.
func (r *Repository) FindTask(ctx context.Context, id, scope string) (*domain.Task, error) {
	q := r.db.WithContext(ctx).Preload("Images", imagesInOrder)
	if scope != "" {
		q = q.Where("user_id = ?", scope)
	}

	var task domain.Task
	if err := q.Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	fillEmpty(&task)
	return &task, nil
}

// FindTasks returns the tasks among ids that exist in scope, with images.
// Unknown ids are ignored.
func (r *Repository) FindTasks(ctx context.Context, ids []string, scope string) ([]domain.Task, error) {
	q := r.db.WithContext(ctx).Preload("Images", imagesInOrder).Where("id IN ?", ids)
	if scope != "" {
		q = q.Where("user_id = ?", scope)
	}

	var tasks []domain.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// FindImages returns the images among ids. A non-empty taskID restricts the
// match to that task's images.
func (r *Repository) FindImages(ctx context.Context, ids []string, taskID string) ([]domain.TaskImage, error) {
	if len(ids) == 0 {
		return []domain.TaskImage{}, nil
	}

	q := r.db.WithContext(ctx).Where("id IN ?", ids)
	if taskID != "" {
		q = q.Where("task_id = ?", taskID)
	}

	var images []domain.TaskImage
	if err := imagesInOrder(q).Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// TaskChanges describes an update of one task. Columns lists the task
// columns copied from Fields; zero values in listed columns are written.
type TaskChanges struct {
	Fields         domain.Task
	Columns        []string
	RemoveImageIDs []string
	AddImages      []domain.TaskImage
}

// UpdateTask applies changes to the task in one transaction.
func (r *Repository) UpdateTask(ctx context.Context, id string, changes TaskChanges) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes.RemoveImageIDs) > 0 {
			if err := tx.Where("id IN ?", changes.RemoveImageIDs).Delete(&domain.TaskImage{}).Error; err != nil {
				return err
			}
		}

		if len(changes.AddImages) > 0 {
			if err := tx.Create(&changes.AddImages).Error; err != nil {
				return err
			}
		}

		columns := append([]string{"updated_at"}, changes.Columns...)
		return tx.Model(&domain.Task{}).
			Where("id = ?", id).
			Select(columns).
			Updates(&changes.Fields).Error
	})
}

// DeleteTasks removes the tasks with their images and subtasks and returns
// the number of tasks deleted.
func (r *Repository) DeleteTasks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id IN ?", ids).Delete(&domain.TaskImage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN ?", ids).Delete(&domain.Subtask{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&domain.Task{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

// subtasksInScope starts a subtask query limited to tasks of the scope owner.
func (r *Repository) subtasksInScope(ctx context.Context, scope string) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&domain.Subtask{})
	if scope != "" {
		q = q.Where("task_id IN (?)", r.db.Model(&domain.Task{}).Select("id").Where("user_id = ?", scope))
	}
	return q
}

// CreateSubtask inserts a subtask.
func (r *Repository) CreateSubtask(ctx context.Context, subtask *domain.Subtask) error {
	return r.db.WithContext(ctx).Create(subtask).Error
}

// ListSubtasks returns the subtasks of a task, oldest first.
func (r *Repository) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	subtasks := []domain.Subtask{}
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&subtasks).Error
	if err != nil {
		return nil, err
	}
	return subtasks, nil
}

// FindSubtask returns one subtask.
func (r *Repository) FindSubtask(ctx context.Context, id, scope string) (*domain.Subtask, error) {
	var subtask domain.Subtask
	if err := r.subtasksInScope(ctx, scope).Where("id = ?", id).First(&subtask).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubtaskNotFound
		}
		return nil, err
	}
	return &subtask, nil
}

// UpdateSubtask writes the given subtask columns.
func (r *Repository) UpdateSubtask(ctx context.Context, id string, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&domain.Subtask{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteSubtask removes one subtask.
func (r *Repository) DeleteSubtask(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Subtask{}).Error
}

// SetSubtasksDone sets isDone on every matching subtask and returns how many matched.
func (r *Repository) SetSubtasksDone(ctx context.Context, ids []string, isDone bool, scope string) (int64, error) {
	result := r.subtasksInScope(ctx, scope).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_done": isDone})
	return result.RowsAffected, result.Error
}

// DeleteSubtasks removes every matching subtask and returns how many were deleted.
func (r *Repository) DeleteSubtasks(ctx context.Context, ids []string, scope string) (int64, error) {
	result := r.subtasksInScope(ctx, scope).
		Where("id IN ?", ids).
		Delete(&domain.Subtask{})
	return result.RowsAffected, result.Error
}
