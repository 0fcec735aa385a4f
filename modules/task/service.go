package task

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	domain "github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/modules/cache"
	"github.com/example/taskboard/modules/media"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Service implements the task and subtask lifecycle. Every id lookup goes
// through the access policy, and every local image deletion is preceded by
// a remote deletion of the same object.
type Service struct {
	repo   *Repository
	media  media.Store
	cache  cache.TaskListCache
	policy AccessPolicy
	opts   Options
	group  singleflight.Group
}

// NewService creates a new Service. A nil cache disables caching and a nil
// policy means AnyCaller.
func NewService(repo *Repository, store media.Store, listCache cache.TaskListCache, policy AccessPolicy, opts Options) *Service {
	if listCache == nil {
		listCache = cache.NoopTaskListCache{}
	}
	if policy == nil {
		policy = AnyCaller{}
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = DefaultOptions().MaxImages
	}
	return &Service{
		repo:   repo,
		media:  store,
		cache:  listCache,
		policy: policy,
		opts:   opts,
	}
}

// CreateTask validates the input, uploads the files one at a time and
// persists the task with its images. Nothing is persisted if any upload fails.
func (s *Service) CreateTask(ctx context.Context, ownerID string, in CreateTaskInput) (*domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if len(in.Files) > s.opts.MaxImages {
		return nil, fmt.Errorf("%w: at most %d per request", ErrTooManyImages, s.opts.MaxImages)
	}
	dueDate, err := ParseDueDate(in.DueDate)
	if err != nil {
		return nil, err
	}

	task := &domain.Task{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		Status:      NormalizeStatus(in.Status),
		Priority:    NormalizePriority(in.Priority),
		DueDate:     dueDate,
		Tags:        ParseTags(in.Tags),
		UserID:      ownerID,
	}

	images, err := s.uploadAll(ctx, task.ID, in.Files)
	if err != nil {
		return nil, err
	}
	task.Images = images

	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.discard(ctx, images)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.invalidate(ctx, ownerID)
	log.Printf("[task] Created task %s with %d image(s)", task.ID, len(images))
	return task, nil
}

// ListTasks returns the owner's tasks with images, earliest due date first
// and undated tasks last.
func (s *Service) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	tasks, found, err := s.cache.GetTasks(ctx, ownerID)
	if err != nil {
		log.Printf("[task] Cache read failed for %s: %v", ownerID, err)
	} else if found {
		return tasks, nil
	}

	// Shared by every waiting caller; detached from the first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(ownerID, func() (any, error) {
		tasks, err := s.repo.ListTasks(shared, ownerID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetTasks(shared, ownerID, tasks); err != nil {
			log.Printf("[task] Cache write failed for %s: %v", ownerID, err)
		}
		return tasks, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return v.([]domain.Task), nil
}

// GetTask returns one task with its images.
func (s *Service) GetTask(ctx context.Context, callerID, taskID string) (*domain.Task, error) {
	return s.repo.FindTask(ctx, taskID, s.policy.Scope(callerID))
}

// UpdateTask applies the fields present in the input. New files are uploaded
// first, then every image listed for removal is deleted remotely, and only
// then are the rows changed.
func (s *Service) UpdateTask(ctx context.Context, callerID, taskID string, in UpdateTaskInput) (*domain.Task, error) {
	scope := s.policy.Scope(callerID)
	task, err := s.repo.FindTask(ctx, taskID, scope)
	if err != nil {
		return nil, err
	}

	changes, err := s.fieldChanges(in)
	if err != nil {
		return nil, err
	}
	if len(in.Files) > s.opts.MaxImages {
		return nil, fmt.Errorf("%w: at most %d per request", ErrTooManyImages, s.opts.MaxImages)
	}

	var removals []domain.TaskImage
	if in.RemoveImageIDs != nil {
		// Under an owner scope only this task's images can be removed.
		restrictTo := ""
		if scope != "" {
			restrictTo = task.ID
		}
		removals, err = s.repo.FindImages(ctx, ParseIDList(*in.RemoveImageIDs), restrictTo)
		if err != nil {
			return nil, fmt.Errorf("failed to load images: %w", err)
		}
	}

	added, err := s.uploadAll(ctx, task.ID, in.Files)
	if err != nil {
		return nil, err
	}

	if err := s.deleteRemote(ctx, domain.PublicIDs(removals)); err != nil {
		s.discard(ctx, added)
		return nil, err
	}

	changes.AddImages = added
	changes.RemoveImageIDs = make([]string, 0, len(removals))
	owners := []string{task.UserID}
	for _, img := range removals {
		changes.RemoveImageIDs = append(changes.RemoveImageIDs, img.ID)
		if img.TaskID != task.ID {
			owners = append(owners, s.ownerOf(ctx, img.TaskID))
		}
	}

	if err := s.repo.UpdateTask(ctx, task.ID, changes); err != nil {
		s.discard(ctx, added)
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	s.invalidate(ctx, owners...)

	return s.repo.FindTask(ctx, task.ID, "")
}

// fieldChanges turns the present fields of an update into column writes.
func (s *Service) fieldChanges(in UpdateTaskInput) (TaskChanges, error) {
	var changes TaskChanges

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return changes, ErrTitleRequired
		}
		changes.Fields.Title = *in.Title
		changes.Columns = append(changes.Columns, "title")
	}
	if in.Description != nil {
		changes.Fields.Description = *in.Description
		changes.Columns = append(changes.Columns, "description")
	}
	// Blank status or priority form fields are treated as absent.
	if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
		status, err := s.statusValue(*in.Status)
		if err != nil {
			return changes, err
		}
		changes.Fields.Status = status
		changes.Columns = append(changes.Columns, "status")
	}
	if in.Priority != nil && strings.TrimSpace(*in.Priority) != "" {
		priority, err := s.priorityValue(*in.Priority, false)
		if err != nil {
			return changes, err
		}
		changes.Fields.Priority = priority
		changes.Columns = append(changes.Columns, "priority")
	}
	if in.DueDate != nil {
		dueDate, err := ParseDueDate(*in.DueDate)
		if err != nil {
			return changes, err
		}
		changes.Fields.DueDate = dueDate
		changes.Columns = append(changes.Columns, "due_date")
	}
	if in.Tags != nil {
		changes.Fields.Tags = ParseTags(*in.Tags)
		changes.Columns = append(changes.Columns, "tags")
	}
	changes.Fields.UpdatedAt = time.Now()

	return changes, nil
}

// statusValue stores the status verbatim unless strict enums are on.
func (s *Service) statusValue(raw string) (domain.Status, error) {
	if !s.opts.StrictEnums {
		return domain.Status(raw), nil
	}
	status, ok := ParseStatus(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

// priorityValue stores the priority verbatim, or upper-cased when upper is
// set, unless strict enums are on.
func (s *Service) priorityValue(raw string, upper bool) (domain.Priority, error) {
	if !s.opts.StrictEnums {
		if upper {
			raw = strings.ToUpper(raw)
		}
		return domain.Priority(raw), nil
	}
	priority, ok := ParsePriority(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
	return priority, nil
}

// DeleteTask deletes the task's remote images, then the task with its
// images and subtasks. If any remote deletion fails nothing local is removed.
func (s *Service) DeleteTask(ctx context.Context, callerID, taskID string) error {
	task, err := s.repo.FindTask(ctx, taskID, s.policy.Scope(callerID))
	if err != nil {
		return err
	}

	if err := s.deleteRemote(ctx, domain.PublicIDs(task.Images)); err != nil {
		return err
	}

	if _, err := s.repo.DeleteTasks(ctx, []string{task.ID}); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	s.invalidate(ctx, task.UserID)

	log.Printf("[task] Deleted task %s (%d image(s))", task.ID, len(task.Images))
	return nil
}

// BulkDeleteTasks deletes every listed task that exists in the caller's
// scope and returns how many were deleted. Unknown ids are ignored.
func (s *Service) BulkDeleteTasks(ctx context.Context, callerID string, ids []string) (int64, error) {
	ids = CleanIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}

	tasks, err := s.repo.FindTasks(ctx, ids, s.policy.Scope(callerID))
	if err != nil {
		return 0, fmt.Errorf("failed to load tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	found := make([]string, 0, len(tasks))
	owners := make([]string, 0, len(tasks))
	var publicIDs []string
	for _, t := range tasks {
		found = append(found, t.ID)
		owners = append(owners, t.UserID)
		publicIDs = append(publicIDs, domain.PublicIDs(t.Images)...)
	}

	if err := s.deleteRemote(ctx, publicIDs); err != nil {
		return 0, err
	}

	deleted, err := s.repo.DeleteTasks(ctx, found)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	s.invalidate(ctx, owners...)

	log.Printf("[task] Bulk deleted %d task(s) (%d image(s))", deleted, len(publicIDs))
	return deleted, nil
}

// ChangeTaskStatus writes a new status. Any value is accepted unless strict
// enums are on.
func (s *Service) ChangeTaskStatus(ctx context.Context, callerID, taskID, status string) (*domain.Task, error) {
	if strings.TrimSpace(status) == "" {
		return nil, ErrStatusRequired
	}
	value, err := s.statusValue(status)
	if err != nil {
		return nil, err
	}

	return s.setColumn(ctx, callerID, taskID, "status", domain.Task{Status: value})
}

// ChangeTaskPriority writes the upper-cased priority. A nil priority is an error.
func (s *Service) ChangeTaskPriority(ctx context.Context, callerID, taskID string, priority *string) (*domain.Task, error) {
	if priority == nil || strings.TrimSpace(*priority) == "" {
		return nil, ErrPriorityRequired
	}
	value, err := s.priorityValue(*priority, true)
	if err != nil {
		return nil, err
	}

	return s.setColumn(ctx, callerID, taskID, "priority", domain.Task{Priority: value})
}

func (s *Service) setColumn(ctx context.Context, callerID, taskID, column string, fields domain.Task) (*domain.Task, error) {
	task, err := s.repo.FindTask(ctx, taskID, s.policy.Scope(callerID))
	if err != nil {
		return nil, err
	}

	fields.UpdatedAt = time.Now()
	if err := s.repo.UpdateTask(ctx, task.ID, TaskChanges{Fields: fields, Columns: []string{column}}); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", column, err)
	}
	s.invalidate(ctx, task.UserID)

	return s.repo.FindTask(ctx, task.ID, "")
}

// CreateSubtask adds a subtask to an existing task.
func (s *Service) CreateSubtask(ctx context.Context, callerID, taskID, title string) (*domain.Subtask, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrTitleRequired
	}
	task, err := s.repo.FindTask(ctx, taskID, s.policy.Scope(callerID))
	if err != nil {
		return nil, err
	}

	subtask := &domain.Subtask{
		ID:     orderedID(),
		Title:  title,
		TaskID: task.ID,
	}
	if err := s.repo.CreateSubtask(ctx, subtask); err != nil {
		return nil, fmt.Errorf("failed to create subtask: %w", err)
	}
	return subtask, nil
}

// ListSubtasks returns the subtasks of an existing task, oldest first.
func (s *Service) ListSubtasks(ctx context.Context, callerID, taskID string) ([]domain.Subtask, error) {
	task, err := s.repo.FindTask(ctx, taskID, s.policy.Scope(callerID))
	if err != nil {
		return nil, err
	}
	return s.repo.ListSubtasks(ctx, task.ID)
}

// UpdateSubtask renames a subtask.
func (s *Service) UpdateSubtask(ctx context.Context, callerID, id, title string) (*domain.Subtask, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrTitleRequired
	}
	return s.updateSubtask(ctx, callerID, id, map[string]any{"title": title})
}

// UpdateSubtaskStatus overwrites isDone with the given value.
func (s *Service) UpdateSubtaskStatus(ctx context.Context, callerID, id string, isDone bool) (*domain.Subtask, error) {
	return s.updateSubtask(ctx, callerID, id, map[string]any{"is_done": isDone})
}

func (s *Service) updateSubtask(ctx context.Context, callerID, id string, updates map[string]any) (*domain.Subtask, error) {
	scope := s.policy.Scope(callerID)
	if _, err := s.repo.FindSubtask(ctx, id, scope); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSubtask(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("failed to update subtask: %w", err)
	}
	return s.repo.FindSubtask(ctx, id, scope)
}

// DeleteSubtask removes one subtask.
func (s *Service) DeleteSubtask(ctx context.Context, callerID, id string) error {
	subtask, err := s.repo.FindSubtask(ctx, id, s.policy.Scope(callerID))
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSubtask(ctx, subtask.ID); err != nil {
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	return nil
}

// BulkUpdateSubtasksStatus sets isDone on every listed subtask, whatever its
// parent, and returns how many matched.
func (s *Service) BulkUpdateSubtasksStatus(ctx context.Context, callerID string, ids []string, isDone bool) (int64, error) {
	ids = CleanIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	count, err := s.repo.SetSubtasksDone(ctx, ids, isDone, s.policy.Scope(callerID))
	if err != nil {
		return 0, fmt.Errorf("failed to update subtasks: %w", err)
	}
	return count, nil
}

// BulkDeleteSubtasks deletes every listed subtask and returns how many were deleted.
func (s *Service) BulkDeleteSubtasks(ctx context.Context, callerID string, ids []string) (int64, error) {
	ids = CleanIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	count, err := s.repo.DeleteSubtasks(ctx, ids, s.policy.Scope(callerID))
	if err != nil {
		return 0, fmt.Errorf("failed to delete subtasks: %w", err)
	}
	return count, nil
}

// uploadAll uploads files one at a time. On the first failure the objects
// already uploaded are deleted and the error is returned.
func (s *Service) uploadAll(ctx context.Context, taskID string, files []media.File) ([]domain.TaskImage, error) {
	images := make([]domain.TaskImage, 0, len(files))
	if len(files) == 0 {
		return images, nil
	}
	if s.media == nil {
		return nil, &MediaError{Op: "upload", Err: errors.New("media store not configured")}
	}

	for i, file := range files {
		uploaded, err := s.media.Upload(ctx, file)
		if err != nil {
			s.discard(ctx, images)
			return nil, &MediaError{Op: "upload", Err: fmt.Errorf("file %d (%s): %w", i+1, file.Name, err)}
		}
		images = append(images, domain.TaskImage{
			ID:       orderedID(),
			URL:      uploaded.URL,
			PublicID: uploaded.PublicID,
			TaskID:   taskID,
		})
	}
	return images, nil
}

// deleteRemote issues one delete per public id, even after a failure, and
// reports every failure.
func (s *Service) deleteRemote(ctx context.Context, publicIDs []string) error {
	if len(publicIDs) == 0 {
		return nil
	}
	if s.media == nil {
		return &MediaError{Op: "delete", Err: errors.New("media store not configured")}
	}

	var errs []error
	for _, id := range publicIDs {
		if err := s.media.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return &MediaError{Op: "delete", Err: errors.Join(errs...)}
	}
	return nil
}

// discard removes uploads that will not be referenced by any row.
func (s *Service) discard(ctx context.Context, images []domain.TaskImage) {
	for _, img := range images {
		if err := s.media.Delete(ctx, img.PublicID); err != nil {
			log.Printf("[task] Failed to discard uploaded image %s: %v", img.PublicID, err)
		}
	}
}

func (s *Service) ownerOf(ctx context.Context, taskID string) string {
	task, err := s.repo.FindTask(ctx, taskID, "")
	if err != nil {
		return ""
	}
	return task.UserID
}

func (s *Service) invalidate(ctx context.Context, ownerIDs ...string) {
	if err := s.cache.Invalidate(ctx, ownerIDs...); err != nil {
		log.Printf("[task] Cache invalidation failed for %v: %v", ownerIDs, err)
	}
}

// orderedID returns a time-ordered UUIDv7. Rows written in one batch share
// created_at, so the id breaks the tie in insertion order.
func orderedID() string {
	return uuid.Must(uuid.NewV7()).String()
}
