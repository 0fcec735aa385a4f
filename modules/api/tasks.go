package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	domain "github.com/example/taskboard/domain/task"
	userdomain "github.com/example/taskboard/domain/user"
	"github.com/example/taskboard/modules/media"
	"github.com/example/taskboard/modules/task"
	"github.com/gofiber/fiber/v2"
)

// TaskLifecycle is the part of the task service the HTTP layer uses.
type TaskLifecycle interface {
	CreateTask(ctx context.Context, ownerID string, in task.CreateTaskInput) (*domain.Task, error)
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	GetTask(ctx context.Context, callerID, taskID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, callerID, taskID string, in task.UpdateTaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, callerID, taskID string) error
	BulkDeleteTasks(ctx context.Context, callerID string, ids []string) (int64, error)
	ChangeTaskStatus(ctx context.Context, callerID, taskID, status string) (*domain.Task, error)
	ChangeTaskPriority(ctx context.Context, callerID, taskID string, priority *string) (*domain.Task, error)
	CreateSubtask(ctx context.Context, callerID, taskID, title string) (*domain.Subtask, error)
	ListSubtasks(ctx context.Context, callerID, taskID string) ([]domain.Subtask, error)
	UpdateSubtask(ctx context.Context, callerID, id, title string) (*domain.Subtask, error)
	UpdateSubtaskStatus(ctx context.Context, callerID, id string, isDone bool) (*domain.Subtask, error)
	DeleteSubtask(ctx context.Context, callerID, id string) error
	BulkUpdateSubtasksStatus(ctx context.Context, callerID string, ids []string, isDone bool) (int64, error)
	BulkDeleteSubtasks(ctx context.Context, callerID string, ids []string) (int64, error)
}

var _ TaskLifecycle = (*task.Service)(nil)

// imagesField is the multipart field carrying image files.
const imagesField = "images"

// TaskHandlers contains the task and subtask HTTP handlers.
type TaskHandlers struct {
	tasks     TaskLifecycle
	maxImages int
}

// NewTaskHandlers creates a new TaskHandlers instance.
func NewTaskHandlers(tasks TaskLifecycle, maxImages int) *TaskHandlers {
	if maxImages <= 0 {
		maxImages = task.DefaultOptions().MaxImages
	}
	return &TaskHandlers{tasks: tasks, maxImages: maxImages}
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandlers) CreateTask(c *fiber.Ctx) error {
	form, err := parseTaskForm(c)
	if err != nil {
		return badRequest(c, "Invalid form body")
	}
	files, err := h.readImages(form.files)
	if err != nil {
		return h.handleTaskError(c, err)
	}

	created, err := h.tasks.CreateTask(c.UserContext(), callerID(c), task.CreateTaskInput{
		Title:       form.value("title"),
		Description: form.value("description"),
		Status:      form.value("status"),
		Priority:    form.value("priority"),
		DueDate:     form.value("dueDate"),
		Tags:        form.value("tags"),
		Files:       files,
	})
	if err != nil {
		return h.handleTaskError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandlers) ListTasks(c *fiber.Ctx) error {
	tasks, err := h.tasks.ListTasks(c.UserContext(), callerID(c))
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(tasks)
}

// GetTask handles GET /api/tasks/:id.
func (h *TaskHandlers) GetTask(c *fiber.Ctx) error {
	found, err := h.tasks.GetTask(c.UserContext(), callerID(c), c.Params("id"))
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(found)
}

// UpdateTask handles PUT /api/tasks/:id. Only fields present in the form change.
func (h *TaskHandlers) UpdateTask(c *fiber.Ctx) error {
	form, err := parseTaskForm(c)
	if err != nil {
		return badRequest(c, "Invalid form body")
	}
	files, err := h.readImages(form.files)
	if err != nil {
		return h.handleTaskError(c, err)
	}

	updated, err := h.tasks.UpdateTask(c.UserContext(), callerID(c), c.Params("id"), task.UpdateTaskInput{
		Title:          form.optional("title"),
		Description:    form.optional("description"),
		Status:         form.optional("status"),
		Priority:       form.optional("priority"),
		DueDate:        form.optional("dueDate"),
		Tags:           form.optional("tags"),
		RemoveImageIDs: form.optional("removeImageIds"),
		Files:          files,
	})
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(updated)
}

// DeleteTask handles DELETE /api/tasks/:id.
func (h *TaskHandlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.tasks.DeleteTask(c.UserContext(), callerID(c), c.Params("id")); err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(MessageResponse{Message: "Task deleted successfully"})
}

// BulkDeleteTasks handles DELETE /api/tasks/bulk.
func (h *TaskHandlers) BulkDeleteTasks(c *fiber.Ctx) error {
	var req IDsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	count, err := h.tasks.BulkDeleteTasks(c.UserContext(), callerID(c), req.IDs)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(CountResponse{Message: "Tasks deleted successfully", Count: count})
}

// ChangeTaskStatus handles PUT /api/tasks/status/:id.
func (h *TaskHandlers) ChangeTaskStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	updated, err := h.tasks.ChangeTaskStatus(c.UserContext(), callerID(c), c.Params("id"), req.Status)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(updated)
}

// ChangeTaskPriority handles PUT /api/tasks/priority/:id.
func (h *TaskHandlers) ChangeTaskPriority(c *fiber.Ctx) error {
	var req PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	updated, err := h.tasks.ChangeTaskPriority(c.UserContext(), callerID(c), c.Params("id"), req.Priority)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(updated)
}

// CreateSubtask handles POST /api/tasks/:taskId/subtasks.
func (h *TaskHandlers) CreateSubtask(c *fiber.Ctx) error {
	var req SubtaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	created, err := h.tasks.CreateSubtask(c.UserContext(), callerID(c), c.Params("taskId"), req.Title)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListSubtasks handles GET /api/tasks/:taskId/subtasks.
func (h *TaskHandlers) ListSubtasks(c *fiber.Ctx) error {
	subtasks, err := h.tasks.ListSubtasks(c.UserContext(), callerID(c), c.Params("taskId"))
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(subtasks)
}

// UpdateSubtask handles PUT /api/tasks/subtasks/:id.
func (h *TaskHandlers) UpdateSubtask(c *fiber.Ctx) error {
	var req SubtaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	updated, err := h.tasks.UpdateSubtask(c.UserContext(), callerID(c), c.Params("id"), req.Title)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(updated)
}

// UpdateSubtaskStatus handles PATCH /api/tasks/subtasks/:id/status.
func (h *TaskHandlers) UpdateSubtaskStatus(c *fiber.Ctx) error {
	var req SubtaskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.IsDone == nil {
		return h.handleTaskError(c, task.ErrIsDoneRequired)
	}

	updated, err := h.tasks.UpdateSubtaskStatus(c.UserContext(), callerID(c), c.Params("id"), *req.IsDone)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(updated)
}

// DeleteSubtask handles DELETE /api/tasks/subtasks/:id.
func (h *TaskHandlers) DeleteSubtask(c *fiber.Ctx) error {
	if err := h.tasks.DeleteSubtask(c.UserContext(), callerID(c), c.Params("id")); err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(MessageResponse{Message: "Subtask deleted successfully"})
}

// BulkUpdateSubtasksStatus handles PUT /api/tasks/subtasks/bulk-status.
func (h *TaskHandlers) BulkUpdateSubtasksStatus(c *fiber.Ctx) error {
	var req BulkSubtaskStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.IsDone == nil {
		return h.handleTaskError(c, task.ErrIsDoneRequired)
	}

	count, err := h.tasks.BulkUpdateSubtasksStatus(c.UserContext(), callerID(c), req.IDs, *req.IsDone)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(CountResponse{Message: "Subtasks updated", Count: count})
}

// BulkDeleteSubtasks handles DELETE /api/tasks/subtasks/bulk.
func (h *TaskHandlers) BulkDeleteSubtasks(c *fiber.Ctx) error {
	var req IDsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	count, err := h.tasks.BulkDeleteSubtasks(c.UserContext(), callerID(c), req.IDs)
	if err != nil {
		return h.handleTaskError(c, err)
	}
	return c.JSON(CountResponse{Message: "Subtasks deleted successfully", Count: count})
}

// handleTaskError maps lifecycle errors to responses. Media and storage
// failures are logged and reported without detail.
func (h *TaskHandlers) handleTaskError(c *fiber.Ctx, err error) error {
	switch {
	case task.IsValidation(err):
		return badRequest(c, err.Error())
	case task.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	default:
		return internalError(c, err)
	}
}

// readImages loads the uploaded files into memory, in form order.
func (h *TaskHandlers) readImages(headers []*multipart.FileHeader) ([]media.File, error) {
	if len(headers) > h.maxImages {
		return nil, fmt.Errorf("%w: at most %d per request", task.ErrTooManyImages, h.maxImages)
	}

	files := make([]media.File, 0, len(headers))
	for _, header := range headers {
		data, err := readFileHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Filename, err)
		}
		files = append(files, media.File{
			Name:        header.Filename,
			ContentType: header.Header.Get(fiber.HeaderContentType),
			Data:        data,
		})
	}
	return files, nil
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// taskForm holds the fields of a multipart or urlencoded task form.
type taskForm struct {
	values map[string][]string
	files  []*multipart.FileHeader
}

func parseTaskForm(c *fiber.Ctx) (*taskForm, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		return &taskForm{values: form.Value, files: form.File[imagesField]}, nil
	}

	values := make(map[string][]string)
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		values[k] = append(values[k], string(value))
	})
	return &taskForm{values: values}, nil
}

// value returns the first value of key, or "" when absent.
func (f *taskForm) value(key string) string {
	if v := f.values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// optional returns nil when key was not sent at all.
func (f *taskForm) optional(key string) *string {
	v, ok := f.values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}

// callerID returns the user id set by AuthMiddleware.
func callerID(c *fiber.Ctx) string {
	if claims, ok := c.Locals(UserContextKey).(*userdomain.Claims); ok {
		return claims.UserID
	}
	return ""
}
