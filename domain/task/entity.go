package task

import "time"

// Status is the workflow column a task sits in.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Task is a work item owned by exactly one user.
type Task struct {
	ID          string      `gorm:"primaryKey;type:text" json:"id"`
	Title       string      `gorm:"not null;type:text" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Status      Status      `gorm:"not null;type:text;default:'TODO'" json:"status"`
	Priority    Priority    `gorm:"not null;type:text;default:'MEDIUM'" json:"priority"`
	DueDate     *time.Time  `gorm:"index" json:"dueDate"`
	Tags        []string    `gorm:"serializer:json;type:text" json:"tags"`
	UserID      string      `gorm:"not null;index;type:text" json:"userId"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Images      []TaskImage `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"images"`
	Subtasks    []Subtask   `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"subtasks,omitempty"`
}

// TableName returns the table name for the Task entity.
func (Task) TableName() string {
	return "tasks"
}

// Subtask is a checklist item of a task. It never changes parent.
type Subtask struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Title     string    `gorm:"not null;type:text" json:"title"`
	IsDone    bool      `gorm:"not null;default:false" json:"isDone"`
	TaskID    string    `gorm:"not null;index;type:text" json:"taskId"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name for the Subtask entity.
func (Subtask) TableName() string {
	return "subtasks"
}

// TaskImage references a file held by the media store.
// PublicID is the handle used to delete the remote object.
type TaskImage struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	URL       string    `gorm:"not null;type:text" json:"url"`
	PublicID  string    `gorm:"not null;type:text" json:"publicId"`
	TaskID    string    `gorm:"not null;index;type:text" json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the table name for the TaskImage entity.
func (TaskImage) TableName() string {
	return "task_images"
}

// PublicIDs returns the media handles of the given images in order.
func PublicIDs(images []TaskImage) []string {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.PublicID)
	}
	return ids
}
