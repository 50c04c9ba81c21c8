package productphoto

import (
	"time"

	"server/internal/productgen"
)

// TaskStatus tracks a generation task through its lifecycle.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusGenerating TaskStatus = "generating"
	StatusCompleted  TaskStatus = "completed"
	// StatusPartial means some variations succeeded and some failed; the
	// failed indices can be retried individually.
	StatusPartial TaskStatus = "partial"
	StatusFailed  TaskStatus = "failed"
)

// Task is the retained state of one generation run. The conditioning images
// are kept so individual variations can be retried without re-uploading.
type Task struct {
	ID        string
	Status    TaskStatus
	Provider  string
	Request   productgen.Request
	Results   []string
	Error     string
	CreatedAt time.Time
}

// StatusReport is the externally visible task snapshot.
type StatusReport struct {
	TaskID    string   `json:"task_id"`
	Status    string   `json:"status"`
	Provider  string   `json:"provider,omitempty"`
	Images    []string `json:"images"`
	Completed int      `json:"completed"`
	Total     int      `json:"total,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Event is one progress notification emitted while a task runs. Handlers
// stream these to clients as server-sent events.
type Event struct {
	Type      string   `json:"event"`
	TaskID    string   `json:"task_id,omitempty"`
	Index     int      `json:"index,omitempty"`
	Current   int      `json:"current,omitempty"`
	Total     int      `json:"total,omitempty"`
	Message   string   `json:"message,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Images    []string `json:"images,omitempty"`
	Completed int      `json:"completed,omitempty"`
	Failed    int      `json:"failed,omitempty"`
	Success   bool     `json:"success,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

const (
	EventStart       = "start"
	EventProgress    = "progress"
	EventComplete    = "complete"
	EventError       = "error"
	EventFinish      = "finish"
	EventRetryStart  = "retry_start"
	EventRetryFinish = "retry_finish"
)
