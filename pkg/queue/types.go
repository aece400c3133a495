package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// DefaultMaxAttempts is the delivery budget used when none is specified.
const DefaultMaxAttempts int8 = 3

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority represents task priority (0-100, higher is more important)
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task represents a task in the queue.
// AttemptsMade counts failed deliveries; it only grows.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Queue        string     `json:"queue"`
	TaskType     TaskType   `json:"task_type"`
	TaskName     string     `json:"task_name"`
	Payload      []byte     `json:"payload,omitempty"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	AttemptsMade int8       `json:"attempts_made"`
	MaxAttempts  int8       `json:"max_attempts"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	LockedBy     *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DeadTask is a task parked in the dead letter queue after it was
// discarded or ran out of attempts.
type DeadTask struct {
	ID           uuid.UUID `json:"id"`
	TaskID       uuid.UUID `json:"task_id"`
	Queue        string    `json:"queue"`
	TaskType     TaskType  `json:"task_type"`
	TaskName     string    `json:"task_name"`
	Payload      []byte    `json:"payload,omitempty"`
	Priority     Priority  `json:"priority"`
	Error        string    `json:"error"`
	AttemptsMade int8      `json:"attempts_made"`
	FailedAt     time.Time `json:"failed_at"`
}

func newDeadTask(task *Task, now time.Time) *DeadTask {
	dead := &DeadTask{
		ID:           uuid.New(),
		TaskID:       task.ID,
		Queue:        task.Queue,
		TaskType:     task.TaskType,
		TaskName:     task.TaskName,
		Payload:      task.Payload,
		Priority:     task.Priority,
		AttemptsMade: task.AttemptsMade,
		FailedAt:     now,
	}
	if task.Error != nil {
		dead.Error = *task.Error
	}
	return dead
}

// QueueStats is a point-in-time count of tasks in one queue.
type QueueStats struct {
	Queue      string `json:"queue"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Dead       int64  `json:"dead"`
}
