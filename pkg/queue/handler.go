package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Outcome tells the worker what to do with a task after a failed attempt.
type Outcome int

const (
	// Retry lets the backoff schedule redeliver the task.
	Retry Outcome = iota
	// Discard skips the remaining attempts and dead-letters the task.
	Discard
)

// Attempt describes one failed delivery of a task.
type Attempt struct {
	TaskID uuid.UUID
	// Number is 1-based and includes the attempt that just failed.
	Number      int
	MaxAttempts int
}

// Exhausted reports whether no further delivery will happen.
func (a Attempt) Exhausted() bool {
	return a.Number >= a.MaxAttempts
}

type (
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// FailureHandler is implemented by handlers that react to failed attempts.
	// It runs after every failure, before the task is rescheduled or dead-lettered.
	FailureHandler interface {
		OnFailure(ctx context.Context, payload json.RawMessage, attempt Attempt, cause error) Outcome
	}

	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	FailureFunc[T any]      func(ctx context.Context, payload T, attempt Attempt, cause error) Outcome
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// HandlerOption configures a typed task handler.
type HandlerOption[T any] func(*oneTimeTaskHandler[T])

// WithFailureFunc registers a callback invoked after each failed attempt.
func WithFailureFunc[T any](fn FailureFunc[T]) HandlerOption[T] {
	return func(h *oneTimeTaskHandler[T]) {
		h.onFailure = fn
	}
}

// WithHandlerName overrides the task name derived from the payload type.
func WithHandlerName[T any](name string) HandlerOption[T] {
	return func(h *oneTimeTaskHandler[T]) {
		if name != "" {
			h.name = name
		}
	}
}

func NewTaskHandler[T any](handler TaskHandlerFunc[T], opts ...HandlerOption[T]) Handler {
	var payload T
	h := &oneTimeTaskHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
	}
}

type oneTimeTaskHandler[T any] struct {
	name      string
	handler   TaskHandlerFunc[T]
	onFailure FailureFunc[T]
}

func (h *oneTimeTaskHandler[T]) Name() string {
	return h.name
}

func (h *oneTimeTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.handler(ctx, t)
}

func (h *oneTimeTaskHandler[T]) OnFailure(ctx context.Context, payload json.RawMessage, attempt Attempt, cause error) Outcome {
	if h.onFailure == nil {
		return Retry
	}
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		// An undecodable payload will never succeed.
		return Discard
	}
	return h.onFailure(ctx, t, attempt, cause)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.handler(ctx)
}
