package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
)

// TaskHandlerFunc executes one claimed task.
type TaskHandlerFunc func(ctx context.Context, task domain.AutomationTask) error

// AbandonFunc runs once a task has failed for good, whether its handler
// returned or not.
type AbandonFunc func(ctx context.Context, task domain.AutomationTask, cause error) error

// HandlerRegistry maps task types to their handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[domain.TaskType]TaskHandlerFunc
	abandons map[domain.TaskType]AbandonFunc
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[domain.TaskType]TaskHandlerFunc),
		abandons: make(map[domain.TaskType]AbandonFunc),
	}
}

// Handle registers fn for the task type of P. The payload is decoded before fn
// runs; a payload that does not decode is a validation error.
func Handle[P domain.TaskPayload](r *HandlerRegistry, fn func(ctx context.Context, task domain.AutomationTask, payload P) error) {
	var zero P
	taskType := zero.TaskType()

	r.Register(taskType, func(ctx context.Context, task domain.AutomationTask) error {
		var payload P
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode %s payload: %v", domain.ErrValidation, taskType, err)
		}
		return fn(ctx, task, payload)
	})
}

// OnAbandon registers fn for the task type of P.
func OnAbandon[P domain.TaskPayload](r *HandlerRegistry, fn func(ctx context.Context, task domain.AutomationTask, payload P, cause error) error) {
	var zero P
	taskType := zero.TaskType()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandons[taskType] = func(ctx context.Context, task domain.AutomationTask, cause error) error {
		var payload P
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("%w: decode %s payload: %v", domain.ErrValidation, taskType, err)
		}
		return fn(ctx, task, payload, cause)
	}
}

func (r *HandlerRegistry) Register(taskType domain.TaskType, fn TaskHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = fn
}

// Validate fails when any of types has no handler.
func (r *HandlerRegistry) Validate(types []domain.TaskType) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, taskType := range types {
		if _, ok := r.handlers[taskType]; !ok {
			return fmt.Errorf("no handler registered for task type %q", taskType)
		}
	}
	return nil
}

func (r *HandlerRegistry) Dispatch(ctx context.Context, task domain.AutomationTask) error {
	r.mu.RLock()
	fn, ok := r.handlers[task.Type]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: unknown task type %q", domain.ErrValidation, task.Type)
	}
	return fn(ctx, task)
}

// Abandon runs the abandon hook of the task type, if there is one.
func (r *HandlerRegistry) Abandon(ctx context.Context, task domain.AutomationTask, cause error) error {
	r.mu.RLock()
	fn, ok := r.abandons[task.Type]
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return fn(ctx, task, cause)
}
