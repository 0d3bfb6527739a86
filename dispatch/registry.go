package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrBadPayload  = errors.New("malformed task payload")
)

// Task is a self-contained unit of work that can be shipped to another
// member. Tasks and their results travel as JSON, so every field that matters
// must be exported. TaskName must work on the zero value.
type Task interface {
	TaskName() string
}

// HandlerFunc executes an encoded task and returns the encoded result.
type HandlerFunc func(ctx context.Context, args []byte) ([]byte, error)

// Registry maps task names to the handlers that execute them on this member.
type Registry struct {
	mut      sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register installs a handler, replacing any previous one for the name.
func (r *Registry) Register(name string, h HandlerFunc) {
	r.mut.Lock()
	defer r.mut.Unlock()

	r.handlers[name] = h
}

func (r *Registry) Has(name string) bool {
	r.mut.RLock()
	defer r.mut.RUnlock()

	_, ok := r.handlers[name]

	return ok
}

// Execute runs the handler registered for the task name.
func (r *Registry) Execute(ctx context.Context, name string, args []byte) ([]byte, error) {
	r.mut.RLock()
	h, ok := r.handlers[name]
	r.mut.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	return h(ctx, args)
}

// Handle registers a typed handler for tasks of type A.
func Handle[A Task, R any](r *Registry, fn func(ctx context.Context, task A) (R, error)) {
	var zero A

	r.Register(zero.TaskName(), func(ctx context.Context, args []byte) ([]byte, error) {
		var task A

		if err := json.Unmarshal(args, &task); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}

		res, err := fn(ctx, task)
		if err != nil {
			return nil, err
		}

		return json.Marshal(res)
	})
}

func encodeTask(task Task) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", task.TaskName(), err)
	}

	return data, nil
}

func decodeResult[T any](data []byte) (T, error) {
	var v T

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode result: %w", err)
	}

	return v, nil
}
