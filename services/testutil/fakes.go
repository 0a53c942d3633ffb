package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer records tasks instead of sending them to redis.
type Enqueuer struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
	Err   error
}

func (e *Enqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	e.Tasks = append(e.Tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

// Types lists the enqueued task types in order.
func (e *Enqueuer) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		out = append(out, t.Type())
	}
	return out
}

// Locker is an in-process lock table.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *Locker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return func(context.Context) {}, false, nil
	}
	l.held[key] = true
	return func(context.Context) {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

// Cache is a map backed cache that ignores ttl.
type Cache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
