// Package tally keeps per-course accepted/refused counters fed by
// presence-recorded events.
package tally

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Tally is the number of accepted and refused submissions for a course.
type Tally struct {
	Course   string `json:"course"`
	Accepted int64  `json:"accepted"`
	Refused  int64  `json:"refused"`
}

// Counter stores tallies.
type Counter interface {
	Incr(ctx context.Context, course, status string) error
	Get(ctx context.Context, course string) (Tally, error)
}

// RedisCounter keeps one hash per course with a field per status.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCounter creates a counter storing hashes under prefix + course.
func NewRedisCounter(client redis.Cmdable, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "presence:tally:"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

func (r *RedisCounter) key(course string) string { return r.prefix + course }

// Incr bumps the status field of the course hash.
func (r *RedisCounter) Incr(ctx context.Context, course, status string) error {
	return r.client.HIncrBy(ctx, r.key(course), status, 1).Err()
}

// Get reads the course hash. Unknown courses yield a zero tally.
func (r *RedisCounter) Get(ctx context.Context, course string) (Tally, error) {
	fields, err := r.client.HGetAll(ctx, r.key(course)).Result()
	if err != nil {
		return Tally{}, fmt.Errorf("read tally %s: %w", course, err)
	}
	t := Tally{Course: course}
	if t.Accepted, err = parseCount(fields["accepted"]); err != nil {
		return Tally{}, err
	}
	if t.Refused, err = parseCount(fields["refused"]); err != nil {
		return Tally{}, err
	}
	return t, nil
}

func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tally count %q: %w", v, err)
	}
	return n, nil
}

// MemoryCounter is a process-local Counter used with the in-memory queue.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]*Tally
}

// NewMemoryCounter creates an empty in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]*Tally)}
}

// Incr bumps the course counter for status.
func (m *MemoryCounter) Incr(_ context.Context, course, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.counts[course]
	if !ok {
		t = &Tally{Course: course}
		m.counts[course] = t
	}
	switch status {
	case "accepted":
		t.Accepted++
	case "refused":
		t.Refused++
	default:
		return fmt.Errorf("unknown status %q", status)
	}
	return nil
}

// Get returns a copy of the course tally.
func (m *MemoryCounter) Get(_ context.Context, course string) (Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.counts[course]; ok {
		return *t, nil
	}
	return Tally{Course: course}, nil
}
