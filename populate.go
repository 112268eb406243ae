package sprite

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/sprite/internal/parallel"
)

// Producer writes instance records for part of a frame.
//
// Each producer receives its own run buffer, so producers may execute in
// parallel without locking. The run is cleared before every call.
type Producer interface {
	Produce(run *InstanceBuffer) error
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(run *InstanceBuffer) error

// Produce calls f(run).
func (f ProducerFunc) Produce(run *InstanceBuffer) error { return f(run) }

// ProducerSet runs producers in parallel and merges their output in
// registration order. Output is therefore deterministic regardless of
// scheduling.
//
// Runs are reused across frames: a run is cleared, never reallocated.
type ProducerSet struct {
	mu        sync.Mutex
	pool      *parallel.Pool
	producers []Producer
	runs      []*InstanceBuffer
}

// NewProducerSet creates a set running on workers goroutines.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewProducerSet(workers int) *ProducerSet {
	return &ProducerSet{pool: parallel.NewPool(workers)}
}

// Register appends p and returns its position in the merge order.
func (s *ProducerSet) Register(p Producer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producers = append(s.producers, p)
	s.runs = append(s.runs, NewInstanceBuffer(0))
	return len(s.producers) - 1
}

// Len returns the number of registered producers.
func (s *ProducerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.producers)
}

// Populate runs every producer, waits for all of them, then appends their
// runs to dst in registration order.
//
// If a producer fails, dst is not modified and the error of the first
// failing producer in registration order is returned. If dst is a fixed
// buffer without room for a run, the runs before it are kept and
// ErrBufferFull is returned.
func (s *ProducerSet) Populate(dst *InstanceBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.pool.Run(len(s.producers), func(i int) error {
		run := s.runs[i]
		run.Clear()
		return s.producers[i].Produce(run)
	})
	var re *parallel.RunError
	if errors.As(err, &re) {
		return fmt.Errorf("producer %d: %w", re.Run, re.Err)
	}

	total := 0
	for _, run := range s.runs {
		total += run.Len()
	}
	if !dst.fixed && cap(dst.records)-len(dst.records) < total {
		grown := make([]InstanceRecord, len(dst.records), len(dst.records)+total)
		copy(grown, dst.records)
		dst.records = grown
	}
	for i, run := range s.runs {
		if err := dst.Extend(run.Records()); err != nil {
			return fmt.Errorf("merge producer %d: %w", i, err)
		}
	}
	Logger().Debug("instances populated", "producers", len(s.producers), "instances", total)
	return nil
}

// Close stops the worker goroutines.
func (s *ProducerSet) Close() {
	s.pool.Close()
}

// Populate runs producers once on a temporary set.
func Populate(dst *InstanceBuffer, producers ...Producer) error {
	s := NewProducerSet(0)
	defer s.Close()
	for _, p := range producers {
		s.Register(p)
	}
	return s.Populate(dst)
}
