package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		workers, want int
	}{
		{4, 4},
		{1, 1},
		{0, runtime.GOMAXPROCS(0)},
		{-3, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		pool := NewPool(tt.workers)
		if pool.Workers() != tt.want {
			t.Errorf("NewPool(%d).Workers() = %d, want %d", tt.workers, pool.Workers(), tt.want)
		}
		if !pool.IsRunning() {
			t.Errorf("NewPool(%d) not running", tt.workers)
		}
		pool.Close()
	}
}

func TestPool_RunFillsEveryIndex(t *testing.T) {
	pool := NewPool(3)
	defer pool.Close()

	out := make([]int, 50)
	err := pool.Run(len(out), func(run int) error {
		out[run] = run * run
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestPool_RunEmpty(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	called := false
	if err := pool.Run(0, func(int) error { called = true; return nil }); err != nil {
		t.Errorf("Run(0) error = %v", err)
	}
	if called {
		t.Error("Run(0) called fill")
	}
}

func TestPool_RunReportsLowestFailure(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	errLate := errors.New("late")
	errEarly := errors.New("early")
	var ran atomic.Int64
	err := pool.Run(10, func(run int) error {
		ran.Add(1)
		switch run {
		case 3:
			time.Sleep(10 * time.Millisecond)
			return errEarly
		case 7:
			return errLate
		}
		return nil
	})

	var re *RunError
	if !errors.As(err, &re) || re.Run != 3 || !errors.Is(err, errEarly) {
		t.Errorf("Run() error = %v, want run 3 failing with %v", err, errEarly)
	}
	if got := ran.Load(); got != 10 {
		t.Errorf("%d runs executed, want all 10", got)
	}
}

func TestPool_TakesFromSlowWorker(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	var counter atomic.Int64
	err := pool.Run(8, func(run int) error {
		if run == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		counter.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := counter.Load(); got != 8 {
		t.Errorf("counter = %d, want 8", got)
	}
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool := NewPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}

func TestPool_RunAfterCloseRunsInline(t *testing.T) {
	pool := NewPool(2)
	pool.Close()

	var counter atomic.Int64
	err := pool.Run(2, func(int) error {
		counter.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := counter.Load(); got != 2 {
		t.Errorf("counter = %d, want 2 (closed pool must still run)", got)
	}
}
