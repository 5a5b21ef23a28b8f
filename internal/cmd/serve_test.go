package cmd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harrison/docrouter/internal/ingest"
	"github.com/harrison/docrouter/internal/logger"
	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	logger.NoOpLogger
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (c *captureLogger) LogWarn(m string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, m)
}

func (c *captureLogger) LogError(m string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, m)
}

func runScheduler(s *scheduler, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	s.loop(ctx)
}

func TestSchedulerRunsAtStartupAndOnSchedule(t *testing.T) {
	var runs atomic.Int32
	s := &scheduler{
		interval: 40 * time.Millisecond,
		log:      logger.NewNoOpLogger(),
		run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	runScheduler(s, 150*time.Millisecond)
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestSchedulerRunsOnWake(t *testing.T) {
	wake := make(chan struct{}, 1)
	var runs atomic.Int32
	s := &scheduler{
		interval: time.Hour,
		wake:     wake,
		log:      logger.NewNoOpLogger(),
		run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	wake <- struct{}{}
	runScheduler(s, 100*time.Millisecond)
	assert.Equal(t, int32(2), runs.Load(), "startup run plus one wakeup")
}

func TestSchedulerNeverOverlaps(t *testing.T) {
	var active, maxActive atomic.Int32
	wake := make(chan struct{}, 1)
	s := &scheduler{
		interval: 5 * time.Millisecond,
		wake:     wake,
		log:      logger.NewNoOpLogger(),
		run: func(context.Context) error {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			select {
			case wake <- struct{}{}:
			default:
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
			return nil
		},
	}
	runScheduler(s, 120*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestSchedulerLogsOutcomes(t *testing.T) {
	results := []error{
		errRunSkipped,
		&ingest.BatchError{RunID: "r1", Total: 2},
		errors.New("metadata store unavailable"),
		context.Canceled,
	}
	log := &captureLogger{}
	var i atomic.Int32
	s := &scheduler{
		interval: 10 * time.Millisecond,
		log:      log,
		run: func(context.Context) error {
			n := int(i.Add(1)) - 1
			if n < len(results) {
				return results[n]
			}
			return nil
		},
	}
	runScheduler(s, 100*time.Millisecond)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Len(t, log.warns, 2)
	assert.Contains(t, log.warns[0], "skipping startup run")
	assert.Contains(t, log.warns[1], "run finished with failures")
	assert.Len(t, log.errs, 1)
	assert.Contains(t, log.errs[0], "metadata store unavailable")
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs atomic.Int32
	s := &scheduler{
		interval: time.Millisecond,
		log:      logger.NewNoOpLogger(),
		run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	done := make(chan struct{})
	go func() {
		s.loop(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(0), runs.Load())
}
