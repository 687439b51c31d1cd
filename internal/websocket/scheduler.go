package websocket

import (
	"fmt"
	"runtime/debug"
	"sync"

	"wschat/internal/config"
	"wschat/pkg/logger"
)

// Scheduler runs connection events one at a time. Run blocks until fn has
// completed and reports false once the scheduler is stopped.
type Scheduler interface {
	Run(fn func()) bool
	Stop()
}

func NewScheduler(kind string) (Scheduler, error) {
	switch kind {
	case config.SchedulerLoop, "":
		return NewEventLoop(), nil
	case config.SchedulerLocked:
		return NewLockedScheduler(), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", kind)
	}
}

func runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in event handler: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

type task struct {
	fn   func()
	done chan struct{}
}

// EventLoop hands every event to a single goroutine in submission order.
type EventLoop struct {
	tasks    chan task
	quit     chan struct{}
	stopOnce sync.Once
}

func NewEventLoop() *EventLoop {
	l := &EventLoop{
		tasks: make(chan task),
		quit:  make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *EventLoop) loop() {
	for {
		select {
		case t := <-l.tasks:
			runSafely(t.fn)
			close(t.done)
		case <-l.quit:
			return
		}
	}
}

func (l *EventLoop) Run(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	t := task{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-l.quit:
		return false
	}
	// The loop received t and runs it before looking at quit again.
	<-t.done
	return true
}

func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// LockedScheduler runs events on the caller's goroutine under one mutex.
type LockedScheduler struct {
	mu      sync.Mutex
	stopped bool
}

func NewLockedScheduler() *LockedScheduler {
	return &LockedScheduler{}
}

func (s *LockedScheduler) Run(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	runSafely(fn)
	return true
}

func (s *LockedScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
