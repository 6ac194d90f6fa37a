package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ShutdownHook is one teardown step. Lower priority runs first.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownHandler runs registered hooks in priority order when a signal
// arrives or Shutdown is called, whichever comes first.
type ShutdownHandler struct {
	mu      sync.Mutex
	hooks   []ShutdownHook
	timeout time.Duration
	logger  *slog.Logger

	trigger  chan struct{}
	done     chan struct{}
	started  bool
	once     sync.Once
	doneOnce sync.Once
}

// NewShutdownHandler creates a handler with the given overall teardown
// timeout.
func NewShutdownHandler(timeout time.Duration, logger *slog.Logger) *ShutdownHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownHandler{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// RegisterHook adds a teardown step.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, ShutdownHook{Name: name, Priority: priority, Fn: fn})
	sort.SliceStable(s.hooks, func(i, j int) bool {
		return s.hooks[i].Priority < s.hooks[j].Priority
	})
}

// Start listens for SIGTERM/SIGINT.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info("shutdown signal received", "signal", sig)
		case <-s.trigger:
		}
		signal.Stop(sigCh)
		s.run()
	}()
}

// Shutdown triggers teardown without a signal.
func (s *ShutdownHandler) Shutdown() {
	s.once.Do(func() { close(s.trigger) })
}

// Wait blocks until every hook has run.
func (s *ShutdownHandler) Wait() {
	<-s.done
}

func (s *ShutdownHandler) run() {
	defer s.doneOnce.Do(func() { close(s.done) })

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		if ctx.Err() != nil {
			s.logger.Error("shutdown timeout exceeded, abandoning remaining hooks", "next", hook.Name)
			return
		}
		s.logger.Info("running shutdown hook", "name", hook.Name)
		if err := hook.Fn(ctx); err != nil {
			s.logger.Error("shutdown hook failed", "name", hook.Name, "error", err)
		}
	}
}
