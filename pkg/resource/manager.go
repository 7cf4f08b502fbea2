// pkg/resource/manager.go
package resource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/logging"
)

var (
	ErrGoroutineLimit = errors.New("goroutine limit exceeded")
	ErrShuttingDown   = errors.New("resource manager is shutting down")
	ErrAlreadyRunning = errors.New("resource manager already running")
)

// Manager tracks the goroutines a server starts for its clients and
// watches heap usage, so a flood of connections cannot exhaust the
// process and shutdown can wait for every handler to return.
type Manager struct {
	maxMemoryMB     int64
	maxGoroutines   int64
	shutdownTimeout time.Duration
	checkInterval   time.Duration

	goroutineCount atomic.Int64
	memoryUsageMB  atomic.Int64
	lastCheck      atomic.Int64 // unix nanoseconds

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	closed  bool
	tasks   map[string]int
	logger  *logging.Logger
}

// NewManager creates a manager with limits from the environment config
func NewManager(env *config.EnvironmentConfig, logger *logging.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = logging.Discard()
	}

	return &Manager{
		maxMemoryMB:     env.MaxMemoryMB,
		maxGoroutines:   int64(env.MaxGoroutines),
		shutdownTimeout: env.ShutdownTimeout,
		checkInterval:   env.ResourceCheckInterval,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		tasks:           make(map[string]int),
		logger:          logger.With("component", "resource"),
	}
}

// Start begins periodic memory checks
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running || m.closed {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.mu.Unlock()

	go m.monitoringLoop()

	m.logger.Info(m.ctx, "resource manager started",
		"max_memory_mb", m.maxMemoryMB,
		"max_goroutines", m.maxGoroutines,
		"check_interval", m.checkInterval,
	)
	return nil
}

// Context is cancelled when Shutdown begins
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Go runs fn in a tracked goroutine. It fails when the limit is reached
// or the manager is shutting down. Panics in fn are logged, not fatal.
func (m *Manager) Go(ctx context.Context, name string, fn func(context.Context)) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	if current := m.goroutineCount.Load(); current >= m.maxGoroutines {
		m.mu.Unlock()
		m.logger.Warn(ctx, "goroutine limit reached", "current", current, "limit", m.maxGoroutines, "name", name)
		return fmt.Errorf("%w: %d/%d", ErrGoroutineLimit, current, m.maxGoroutines)
	}
	m.goroutineCount.Add(1)
	m.tasks[name]++
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.finish(name)
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error(ctx, "goroutine panic", fmt.Errorf("panic: %v", r), "name", name)
			}
		}()
		fn(ctx)
	}()
	return nil
}

func (m *Manager) finish(name string) {
	m.mu.Lock()
	if m.tasks[name]--; m.tasks[name] <= 0 {
		delete(m.tasks, name)
	}
	m.mu.Unlock()
	m.goroutineCount.Add(-1)
	m.wg.Done()
}

// Tasks returns the names of running goroutines, sorted
func (m *Manager) Tasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.tasks))
}

// CheckMemoryUsage samples the heap and compares it with the limit
func (m *Manager) CheckMemoryUsage() error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	currentMB := int64(ms.Alloc / 1024 / 1024)
	m.memoryUsageMB.Store(currentMB)
	m.lastCheck.Store(time.Now().UnixNano())

	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// Stats contains resource usage statistics
type Stats struct {
	GoroutineCount int64     `json:"goroutine_count"`
	MaxGoroutines  int64     `json:"max_goroutines"`
	MemoryUsageMB  int64     `json:"memory_usage_mb"`
	MaxMemoryMB    int64     `json:"max_memory_mb"`
	LastCheck      time.Time `json:"last_check"`
}

// Stats returns current resource usage
func (m *Manager) Stats() Stats {
	var last time.Time
	if ns := m.lastCheck.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		GoroutineCount: m.goroutineCount.Load(),
		MaxGoroutines:  m.maxGoroutines,
		MemoryUsageMB:  m.memoryUsageMB.Load(),
		MaxMemoryMB:    m.maxMemoryMB,
		LastCheck:      last,
	}
}

// Shutdown refuses new goroutines, cancels Context and waits for the
// tracked ones to return, bounded by the configured shutdown timeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	wasRunning := m.running
	m.mu.Unlock()

	m.logger.Info(ctx, "shutting down resource manager")
	m.cancel()

	ctx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
	defer cancel()

	if wasRunning {
		select {
		case <-m.done:
		case <-ctx.Done():
			m.logger.Warn(ctx, "monitoring loop did not stop")
		}
	}

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		remaining := m.Tasks()
		m.logger.Warn(ctx, "shutdown timeout exceeded", "remaining", remaining)
		return fmt.Errorf("shutdown timeout: %d goroutines still running %v", m.goroutineCount.Load(), remaining)
	}
}

func (m *Manager) monitoringLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.CheckMemoryUsage(); err != nil {
				m.logger.Error(m.ctx, "memory limit exceeded", err, "limit_mb", m.maxMemoryMB)
			}
			m.logger.Debug(m.ctx, "resource usage",
				"goroutines", m.goroutineCount.Load(),
				"memory_mb", m.memoryUsageMB.Load(),
			)
		case <-m.ctx.Done():
			return
		}
	}
}
