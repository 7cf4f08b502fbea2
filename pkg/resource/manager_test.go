// pkg/resource/manager_test.go
package resource

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/config"
)

func testEnv(maxGoroutines int) *config.EnvironmentConfig {
	return &config.EnvironmentConfig{
		MaxMemoryMB:           500,
		MaxGoroutines:         maxGoroutines,
		ShutdownTimeout:       2 * time.Second,
		ResourceCheckInterval: 10 * time.Millisecond,
	}
}

func TestNewManager(t *testing.T) {
	m := NewManager(&config.EnvironmentConfig{
		MaxMemoryMB:           500,
		MaxGoroutines:         100,
		ShutdownTimeout:       30 * time.Second,
		ResourceCheckInterval: 10 * time.Second,
	}, nil)
	defer m.Shutdown(context.Background())

	if m.maxMemoryMB != 500 {
		t.Errorf("Expected MaxMemoryMB 500, got %d", m.maxMemoryMB)
	}
	if m.maxGoroutines != 100 {
		t.Errorf("Expected MaxGoroutines 100, got %d", m.maxGoroutines)
	}
	if m.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected ShutdownTimeout 30s, got %v", m.shutdownTimeout)
	}
}

func TestManager_GoLimit(t *testing.T) {
	m := NewManager(testEnv(2), nil)
	defer m.Shutdown(context.Background())

	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 2; i++ {
		started.Add(1)
		err := m.Go(context.Background(), "client", func(ctx context.Context) {
			started.Done()
			<-release
		})
		if err != nil {
			t.Fatalf("Go() %d error = %v", i, err)
		}
	}
	started.Wait()

	if err := m.Go(context.Background(), "client", func(context.Context) {}); !errors.Is(err, ErrGoroutineLimit) {
		t.Errorf("Go() over limit error = %v, expected %v", err, ErrGoroutineLimit)
	}
	if got := m.Stats().GoroutineCount; got != 2 {
		t.Errorf("GoroutineCount = %d, expected 2", got)
	}
	if got := m.Tasks(); !slices.Equal(got, []string{"client"}) {
		t.Errorf("Tasks() = %v, expected [client]", got)
	}

	close(release)
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := m.Stats().GoroutineCount; got != 0 {
		t.Errorf("GoroutineCount after shutdown = %d, expected 0", got)
	}
	if len(m.Tasks()) != 0 {
		t.Errorf("Tasks() after shutdown = %v, expected none", m.Tasks())
	}
}

func TestManager_PanicRecovery(t *testing.T) {
	m := NewManager(testEnv(10), nil)

	if err := m.Go(context.Background(), "panicky", func(context.Context) {
		panic("boom")
	}); err != nil {
		t.Fatalf("Go() error = %v", err)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := m.Stats().GoroutineCount; got != 0 {
		t.Errorf("GoroutineCount = %d, expected 0 after panic", got)
	}
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := NewManager(testEnv(10), nil)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, expected %v", err, ErrAlreadyRunning)
	}

	stopped := make(chan struct{})
	m.Go(m.Context(), "worker", func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	// Let the monitoring loop take a sample
	time.Sleep(50 * time.Millisecond)
	if m.Stats().LastCheck.IsZero() {
		t.Error("LastCheck not set after monitoring interval")
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Error("worker context not cancelled by Shutdown")
	}

	if err := m.Go(context.Background(), "late", func(context.Context) {}); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Go() after Shutdown error = %v, expected %v", err, ErrShuttingDown)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	env := testEnv(10)
	env.ShutdownTimeout = 50 * time.Millisecond
	m := NewManager(env, nil)

	release := make(chan struct{})
	defer close(release)
	m.Go(context.Background(), "stuck", func(context.Context) {
		<-release
	})

	if err := m.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown() expected timeout error")
	}
}

func TestManager_CheckMemoryUsage(t *testing.T) {
	env := testEnv(10)
	m := NewManager(env, nil)
	defer m.Shutdown(context.Background())

	if err := m.CheckMemoryUsage(); err != nil {
		t.Errorf("CheckMemoryUsage() error = %v with 500MB limit", err)
	}

	m.maxMemoryMB = -1
	if err := m.CheckMemoryUsage(); err == nil {
		t.Error("CheckMemoryUsage() expected error over limit")
	}
}

func BenchmarkManager_Go(b *testing.B) {
	m := NewManager(testEnv(b.N+1), nil)
	defer m.Shutdown(context.Background())

	for i := 0; i < b.N; i++ {
		m.Go(context.Background(), "bench", func(context.Context) {})
	}
}
