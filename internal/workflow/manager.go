package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/stage"
)

// Manager coordinates queue processing using registered task handlers.
type Manager struct {
	cfg     *config.Config
	store   *queue.Store
	logger  *slog.Logger
	sleeper func(context.Context, time.Duration) error

	batchSize          int
	pollInterval       time.Duration
	rateLimitDelay     time.Duration
	errorRetryInterval time.Duration
	heartbeatInterval  time.Duration
	heartbeatTimeout   time.Duration

	handlers     map[queue.TaskType]stage.Handler
	handlerOrder []queue.TaskType

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithSleeper overrides how the manager waits between polls and retries
// (used in tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) ManagerOption {
	return func(m *Manager) {
		if sleeper != nil {
			m.sleeper = sleeper
		}
	}
}

// NewManager constructs a workflow manager. Handlers are registered
// separately before Start.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	managerLogger := logger
	if managerLogger == nil {
		managerLogger = logging.NewNop()
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		logger:             managerLogger.With(logging.String(logging.FieldComponent, "workflow")),
		sleeper:            sleepContext,
		batchSize:          cfg.Workflow.BatchSize,
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		rateLimitDelay:     time.Duration(cfg.Workflow.RateLimitDelay) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeatInterval:  time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second,
		heartbeatTimeout:   time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second,
		handlers:           make(map[queue.TaskType]stage.Handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register installs a handler for its task type. Registering a second
// handler for the same type replaces the first.
func (m *Manager) Register(handler stage.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	taskType := handler.Type()
	if _, exists := m.handlers[taskType]; !exists {
		m.handlerOrder = append(m.handlerOrder, taskType)
	}
	m.handlers[taskType] = handler
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		return errors.New("no task handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight tasks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// LastError returns the most recent processing error, for status output.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Health reports the readiness of the store and every registered handler.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	m.mu.Lock()
	order := make([]queue.TaskType, len(m.handlerOrder))
	copy(order, m.handlerOrder)
	handlers := make(map[queue.TaskType]stage.Handler, len(m.handlers))
	for k, v := range m.handlers {
		handlers[k] = v
	}
	m.mu.Unlock()

	checks := make([]stage.Health, 0, len(order)+1)
	if err := m.store.Health(ctx); err != nil {
		checks = append(checks, stage.Unhealthy("queue", err.Error()))
	} else {
		checks = append(checks, stage.Healthy("queue"))
	}
	for _, taskType := range order {
		checks = append(checks, handlers[taskType].HealthCheck(ctx))
	}
	return checks
}

// MissingTypes lists known task types that have no registered handler.
// The daemon refuses to start with partial coverage so a task can never
// sit unclaimed because its type was forgotten at wiring time.
func (m *Manager) MissingTypes() []queue.TaskType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []queue.TaskType
	for _, taskType := range queue.KnownTaskTypes() {
		if _, ok := m.handlers[taskType]; !ok {
			missing = append(missing, taskType)
		}
	}
	return missing
}

func (m *Manager) registeredTypes() []queue.TaskType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]queue.TaskType, len(m.handlerOrder))
	copy(types, m.handlerOrder)
	return types
}

func (m *Manager) handlerFor(taskType queue.TaskType) (stage.Handler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handler, ok := m.handlers[taskType]
	return handler, ok
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
