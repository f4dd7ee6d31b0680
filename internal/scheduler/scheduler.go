package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job — периодическая задача.
type Job func(ctx context.Context)

// ErrDuplicateJob — задача с таким именем уже добавлена.
var ErrDuplicateJob = errors.New("job already registered")

type entry struct {
	name string
	job  Job
}

// Scheduler запускает задачи по cron-расписанию.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	jobs    []entry
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// Config — конфигурация Scheduler.
type Config struct {
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add регистрирует задачу.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.jobs {
		if e.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
		}
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.jobs = append(s.jobs, entry{name: name, job: job})
	s.logger.Info("job scheduled", "job", name, "schedule", spec)
	return nil
}

// run выполняет задачу с контекстом Scheduler.
func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	s.logger.Debug("running job", "job", name)
	job(ctx)
}

// Start запускает планировщик. Повторный вызов ничего не делает.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunNow немедленно выполняет задачу вне расписания.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	var job Job
	for _, e := range s.jobs {
		if e.name == name {
			job = e.job
			break
		}
	}
	s.mu.Unlock()

	if job == nil {
		return false
	}
	s.run(name, job)
	return true
}

// Jobs возвращает имена задач в порядке регистрации.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.jobs))
	for i, e := range s.jobs {
		names[i] = e.name
	}
	return names
}
