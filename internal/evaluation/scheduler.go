package evaluation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Scheduler dispatches background jobs. GoScheduler runs them as in-process
// goroutines; the queue package provides a durable asynq-backed alternative
// for multi-process deployments. Either way the jobs themselves are the
// service methods below, so behavior does not depend on the scheduler.
type Scheduler interface {
	ScheduleGeneration(ctx context.Context, evaluationID, promptVersionID uuid.UUID) error
	ScheduleJudge(ctx context.Context, evaluationID uuid.UUID) error
}

// Jobs is the job surface the schedulers invoke, implemented by Service.
type Jobs interface {
	RunGenerationJob(ctx context.Context, evaluationID, promptVersionID uuid.UUID) error
	RunJudgeJob(ctx context.Context, evaluationID uuid.UUID) error
}

// GoScheduler fires jobs as goroutines. Jobs never abort on row errors, so a
// goroutine ending means the job ran to completion; Wait drains in-flight jobs
// for shutdown and tests.
type GoScheduler struct {
	mu     sync.Mutex
	jobs   Jobs
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewGoScheduler(logger *slog.Logger) *GoScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoScheduler{logger: logger}
}

// Bind attaches the job implementation. Called once at wiring time, after the
// service holding this scheduler has been constructed.
func (s *GoScheduler) Bind(jobs Jobs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = jobs
}

func (s *GoScheduler) ScheduleGeneration(ctx context.Context, evaluationID, promptVersionID uuid.UUID) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.recoverPanic("generation", evaluationID)
		if err := s.jobs.RunGenerationJob(context.Background(), evaluationID, promptVersionID); err != nil {
			s.logger.Error("generation job failed",
				"evaluation_id", evaluationID,
				"prompt_version_id", promptVersionID,
				"error", err,
			)
		}
	}()
	return nil
}

func (s *GoScheduler) ScheduleJudge(ctx context.Context, evaluationID uuid.UUID) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.recoverPanic("judge", evaluationID)
		if err := s.jobs.RunJudgeJob(context.Background(), evaluationID); err != nil {
			s.logger.Error("judge job failed", "evaluation_id", evaluationID, "error", err)
		}
	}()
	return nil
}

func (s *GoScheduler) recoverPanic(kind string, evaluationID uuid.UUID) {
	if r := recover(); r != nil {
		s.logger.Error("background job panicked", "kind", kind, "evaluation_id", evaluationID, "panic", r)
	}
}

// Wait blocks until every scheduled job has finished.
func (s *GoScheduler) Wait() {
	s.wg.Wait()
}
