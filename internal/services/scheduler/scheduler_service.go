package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/common"
	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/services/watcher"
)

// jobEntry represents a registered housekeeping job with metadata
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
}

// Service runs the periodic housekeeping jobs: solver balance checks and
// statistics summaries. The watcher loop itself is not cron-driven; its
// cadence lives in the watcher service.
type Service struct {
	eventService interfaces.EventService
	solver       interfaces.CaptchaSolver
	watcher      *watcher.Service
	cron         *cron.Cron
	logger       arbor.ILogger
	cfg          common.SchedulerConfig
	minBalance   float64

	jobMu   sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

// NewService creates a new scheduler service
func NewService(eventService interfaces.EventService, solver interfaces.CaptchaSolver,
	watcherService *watcher.Service, cfg common.SchedulerConfig, minBalance float64,
	logger arbor.ILogger) *Service {
	return &Service{
		eventService: eventService,
		solver:       solver,
		watcher:      watcherService,
		cron:         cron.New(),
		logger:       logger,
		cfg:          cfg,
		minBalance:   minBalance,
		jobs:         make(map[string]*jobEntry),
	}
}

// Start registers the housekeeping jobs and begins the cron loop.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if !s.cfg.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	if err := s.register("balance_check", s.cfg.BalanceSchedule, s.checkBalance); err != nil {
		return err
	}
	if err := s.register("stats_summary", s.cfg.SummarySchedule, s.logSummary); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("balance_schedule", s.cfg.BalanceSchedule).
		Str("summary_schedule", s.cfg.SummarySchedule).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler and waits for any in-flight job to finish.
func (s *Service) Stop() {
	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
}

// register adds one named job to the cron loop with run bookkeeping.
func (s *Service) register(name, schedule string, handler func() error) error {
	if schedule == "" {
		s.logger.Debug().Str("job", name).Msg("Job has no schedule, skipping")
		return nil
	}

	entry := &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}

	id, err := s.cron.AddFunc(schedule, func() {
		now := time.Now()

		s.jobMu.Lock()
		entry.lastRun = &now
		s.jobMu.Unlock()

		if err := handler(); err != nil {
			s.jobMu.Lock()
			entry.lastError = err.Error()
			s.jobMu.Unlock()

			s.logger.Warn().Err(err).Str("job", name).Msg("Scheduled job failed")
			return
		}

		s.jobMu.Lock()
		entry.lastError = ""
		s.jobMu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	entry.cronID = id

	s.jobMu.Lock()
	s.jobs[name] = entry
	s.jobMu.Unlock()

	return nil
}

// checkBalance queries the solver account balance and warns when it drops
// below the configured threshold. A drained account stalls the watcher at
// the next token refresh, so this is worth surfacing early.
func (s *Service) checkBalance() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	balance, err := s.solver.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance check failed: %w", err)
	}

	if balance < s.minBalance {
		s.logger.Warn().
			Float64("balance", balance).
			Float64("min_balance", s.minBalance).
			Msg("Solver balance below threshold")
	} else {
		s.logger.Info().Float64("balance", balance).Msg("Solver balance checked")
	}

	s.eventService.Publish(ctx, interfaces.Event{
		Type: interfaces.EventBalanceChecked,
		Payload: map[string]interface{}{
			"balance": balance,
			"low":     balance < s.minBalance,
		},
	})

	return nil
}

// logSummary writes a periodic one-line digest of the watcher statistics.
func (s *Service) logSummary() error {
	snapshot := s.watcher.Snapshot()

	event := s.logger.Info().
		Str("state", string(snapshot.State)).
		Int("total_checks", snapshot.Stats.TotalChecks)
	if snapshot.Stats.CurrentEarliest != nil {
		event = event.Str("current_earliest", snapshot.Stats.CurrentEarliest.Format(time.RFC3339))
	}
	if snapshot.Stats.EarliestEverSeen != nil {
		event = event.Str("earliest_ever", snapshot.Stats.EarliestEverSeen.Format(time.RFC3339))
	}
	if snapshot.LastError != "" {
		event = event.Str("last_error", snapshot.LastError)
	}
	event.Msg("Watcher summary")

	return nil
}
