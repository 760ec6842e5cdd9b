// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the portal's periodic maintenance jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/oportal-go/internal/logging"
	"github.com/olegiv/oportal-go/internal/model"
)

var (
	// ErrJobNotFound is returned by Trigger for an unknown job name.
	ErrJobNotFound = errors.New("scheduler: job not found")
	// ErrJobRunning is returned by Trigger while the job is already running.
	ErrJobRunning = errors.New("scheduler: job already running")
)

// jobTimeout bounds a single run.
const jobTimeout = 2 * time.Minute

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named unit of periodic work.
type Job struct {
	Name        string
	Description string
	// Schedule is a five-field cron expression or a descriptor like "@every 5m".
	Schedule string
	Run      func(ctx context.Context) error
}

// JobInfo is a snapshot of a job for the admin console.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	LastError   string
	Running     bool
}

type entry struct {
	job       Job
	id        cron.EntryID
	running   bool
	lastRun   time.Time
	lastError string
}

// Scheduler wraps a cron runner and tracks job state.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*entry
}

// New creates a new scheduler instance.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
		jobs:   make(map[string]*entry),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}
	if _, err := parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() { _ = s.run(job.Name, false) })
	if err != nil {
		return err
	}
	e.id = id
	s.jobs[job.Name] = e

	s.logger.Debug("registered scheduled job", "name", job.Name, "schedule", job.Schedule)
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		result = append(result, JobInfo{
			Name:        e.job.Name,
			Description: e.job.Description,
			Schedule:    e.job.Schedule,
			LastRun:     e.lastRun,
			NextRun:     s.cron.Entry(e.id).Next,
			LastError:   e.lastError,
			Running:     e.running,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Trigger runs a job immediately in the calling goroutine.
func (s *Scheduler) Trigger(name string) error {
	return s.run(name, true)
}

func (s *Scheduler) run(name string, manual bool) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if e.running {
		s.mu.Unlock()
		if !manual {
			s.logger.Debug("skipping overlapping job run", "name", name)
		}
		return ErrJobRunning
	}
	e.running = true
	run := e.job.Run
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)

	s.mu.Lock()
	e.running = false
	e.lastRun = start
	e.lastError = ""
	if err != nil {
		e.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed",
			logging.AttrCategory, model.EventCategorySystem,
			"name", name,
			"manual", manual,
			"error", err,
		)
		return err
	}
	s.logger.Debug("scheduled job finished", "name", name, "manual", manual, "took", time.Since(start))
	return nil
}
