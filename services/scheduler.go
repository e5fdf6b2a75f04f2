// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is a periodic background task.
type Job struct {
	Name  string
	Every time.Duration
	// Immediate runs the first iteration right after Start.
	Immediate bool
	Run       func(ctx context.Context) error
}

// StartScheduler registers jobs on a gocron scheduler and starts it. Jobs
// with a non-positive interval are skipped. Runs of the same job never
// overlap. The caller shuts the scheduler down.
func StartScheduler(ctx context.Context, log *zap.Logger, jobs ...Job) (gocron.Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "scheduler"))

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	for _, job := range jobs {
		if job.Every <= 0 || job.Run == nil {
			log.Info("job disabled", zap.String("job", job.Name))
			continue
		}
		opts := []gocron.JobOption{
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if job.Immediate {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}

		run := job.Run
		name := job.Name
		_, err := sched.NewJob(
			gocron.DurationJob(job.Every),
			gocron.NewTask(func() {
				if ctx.Err() != nil {
					return
				}
				if err := run(ctx); err != nil {
					log.Warn("job failed", zap.String("job", name), zap.Error(err))
				}
			}),
			opts...,
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
		log.Info("job scheduled", zap.String("job", name), zap.Duration("every", job.Every))
	}

	sched.Start()
	return sched, nil
}

// ReaperJob disposes pending sessions older than ttl. A non-positive ttl
// yields a disabled job.
func ReaperJob(l *Lobby, ttl time.Duration, log *zap.Logger) Job {
	if log == nil {
		log = zap.NewNop()
	}
	every := ttl / 2
	if ttl > 0 && every < time.Second {
		every = time.Second
	}
	return Job{
		Name:  "pending-session-reaper",
		Every: every,
		Run: func(ctx context.Context) error {
			n, err := l.ReapPending(ctx, ttl)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("expired pending sessions", zap.Int("count", n))
			}
			return nil
		},
	}
}
