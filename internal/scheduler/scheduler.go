// Package scheduler runs periodic maintenance: expiring cached market data
// and chat sessions, and dropping stale relay ticks.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"market-dashboard/pkg/i18n"
)

// Purger deletes expired cache rows. *data.Service satisfies it.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Pruner drops cached ticks older than maxAge. *relay.Hub satisfies it.
type Pruner interface {
	PruneTicks(maxAge time.Duration) int
}

// ChatCleaner deletes expired chat sessions. *chat.Service satisfies it.
type ChatCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Scheduler owns the cron runner. Chats is optional.
type Scheduler struct {
	Cron       *cron.Cron
	Purger     Purger
	Pruner     Pruner
	Chats      ChatCleaner
	TickMaxAge time.Duration
	Ctx        context.Context
}

// New builds a scheduler; Purger or Pruner may be nil.
func New(ctx context.Context, purger Purger, pruner Pruner, tickMaxAge time.Duration) *Scheduler {
	if tickMaxAge <= 0 {
		tickMaxAge = time.Hour
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithParser(cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		Purger:     purger,
		Pruner:     pruner,
		TickMaxAge: tickMaxAge,
		Ctx:        ctx,
	}
}

// Register adds the maintenance job on spec, e.g. "@every 15m".
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register maintenance %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start(spec string) {
	s.Cron.Start()
	log.Printf(i18n.Get("SchedulerStarted"), spec)
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
}

// RunNow performs one maintenance pass.
func (s *Scheduler) RunNow() {
	if s.Purger != nil {
		ctx, cancel := context.WithTimeout(s.Ctx, 30*time.Second)
		n, err := s.Purger.Purge(ctx)
		cancel()
		if err != nil {
			log.Printf(i18n.Get("SchedulerJobFailed"), "cache purge", err)
		} else if n > 0 {
			log.Printf(i18n.Get("CachePurged"), n)
		}
	}
	if s.Chats != nil {
		ctx, cancel := context.WithTimeout(s.Ctx, 30*time.Second)
		n, err := s.Chats.CleanupExpired(ctx)
		cancel()
		if err != nil {
			log.Printf(i18n.Get("SchedulerJobFailed"), "chat cleanup", err)
		} else if n > 0 {
			log.Printf(i18n.Get("ChatSessionsExpired"), n)
		}
	}
	if s.Pruner != nil {
		if n := s.Pruner.PruneTicks(s.TickMaxAge); n > 0 {
			log.Printf(i18n.Get("TicksPruned"), n)
		}
	}
}
