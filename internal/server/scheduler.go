package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/krakenlabs/krakbit/internal/archive"
	"github.com/krakenlabs/krakbit/internal/generate"
	"github.com/krakenlabs/krakbit/models"
)

// Scheduler generates a digest unattended on a cron cadence and archives the
// result, so a fresh daily batch exists before the first client connects.
type Scheduler struct {
	Gen     generate.Generator
	Archive *archive.Store
	Rdb     *redis.Client
	Cron    string
	Query   string
	Stop    chan struct{}
	Logger  *log.Logger

	lastRun *time.Time
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if !isDue(s.Cron, s.lastRun) {
		return
	}
	// distributed lock so replicas don't generate the same digest
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "krakbit:sched:lock", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "krakbit:sched:lock")
	}
	now := time.Now()
	s.lastRun = &now

	sink := &collectSink{}
	if err := s.Gen.Generate(ctx, s.Query, sink); err != nil {
		s.Logger.Printf("scheduled generation failed: %v", err)
		return
	}
	if s.Archive == nil {
		s.Logger.Printf("scheduled generation produced %d items, no archive configured", len(sink.items))
		return
	}
	id, err := s.Archive.SaveDigest(ctx, models.Digest{Query: s.Query, Items: sink.items})
	if err != nil {
		s.Logger.Printf("scheduled archive save failed: %v", err)
		return
	}
	s.Logger.Printf("scheduled digest %s archived (%d items)", id, len(sink.items))
}

// isDue determines whether the schedule should fire now given the last run.
// Supports "@daily", "@hourly" and 5-field cron expressions; an unparsable
// expression falls back to @daily.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}

// collectSink gathers a generation without a client on the other end.
type collectSink struct {
	items []models.Item
}

func (s *collectSink) Status(ctx context.Context, message string) error { return ctx.Err() }

func (s *collectSink) Item(ctx context.Context, item models.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.items = append(s.items, item)
	return nil
}
