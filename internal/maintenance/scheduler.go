// Package maintenance runs the background repair loops: retrying failed
// graph syncs and pruning resolved approval actions.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talemachine/talemachine/internal/approval"
	"github.com/talemachine/talemachine/internal/config"
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/store"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron     *cron.Cron
	chapters store.ChapterStore
	service  *mutation.Service
	gate     *approval.Gate
	cfg      config.SchedulerConfig
}

func NewScheduler(chapters store.ChapterStore, service *mutation.Service, gate *approval.Gate, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		chapters: chapters,
		service:  service,
		gate:     gate,
		cfg:      cfg,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	pruneAfter, err := time.ParseDuration(s.cfg.PruneAfter)
	if err != nil {
		return fmt.Errorf("invalid prune_after %q: %w", s.cfg.PruneAfter, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.ResyncSchedule, func() {
		if n, err := s.RunResyncPass(ctx); err != nil {
			slog.Error("Graph resync pass failed", "error", err)
		} else if n > 0 {
			slog.Info("Graph resync pass complete", "repaired", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", s.cfg.ResyncSchedule, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.PruneSchedule, func() {
		if n, err := s.gate.PruneResolved(pruneAfter); err != nil {
			slog.Error("Approval prune pass failed", "error", err)
		} else if n > 0 {
			slog.Info("Pruned resolved approval actions", "removed", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.cfg.PruneSchedule, err)
	}

	s.cron.Start()
	slog.Info("Maintenance scheduler started",
		"resync_schedule", s.cfg.ResyncSchedule,
		"prune_schedule", s.cfg.PruneSchedule,
	)
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunResyncPass retries graph sync for chapters whose extraction failed
// at commit time. Returns how many chapters were repaired; chapters that
// fail again simply wait for the next pass.
func (s *Scheduler) RunResyncPass(ctx context.Context) (int, error) {
	batch := s.cfg.ResyncBatch
	if batch <= 0 {
		batch = config.DefaultSchedulerResyncBatch
	}

	unsynced, err := s.chapters.ListUnsyncedChapters(ctx, batch)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, ch := range unsynced {
		if err := s.service.ResyncChapter(ctx, ch.ID); err != nil {
			slog.Warn("Chapter resync failed", "chapter_id", ch.ID, "error", err)
			continue
		}
		repaired++
	}
	return repaired, nil
}
