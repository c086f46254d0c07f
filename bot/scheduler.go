package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"restricted-promotion/cooldown"
	"restricted-promotion/metrics"
	"restricted-promotion/utils"

	"github.com/robfig/cron/v3"
)

var c *cron.Cron

// startScheduler starts the cron jobs.
func startScheduler(b *Bot) {
	pruner, ok := b.Store.(cooldown.Pruner)
	if !ok {
		log.Println("Cooldown store expires entries on its own, prune job not scheduled.")
		return
	}

	log.Println("Initializing scheduler...")
	c = cron.New()
	_, err := c.AddFunc("@hourly", func() {
		log.Println("Running hourly cooldown prune...")
		if _, err := PruneExpired(context.Background(), pruner, b.Config.BanPeriod.Retention(), time.Now()); err != nil {
			utils.Error("Scheduler", "Prune", err.Error())
		}
	})
	if err != nil {
		log.Fatalf("Could not set up cron job: %v", err)
	}
	c.Start()
	log.Println("Cron job scheduled to run hourly.")
}

// PruneExpired drops every cooldown timestamp older than the retention period.
func PruneExpired(ctx context.Context, p cooldown.Pruner, retention time.Duration, now time.Time) (int64, error) {
	n, err := p.Prune(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune cooldown records: %w", err)
	}
	metrics.AddPruned(n)
	log.Printf("Pruned %d expired cooldown entries.", n)
	return n, nil
}

// stopScheduler stops the cron jobs.
func stopScheduler() {
	if c != nil {
		c.Stop()
		log.Println("Scheduler stopped.")
	}
}
