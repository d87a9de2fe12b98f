// Package paginate drives repeated strategy invocations until a stop
// condition is met: the page budget is spent, no next target is known, or
// the run context is cancelled.
package paginate

import (
	"context"
	"log/slog"
	"time"

	"webharvest/models"
	"webharvest/strategy"
)

// Controller aggregates raw records across pages in page-then-item order
// and maintains per-page statistics. MaxPages zero means unlimited.
type Controller struct {
	Strategy strategy.Strategy
	Delay    time.Duration
	MaxPages int
	Stats    *models.RunStats
}

// Run fetches pages starting from the configured sources, following
// next-page targets while pages succeed and the budget holds. Failed pages
// count toward the budget but never halt the run; an exhausted source list
// simply ends it.
func (c *Controller) Run(ctx context.Context, sources []string) []models.RawRecord {
	queue := make([]string, len(sources))
	copy(queue, sources)
	visited := make(map[string]bool)

	var records []models.RawRecord
	pages := 0
	for len(queue) > 0 && ctx.Err() == nil {
		if c.MaxPages > 0 && pages >= c.MaxPages {
			slog.Info("page budget reached", slog.Int("max_pages", c.MaxPages))
			break
		}

		target := queue[0]
		queue = queue[1:]
		if visited[target] {
			continue
		}
		visited[target] = true

		if pages > 0 && !sleep(ctx, c.Delay) {
			break
		}

		slog.Info("fetching page",
			slog.Int("page", pages+1),
			slog.String("target", target),
		)
		page := c.Strategy.FetchPage(ctx, target)
		pages++

		switch page.Outcome {
		case models.OutcomeOK:
			c.Stats.PagesScraped++
			records = append(records, page.Records...)
			c.Stats.ItemsExtracted += len(page.Records)
			if page.NextTarget != "" && !visited[page.NextTarget] {
				queue = append(queue, page.NextTarget)
			}
		case models.OutcomeFailed:
			c.Stats.PagesFailed++
			if page.ErrorCategory != "" {
				c.Stats.CountError(page.ErrorCategory)
			}
		case models.OutcomeRobotsSkipped:
			c.Stats.RobotsSkipped++
		}
	}
	return records
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
