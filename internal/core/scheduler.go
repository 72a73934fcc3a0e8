package core

import (
	"PerpIndexer/internal/handler"
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/outbound"
	"PerpIndexer/internal/store"
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Plan is the dependency graph of one block's handlers.
type Plan struct {
	// Deps[i] lists the earlier events event i must wait for: the last
	// toucher of each of its keys.
	Deps [][]int
	// Frontiers groups events whose dependencies all sit in earlier
	// frontiers. Indexes ascend inside a frontier.
	Frontiers [][]int
}

// BuildPlan builds the execution plan from the resource keys of each event,
// in block order. Events sharing a key land in different frontiers in their
// original order; events without keys land in the first frontier.
func BuildPlan(keys [][]string) Plan {
	plan := Plan{Deps: make([][]int, len(keys))}
	lastTouch := make(map[string]int)
	level := make([]int, len(keys))

	for i, ks := range keys {
		seen := make(map[int]bool, len(ks))
		for _, k := range ks {
			j, ok := lastTouch[k]
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			plan.Deps[i] = append(plan.Deps[i], j)
			if level[j]+1 > level[i] {
				level[i] = level[j] + 1
			}
		}
		for _, k := range ks {
			lastTouch[k] = i
		}

		for len(plan.Frontiers) <= level[i] {
			plan.Frontiers = append(plan.Frontiers, nil)
		}
		plan.Frontiers[level[i]] = append(plan.Frontiers[level[i]], i)
	}
	return plan
}

// Scheduler applies a block's handlers frontier by frontier. Handlers in a
// frontier run concurrently and share the block transaction.
type Scheduler struct {
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewScheduler(metrics *observability.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{metrics: metrics, logger: logger}
}

// Run applies every handler. The first failure cancels the rest of its
// frontier, later frontiers never start, and the error is returned as is.
func (s *Scheduler) Run(ctx context.Context, handlers []handler.Handler, tx store.Tx, agg *outbound.Aggregator) error {
	keys := make([][]string, len(handlers))
	for i, h := range handlers {
		keys[i] = h.ParallelizationIDs()
	}
	plan := BuildPlan(keys)
	if s.metrics != nil {
		s.metrics.Frontiers.Observe(float64(len(plan.Frontiers)))
	}

	for _, frontier := range plan.Frontiers {
		if len(frontier) == 1 {
			if err := s.apply(ctx, handlers[frontier[0]], tx, agg); err != nil {
				return err
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range frontier {
			h := handlers[idx]
			g.Go(func() error {
				return s.apply(gctx, h, tx, agg)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) apply(ctx context.Context, h handler.Handler, tx store.Tx, agg *outbound.Aggregator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := h.ApplyToStore(ctx, tx, agg)

	status := "success"
	if err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.HandlerDur.WithLabelValues(h.Subtype(), status).Observe(time.Since(start).Seconds())
	}
	return err
}
