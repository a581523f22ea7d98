package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
)

// Runner owns the stage worker set: one blocking pop-handle loop per
// stage, all stopped together on context cancellation.
type Runner struct {
	queue  *queue.Queue
	stages map[string]queue.Handler
	log    zerolog.Logger
}

func NewRunner(q *queue.Queue) *Runner {
	return &Runner{
		queue:  q,
		stages: make(map[string]queue.Handler),
		log:    logging.WithComponent("Pipeline"),
	}
}

// Register binds a handler to a stage topic.
func (r *Runner) Register(stage string, handler queue.Handler) {
	r.stages[stage] = handler
}

// Run starts every registered stage loop and blocks until they all
// stop. Individual loops exit only on context cancellation or a
// transport failure.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for stage, handler := range r.stages {
		wg.Add(1)
		go func(stage string, handler queue.Handler) {
			defer wg.Done()
			r.log.Info().Str("stage", stage).Msg("worker started")
			if err := r.queue.RunLoop(ctx, stage, handler); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Str("stage", stage).Msg("worker loop exited")
			}
		}(stage, handler)
	}
	wg.Wait()
}
