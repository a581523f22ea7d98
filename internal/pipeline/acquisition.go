package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/internal/ratelimit"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

const defaultAcquireLimit = 10

// Acquisition discovers candidate profiles per platform and persists
// them pending review. Platform searches are spaced by the rate
// limiter so bursts of campaigns do not hammer one platform.
type Acquisition struct {
	queue    *queue.Queue
	source   ProfileSource
	profiles ProfileStore
	limiter  *ratelimit.Limiter
	log      zerolog.Logger
}

func NewAcquisition(q *queue.Queue, source ProfileSource, profiles ProfileStore, limiter *ratelimit.Limiter) *Acquisition {
	return &Acquisition{
		queue:    q,
		source:   source,
		profiles: profiles,
		limiter:  limiter,
		log:      logging.WithComponent("Worker/acquisition"),
	}
}

func (w *Acquisition) Handle(ctx context.Context, payload json.RawMessage) error {
	job, err := ParseJob(StageAcquisition, payload)
	if err != nil {
		return err
	}

	limit := job.Criteria.MaxProfiles
	if limit <= 0 {
		limit = defaultAcquireLimit
	}

	acquired := 0
	for _, platform := range job.Platforms {
		if err := w.limiter.Wait(ctx, platform+":search"); err != nil {
			return err
		}

		found, err := w.source.Discover(ctx, platform, job.Criteria, limit)
		if err != nil {
			w.log.Warn().Err(err).Str("platform", platform).Str("campaign", job.CampaignID).
				Msg("platform search failed, skipping")
			continue
		}

		for _, profile := range found {
			profile.CampaignID = job.CampaignID
			profile.Platform = platform
			profile.Status = models.ProfilePending
			profile.CreatedAt = time.Now()

			if _, err := w.profiles.CreateProfile(ctx, profile); err != nil {
				w.log.Warn().Err(err).Str("username", profile.Username).Msg("failed to persist profile")
				continue
			}
			acquired++
		}
	}

	if acquired == 0 {
		return fmt.Errorf("campaign %s: no profiles acquired on any platform", job.CampaignID)
	}

	w.log.Info().Str("campaign", job.CampaignID).Int("acquired", acquired).Msg("acquisition complete")
	return advance(ctx, w.queue, StageAcquisition, job, w.log)
}
