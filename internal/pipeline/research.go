package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/analysis"
	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// Research enriches approved profiles with interests, sentiment,
// risk, and style classification ahead of message generation.
type Research struct {
	queue     *queue.Queue
	profiles  ProfileStore
	chunkSize int
	log       zerolog.Logger
}

func NewResearch(q *queue.Queue, profiles ProfileStore, chunkSize int) *Research {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Research{
		queue:     q,
		profiles:  profiles,
		chunkSize: chunkSize,
		log:       logging.WithComponent("Worker/research"),
	}
}

func (w *Research) Handle(ctx context.Context, payload json.RawMessage) error {
	job, err := ParseJob(StageResearch, payload)
	if err != nil {
		return err
	}

	approved, err := w.profiles.ListProfiles(ctx, job.CampaignID, models.ProfileApproved)
	if err != nil {
		return fmt.Errorf("listing approved profiles: %w", err)
	}

	// Bounded fan-out: at most chunkSize profiles are enriched at once.
	now := time.Now()
	done := make(chan struct{}, len(approved))
	sem := make(chan struct{}, w.chunkSize)
	var wg sync.WaitGroup
	for _, profile := range approved {
		wg.Add(1)
		sem <- struct{}{}

		go func(p models.Profile) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.researchOne(ctx, p, now); err != nil {
				w.log.Warn().Err(err).Str("username", p.Username).Msg("failed to save research, skipping")
				return
			}
			done <- struct{}{}
		}(profile)
	}
	wg.Wait()
	close(done)

	processed := len(done)

	w.log.Info().Str("campaign", job.CampaignID).Int("researched", processed).Msg("research complete")

	if processed == 0 {
		return nil
	}
	return advance(ctx, w.queue, StageResearch, job, w.log)
}

// researchOne computes the enrichment block and saves it.
func (w *Research) researchOne(ctx context.Context, profile models.Profile, now time.Time) error {
	combined := combinedText(profile)
	sentiment := analysis.AnalyzeSentiment(combined)

	if profile.Analysis == nil {
		profile.Analysis = &models.ProfileAnalysis{}
	}
	profile.Analysis.Interests = analysis.ExtractInterests(combined)
	profile.Analysis.Sentiment = sentiment.Overall
	profile.Analysis.SentimentLabel = sentiment.Label
	profile.Analysis.RiskScore = analysis.RiskScore(profile, now)
	profile.Analysis.ActivityLevel = analysis.ActivityLevel(profile.Posts)
	profile.Analysis.CommStyle = analysis.CommStyle(combined)

	return w.profiles.UpdateProfile(ctx, profile)
}
