package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/analysis"
	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// Filtering decision thresholds on the blended 0-100 scores.
const (
	botRejectCeiling  = 50.0
	qualityFloor      = 30.0
	autoApproveScore  = 70.0
	autoApproveMaxBot = 30.0

	// Blend weights when the ML service responds.
	localWeight = 0.4
	mlWeight    = 0.6
)

// Filtering scores each pending profile and auto-approves, auto-
// rejects, or leaves it pending for human review. Only campaigns with
// at least one approval advance.
type Filtering struct {
	queue     *queue.Queue
	profiles  ProfileStore
	scorer    Scorer // nil when the ML service is disabled
	campaigns CampaignStore
	chunkSize int
	log       zerolog.Logger
}

func NewFiltering(q *queue.Queue, profiles ProfileStore, campaigns CampaignStore, scorer Scorer, chunkSize int) *Filtering {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Filtering{
		queue:     q,
		profiles:  profiles,
		scorer:    scorer,
		campaigns: campaigns,
		chunkSize: chunkSize,
		log:       logging.WithComponent("Worker/filtering"),
	}
}

func (w *Filtering) Handle(ctx context.Context, payload json.RawMessage) error {
	job, err := ParseJob(StageFiltering, payload)
	if err != nil {
		return err
	}

	pending, err := w.profiles.ListProfiles(ctx, job.CampaignID, models.ProfilePending)
	if err != nil {
		return fmt.Errorf("listing pending profiles: %w", err)
	}

	var targets []string
	if campaign, err := w.campaigns.GetCampaign(ctx, job.CampaignID); err == nil {
		targets = campaign.Criteria.TargetInterests
	}

	// Bounded fan-out: at most chunkSize profiles are scored at once.
	decisions := make(chan models.ProfileStatus, len(pending))
	sem := make(chan struct{}, w.chunkSize)
	var wg sync.WaitGroup
	for _, profile := range pending {
		wg.Add(1)
		sem <- struct{}{}

		go func(p models.Profile) {
			defer wg.Done()
			defer func() { <-sem }()
			decision, err := w.filterOne(ctx, p, targets)
			if err != nil {
				w.log.Warn().Err(err).Str("username", p.Username).Msg("profile filtering failed, skipping")
				return
			}
			decisions <- decision
		}(profile)
	}
	wg.Wait()
	close(decisions)

	approved, rejected := 0, 0
	for decision := range decisions {
		switch decision {
		case models.ProfileApproved:
			approved++
		case models.ProfileRejected:
			rejected++
		}
	}

	w.log.Info().Str("campaign", job.CampaignID).
		Int("pending", len(pending)-approved-rejected).
		Int("approved", approved).Int("rejected", rejected).
		Msg("filtering complete")

	if approved == 0 {
		return nil
	}
	return advance(ctx, w.queue, StageFiltering, job, w.log)
}

// filterOne scores one profile and applies the decision thresholds.
func (w *Filtering) filterOne(ctx context.Context, profile models.Profile, targets []string) (models.ProfileStatus, error) {
	combined := combinedText(profile)
	bot := analysis.AnalyzeBot(profile)
	sentiment := analysis.AnalyzeSentiment(combined)
	interests := analysis.ExtractInterests(combined)
	quality := analysis.ScoreQuality(profile, bot.Score, sentiment.Overall, interests, targets)

	botScore := bot.Score
	qualityScore := quality.Overall
	if w.scorer != nil {
		if ml := w.scorer.Analyze(ctx, profile); ml != nil {
			botScore = botScore*localWeight + ml.BotScore*mlWeight
			qualityScore = qualityScore*localWeight + ml.QualityScore*mlWeight
		}
	}

	profile.Analysis = &models.ProfileAnalysis{
		BotScore:       botScore,
		QualityScore:   qualityScore,
		RelevanceScore: quality.Relevance,
		Sentiment:      sentiment.Overall,
		SentimentLabel: sentiment.Label,
		Interests:      interests,
		Flags:          bot.Flags,
	}
	if err := w.profiles.UpdateProfile(ctx, profile); err != nil {
		return profile.Status, fmt.Errorf("saving analysis: %w", err)
	}

	switch {
	case botScore >= botRejectCeiling || qualityScore < qualityFloor:
		if err := w.profiles.RejectProfile(ctx, profile.ID); err != nil {
			return profile.Status, err
		}
		return models.ProfileRejected, nil
	case qualityScore >= autoApproveScore && botScore < autoApproveMaxBot:
		if err := w.profiles.ApproveProfile(ctx, profile.ID); err != nil {
			return profile.Status, err
		}
		return models.ProfileApproved, nil
	default:
		return models.ProfilePending, nil
	}
}

func combinedText(profile models.Profile) string {
	text := profile.Bio
	for _, p := range profile.Posts {
		text += " " + p.Content
	}
	return text
}
