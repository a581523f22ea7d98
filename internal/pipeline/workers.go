package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/clients"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// ProfileStore is the slice of the persistence API the workers use
// for profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile models.Profile) (*models.Profile, error)
	ListProfiles(ctx context.Context, campaignID string, status models.ProfileStatus) ([]models.Profile, error)
	UpdateProfile(ctx context.Context, profile models.Profile) error
	ApproveProfile(ctx context.Context, id string) error
	RejectProfile(ctx context.Context, id string) error
}

// MessageStore is the message surface of the persistence API.
type MessageStore interface {
	CreateMessage(ctx context.Context, message models.Message) (*models.Message, error)
	ListMessages(ctx context.Context, campaignID string, status models.MessageStatus) ([]models.Message, error)
	UpdateMessage(ctx context.Context, message models.Message) error
}

// CampaignStore is the campaign surface of the persistence API.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	RecordAnalytics(ctx context.Context, analytics models.CampaignAnalytics) error
}

// Scorer is the optional external ML service. A nil result means
// unavailable; callers fall back to local heuristics alone.
type Scorer interface {
	Analyze(ctx context.Context, profile models.Profile) *clients.MLAnalysis
}

// Generator is the optional LLM message service. Errors trigger the
// template fallback.
type Generator interface {
	GenerateMessage(ctx context.Context, campaign models.Campaign, profile models.Profile) (string, error)
}

// Sender delivers messages and polls their state through the
// browser-automation backend.
type Sender interface {
	SendMessage(ctx context.Context, req clients.SendRequest) error
	CheckMessage(ctx context.Context, platform, username, messageID string) (*clients.MessageCheck, error)
}

// SessionProvider hands out a live platform session backing the
// automation calls. Nil when the browser pool is disabled.
type SessionProvider interface {
	SessionFor(ctx context.Context, platform string) (string, error)
}

// defaultChunkSize bounds how many profiles a worker processes
// concurrently when no explicit chunk size is configured.
const defaultChunkSize = 5

// advance enqueues the successor job for a stage, if one exists.
func advance(ctx context.Context, q *queue.Queue, stage string, job Job, log zerolog.Logger) error {
	topic, next, ok := job.NextStage(stage)
	if !ok {
		return nil
	}
	if err := q.Enqueue(ctx, topic, next); err != nil {
		return err
	}
	log.Info().Str("campaign", job.CampaignID).Str("next", topic).Msg("job advanced")
	return nil
}
