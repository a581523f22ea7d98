package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/clients"
	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/internal/queue"
	"github.com/shehryarbajwa/campaign-engine/internal/timing"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// dailyCounter tracks per-platform sends for the current local date.
// Counts reset when the date rolls over, checked on every increment.
type dailyCounter struct {
	mu     sync.Mutex
	day    string
	counts map[string]int
	now    func() time.Time
}

func newDailyCounter(now func() time.Time) *dailyCounter {
	if now == nil {
		now = time.Now
	}
	return &dailyCounter{counts: make(map[string]int), now: now}
}

// tryIncr consumes one send slot for the platform, reporting false
// when the daily cap is already reached.
func (c *dailyCounter) tryIncr(platform string, limit int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.now().Format("2006-01-02")
	if c.day != today {
		c.day = today
		c.counts = make(map[string]int)
	}
	if c.counts[platform] >= limit {
		return false
	}
	c.counts[platform]++
	return true
}

// EngagementConfig tunes per-campaign send behavior.
type EngagementConfig struct {
	DailyMessageCap int
	SendDelay       time.Duration
	LiveDelivery    bool
}

// Engagement generates one personalized message per approved profile
// and, when live delivery is on, dispatches it through the automation
// backend at a human pace.
type Engagement struct {
	queue     *queue.Queue
	profiles  ProfileStore
	messages  MessageStore
	campaigns CampaignStore
	generator Generator       // nil when the LLM service is disabled
	sender    Sender          // nil when live delivery is disabled
	sessions  SessionProvider // nil when the browser pool is disabled
	caps      *dailyCounter
	cfg       EngagementConfig
	log       zerolog.Logger

	// Optional humanized pacing. When unset, the fixed SendDelay
	// applies between consecutive sends.
	pacer        *timing.Engine
	pacerProfile timing.UserProfile
	sessionStart time.Time
}

func NewEngagement(q *queue.Queue, profiles ProfileStore, messages MessageStore, campaigns CampaignStore,
	generator Generator, sender Sender, sessions SessionProvider, cfg EngagementConfig) *Engagement {
	if cfg.DailyMessageCap <= 0 {
		cfg.DailyMessageCap = 50
	}
	return &Engagement{
		queue:     q,
		profiles:  profiles,
		messages:  messages,
		campaigns: campaigns,
		generator: generator,
		sender:    sender,
		sessions:  sessions,
		caps:      newDailyCounter(nil),
		cfg:       cfg,
		log:       logging.WithComponent("Worker/engagement"),
	}
}

// UsePacer switches inter-message pauses from the fixed SendDelay to
// humanized delays drawn from the engine.
func (w *Engagement) UsePacer(engine *timing.Engine, profile timing.UserProfile) {
	w.pacer = engine
	w.pacerProfile = profile
	w.sessionStart = time.Now()
}

func (w *Engagement) sendDelay(now time.Time) time.Duration {
	if w.pacer == nil {
		return w.cfg.SendDelay
	}
	return w.pacer.NextActionDelay(timing.Context{
		Profile:      w.pacerProfile,
		CurrentTime:  now,
		SessionStart: w.sessionStart,
	})
}

func (w *Engagement) Handle(ctx context.Context, payload json.RawMessage) error {
	job, err := ParseJob(StageEngagement, payload)
	if err != nil {
		return err
	}

	campaign, err := w.campaigns.GetCampaign(ctx, job.CampaignID)
	if err != nil {
		return fmt.Errorf("fetching campaign: %w", err)
	}

	approved, err := w.profiles.ListProfiles(ctx, job.CampaignID, models.ProfileApproved)
	if err != nil {
		return fmt.Errorf("listing approved profiles: %w", err)
	}

	queued := 0
	for i, profile := range approved {
		if !w.caps.tryIncr(profile.Platform, w.cfg.DailyMessageCap) {
			w.log.Warn().Str("platform", profile.Platform).Str("campaign", job.CampaignID).
				Msg("daily message cap reached, deferring remaining profiles")
			break
		}

		if i > 0 {
			if delay := w.sendDelay(time.Now()); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if err := w.engageOne(ctx, *campaign, profile); err != nil {
			w.log.Warn().Err(err).Str("username", profile.Username).Msg("engagement failed, skipping")
			continue
		}
		queued++
	}

	w.log.Info().Str("campaign", job.CampaignID).Int("queued", queued).Msg("engagement complete")

	if queued == 0 {
		return nil
	}
	return advance(ctx, w.queue, StageEngagement, job, w.log)
}

func (w *Engagement) engageOne(ctx context.Context, campaign models.Campaign, profile models.Profile) error {
	content, generated := w.composeMessage(ctx, campaign, profile)

	message := models.Message{
		ID:         uuid.New().String(),
		CampaignID: campaign.ID,
		ProfileID:  profile.ID,
		Username:   profile.Username,
		Platform:   profile.Platform,
		Content:    content,
		Status:     models.MessagePending,
		Generated:  generated,
		CreatedAt:  time.Now(),
	}

	created, err := w.messages.CreateMessage(ctx, message)
	if err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	message = *created

	if w.sender == nil || !w.cfg.LiveDelivery {
		return nil
	}

	var sessionID string
	if w.sessions != nil {
		sessionID, err = w.sessions.SessionFor(ctx, profile.Platform)
	}
	if err == nil {
		err = w.sender.SendMessage(ctx, clients.SendRequest{
			SessionID: sessionID,
			Platform:  profile.Platform,
			Username:  profile.Username,
			Content:   content,
		})
	}
	if err != nil {
		message.Status = models.MessageFailed
		message.FailReason = err.Error()
	} else {
		message.Status = models.MessageSent
	}
	message.UpdatedAt = time.Now()

	if err := w.messages.UpdateMessage(ctx, message); err != nil {
		return fmt.Errorf("updating message status: %w", err)
	}
	return nil
}

// composeMessage tries the LLM service first and falls back to a
// style-matched template. Engagement never blocks on generation.
func (w *Engagement) composeMessage(ctx context.Context, campaign models.Campaign, profile models.Profile) (content, generated string) {
	if w.generator != nil {
		if msg, err := w.generator.GenerateMessage(ctx, campaign, profile); err == nil {
			return msg, "llm"
		} else {
			w.log.Warn().Err(err).Str("username", profile.Username).Msg("llm generation failed, using template")
		}
	}
	return templateMessage(campaign, profile), "template"
}

func templateMessage(campaign models.Campaign, profile models.Profile) string {
	style := "balanced"
	var interest string
	if profile.Analysis != nil {
		if profile.Analysis.CommStyle != "" {
			style = profile.Analysis.CommStyle
		}
		if len(profile.Analysis.Interests) > 0 {
			interest = profile.Analysis.Interests[0]
		}
	}

	switch style {
	case "casual":
		if interest != "" {
			return fmt.Sprintf("Hey %s! Saw you're into %s, thought you might like what we're doing with %s. Worth a look?",
				profile.Username, interest, campaign.Name)
		}
		return fmt.Sprintf("Hey %s! Came across your profile and thought %s might be up your alley. Worth a look?",
			profile.Username, campaign.Name)
	case "formal":
		if interest != "" {
			return fmt.Sprintf("Hello %s, I noticed your interest in %s and wanted to share %s with you. I would welcome the chance to tell you more.",
				profile.Username, interest, campaign.Name)
		}
		return fmt.Sprintf("Hello %s, I came across your profile and believe %s may be relevant to you. I would welcome the chance to tell you more.",
			profile.Username, campaign.Name)
	default:
		if interest != "" {
			return fmt.Sprintf("Hi %s, your posts about %s caught my eye. We're working on %s and I think you'd find it interesting.",
				profile.Username, interest, campaign.Name)
		}
		return fmt.Sprintf("Hi %s, your profile caught my eye. We're working on %s and I think you'd find it interesting.",
			profile.Username, campaign.Name)
	}
}
