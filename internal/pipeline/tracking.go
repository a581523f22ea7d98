package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/analysis"
	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// Tracking confirms deliveries, detects and classifies responses, and
// records campaign analytics. Terminal stage, no successor.
type Tracking struct {
	messages  MessageStore
	campaigns CampaignStore
	sender    Sender // nil when live checking is disabled
	log       zerolog.Logger
}

func NewTracking(messages MessageStore, campaigns CampaignStore, sender Sender) *Tracking {
	return &Tracking{
		messages:  messages,
		campaigns: campaigns,
		sender:    sender,
		log:       logging.WithComponent("Worker/tracking"),
	}
}

func (w *Tracking) Handle(ctx context.Context, payload json.RawMessage) error {
	job, err := ParseJob(StageTracking, payload)
	if err != nil {
		return err
	}

	messages, err := w.messages.ListMessages(ctx, job.CampaignID, "")
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}

	stats := models.CampaignAnalytics{CampaignID: job.CampaignID, LastPolledAt: time.Now()}
	positive := 0

	for i := range messages {
		message := messages[i]
		if err := w.trackOne(ctx, &message); err != nil {
			w.log.Warn().Err(err).Str("message", message.ID).Msg("tracking failed, skipping")
			continue
		}

		switch message.Status {
		case models.MessageSent, models.MessageDelivered, models.MessageResponded:
			stats.MessagesSent++
		case models.MessageFailed:
			stats.Failed++
		}
		if message.Status == models.MessageDelivered || message.Status == models.MessageResponded {
			stats.Delivered++
		}
		if message.Response != nil {
			stats.Responses++
			if message.Response.Class == models.ResponsePositive {
				positive++
			}
		}
	}

	if stats.Responses > 0 {
		stats.PositiveRate = float64(positive) / float64(stats.Responses)
	}
	if err := w.campaigns.RecordAnalytics(ctx, stats); err != nil {
		return fmt.Errorf("recording analytics: %w", err)
	}

	w.log.Info().Str("campaign", job.CampaignID).
		Int("sent", stats.MessagesSent).Int("delivered", stats.Delivered).
		Int("responses", stats.Responses).Msg("tracking complete")
	return nil
}

// trackOne advances one message's delivery/response state.
func (w *Tracking) trackOne(ctx context.Context, message *models.Message) error {
	switch message.Status {
	case models.MessagePending, models.MessageSent:
		return w.confirmDelivery(ctx, message)
	case models.MessageDelivered:
		return w.checkResponse(ctx, message)
	default:
		return nil
	}
}

func (w *Tracking) confirmDelivery(ctx context.Context, message *models.Message) error {
	if w.sender == nil {
		// Without a live backend, a sent message is assumed
		// delivered after its send succeeded.
		if message.Status != models.MessageSent {
			return nil
		}
		return w.transition(ctx, message, models.MessageDelivered, "")
	}

	check, err := w.sender.CheckMessage(ctx, message.Platform, message.Username, message.ID)
	if err != nil {
		return err
	}
	if !check.Delivered {
		reason := check.FailReason
		if reason == "" {
			reason = "delivery unconfirmed"
		}
		return w.transition(ctx, message, models.MessageFailed, reason)
	}
	if err := w.transition(ctx, message, models.MessageDelivered, ""); err != nil {
		return err
	}
	if check.Response != "" {
		return w.attachResponse(ctx, message, check.Response)
	}
	return nil
}

func (w *Tracking) checkResponse(ctx context.Context, message *models.Message) error {
	if w.sender == nil {
		return nil
	}
	check, err := w.sender.CheckMessage(ctx, message.Platform, message.Username, message.ID)
	if err != nil {
		return err
	}
	if check.Response == "" {
		return nil
	}
	return w.attachResponse(ctx, message, check.Response)
}

func (w *Tracking) attachResponse(ctx context.Context, message *models.Message, text string) error {
	sentiment := analysis.AnalyzeSentiment(text)
	message.Response = &models.Response{
		Text:       text,
		Class:      ClassifyResponse(text),
		Sentiment:  sentiment.Overall,
		ReceivedAt: time.Now(),
	}
	message.Status = models.MessageResponded
	message.UpdatedAt = time.Now()
	return w.messages.UpdateMessage(ctx, *message)
}

func (w *Tracking) transition(ctx context.Context, message *models.Message, status models.MessageStatus, failReason string) error {
	message.Status = status
	message.FailReason = failReason
	now := time.Now()
	message.UpdatedAt = now
	if status == models.MessageDelivered {
		message.DeliveredAt = &now
	}
	return w.messages.UpdateMessage(ctx, *message)
}

var positiveReplySignals = []string{
	"yes", "sure", "interested", "sounds good", "tell me more",
	"love", "great", "awesome", "definitely", "let's do it", "thanks",
}

var negativeReplySignals = []string{
	"no thanks", "not interested", "stop", "unsubscribe", "leave me alone",
	"go away", "spam", "reported", "don't message", "never",
}

// ClassifyResponse buckets a reply by intent using keyword rules.
// Questions win over sentiment signals.
func ClassifyResponse(text string) models.ResponseClass {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "?") {
		return models.ResponseQuestion
	}
	for _, signal := range negativeReplySignals {
		if strings.Contains(lower, signal) {
			return models.ResponseNegative
		}
	}
	for _, signal := range positiveReplySignals {
		if strings.Contains(lower, signal) {
			return models.ResponsePositive
		}
	}
	return models.ResponseNeutral
}
