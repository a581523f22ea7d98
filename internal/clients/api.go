package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// API is the client for the campaign/profile/message persistence
// service. The pipeline treats it as a remote data store; all schema
// ownership lives on the other side.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	return &API{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
	}
}

func (a *API) url(path string) string {
	return a.baseURL + path
}

// GetCampaign fetches one campaign by ID.
func (a *API) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := doJSON(ctx, a.http, http.MethodGet, a.url("/campaigns/"+id), nil, &campaign); err != nil {
		return nil, fmt.Errorf("fetching campaign %s: %w", id, err)
	}
	return &campaign, nil
}

// RecordAnalytics writes a tracking snapshot for a campaign.
func (a *API) RecordAnalytics(ctx context.Context, analytics models.CampaignAnalytics) error {
	return doJSON(ctx, a.http, http.MethodPost, a.url("/campaigns/"+analytics.CampaignID+"/analytics"), analytics, nil)
}

// CreateProfile persists a newly acquired profile.
func (a *API) CreateProfile(ctx context.Context, profile models.Profile) (*models.Profile, error) {
	var created models.Profile
	if err := doJSON(ctx, a.http, http.MethodPost, a.url("/profiles"), profile, &created); err != nil {
		return nil, fmt.Errorf("creating profile %s: %w", profile.Username, err)
	}
	return &created, nil
}

// ListProfiles returns profiles for a campaign, optionally filtered
// by status.
func (a *API) ListProfiles(ctx context.Context, campaignID string, status models.ProfileStatus) ([]models.Profile, error) {
	q := url.Values{"campaignId": {campaignID}}
	if status != "" {
		q.Set("status", string(status))
	}
	var profiles []models.Profile
	if err := doJSON(ctx, a.http, http.MethodGet, a.url("/profiles?"+q.Encode()), nil, &profiles); err != nil {
		return nil, fmt.Errorf("listing profiles for campaign %s: %w", campaignID, err)
	}
	return profiles, nil
}

// UpdateProfile patches a profile record, typically to attach
// analysis results.
func (a *API) UpdateProfile(ctx context.Context, profile models.Profile) error {
	return doJSON(ctx, a.http, http.MethodPatch, a.url("/profiles/"+profile.ID), profile, nil)
}

// ApproveProfile marks a profile approved for engagement.
func (a *API) ApproveProfile(ctx context.Context, id string) error {
	return doJSON(ctx, a.http, http.MethodPost, a.url("/profiles/"+id+"/approve"), nil, nil)
}

// RejectProfile marks a profile rejected.
func (a *API) RejectProfile(ctx context.Context, id string) error {
	return doJSON(ctx, a.http, http.MethodPost, a.url("/profiles/"+id+"/reject"), nil, nil)
}

// CreateMessage persists a generated outreach message.
func (a *API) CreateMessage(ctx context.Context, message models.Message) (*models.Message, error) {
	var created models.Message
	if err := doJSON(ctx, a.http, http.MethodPost, a.url("/messages"), message, &created); err != nil {
		return nil, fmt.Errorf("creating message for profile %s: %w", message.ProfileID, err)
	}
	return &created, nil
}

// ListMessages returns messages for a campaign, optionally filtered
// by status.
func (a *API) ListMessages(ctx context.Context, campaignID string, status models.MessageStatus) ([]models.Message, error) {
	q := url.Values{"campaignId": {campaignID}}
	if status != "" {
		q.Set("status", string(status))
	}
	var messages []models.Message
	if err := doJSON(ctx, a.http, http.MethodGet, a.url("/messages?"+q.Encode()), nil, &messages); err != nil {
		return nil, fmt.Errorf("listing messages for campaign %s: %w", campaignID, err)
	}
	return messages, nil
}

// UpdateMessage patches a message record, typically a status
// transition or an attached response.
func (a *API) UpdateMessage(ctx context.Context, message models.Message) error {
	return doJSON(ctx, a.http, http.MethodPatch, a.url("/messages/"+message.ID), message, nil)
}
