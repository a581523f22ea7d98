package models

import "time"

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is the top-level unit of work submitted to the pipeline
type Campaign struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    CampaignStatus `json:"status"`
	Platforms []string       `json:"platforms"`
	Criteria  Criteria       `json:"criteria"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Criteria narrows which accounts a campaign should acquire
type Criteria struct {
	Keywords        []string `json:"keywords,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	MinFollowers    int      `json:"minFollowers,omitempty"`
	MaxFollowers    int      `json:"maxFollowers,omitempty"`
	MaxProfiles     int      `json:"maxProfiles,omitempty"`
	TargetInterests []string `json:"targetInterests,omitempty"`
}

// CampaignAnalytics aggregates outcome counts recorded by the tracking stage
type CampaignAnalytics struct {
	CampaignID   string    `json:"campaignId"`
	MessagesSent int       `json:"messagesSent"`
	Delivered    int       `json:"delivered"`
	Failed       int       `json:"failed"`
	Responses    int       `json:"responses"`
	PositiveRate float64   `json:"positiveRate"`
	LastPolledAt time.Time `json:"lastPolledAt"`
}
