package models

import "time"

// ProfileStatus tracks where a candidate account sits in the review funnel
type ProfileStatus string

const (
	ProfilePending  ProfileStatus = "pending"
	ProfileApproved ProfileStatus = "approved"
	ProfileRejected ProfileStatus = "rejected"
)

// Profile is a candidate account discovered by the acquisition stage
type Profile struct {
	ID         string           `json:"id"`
	CampaignID string           `json:"campaignId"`
	Platform   string           `json:"platform"`
	Username   string           `json:"username"`
	Bio        string           `json:"bio,omitempty"`
	Status     ProfileStatus    `json:"status"`
	Metrics    ProfileMetrics   `json:"metrics"`
	Posts      []Post           `json:"posts,omitempty"`
	Analysis   *ProfileAnalysis `json:"analysis,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// ProfileMetrics holds the raw account numbers used by the scoring heuristics
type ProfileMetrics struct {
	Followers  int       `json:"followers"`
	Following  int       `json:"following"`
	PostsCount int       `json:"postsCount"`
	Verified   bool      `json:"verified"`
	JoinedAt   time.Time `json:"joinedAt,omitempty"`
}

// Post is a single piece of recent content attached to a profile
type Post struct {
	Content   string    `json:"content"`
	Likes     int       `json:"likes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProfileAnalysis is written by the filtering and research stages
type ProfileAnalysis struct {
	BotScore       float64  `json:"botScore"`
	QualityScore   float64  `json:"qualityScore"`
	RelevanceScore float64  `json:"relevanceScore"`
	RiskScore      float64  `json:"riskScore"`
	Sentiment      float64  `json:"sentiment"`
	SentimentLabel string   `json:"sentimentLabel,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	ActivityLevel  string   `json:"activityLevel,omitempty"`
	CommStyle      string   `json:"commStyle,omitempty"`
	Flags          []string `json:"flags,omitempty"`
}
