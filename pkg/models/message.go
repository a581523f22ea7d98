package models

import "time"

// MessageStatus tracks delivery state of an outreach message
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
	MessageResponded MessageStatus = "responded"
)

// ResponseClass buckets a reply by intent
type ResponseClass string

const (
	ResponsePositive ResponseClass = "positive"
	ResponseNegative ResponseClass = "negative"
	ResponseNeutral  ResponseClass = "neutral"
	ResponseQuestion ResponseClass = "question"
)

// Message is a generated outreach message bound to one profile
type Message struct {
	ID          string        `json:"id"`
	CampaignID  string        `json:"campaignId"`
	ProfileID   string        `json:"profileId"`
	Username    string        `json:"username"`
	Platform    string        `json:"platform"`
	Content     string        `json:"content"`
	Status      MessageStatus `json:"status"`
	FailReason  string        `json:"failReason,omitempty"`
	Generated   string        `json:"generated,omitempty"` // "llm" or "template"
	Response    *Response     `json:"response,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	DeliveredAt *time.Time    `json:"deliveredAt,omitempty"`
}

// Response is a reply detected by the tracking stage
type Response struct {
	Text       string        `json:"text"`
	Class      ResponseClass `json:"class"`
	Sentiment  float64       `json:"sentiment"`
	ReceivedAt time.Time     `json:"receivedAt"`
}
