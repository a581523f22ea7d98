package models

import "time"

// SessionStatus represents the current state of a platform session
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionIdle    SessionStatus = "idle"
	SessionError   SessionStatus = "error"
	SessionExpired SessionStatus = "expired"
)

// Session represents a logged-in platform session backed by a browser context
type Session struct {
	ID             string        `json:"id"`
	Platform       string        `json:"platform"`
	Status         SessionStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	BrowserID      string        `json:"browserId,omitempty"`
	ContextID      string        `json:"contextId,omitempty"`
	ProxyKey       string        `json:"proxyKey,omitempty"`
	Cookies        []Cookie      `json:"cookies,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
}

// Cookie is the subset of browser cookie state persisted for session restore
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
}

// Fingerprint is the per-context browser identity drawn at context creation
type Fingerprint struct {
	UserAgent    string  `json:"userAgent"`
	Platform     string  `json:"platform"`
	ScreenWidth  int     `json:"screenWidth"`
	ScreenHeight int     `json:"screenHeight"`
	Locale       string  `json:"locale"`
	Timezone     string  `json:"timezone"`
	ScaleFactor  float64 `json:"scaleFactor"`
}
