package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// Automation is the client for the browser-automation backend that
// owns the per-platform DOM scraping and messaging logic.
type Automation struct {
	baseURL string
	http    *http.Client
}

func NewAutomation(baseURL string, timeout time.Duration) *Automation {
	return &Automation{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
	}
}

// SearchRequest asks the backend to discover candidate profiles
// through a live session.
type SearchRequest struct {
	SessionID string          `json:"sessionId"`
	Platform  string          `json:"platform"`
	Criteria  models.Criteria `json:"criteria"`
	Limit     int             `json:"limit"`
}

// Search runs a platform search and returns discovered profiles.
func (c *Automation) Search(ctx context.Context, req SearchRequest) ([]models.Profile, error) {
	var resp struct {
		Profiles []models.Profile `json:"profiles"`
	}
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search on %s: %w", req.Platform, err)
	}
	return resp.Profiles, nil
}

// ScrapeProfile fetches full detail for one username.
func (c *Automation) ScrapeProfile(ctx context.Context, platform, username string) (*models.Profile, error) {
	req := map[string]string{"platform": platform, "username": username}
	var profile models.Profile
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/scrape/profile", req, &profile); err != nil {
		return nil, fmt.Errorf("scraping %s/%s: %w", platform, username, err)
	}
	return &profile, nil
}

// SendRequest dispatches one message through a live session.
type SendRequest struct {
	SessionID string `json:"sessionId"`
	Platform  string `json:"platform"`
	Username  string `json:"username"`
	Content   string `json:"content"`
}

// SendMessage delivers a message through the automation backend.
func (c *Automation) SendMessage(ctx context.Context, req SendRequest) error {
	return doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/message/send", req, nil)
}

// MessageCheck is the delivery/response state reported for one sent
// message.
type MessageCheck struct {
	Delivered  bool   `json:"delivered"`
	FailReason string `json:"failReason,omitempty"`
	Response   string `json:"response,omitempty"`
}

// CheckMessage polls delivery and response state for a message.
func (c *Automation) CheckMessage(ctx context.Context, platform, username, messageID string) (*MessageCheck, error) {
	req := map[string]string{"platform": platform, "username": username, "messageId": messageID}
	var check MessageCheck
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/message/check", req, &check); err != nil {
		return nil, fmt.Errorf("checking message %s: %w", messageID, err)
	}
	return &check, nil
}

// Login runs the platform login flow inside a browser context and
// returns the resulting cookies. Satisfies browser.PlatformAuth.
func (c *Automation) Login(ctx context.Context, platform, contextID string) ([]models.Cookie, error) {
	req := map[string]string{"platform": platform, "contextId": contextID}
	var resp struct {
		Cookies []models.Cookie `json:"cookies"`
	}
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/session/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login on %s: %w", platform, err)
	}
	return resp.Cookies, nil
}

// RestoreCookies replays preserved cookies into a fresh context.
// Satisfies browser.PlatformAuth.
func (c *Automation) RestoreCookies(ctx context.Context, contextID string, cookies []models.Cookie) error {
	req := struct {
		ContextID string          `json:"contextId"`
		Cookies   []models.Cookie `json:"cookies"`
	}{contextID, cookies}
	return doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/session/cookies", req, nil)
}

// DeleteSession tears down backend-side session state.
func (c *Automation) DeleteSession(ctx context.Context, sessionID string) error {
	return doJSON(ctx, c.http, http.MethodDelete, c.baseURL+"/session/"+sessionID, nil, nil)
}
