package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// LLM is the client for the optional message-generation service.
// Callers must fall back to templates on any error.
type LLM struct {
	baseURL string
	http    *http.Client
}

func NewLLM(baseURL, apiKey string, timeout time.Duration) *LLM {
	hc := newHTTPClient(timeout)
	if apiKey != "" {
		hc.Transport = &bearerTransport{key: apiKey, base: http.DefaultTransport}
	}
	return &LLM{
		baseURL: baseURL,
		http:    hc,
	}
}

type bearerTransport struct {
	key  string
	base http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.key)
	return t.base.RoundTrip(clone)
}

// GenerateMessage asks the service for a personalized outreach
// message for one profile.
func (c *LLM) GenerateMessage(ctx context.Context, campaign models.Campaign, profile models.Profile) (string, error) {
	req := struct {
		Campaign models.Campaign `json:"campaign"`
		Profile  models.Profile  `json:"profile"`
	}{campaign, profile}

	var resp struct {
		Message string `json:"message"`
	}
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/generate/message", req, &resp); err != nil {
		return "", fmt.Errorf("generating message for %s: %w", profile.Username, err)
	}
	if resp.Message == "" {
		return "", fmt.Errorf("empty message generated for %s", profile.Username)
	}
	return resp.Message, nil
}
