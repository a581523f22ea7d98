package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/campaign-engine/internal/logging"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// MLAnalysis is the score set returned by the external ML service.
type MLAnalysis struct {
	BotScore     float64  `json:"botScore"`
	QualityScore float64  `json:"qualityScore"`
	Sentiment    float64  `json:"sentiment"`
	Interests    []string `json:"interests,omitempty"`
}

// ML is the client for the optional external scoring service. Its
// absence degrades to local heuristics, never a pipeline failure.
type ML struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewML(baseURL string, timeout time.Duration) *ML {
	return &ML{
		baseURL: baseURL,
		http:    newHTTPClient(timeout),
		log:     logging.WithComponent("MLClient"),
	}
}

// Analyze scores one profile. Any transport or service error returns
// nil; callers blend the result only when present.
func (c *ML) Analyze(ctx context.Context, profile models.Profile) *MLAnalysis {
	var analysis MLAnalysis
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/analyze/profile", profile, &analysis); err != nil {
		c.log.Warn().Err(err).Str("profile", profile.Username).Msg("ml analysis unavailable, using local scores only")
		return nil
	}
	return &analysis
}
