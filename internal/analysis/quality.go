package analysis

import (
	"math"
	"strings"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// QualityResult is the 0-100 targeting score with its component
// breakdown.
type QualityResult struct {
	Overall       float64 `json:"overall"`
	Authenticity  float64 `json:"authenticity"`
	Engagement    float64 `json:"engagement"`
	Relevance     float64 `json:"relevance"`
	Accessibility float64 `json:"accessibility"`
}

// ScoreQuality rates a profile as an outreach target. Weights:
// authenticity 30%, engagement 25%, relevance 25%, accessibility 20%.
func ScoreQuality(profile models.Profile, botScore, sentiment float64, interests, targetInterests []string) QualityResult {
	authenticity := math.Max(0, 100-botScore)
	engagement := engagementScore(profile.Metrics)
	relevance := relevanceScore(interests, targetInterests)
	accessibility := accessibilityScore(profile.Metrics, sentiment)

	overall := authenticity*0.30 + engagement*0.25 + relevance*0.25 + accessibility*0.20

	return QualityResult{
		Overall:       math.Round(overall*10) / 10,
		Authenticity:  authenticity,
		Engagement:    engagement,
		Relevance:     relevance,
		Accessibility: accessibility,
	}
}

func engagementScore(m models.ProfileMetrics) float64 {
	score := 50.0

	if m.Verified {
		score += 20
	}

	switch {
	case m.Followers > 10000:
		score += 15
	case m.Followers > 1000:
		score += 10
	case m.Followers > 100:
		score += 5
	case m.Followers < 10:
		score -= 10
	}

	if m.Following > 0 {
		ratio := float64(m.Followers) / float64(m.Following)
		switch {
		case ratio > 2:
			score += 15
		case ratio > 1:
			score += 10
		case ratio < 0.1:
			score -= 15
		}
	}

	switch {
	case m.PostsCount > 100:
		score += 10
	case m.PostsCount > 20:
		score += 5
	case m.PostsCount < 5:
		score -= 10
	}

	return clamp(score, 0, 100)
}

func relevanceScore(interests, targets []string) float64 {
	if len(interests) == 0 {
		return 30
	}
	if len(targets) == 0 {
		return 50
	}

	score := 30.0
	score += float64(len(MatchInterests(interests, targets))) * 15

	// Partial substring matches count a little.
	for _, interest := range interests {
		il := strings.ToLower(interest)
		for _, target := range targets {
			tl := strings.ToLower(target)
			if il != tl && (strings.Contains(il, tl) || strings.Contains(tl, il)) {
				score += 5
			}
		}
	}

	return clamp(score, 0, 100)
}

func accessibilityScore(m models.ProfileMetrics, sentiment float64) float64 {
	score := 50.0

	switch {
	case sentiment > 0.3:
		score += 20
	case sentiment > 0:
		score += 10
	case sentiment < -0.3:
		score -= 15
	}

	if m.Verified {
		score -= 10
	}

	switch {
	case m.Followers > 100000:
		score -= 20
	case m.Followers > 10000:
		score -= 10
	case m.Followers < 100:
		score += 10
	}

	switch {
	case m.PostsCount > 50:
		score += 10
	case m.PostsCount < 5:
		score -= 10
	}

	return clamp(score, 0, 100)
}
