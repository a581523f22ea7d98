package analysis

import (
	"math"
	"strings"
	"time"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// RiskScore rates how dangerous it would be to engage a profile:
// red-flag phrase weights plus bonuses for brand-new accounts and
// extreme follower ratios, capped at 100.
func RiskScore(profile models.Profile, now time.Time) float64 {
	score := redFlagScore(profile.Bio)
	for _, p := range profile.Posts {
		score += redFlagScore(p.Content) * 0.5
	}

	if joined := profile.Metrics.JoinedAt; !joined.IsZero() && now.Sub(joined) < 30*24*time.Hour {
		score += 15
	}

	if profile.Metrics.Following > 0 {
		ratio := float64(profile.Metrics.Followers) / float64(profile.Metrics.Following)
		if ratio > 100 || ratio < 0.01 {
			score += 15
		}
	}

	return math.Min(score, 100)
}

// ActivityLevel buckets a profile by recent post density.
func ActivityLevel(posts []models.Post) string {
	switch n := len(posts); {
	case n > 50:
		return "very_active"
	case n > 20:
		return "active"
	case n > 5:
		return "moderate"
	case n > 0:
		return "occasional"
	default:
		return "inactive"
	}
}

var casualWords = []string{"lol", "omg", "tbh", "ngl", "fr", "btw", "dm", "haha"}

var formalWords = []string{
	"therefore", "however", "furthermore", "regarding",
	"sincerely", "professional", "opportunity",
}

// CommStyle classifies text as casual, formal, or balanced from
// slang/formal word ratios and emoji density.
func CommStyle(text string) string {
	if text == "" {
		return "balanced"
	}
	lower := strings.ToLower(text)

	casual := 0
	for _, w := range casualWords {
		if strings.Contains(lower, w) {
			casual++
		}
	}
	formal := 0
	for _, w := range formalWords {
		if strings.Contains(lower, w) {
			formal++
		}
	}

	switch {
	case casual > formal*2 || countEmojis(text) > 3:
		return "casual"
	case formal > casual*2:
		return "formal"
	default:
		return "balanced"
	}
}
