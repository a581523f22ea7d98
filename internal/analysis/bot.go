// Package analysis holds the local scoring heuristics used by the
// filtering and research stages: bot detection, sentiment, interest
// extraction, and risk classification. Everything here is pure
// computation over a profile snapshot; the external ML service, when
// enabled, is blended in by the caller.
package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

var botUsernamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{6,}$`),
	regexp.MustCompile(`^[a-z]{3,5}\d{4,}`),
	regexp.MustCompile(`bot$`),
	regexp.MustCompile(`^user\d+`),
	regexp.MustCompile(`[a-z]{1,3}\d+[a-z]{1,3}\d+`),
}

var spamBioPhrases = []string{
	"follow back", "f4f", "follow for follow", "dm for promo",
	"link in bio", "check link", "free followers", "get followers",
	"grow your", "make money", "work from home", "earn $",
	"click here", "limited time", "act now", "special offer",
}

var genericBios = []string{
	"just here", "living life", "lover of life", "follow me",
	"entrepreneur", "influencer", "content creator", "dreamer",
}

// redFlags are high-pressure sales signals weighted individually.
// They drive both the bot-score floor and the risk score.
var redFlags = []struct {
	phrase string
	weight float64
}{
	{"guaranteed", 20},
	{"crypto profit", 20},
	{"dm me", 20},
	{"buy now", 15},
	{"make money fast", 25},
	{"100% free", 15},
	{"limited time", 10},
	{"click here", 15},
	{"cash app", 15},
	{"investment opportunity", 20},
}

// BotComponents breaks the final score down by signal.
type BotComponents struct {
	Username float64 `json:"username"`
	Bio      float64 `json:"bio"`
	Metrics  float64 `json:"metrics"`
	Content  float64 `json:"content"`
	Temporal float64 `json:"temporal"`
}

// BotResult is a 0-100 bot likelihood with the flags that produced it.
type BotResult struct {
	Score      float64       `json:"score"`
	IsBot      bool          `json:"isBot"`
	Confidence float64       `json:"confidence"`
	Flags      []string      `json:"flags,omitempty"`
	Components BotComponents `json:"components"`
}

// AnalyzeBot scores a profile for bot likelihood. The final score is
// a weighted blend of five signals, floored at the red-flag pattern
// sum so an unmistakably spammy bio cannot be diluted by otherwise
// plausible metrics.
func AnalyzeBot(profile models.Profile) BotResult {
	var flags []string

	usernameScore, f := analyzeUsername(profile.Username)
	flags = append(flags, f...)

	bioScore, f := analyzeBio(profile.Bio)
	flags = append(flags, f...)

	metricsScore, f := analyzeMetrics(profile.Metrics)
	flags = append(flags, f...)

	contentScore, f := analyzeContent(profile.Posts)
	flags = append(flags, f...)

	temporalScore, f := analyzeTemporal(profile.Posts)
	flags = append(flags, f...)

	score := usernameScore*0.15 + bioScore*0.15 + metricsScore*0.25 +
		contentScore*0.25 + temporalScore*0.20

	if rf := redFlagScore(profile.Bio); rf > score {
		score = rf
	}
	score = math.Min(score, 100)

	return BotResult{
		Score:      math.Round(score*10) / 10,
		IsBot:      score > 50,
		Confidence: botConfidence(profile),
		Flags:      dedupe(flags),
		Components: BotComponents{
			Username: usernameScore,
			Bio:      bioScore,
			Metrics:  metricsScore,
			Content:  contentScore,
			Temporal: temporalScore,
		},
	}
}

// redFlagScore sums the weights of high-pressure phrases in a text.
func redFlagScore(text string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, rf := range redFlags {
		if strings.Contains(lower, rf.phrase) {
			score += rf.weight
		}
	}
	return math.Min(score, 100)
}

func analyzeUsername(username string) (float64, []string) {
	if username == "" {
		return 50, nil
	}

	var score float64
	var flags []string
	lower := strings.ToLower(username)

	for _, pattern := range botUsernamePatterns {
		if pattern.MatchString(lower) {
			score += 25
			flags = append(flags, "suspicious_username_pattern")
		}
	}

	switch {
	case len(username) < 3:
		score += 20
		flags = append(flags, "very_short_username")
	case len(username) > 25:
		score += 10
		flags = append(flags, "very_long_username")
	}

	if !strings.ContainsFunc(username, isLetter) {
		score += 30
		flags = append(flags, "no_letters_in_username")
	}

	vowels, consonants := 0, 0
	for _, r := range lower {
		switch {
		case strings.ContainsRune("aeiou", r):
			vowels++
		case r >= 'a' && r <= 'z':
			consonants++
		}
	}
	if consonants > 0 && float64(vowels)/float64(consonants) < 0.1 {
		score += 15
		flags = append(flags, "unusual_character_distribution")
	}

	return math.Min(score, 100), flags
}

func analyzeBio(bio string) (float64, []string) {
	if bio == "" {
		return 30, []string{"no_bio"}
	}

	var score float64
	var flags []string
	lower := strings.ToLower(bio)

	spamMatches := 0
	for _, phrase := range spamBioPhrases {
		if strings.Contains(lower, phrase) {
			spamMatches++
		}
	}
	if spamMatches > 0 {
		score += float64(spamMatches) * 20
		flags = append(flags, fmt.Sprintf("spam_phrases:%d", spamMatches))
	}

	for _, phrase := range genericBios {
		if strings.Contains(lower, phrase) {
			score += 10
			flags = append(flags, "generic_bio")
		}
	}

	if countEmojis(bio) > 10 {
		score += 15
		flags = append(flags, "excessive_emojis")
	}
	if strings.Count(bio, "#") > 5 {
		score += 20
		flags = append(flags, "excessive_hashtags")
	}
	if strings.Count(lower, "http://")+strings.Count(lower, "https://") > 2 {
		score += 25
		flags = append(flags, "multiple_urls")
	}
	if len(bio) < 10 {
		score += 15
		flags = append(flags, "very_short_bio")
	}

	return math.Min(score, 100), flags
}

func analyzeMetrics(m models.ProfileMetrics) (float64, []string) {
	if m.Verified {
		return 5, []string{"verified_account"}
	}

	var score float64
	var flags []string

	if m.Following > 0 {
		ratio := float64(m.Followers) / float64(m.Following)
		switch {
		case ratio < 0.01:
			score += 40
			flags = append(flags, "suspicious_follower_ratio")
		case ratio > 100 && m.Followers > 10000:
			score += 10
			flags = append(flags, "extremely_high_follower_ratio")
		}
	}

	if m.Followers > 1000000 && m.PostsCount < 10 {
		score += 50
		flags = append(flags, "unrealistic_followers_to_posts")
	}
	if m.Following > 5000 {
		score += 25
		flags = append(flags, "mass_following")
	}
	if m.PostsCount > 100 && m.Followers < 10 {
		score += 30
		flags = append(flags, "high_activity_low_followers")
	}
	if m.PostsCount == 0 && m.Followers > 100 {
		score += 35
		flags = append(flags, "no_posts_many_followers")
	}

	return math.Min(score, 100), flags
}

var hashtagRe = regexp.MustCompile(`#\w+`)

func analyzeContent(posts []models.Post) (float64, []string) {
	var contents []string
	for _, p := range posts {
		if p.Content != "" {
			contents = append(contents, p.Content)
		}
	}
	if len(contents) == 0 {
		return 30, []string{"no_posts"}
	}

	var score float64
	var flags []string

	unique := make(map[string]bool, len(contents))
	for _, c := range contents {
		unique[c] = true
	}
	if float64(len(unique)) < float64(len(contents))*0.5 {
		score += 40
		flags = append(flags, "high_content_duplication")
	}

	var allTags []string
	for _, c := range contents {
		allTags = append(allTags, hashtagRe.FindAllString(c, -1)...)
	}
	if len(allTags) > 0 {
		uniqueTags := make(map[string]bool, len(allTags))
		for _, t := range allTags {
			uniqueTags[t] = true
		}
		if float64(len(allTags))/float64(len(uniqueTags)) > 5 {
			score += 25
			flags = append(flags, "repetitive_hashtags")
		}
	}

	total := 0
	for _, c := range contents {
		total += len(c)
	}
	if float64(total)/float64(len(contents)) < 20 {
		score += 20
		flags = append(flags, "very_short_posts")
	}

	promo := 0
	for _, c := range contents {
		lower := strings.ToLower(c)
		for _, word := range []string{"buy", "sale", "discount", "link", "shop", "promo"} {
			if strings.Contains(lower, word) {
				promo++
				break
			}
		}
	}
	if float64(promo) > float64(len(contents))*0.5 {
		score += 35
		flags = append(flags, "high_promotional_content")
	}

	return math.Min(score, 100), flags
}

// analyzeTemporal looks for machine-regular posting. The coefficient
// of variation of inter-post intervals below 0.1 is the strongest
// single signal here.
func analyzeTemporal(posts []models.Post) (float64, []string) {
	if len(posts) < 3 {
		return 30, []string{"insufficient_temporal_data"}
	}

	times := make([]time.Time, 0, len(posts))
	for _, p := range posts {
		if !p.Timestamp.IsZero() {
			times = append(times, p.Timestamp)
		}
	}
	if len(times) < 3 {
		return 30, []string{"insufficient_temporal_data"}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}

	var score float64
	var flags []string

	mean := 0.0
	for _, iv := range intervals {
		mean += iv
	}
	mean /= float64(len(intervals))

	if mean > 0 {
		variance := 0.0
		for _, iv := range intervals {
			variance += (iv - mean) * (iv - mean)
		}
		std := math.Sqrt(variance / float64(len(intervals)))
		if std/mean < 0.1 {
			score += 50
			flags = append(flags, "suspiciously_regular_posting")
		}
	}

	burst := 0
	for _, iv := range intervals {
		if iv < 60 {
			burst++
		}
	}
	if float64(burst) > float64(len(intervals))*0.3 {
		score += 35
		flags = append(flags, "burst_posting_pattern")
	}

	hours := make(map[int]bool)
	for _, ts := range times {
		hours[ts.Hour()] = true
	}
	if len(times) > 20 && len(hours) > 20 {
		score += 30
		flags = append(flags, "no_sleep_pattern")
	}

	return math.Min(score, 100), flags
}

func botConfidence(profile models.Profile) float64 {
	confidence := 0.5
	if profile.Bio != "" {
		confidence += 0.1
	}
	if profile.Metrics != (models.ProfileMetrics{}) {
		confidence += 0.15
	}
	switch {
	case len(profile.Posts) > 10:
		confidence += 0.2
	case len(profile.Posts) > 3:
		confidence += 0.1
	}
	return math.Min(math.Round(confidence*100)/100, 1.0)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func countEmojis(s string) int {
	n := 0
	for _, r := range s {
		if r > 0x1F000 {
			n++
		}
	}
	return n
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
