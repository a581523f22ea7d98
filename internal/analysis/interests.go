package analysis

import (
	"regexp"
	"sort"
	"strings"
)

var interestCategories = map[string][]string{
	"technology": {
		"tech", "coding", "programming", "developer", "software", "hardware",
		"ai", "machine learning", "data science", "blockchain", "crypto",
		"web3", "startup", "saas", "javascript", "python", "react",
		"cloud", "devops", "cybersecurity", "opensource",
	},
	"business": {
		"entrepreneur", "founder", "ceo", "business", "marketing", "sales",
		"growth", "revenue", "investment", "venture", "funding", "finance",
		"fintech", "stocks", "trading", "real estate", "consulting",
	},
	"creative": {
		"design", "designer", "art", "artist", "creative", "photography",
		"video", "film", "music", "musician", "producer", "writing",
		"writer", "author", "fashion", "aesthetic", "graphic",
	},
	"sports": {
		"fitness", "gym", "workout", "training", "athlete", "running",
		"marathon", "cycling", "swimming", "yoga", "football", "soccer",
		"basketball", "tennis", "crossfit", "hiking", "climbing",
	},
	"entertainment": {
		"gaming", "gamer", "esports", "twitch", "streaming", "youtube",
		"movies", "netflix", "anime", "manga", "comics", "concerts",
		"podcast", "comedy", "memes",
	},
	"lifestyle": {
		"travel", "adventure", "wanderlust", "foodie", "cooking", "chef",
		"wine", "coffee", "wellness", "health", "vegan", "sustainable",
		"minimalist", "luxury", "parenting", "family",
	},
	"education": {
		"learning", "education", "teacher", "professor", "student",
		"university", "research", "science", "physics", "biology",
		"history", "philosophy", "psychology", "economics",
	},
	"social": {
		"activism", "community", "nonprofit", "charity", "volunteer",
		"politics", "environment", "climate", "diversity", "inclusion",
		"equality", "justice", "mental health",
	},
}

var interestHashtagRe = regexp.MustCompile(`#(\w+)`)

const maxInterests = 15

// ExtractInterests pulls interest keywords from text: hashtags plus
// category-keyword matches, ranked by how often they occur.
func ExtractInterests(text string) []string {
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	seen := make(map[string]bool)

	for _, m := range interestHashtagRe.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if len(tag) > 2 {
			seen[tag] = true
		}
	}

	for _, keywords := range interestCategories {
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				seen[keyword] = true
			}
		}
	}

	interests := make([]string, 0, len(seen))
	for interest := range seen {
		interests = append(interests, interest)
	}

	// Rank by occurrence count, ties alphabetical for determinism.
	sort.Slice(interests, func(i, j int) bool {
		ci := strings.Count(lower, interests[i])
		cj := strings.Count(lower, interests[j])
		if ci != cj {
			return ci > cj
		}
		return interests[i] < interests[j]
	})

	if len(interests) > maxInterests {
		interests = interests[:maxInterests]
	}
	return interests
}

// MatchInterests returns the interests shared with a target set,
// case-insensitive.
func MatchInterests(interests, targets []string) []string {
	if len(interests) == 0 || len(targets) == 0 {
		return nil
	}
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[strings.ToLower(t)] = true
	}
	var matched []string
	for _, interest := range interests {
		if targetSet[strings.ToLower(interest)] {
			matched = append(matched, interest)
		}
	}
	return matched
}
