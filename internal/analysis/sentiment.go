package analysis

import (
	"math"
	"regexp"
	"strings"
)

var positiveWords = map[string]float64{
	"amazing": 0.9, "excellent": 0.9, "outstanding": 0.9, "incredible": 0.9,
	"fantastic": 0.9, "wonderful": 0.9, "brilliant": 0.9, "exceptional": 0.9,
	"great": 0.7, "good": 0.6, "nice": 0.5, "happy": 0.7, "love": 0.8,
	"awesome": 0.8, "beautiful": 0.7, "perfect": 0.9, "best": 0.8,
	"excited": 0.7, "grateful": 0.7, "blessed": 0.6, "thrilled": 0.8,
	"enjoy": 0.6, "appreciate": 0.6, "thankful": 0.7, "proud": 0.7,
	"successful": 0.7, "positive": 0.6, "inspiring": 0.7, "motivated": 0.6,
	"like": 0.4, "okay": 0.2, "fine": 0.3, "cool": 0.5, "interesting": 0.4,
	"helpful": 0.5, "useful": 0.5, "recommend": 0.6, "thanks": 0.5,
}

var negativeWords = map[string]float64{
	"terrible": -0.9, "horrible": -0.9, "awful": -0.9, "worst": -0.9,
	"disgusting": -0.9, "hate": -0.8, "disaster": -0.8, "pathetic": -0.8,
	"bad": -0.6, "poor": -0.5, "disappointing": -0.7, "upset": -0.6,
	"angry": -0.7, "frustrated": -0.6, "annoyed": -0.5, "sad": -0.6,
	"boring": -0.5, "waste": -0.6, "stupid": -0.7, "useless": -0.7,
	"wrong": -0.5, "failed": -0.6, "broken": -0.5, "problem": -0.4,
	"dislike": -0.4, "meh": -0.2, "mediocre": -0.3, "issue": -0.3,
	"difficult": -0.3, "confusing": -0.4, "worried": -0.4,
}

var intensifiers = map[string]float64{
	"very": 1.5, "really": 1.4, "extremely": 1.7, "absolutely": 1.8,
	"totally": 1.5, "completely": 1.6, "incredibly": 1.7, "super": 1.4,
	"so": 1.3, "quite": 1.2, "pretty": 1.2, "highly": 1.4,
}

var negators = []string{"not", "n't", "no", "never", "none", "nothing", "neither", "nowhere"}

var (
	wordRe           = regexp.MustCompile(`\b\w+\b`)
	positivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(lol|lmao|haha|hehe)\b`),
		regexp.MustCompile(`\bthank(s|you)?\b`),
		regexp.MustCompile(`\bcongrat(s|ulations)?\b`),
		regexp.MustCompile(`\bwell done\b`),
		regexp.MustCompile(`\bgood (job|work)\b`),
	}
	negativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(ugh|ew|yuck)\b`),
		regexp.MustCompile(`\bunfortunately\b`),
		regexp.MustCompile(`\bwaste of\b`),
		regexp.MustCompile(`\b(can't|cannot) stand\b`),
	}
)

// Sentiment is a -1..1 score with a confidence derived from how much
// signal the text carried.
type Sentiment struct {
	Overall    float64 `json:"overall"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// AnalyzeSentiment scores text with a word lexicon (intensifiers and
// negators applied to the following word) blended with coarse pattern
// signals like exclamations and slang.
func AnalyzeSentiment(text string) Sentiment {
	text = strings.TrimSpace(text)
	if text == "" {
		return Sentiment{Label: "neutral"}
	}

	lexicon, lexiconOK := lexiconScore(text)
	pattern, patternOK := patternScore(text)

	var overall float64
	signals := 0
	switch {
	case lexiconOK && patternOK:
		overall = lexicon*0.7 + pattern*0.3
		signals = 2
	case lexiconOK:
		overall = lexicon
		signals = 1
	case patternOK:
		overall = pattern
		signals = 1
	}

	label := "neutral"
	if overall > 0.2 {
		label = "positive"
	} else if overall < -0.2 {
		label = "negative"
	}

	return Sentiment{
		Overall:    math.Round(overall*1000) / 1000,
		Confidence: sentimentConfidence(text, signals),
		Label:      label,
	}
}

func lexiconScore(text string) (float64, bool) {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 0, false
	}

	var scores []float64
	for i, word := range words {
		negated := false
		intensity := 1.0
		if i > 0 {
			prev := words[i-1]
			for _, neg := range negators {
				if strings.Contains(prev, neg) {
					negated = true
					break
				}
			}
			if mult, ok := intensifiers[prev]; ok {
				intensity = mult
			}
		}

		base, ok := positiveWords[word]
		if !ok {
			base, ok = negativeWords[word]
		}
		if !ok {
			continue
		}

		score := base * intensity
		if negated {
			score = -score * 0.5
		}
		scores = append(scores, score)
	}

	if len(scores) == 0 {
		return 0, true
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	denom := math.Max(float64(len(scores)), float64(len(words))/5)
	return clamp(sum/denom, -1, 1), true
}

func patternScore(text string) (float64, bool) {
	var score float64
	indicators := 0
	lower := strings.ToLower(text)

	if n := strings.Count(text, "!"); n > 0 {
		indicators++
		score += math.Min(float64(n)*0.05, 0.2)
	}
	if n := strings.Count(text, "?"); n > 0 {
		indicators++
		score -= math.Min(float64(n)*0.02, 0.1)
	}

	words := strings.Fields(text)
	caps := 0
	for _, w := range words {
		if len(w) > 2 && w == strings.ToUpper(w) && strings.ContainsFunc(w, isLetter) {
			caps++
		}
	}
	if caps > 0 {
		indicators++
		score += 0.1 * float64(caps) / math.Max(float64(len(words)), 1)
	}

	for _, p := range positivePatterns {
		if p.MatchString(lower) {
			indicators++
			score += 0.2
		}
	}
	for _, p := range negativePatterns {
		if p.MatchString(lower) {
			indicators++
			score -= 0.2
		}
	}

	if indicators == 0 {
		return 0, false
	}
	return clamp(score, -1, 1), true
}

func sentimentConfidence(text string, signals int) float64 {
	confidence := 0.5

	wordCount := len(strings.Fields(text))
	switch {
	case wordCount > 50:
		confidence += 0.2
	case wordCount > 20:
		confidence += 0.1
	case wordCount < 5:
		confidence -= 0.1
	}

	confidence += float64(signals) * 0.1

	return math.Round(clamp(confidence, 0.1, 1.0)*1000) / 1000
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
