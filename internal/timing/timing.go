// Package timing converts raw operation streams into humanly paced
// action sequences. Every function here is pure computation: no I/O,
// no clocks, no global randomness. Callers inject the random source
// and the current time, which keeps the whole package testable with
// fixed seeds.
package timing

import (
	"math"
	"math/rand"
	"time"
)

// WeekendBehavior describes how a simulated user paces on weekends.
type WeekendBehavior string

const (
	WeekendMoreActive WeekendBehavior = "more_active"
	WeekendLessActive WeekendBehavior = "less_active"
	WeekendSame       WeekendBehavior = "same"
)

// ActivityWindow is a preferred daily activity window in local hours.
// A window may wrap midnight (e.g. Start=20, End=2).
type ActivityWindow struct {
	StartHour int
	EndHour   int
}

// Contains reports whether the hour falls inside the window. A zero
// window (0,0) means no preference.
func (w ActivityWindow) Contains(hour int) bool {
	if w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// UserProfile parameterizes delay computation for one simulated user.
type UserProfile struct {
	Timezone          string
	AvgActionInterval time.Duration
	ActivityPattern   ActivityWindow
	WeekendBehavior   WeekendBehavior
}

// DefaultProfile returns a plausible daytime profile.
func DefaultProfile() UserProfile {
	return UserProfile{
		Timezone:          "America/New_York",
		AvgActionInterval: 2 * time.Minute,
		ActivityPattern:   ActivityWindow{StartHour: 9, EndHour: 22},
		WeekendBehavior:   WeekendSame,
	}
}

// Context bundles everything a single delay calculation needs.
type Context struct {
	Profile       UserProfile
	CurrentTime   time.Time
	SessionStart  time.Time
	ActionHistory []time.Time
}

// Engine holds the injected random source.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates an engine. A nil source gets a time-based seed.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rng: rng}
}

// activityByHour is a fixed circadian table: peak mid-morning and
// mid-afternoon, trough between 02:00 and 05:00.
var activityByHour = [24]float64{
	0.30, 0.20, 0.10, 0.10, 0.10, 0.15,
	0.30, 0.50, 0.70, 0.90, 1.00, 0.95,
	0.80, 0.85, 0.95, 1.00, 0.90, 0.80,
	0.70, 0.65, 0.60, 0.50, 0.40, 0.35,
}

// MinActionDelay is the hard floor below which no computed delay may
// fall, regardless of profile parameters.
const MinActionDelay = time.Second

// NextActionDelay computes the pause before the next externally
// visible action: a Poisson base sample shaped by circadian, fatigue
// and weekend factors plus uniform jitter, floored at one second.
func (e *Engine) NextActionDelay(tc Context) time.Duration {
	interval := tc.Profile.AvgActionInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	base := e.PoissonSample(interval.Minutes())

	hour := tc.CurrentTime.Hour()
	circadian := CircadianFactor(hour, tc.Profile)
	fatigue := FatigueFactor(tc.CurrentTime.Sub(tc.SessionStart))
	weekend := weekendFactor(tc.CurrentTime, tc.Profile)
	jitter := 0.9 + 0.2*e.rng.Float64()

	minutes := base * circadian * fatigue * weekend * jitter
	delay := time.Duration(minutes * float64(time.Minute))
	if delay < MinActionDelay {
		return MinActionDelay
	}
	return delay
}

// PoissonSample draws via inverse-transform sampling: multiply
// uniform(0,1) draws until the running product drops below e^-lambda,
// count the iterations k, return (k-1)*lambda. The result is a
// right-skewed distribution matching bursty human behavior.
func (e *Engine) PoissonSample(lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	// e^-lambda underflows to zero past ~700 and the loop would never
	// terminate; anything that large is a misconfigured interval.
	if lambda > 600 {
		lambda = 600
	}

	limit := math.Exp(-lambda)
	k := 0
	product := 1.0
	for product >= limit {
		k++
		product *= e.rng.Float64()
	}
	return float64(k-1) * lambda
}

// CircadianFactor maps an hour to a delay multiplier. Low activity
// hours produce long delays, so the factor is the inverse of the
// activity level. Hours inside the profile's preferred window get a
// 50% activity boost.
func CircadianFactor(hour int, profile UserProfile) float64 {
	if hour < 0 || hour > 23 {
		hour = ((hour % 24) + 24) % 24
	}
	activity := activityByHour[hour]
	if profile.ActivityPattern.Contains(hour) {
		activity *= 1.5
	}
	return 1 / activity
}

// FatigueFactor is 1.0 for the first 30 minutes of a session, then
// ramps linearly to 1.5 over the following two hours and caps there.
func FatigueFactor(sessionDuration time.Duration) float64 {
	const warmup = 30 * time.Minute
	const ramp = 2 * time.Hour

	if sessionDuration <= warmup {
		return 1.0
	}
	progress := float64(sessionDuration-warmup) / float64(ramp)
	if progress > 1 {
		progress = 1
	}
	return 1.0 + 0.5*progress
}

func weekendFactor(t time.Time, profile UserProfile) float64 {
	day := t.Weekday()
	if day != time.Saturday && day != time.Sunday {
		return 1.0
	}
	switch profile.WeekendBehavior {
	case WeekendMoreActive:
		return 0.8
	case WeekendLessActive:
		return 1.5
	default:
		return 1.0
	}
}

// IsGoodTimeForActivity is a hard gate: 02:00-07:00 is always
// inactive, and outside that the profile's preferred window decides.
func IsGoodTimeForActivity(t time.Time, profile UserProfile) bool {
	hour := t.Hour()
	if hour >= 2 && hour < 7 {
		return false
	}
	return profile.ActivityPattern.Contains(hour)
}

// UntilActiveHours returns how long to wait from t until the next
// acceptable activity hour. Zero when t is already acceptable.
func UntilActiveHours(t time.Time, profile UserProfile) time.Duration {
	if IsGoodTimeForActivity(t, profile) {
		return 0
	}
	// Scan forward to the next hour boundary that passes the gate.
	next := t.Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < 48; i++ {
		if IsGoodTimeForActivity(next, profile) {
			return next.Sub(t)
		}
		next = next.Add(time.Hour)
	}
	return 0
}
