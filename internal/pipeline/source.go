package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shehryarbajwa/campaign-engine/internal/clients"
	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// ProfileSource is where the acquisition stage gets candidate
// profiles. The worker picks one implementation at construction,
// never per call.
type ProfileSource interface {
	Discover(ctx context.Context, platform string, criteria models.Criteria, limit int) ([]models.Profile, error)
}

// BrowserSource discovers profiles through the browser-automation
// backend's live platform search, riding a pooled session.
type BrowserSource struct {
	automation *clients.Automation
	sessions   SessionProvider
}

func NewBrowserSource(automation *clients.Automation, sessions SessionProvider) *BrowserSource {
	return &BrowserSource{automation: automation, sessions: sessions}
}

func (s *BrowserSource) Discover(ctx context.Context, platform string, criteria models.Criteria, limit int) ([]models.Profile, error) {
	var sessionID string
	if s.sessions != nil {
		id, err := s.sessions.SessionFor(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("acquiring session for %s search: %w", platform, err)
		}
		sessionID = id
	}
	return s.automation.Search(ctx, clients.SearchRequest{
		SessionID: sessionID,
		Platform:  platform,
		Criteria:  criteria,
		Limit:     limit,
	})
}

// StubSource generates deterministic synthetic profiles when the
// automation backend is disabled. Same criteria, same output.
type StubSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewStubSource(seed int64) *StubSource {
	return &StubSource{rng: rand.New(rand.NewSource(seed))}
}

var stubBios = []string{
	"Coffee enthusiast and amateur photographer.",
	"Fitness coach sharing daily workout tips.",
	"Software developer, opensource contributor.",
	"Travel blogger. 34 countries and counting.",
	"Foodie exploring the best local restaurants.",
	"Startup founder working on something new.",
	"Music producer and vinyl collector.",
	"Yoga instructor, wellness advocate.",
}

func (s *StubSource) Discover(ctx context.Context, platform string, criteria models.Criteria, limit int) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}

	now := time.Now()
	profiles := make([]models.Profile, 0, limit)
	for i := 0; i < limit; i++ {
		followers := 100 + s.rng.Intn(50000)
		profiles = append(profiles, models.Profile{
			Platform: platform,
			Username: fmt.Sprintf("%s_user_%04d", platform, s.rng.Intn(10000)),
			Bio:      stubBios[s.rng.Intn(len(stubBios))],
			Metrics: models.ProfileMetrics{
				Followers:  followers,
				Following:  100 + s.rng.Intn(2000),
				PostsCount: 10 + s.rng.Intn(500),
				JoinedAt:   now.AddDate(0, -1-s.rng.Intn(48), 0),
			},
		})
	}
	return profiles, nil
}
