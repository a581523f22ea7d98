package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

func TestAPIApproveRejectRoutes(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, time.Second)
	ctx := context.Background()

	require.NoError(t, api.ApproveProfile(ctx, "p1"))
	require.NoError(t, api.RejectProfile(ctx, "p2"))

	assert.Equal(t, []string{
		"POST /profiles/p1/approve",
		"POST /profiles/p2/reject",
	}, hits)
}

func TestAPIListProfilesFiltersByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.URL.Query().Get("campaignId"))
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode([]models.Profile{{ID: "p1", Username: "alice"}})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, time.Second)
	profiles, err := api.ListProfiles(context.Background(), "c1", models.ProfilePending)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "alice", profiles[0].Username)
}

func TestAPIErrorIncludesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "campaign not found", http.StatusNotFound)
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, time.Second)
	_, err := api.GetCampaign(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "campaign not found")
}

func TestAutomationSearchDecodesProfiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/search", r.URL.Path)

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "twitter", req.Platform)
		assert.Equal(t, 5, req.Limit)

		json.NewEncoder(w).Encode(map[string]any{
			"profiles": []models.Profile{{Username: "bob"}, {Username: "carol"}},
		})
	}))
	defer srv.Close()

	auto := NewAutomation(srv.URL, time.Second)
	profiles, err := auto.Search(context.Background(), SearchRequest{Platform: "twitter", Limit: 5})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "bob", profiles[0].Username)
}

func TestMLDegradesToNilOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ml := NewML(srv.URL, time.Second)
	analysis := ml.Analyze(context.Background(), models.Profile{Username: "alice"})
	assert.Nil(t, analysis, "ml outage must degrade, not fail")
}

func TestMLReturnsScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MLAnalysis{BotScore: 12, QualityScore: 80})
	}))
	defer srv.Close()

	ml := NewML(srv.URL, time.Second)
	analysis := ml.Analyze(context.Background(), models.Profile{Username: "alice"})
	require.NotNil(t, analysis)
	assert.Equal(t, 12.0, analysis.BotScore)
}

func TestLLMRejectsEmptyMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": ""})
	}))
	defer srv.Close()

	llm := NewLLM(srv.URL, "", time.Second)
	_, err := llm.GenerateMessage(context.Background(), models.Campaign{}, models.Profile{Username: "alice"})
	assert.Error(t, err, "empty generations must trigger the template fallback")
}

func TestLLMSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"message": "hey there"})
	}))
	defer srv.Close()

	llm := NewLLM(srv.URL, "sk-test", time.Second)
	msg, err := llm.GenerateMessage(context.Background(), models.Campaign{}, models.Profile{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "hey there", msg)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}
