// Package pipeline implements the five-stage campaign workers:
// acquisition, filtering, research, engagement, and tracking. Each
// worker consumes jobs from its own queue topic and, on success,
// advances a derived job to the next stage named by the payload's
// workflow (or the fixed default chain).
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// Stage topic names. Queue keys are derived from these.
const (
	StageAcquisition = "acquisition"
	StageFiltering   = "filtering"
	StageResearch    = "research"
	StageEngagement  = "engagement"
	StageTracking    = "tracking"
)

// defaultNext is the legacy stage chain used when a job carries no
// explicit workflow. Tracking is terminal.
var defaultNext = map[string]string{
	StageAcquisition: StageFiltering,
	StageFiltering:   StageResearch,
	StageResearch:    StageEngagement,
	StageEngagement:  StageTracking,
}

var validStages = map[string]bool{
	StageAcquisition: true,
	StageFiltering:   true,
	StageResearch:    true,
	StageEngagement:  true,
	StageTracking:    true,
}

// Job is the unit moved between stage queues. Acquisition jobs carry
// platforms and criteria; later stages re-derive what they need from
// persisted data.
type Job struct {
	CampaignID       string          `json:"campaignId"`
	Platforms        []string        `json:"platforms,omitempty"`
	Criteria         models.Criteria `json:"criteria,omitempty"`
	Workflow         []string        `json:"workflow,omitempty"`
	CurrentStepIndex int             `json:"currentStepIndex"`
}

// ParseJob decodes and validates a payload for one stage. Validation
// happens here, at the consumption boundary, so a malformed job is a
// handler error that lands in the DLQ rather than a mid-stage panic.
func ParseJob(stage string, payload json.RawMessage) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("decoding %s job: %w", stage, err)
	}
	if err := job.validate(stage); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (j Job) validate(stage string) error {
	if j.CampaignID == "" {
		return fmt.Errorf("%s job missing campaignId", stage)
	}
	if len(j.Workflow) > 0 {
		if j.CurrentStepIndex < 0 || j.CurrentStepIndex >= len(j.Workflow) {
			return fmt.Errorf("%s job: step index %d outside workflow of length %d",
				stage, j.CurrentStepIndex, len(j.Workflow))
		}
		for _, step := range j.Workflow {
			if !validStages[step] {
				return fmt.Errorf("%s job: unknown workflow stage %q", stage, step)
			}
		}
	}
	if stage == StageAcquisition && len(j.Platforms) == 0 {
		return fmt.Errorf("acquisition job for campaign %s has no platforms", j.CampaignID)
	}
	return nil
}

// NextStage returns the successor topic and the derived payload for
// it. ok is false when this job terminates here.
func (j Job) NextStage(stage string) (string, Job, bool) {
	if len(j.Workflow) > 0 {
		nextIndex := j.CurrentStepIndex + 1
		if nextIndex >= len(j.Workflow) {
			return "", Job{}, false
		}
		next := Job{
			CampaignID:       j.CampaignID,
			Workflow:         j.Workflow,
			CurrentStepIndex: nextIndex,
		}
		return j.Workflow[nextIndex], next, true
	}

	successor, ok := defaultNext[stage]
	if !ok {
		return "", Job{}, false
	}
	return successor, Job{CampaignID: j.CampaignID}, true
}
