package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Subjects carrying distribution events.
const (
	SubjectDistributionPrefix  = "leadsplit.distribution"
	SubjectDistributionCreated = SubjectDistributionPrefix + ".created"
)

// AgentAssignment summarises one agent's share of a distribution.
type AgentAssignment struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Records   int    `json:"records"`
}

// DistributionCreated is published after a distribution has been saved.
type DistributionCreated struct {
	DistributionID string            `json:"distributionId"`
	FileName       string            `json:"fileName"`
	TotalRecords   int               `json:"totalRecords"`
	PlanDigest     string            `json:"planDigest"`
	UploadedBy     string            `json:"uploadedBy"`
	Assignments    []AgentAssignment `json:"assignments"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// PublishDistributionCreated encodes and publishes ev.
func PublishDistributionCreated(ctx context.Context, b MessageBus, ev DistributionCreated) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode distribution event: %w", err)
	}
	return b.Publish(ctx, SubjectDistributionCreated, data)
}

// DecodeDistributionCreated parses a message produced by
// PublishDistributionCreated.
func DecodeDistributionCreated(msg *Message) (DistributionCreated, error) {
	var ev DistributionCreated
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return ev, fmt.Errorf("decode distribution event: %w", err)
	}
	return ev, nil
}
