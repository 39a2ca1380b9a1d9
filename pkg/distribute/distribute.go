// Package distribute splits a list of contact records across a roster of
// agents in near-equal contiguous shares.
package distribute

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/gowebpki/jcs"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
	"github.com/odvcencio/leadsplit/pkg/ingest"
)

// ErrNoAgents indicates that distribution was attempted with an empty roster.
var ErrNoAgents = errors.New("no agents available for distribution")

// AgentRef identifies one roster member. The distributor copies it into the
// plan untouched.
type AgentRef struct {
	ID   string `json:"agentId"`
	Name string `json:"agentName"`
}

// Share is the contiguous run of records assigned to one agent.
type Share struct {
	Agent   AgentRef        `json:"agent"`
	Records []ingest.Record `json:"records"`
}

// Plan is the outcome of one distribution run. Shares follow roster order.
type Plan struct {
	TotalRecords int     `json:"totalRecords"`
	Shares       []Share `json:"shares"`
}

// Distribute partitions records across agents.
//
// The algorithm:
//  1. base = n / k records per agent, extra = n % k
//  2. walk the roster in order; the first extra agents take base+1
//  3. each agent's share is the next contiguous slice of records
//
// Every agent gets a share, possibly empty when there are fewer records than
// agents. Share sizes differ by at most one and sum to len(records).
//
// Returns an error matching ErrNoAgents when agents is empty.
func Distribute(records []ingest.Record, agents []AgentRef) (*Plan, error) {
	if len(agents) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeNoAgents, "cannot distribute without agents").
			WithContext("records", len(records)).
			WithUserMessage("No active agents found. Please create agents first.").
			WithCause(ErrNoAgents)
	}

	sizes := ShareSizes(len(records), len(agents))
	plan := &Plan{
		TotalRecords: len(records),
		Shares:       make([]Share, len(agents)),
	}

	cursor := 0
	for i, agent := range agents {
		next := cursor + sizes[i]
		plan.Shares[i] = Share{
			Agent:   agent,
			Records: slices.Clone(records[cursor:next]),
		}
		if plan.Shares[i].Records == nil {
			plan.Shares[i].Records = []ingest.Record{}
		}
		cursor = next
	}

	return plan, nil
}

// ShareSizes returns the share size for each of k roster positions when n
// records are split. The remainder goes to the earliest positions.
func ShareSizes(n, k int) []int {
	if k <= 0 {
		return nil
	}
	base, extra := n/k, n%k
	sizes := make([]int, k)
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}

// Sizes reports the record count of each share in roster order.
func (p *Plan) Sizes() []int {
	sizes := make([]int, len(p.Shares))
	for i, s := range p.Shares {
		sizes[i] = len(s.Records)
	}
	return sizes
}

// Digest returns the sha256 of the plan's RFC 8785 canonical JSON, so two
// identical plans hash the same regardless of encoder field order.
func (p *Plan) Digest() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize plan: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
