package types

import "time"

// ProposalStatus is the lifecycle state of a consensus proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
	ProposalTimeout  ProposalStatus = "timeout"
)

// VoteDecision is one agent's vote on a proposal.
type VoteDecision struct {
	AgentID   string    `json:"agent_id"`
	Approve   bool      `json:"approve"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsensusProposal is a candidate output for a consensus task.
// Every agent whose result matches the proposed output is pre-voted
// approve at creation time.
type ConsensusProposal struct {
	ID         string                  `json:"id"`
	TaskID     string                  `json:"task_id"`
	ProposerID string                  `json:"proposer_id"`
	Output     any                     `json:"output,omitempty"`
	Votes      map[string]VoteDecision `json:"votes"`
	Status     ProposalStatus          `json:"status"`
	CreatedAt  time.Time               `json:"created_at"`
	Deadline   time.Time               `json:"deadline"`
}

// Clone returns a copy whose vote map is detached from the original.
func (p *ConsensusProposal) Clone() *ConsensusProposal {
	cp := *p
	cp.Votes = make(map[string]VoteDecision, len(p.Votes))
	for id, v := range p.Votes {
		cp.Votes[id] = v
	}
	return &cp
}

// Approvals counts approve votes.
func (p *ConsensusProposal) Approvals() int {
	n := 0
	for _, v := range p.Votes {
		if v.Approve {
			n++
		}
	}
	return n
}
