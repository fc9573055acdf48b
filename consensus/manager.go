// Package consensus implements the agreement protocol over a task's
// collected results: distinct outputs become proposals, assigned agents
// vote, and a proposal is accepted once its approval ratio reaches the
// configured threshold.
package consensus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coordflow/event"
	"github.com/BaSui01/coordflow/types"
)

// Config configures the consensus protocol.
type Config struct {
	// Threshold is the acceptance ratio tau in (0,1]: approvals divided
	// by the total number of agents assigned to the parent task.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// Timeout is how long a round may stay open before evaluation.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the default threshold and timeout.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.66,
		Timeout:   30 * time.Second,
	}
}

// AcceptedFunc is invoked when a proposal is accepted for a task.
type AcceptedFunc func(taskID string, proposal *types.ConsensusProposal)

// FailedFunc is invoked when a round times out without acceptance, with
// per-proposal approval counts.
type FailedFunc func(taskID string, approvals map[string]int)

// round captures the parameters frozen at StartConsensus time. Threshold
// and timeout changes apply only to subsequently started rounds.
type round struct {
	taskID        string
	threshold     float64
	assigned      []string // voter set: the task's assigned agents
	assignedCount int
	proposals     []*types.ConsensusProposal
	timer         *time.Timer
	settled       bool
}

// Manager runs consensus rounds. All state mutation happens under one
// mutex; accept/fail callbacks run on their own goroutine so a callback
// that re-enters the coordinator can never deadlock against a caller
// holding the coordinator lock.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	proposals map[string]*types.ConsensusProposal
	rounds    map[string]*round // task ID -> active round

	onAccepted AcceptedFunc
	onFailed   FailedFunc

	bus    event.Bus
	logger *zap.Logger
}

// NewManager creates a consensus manager. The bus is optional.
func NewManager(cfg Config, bus event.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Manager{
		cfg:       cfg,
		proposals: make(map[string]*types.ConsensusProposal),
		rounds:    make(map[string]*round),
		bus:       bus,
		logger:    logger.With(zap.String("component", "consensus_manager")),
	}
}

// OnAccepted installs the acceptance callback.
func (m *Manager) OnAccepted(fn AcceptedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAccepted = fn
}

// OnFailed installs the failure callback.
func (m *Manager) OnFailed(fn FailedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed = fn
}

// SetThreshold updates tau for subsequently started rounds.
func (m *Manager) SetThreshold(threshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if threshold > 0 && threshold <= 1 {
		m.cfg.Threshold = threshold
	}
}

// SetTimeout updates the round timeout for subsequently started rounds.
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timeout > 0 {
		m.cfg.Timeout = timeout
	}
}

// StartConsensus opens a round for the task: successful results are
// grouped by structural equality, each distinct output becomes a proposal
// pre-voted approve by its supporting agents, and an evaluation is
// scheduled at the round timeout. Pre-votes count like submitted votes,
// so a group already at the threshold is accepted immediately.
func (m *Manager) StartConsensus(task *types.CoordinatedTask) []*types.ConsensusProposal {
	now := time.Now()

	m.mu.Lock()
	rnd := &round{
		taskID:        task.ID,
		threshold:     m.cfg.Threshold,
		assigned:      append([]string(nil), task.AssignedAgents...),
		assignedCount: len(task.AssignedAgents),
	}
	deadline := now.Add(m.cfg.Timeout)

	groups := make(map[string]*types.ConsensusProposal)
	order := make([]string, 0, 4)
	for _, res := range task.SuccessfulResults() {
		key := types.Canonical(res.Output)
		p, ok := groups[key]
		if !ok {
			p = &types.ConsensusProposal{
				ID:         types.NewProposalID(),
				TaskID:     task.ID,
				ProposerID: res.AgentID,
				Output:     res.Output,
				Votes:      make(map[string]types.VoteDecision),
				Status:     types.ProposalPending,
				CreatedAt:  now,
				Deadline:   deadline,
			}
			groups[key] = p
			order = append(order, key)
		}
		p.Votes[res.AgentID] = types.VoteDecision{
			AgentID:   res.AgentID,
			Approve:   true,
			Reason:    "proposed output",
			Timestamp: now,
		}
	}

	for _, key := range order {
		p := groups[key]
		rnd.proposals = append(rnd.proposals, p)
		m.proposals[p.ID] = p
	}
	m.rounds[task.ID] = rnd

	rnd.timer = time.AfterFunc(m.cfg.Timeout, func() {
		m.evaluateTimeout(task.ID)
	})

	proposals := make([]*types.ConsensusProposal, len(rnd.proposals))
	copy(proposals, rnd.proposals)

	// Pre-recorded approvals may already satisfy tau.
	accepted := m.tryAcceptLocked(rnd)
	m.mu.Unlock()

	for _, p := range proposals {
		m.publish(&event.ProposalCreatedEvent{
			TaskID:     task.ID,
			ProposalID: p.ID,
			ProposerID: p.ProposerID,
			Approvals:  p.Approvals(),
			Timestamp_: now,
		})
	}
	m.logger.Info("consensus round started",
		zap.String("task_id", task.ID),
		zap.Int("proposals", len(proposals)),
		zap.Float64("threshold", rnd.threshold),
	)

	if accepted != nil {
		m.fireAccepted(task.ID, accepted, rnd)
	}
	return proposals
}

// SubmitVote records a vote. A duplicate vote by the same agent
// overwrites its previous decision. On each approval the ratio is
// recomputed against the total assigned agents of the parent task and the
// proposal accepted the moment it reaches the threshold.
func (m *Manager) SubmitVote(proposalID string, vote types.VoteDecision) error {
	m.mu.Lock()

	p, ok := m.proposals[proposalID]
	if !ok {
		m.mu.Unlock()
		return types.NewError(types.ErrUnknownProposal, "proposal %s not found", proposalID)
	}
	if p.Status != types.ProposalPending {
		m.mu.Unlock()
		return types.NewError(types.ErrProposalNotPending, "proposal %s is %s", proposalID, p.Status)
	}

	rnd := m.rounds[p.TaskID]
	if rnd == nil || !m.isVoter(rnd, vote.AgentID) {
		m.mu.Unlock()
		return types.NewError(types.ErrAgentNotVoter, "agent %s is not assigned to task %s", vote.AgentID, p.TaskID)
	}

	if vote.Timestamp.IsZero() {
		vote.Timestamp = time.Now()
	}
	p.Votes[vote.AgentID] = vote

	var accepted *types.ConsensusProposal
	if vote.Approve {
		accepted = m.tryAcceptLocked(rnd)
	}
	m.mu.Unlock()

	m.publish(&event.VoteSubmittedEvent{
		TaskID:     p.TaskID,
		ProposalID: proposalID,
		AgentID:    vote.AgentID,
		Approve:    vote.Approve,
		Timestamp_: vote.Timestamp,
	})

	if accepted != nil {
		m.fireAccepted(p.TaskID, accepted, rnd)
	}
	return nil
}

// isVoter reports whether agentID is in the round's voter set, the
// task's assigned agents captured at round start.
func (m *Manager) isVoter(rnd *round, agentID string) bool {
	for _, id := range rnd.assigned {
		if id == agentID {
			return true
		}
	}
	return false
}

// tryAcceptLocked accepts the first pending proposal at or above the
// threshold, rejecting its pending siblings. Returns the accepted
// proposal, or nil.
func (m *Manager) tryAcceptLocked(rnd *round) *types.ConsensusProposal {
	if rnd.settled || rnd.assignedCount == 0 {
		return nil
	}
	for _, p := range rnd.proposals {
		if p.Status != types.ProposalPending {
			continue
		}
		ratio := float64(p.Approvals()) / float64(rnd.assignedCount)
		if ratio >= rnd.threshold {
			m.settleLocked(rnd, p, types.ProposalRejected)
			return p
		}
	}
	return nil
}

// settleLocked marks p accepted and every other pending sibling with
// siblingStatus, stopping the round timer.
func (m *Manager) settleLocked(rnd *round, p *types.ConsensusProposal, siblingStatus types.ProposalStatus) {
	p.Status = types.ProposalAccepted
	for _, sibling := range rnd.proposals {
		if sibling != p && sibling.Status == types.ProposalPending {
			sibling.Status = siblingStatus
		}
	}
	rnd.settled = true
	if rnd.timer != nil {
		rnd.timer.Stop()
	}
}

// evaluateTimeout runs when the round deadline passes: the pending
// proposal with the most approvals is accepted if it clears the
// threshold; otherwise every pending proposal is marked timed out and the
// failure callback fires with the approval tallies.
func (m *Manager) evaluateTimeout(taskID string) {
	m.mu.Lock()
	rnd := m.rounds[taskID]
	if rnd == nil || rnd.settled {
		m.mu.Unlock()
		return
	}

	var best *types.ConsensusProposal
	for _, p := range rnd.proposals {
		if p.Status != types.ProposalPending {
			continue
		}
		if best == nil || p.Approvals() > best.Approvals() {
			best = p
		}
	}

	var accepted *types.ConsensusProposal
	approvals := make(map[string]int, len(rnd.proposals))
	if best != nil && rnd.assignedCount > 0 &&
		float64(best.Approvals())/float64(rnd.assignedCount) >= rnd.threshold {
		m.settleLocked(rnd, best, types.ProposalRejected)
		accepted = best
	} else {
		for _, p := range rnd.proposals {
			approvals[p.ID] = p.Approvals()
			if p.Status == types.ProposalPending {
				p.Status = types.ProposalTimeout
			}
		}
		rnd.settled = true
	}
	m.mu.Unlock()

	if accepted != nil {
		m.fireAccepted(taskID, accepted, rnd)
		return
	}

	m.logger.Info("consensus round timed out",
		zap.String("task_id", taskID),
		zap.Int("proposals", len(approvals)),
	)
	m.publish(&event.ConsensusFailedEvent{
		TaskID:     taskID,
		Approvals:  approvals,
		Timestamp_: time.Now(),
	})
	m.mu.Lock()
	onFailed := m.onFailed
	m.mu.Unlock()
	if onFailed != nil {
		go onFailed(taskID, approvals)
	}
}

func (m *Manager) fireAccepted(taskID string, p *types.ConsensusProposal, rnd *round) {
	ratio := 0.0
	if rnd.assignedCount > 0 {
		ratio = float64(p.Approvals()) / float64(rnd.assignedCount)
	}
	m.logger.Info("consensus reached",
		zap.String("task_id", taskID),
		zap.String("proposal_id", p.ID),
		zap.Int("approvals", p.Approvals()),
		zap.Float64("ratio", ratio),
	)
	m.publish(&event.ConsensusReachedEvent{
		TaskID:     taskID,
		ProposalID: p.ID,
		Approvals:  p.Approvals(),
		Ratio:      ratio,
		Timestamp_: time.Now(),
	})

	m.mu.Lock()
	onAccepted := m.onAccepted
	m.mu.Unlock()
	if onAccepted != nil {
		go onAccepted(taskID, p)
	}
}

// GetProposal returns a snapshot of a proposal by ID, detached from the
// round's live state.
func (m *Manager) GetProposal(proposalID string) (*types.ConsensusProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[proposalID]
	if !ok {
		return nil, types.NewError(types.ErrUnknownProposal, "proposal %s not found", proposalID)
	}
	return p.Clone(), nil
}

// ProposalsForTask returns snapshots of a task's round proposals in
// creation order.
func (m *Manager) ProposalsForTask(taskID string) []*types.ConsensusProposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	rnd, ok := m.rounds[taskID]
	if !ok {
		return nil
	}
	out := make([]*types.ConsensusProposal, 0, len(rnd.proposals))
	for _, p := range rnd.proposals {
		out = append(out, p.Clone())
	}
	return out
}

func (m *Manager) publish(ev event.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
