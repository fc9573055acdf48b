package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/coordflow/types"
)

func consensusTask(outputs map[string]any) *types.CoordinatedTask {
	task := &types.CoordinatedTask{
		ID:      "task_consensus",
		Type:    types.TaskConsensus,
		Status:  types.StatusAssigned,
		Results: make(map[string]*types.AgentResult),
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		out, ok := outputs[id]
		if !ok {
			continue
		}
		task.AssignedAgents = append(task.AssignedAgents, id)
		task.Results[id] = &types.AgentResult{AgentID: id, Success: true, Output: out}
	}
	return task
}

func TestManager_GroupsByStructuralEquality(t *testing.T) {
	m := NewManager(Config{Threshold: 0.9, Timeout: time.Minute}, nil, nil)

	task := consensusTask(map[string]any{
		"a": map[string]any{"x": 1, "y": 2},
		"b": map[string]any{"y": 2, "x": 1},
		"c": "other",
	})
	proposals := m.StartConsensus(task)

	require.Len(t, proposals, 2, "structurally equal outputs share one proposal")
	assert.Equal(t, "a", proposals[0].ProposerID)
	assert.Equal(t, 2, proposals[0].Approvals(), "supporters are pre-voted approve")
	assert.Equal(t, 1, proposals[1].Approvals())
}

func TestManager_PreVotesMeetingThresholdAcceptImmediately(t *testing.T) {
	m := NewManager(Config{Threshold: 0.66, Timeout: time.Minute}, nil, nil)

	accepted := make(chan *types.ConsensusProposal, 1)
	m.OnAccepted(func(_ string, p *types.ConsensusProposal) { accepted <- p })

	// 2 of 3 assigned agents propose "OK": 0.667 >= 0.66.
	task := consensusTask(map[string]any{"a": "OK", "b": "OK", "c": "FAIL"})
	m.StartConsensus(task)

	select {
	case p := <-accepted:
		assert.Equal(t, "OK", p.Output)
		assert.Equal(t, types.ProposalAccepted, p.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("acceptance callback never fired")
	}
}

func TestManager_ProposalAccessorsReturnSnapshots(t *testing.T) {
	m := NewManager(Config{Threshold: 0.9, Timeout: time.Minute}, nil, nil)

	task := consensusTask(map[string]any{"a": "X", "b": "Y"})
	proposals := m.StartConsensus(task)
	require.Len(t, proposals, 2)

	snap, err := m.GetProposal(proposals[0].ID)
	require.NoError(t, err)
	snap.Status = types.ProposalRejected
	snap.Votes["b"] = types.VoteDecision{AgentID: "b", Approve: true}

	fresh, err := m.GetProposal(proposals[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalPending, fresh.Status)
	assert.Equal(t, 1, fresh.Approvals())

	forTask := m.ProposalsForTask(task.ID)
	require.Len(t, forTask, 2)
	forTask[0].Votes["b"] = types.VoteDecision{AgentID: "b", Approve: true}
	again, err := m.GetProposal(forTask[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Approvals())
}

func TestManager_VoteDrivesAcceptanceAndRejectsSiblings(t *testing.T) {
	m := NewManager(Config{Threshold: 0.75, Timeout: time.Minute}, nil, nil)

	accepted := make(chan *types.ConsensusProposal, 1)
	m.OnAccepted(func(_ string, p *types.ConsensusProposal) { accepted <- p })

	task := consensusTask(map[string]any{"a": "X", "b": "X", "c": "Y", "d": "Y"})
	proposals := m.StartConsensus(task)
	require.Len(t, proposals, 2)

	// 2/4 each; nothing accepted yet.
	select {
	case <-accepted:
		t.Fatal("no proposal should be accepted below threshold")
	case <-time.After(50 * time.Millisecond):
	}

	// c switches to X: 3/4 = 0.75.
	require.NoError(t, m.SubmitVote(proposals[0].ID, types.VoteDecision{AgentID: "c", Approve: true}))

	select {
	case p := <-accepted:
		assert.Equal(t, "X", p.Output)
	case <-time.After(2 * time.Second):
		t.Fatal("acceptance callback never fired")
	}

	assert.Equal(t, types.ProposalAccepted, proposals[0].Status)
	assert.Equal(t, types.ProposalRejected, proposals[1].Status)
}

func TestManager_RejectionVoteNeverAccepts(t *testing.T) {
	m := NewManager(Config{Threshold: 0.5, Timeout: time.Minute}, nil, nil)

	task := consensusTask(map[string]any{"a": "X", "b": "Y", "c": "Z", "d": "W"})
	proposals := m.StartConsensus(task)

	require.NoError(t, m.SubmitVote(proposals[0].ID, types.VoteDecision{AgentID: "b", Approve: false}))
	assert.Equal(t, types.ProposalPending, proposals[0].Status)
}

func TestManager_DuplicateVoteOverwrites(t *testing.T) {
	m := NewManager(Config{Threshold: 0.99, Timeout: time.Minute}, nil, nil)

	task := consensusTask(map[string]any{"a": "X", "b": "Y", "c": "Z"})
	proposals := m.StartConsensus(task)
	p := proposals[0]

	require.NoError(t, m.SubmitVote(p.ID, types.VoteDecision{AgentID: "b", Approve: true}))
	assert.Equal(t, 2, p.Approvals())

	require.NoError(t, m.SubmitVote(p.ID, types.VoteDecision{AgentID: "b", Approve: false}))
	assert.Equal(t, 1, p.Approvals(), "later vote replaces the earlier one")
}

func TestManager_VoteValidation(t *testing.T) {
	m := NewManager(Config{Threshold: 0.9, Timeout: time.Minute}, nil, nil)

	task := consensusTask(map[string]any{"a": "X", "b": "Y", "c": "Z"})
	proposals := m.StartConsensus(task)
	p := proposals[0]

	err := m.SubmitVote("prop_missing", types.VoteDecision{AgentID: "a", Approve: true})
	assert.True(t, types.IsCode(err, types.ErrUnknownProposal))

	err = m.SubmitVote(p.ID, types.VoteDecision{AgentID: "outsider", Approve: true})
	assert.True(t, types.IsCode(err, types.ErrAgentNotVoter))
}

func TestManager_VoteOnSettledProposalRejected(t *testing.T) {
	m := NewManager(Config{Threshold: 0.5, Timeout: time.Minute}, nil, nil)

	task := consensusTask(map[string]any{"a": "X", "b": "X", "c": "Y"})
	proposals := m.StartConsensus(task) // X accepted immediately: 2/3 >= 0.5
	require.Equal(t, types.ProposalAccepted, proposals[0].Status)

	err := m.SubmitVote(proposals[1].ID, types.VoteDecision{AgentID: "c", Approve: true})
	assert.True(t, types.IsCode(err, types.ErrProposalNotPending))
}

func TestManager_TimeoutFailsRound(t *testing.T) {
	m := NewManager(Config{Threshold: 0.9, Timeout: 20 * time.Millisecond}, nil, nil)

	failed := make(chan map[string]int, 1)
	m.OnFailed(func(_ string, approvals map[string]int) { failed <- approvals })

	task := consensusTask(map[string]any{"a": "X", "b": "Y", "c": "Z"})
	proposals := m.StartConsensus(task)

	select {
	case approvals := <-failed:
		assert.Len(t, approvals, 3)
		for _, p := range proposals {
			assert.Equal(t, types.ProposalTimeout, p.Status)
			assert.Equal(t, 1, approvals[p.ID])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback never fired")
	}
}

func TestManager_SetThresholdAppliesToNewRounds(t *testing.T) {
	m := NewManager(Config{Threshold: 0.66, Timeout: time.Minute}, nil, nil)

	accepted := make(chan *types.ConsensusProposal, 1)
	m.OnAccepted(func(_ string, p *types.ConsensusProposal) { accepted <- p })
	m.SetThreshold(0.9)

	// 2/3 = 0.667 cleared the old threshold but not the raised one.
	task := consensusTask(map[string]any{"a": "X", "b": "X", "c": "Y"})
	proposals := m.StartConsensus(task)

	select {
	case <-accepted:
		t.Fatal("2/3 must not clear a 0.9 threshold")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, types.ProposalPending, proposals[0].Status)
}

func TestManager_GetProposal(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, nil)

	task := consensusTask(map[string]any{"a": "X", "b": "Y", "c": "Z"})
	proposals := m.StartConsensus(task)

	got, err := m.GetProposal(proposals[0].ID)
	require.NoError(t, err)
	assert.Equal(t, proposals[0], got)

	_, err = m.GetProposal("prop_missing")
	assert.True(t, types.IsCode(err, types.ErrUnknownProposal))

	assert.Len(t, m.ProposalsForTask(task.ID), 3)
	assert.Nil(t, m.ProposalsForTask("task_missing"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.66, cfg.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
