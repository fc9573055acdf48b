package types

import "github.com/google/uuid"

// ID constructors for the engine's keyed records. The prefix makes log
// lines and event payloads self-describing.

func NewTaskID() string     { return "task_" + uuid.NewString() }
func NewProposalID() string { return "prop_" + uuid.NewString() }
func NewConflictID() string { return "conflict_" + uuid.NewString() }
