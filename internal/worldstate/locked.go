package worldstate

// The methods in this file assume the caller already holds the state
// lock (via Lock/Unlock). They exist for the tick engine, which
// processes a whole tick — many agent and region lookups and
// mutations — under a single critical section rather than re-acquiring
// the lock per operation.

// AgentUnlocked returns the agent with the given id without locking.
func (s *State) AgentUnlocked(id string) *Agent {
	return s.Agents[id]
}

// PutAgentUnlocked inserts or replaces an agent without locking, placing
// it into its region's occupant set.
func (s *State) PutAgentUnlocked(a *Agent) {
	s.Agents[a.ID] = a
	if r := s.Regions.Get(a.Region); r != nil {
		r.AddOccupant(a.ID)
	}
}

// RemoveOccupantUnlocked removes an agent id from its current region's
// occupant set without locking.
func (s *State) RemoveOccupantUnlocked(a *Agent) {
	if r := s.Regions.Get(a.Region); r != nil {
		r.RemoveOccupant(a.ID)
	}
}

// MoveOccupantUnlocked moves an agent from one region's occupant set to
// another without locking.
func (s *State) MoveOccupantUnlocked(a *Agent, fromID, toID string) {
	if r := s.Regions.Get(fromID); r != nil {
		r.RemoveOccupant(a.ID)
	}
	if r := s.Regions.Get(toID); r != nil {
		r.AddOccupant(a.ID)
	}
}

// AllAgentsSummaryUnlocked is the non-locking variant of
// AllAgentsSummary.
func (s *State) AllAgentsSummaryUnlocked() map[string]AgentSummary {
	out := make(map[string]AgentSummary, len(s.Agents))
	for id, a := range s.Agents {
		out[id] = AgentSummary{Region: a.Region, Status: a.Status}
	}
	return out
}

// RecordAllianceProposalUnlocked appends a proposal without locking.
func (s *State) RecordAllianceProposalUnlocked(from, to string, tick uint64) {
	s.AllianceProposals = append(s.AllianceProposals, AllianceProposal{From: from, To: to, Tick: tick})
}

// AdvanceTickUnlocked increments the tick counter without locking.
func (s *State) AdvanceTickUnlocked() uint64 {
	s.Tick++
	return s.Tick
}

// Regions is an exported field on State; the tick engine reads it
// directly while holding the lock rather than through an accessor.
