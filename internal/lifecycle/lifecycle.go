// Package lifecycle manages agent registration completion: the
// single-use claim token flow that transitions an agent from unclaimed
// to claimed, and the kill transition to dead.
package lifecycle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/talgya/observatory/internal/worldstate"
)

// MaxClaimAttempts is the rate limit on claim-token validation attempts.
const MaxClaimAttempts = 5

// ClaimTokenExpiry is how long a claim token remains valid after
// registration.
const ClaimTokenExpiry = 24 * time.Hour

// ClaimError reports why a claim attempt failed.
type ClaimError struct {
	Reason string
}

func (e *ClaimError) Error() string { return e.Reason }

// Manager coordinates claim-token validation, claiming, and killing
// against a world state.
type Manager struct {
	mu       sync.Mutex
	attempts map[string]int
	state    *worldstate.State
}

// NewManager returns a lifecycle manager bound to state.
func NewManager(state *worldstate.State) *Manager {
	return &Manager{attempts: make(map[string]int), state: state}
}

// findByClaimToken linear-scans for the agent holding this claim token.
// Must be called with the world lock held.
func findByClaimToken(state *worldstate.State, token string) *worldstate.Agent {
	for _, a := range state.Agents {
		if a.ClaimToken == token {
			return a
		}
	}
	return nil
}

// validate consumes one rate-limit attempt for token — even if the
// token turns out not to exist — before checking that it resolves to an
// unclaimed, unexpired agent. Consuming the attempt before existence is
// checked keeps the rate limit meaningful against enumeration attempts.
func (m *Manager) validate(token string) (*worldstate.Agent, *ClaimError) {
	m.mu.Lock()
	m.attempts[token]++
	attempts := m.attempts[token]
	m.mu.Unlock()

	if attempts > MaxClaimAttempts {
		return nil, &ClaimError{Reason: "too many claim attempts for this token"}
	}

	m.state.Lock()
	defer m.state.Unlock()

	agent := findByClaimToken(m.state, token)
	if agent == nil {
		return nil, &ClaimError{Reason: "claim token not found"}
	}
	if agent.Status != worldstate.StatusUnclaimed {
		return nil, &ClaimError{Reason: "agent is already claimed"}
	}
	if time.Now().Unix() > agent.ClaimExpires {
		return nil, &ClaimError{Reason: "claim token has expired"}
	}
	return agent, nil
}

// Claim completes the ownership claim: sets status to claimed, records
// owner_identity, and atomically clears the claim token so reuse is
// impossible.
func (m *Manager) Claim(token, ownerIdentity, verificationMethod string) (*worldstate.Agent, *ClaimError) {
	if strings.TrimSpace(ownerIdentity) == "" {
		return nil, &ClaimError{Reason: "owner_identity is required"}
	}

	agent, cerr := m.validate(token)
	if cerr != nil {
		return nil, cerr
	}

	m.state.Lock()
	defer m.state.Unlock()

	agent.Status = worldstate.StatusClaimed
	agent.OwnerIdentity = ownerIdentity
	agent.ClaimToken = ""
	agent.ClaimExpires = 0
	if agent.Metadata == nil {
		agent.Metadata = map[string]string{}
	}
	agent.Metadata["verification_method"] = verificationMethod

	return agent, nil
}

// VerificationPhrase returns the deterministic phrase an operator posts
// out-of-band to prove control of the claim token, consuming one
// rate-limit attempt in the process (fetching the phrase is itself a
// claim-token presentation).
func (m *Manager) VerificationPhrase(token string) (string, *ClaimError) {
	_, cerr := m.validate(token)
	if cerr != nil {
		return "", cerr
	}
	shortCode := strings.ToUpper(token)
	if len(shortCode) > 8 {
		shortCode = shortCode[:8]
	}
	return fmt.Sprintf("I am verifying ownership of my agent on The Observatory. Code: %s", shortCode), nil
}

// Kill transitions an agent to dead, records the tick and cause, and
// removes it from its region's occupant set. The agent's id remains
// visible in the ledger and via replay.
func (m *Manager) Kill(agentID, cause string, tick uint64) bool {
	m.state.Lock()
	defer m.state.Unlock()

	agent := m.state.AgentUnlocked(agentID)
	if agent == nil || !agent.IsAlive() {
		return false
	}

	m.state.RemoveOccupantUnlocked(agent)
	agent.Status = worldstate.StatusDead
	died := tick
	agent.DiedAtTick = &died
	if agent.Metadata == nil {
		agent.Metadata = map[string]string{}
	}
	agent.Metadata["death_cause"] = cause

	return true
}
