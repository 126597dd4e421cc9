// Package worldstate holds the canonical mutable store: agents, regions,
// the tick counter, and the outstanding trade/alliance bookkeeping that
// lives alongside them. A single (non-reentrant) mutex guards every read
// and write.
package worldstate

import (
	"github.com/talgya/observatory/internal/region"
	"github.com/talgya/observatory/internal/resources"
)

// Status is an agent's lifecycle stage.
type Status string

const (
	StatusUnclaimed Status = "unclaimed"
	StatusClaimed   Status = "claimed"
	StatusDead      Status = "dead"
)

// Agent is the canonical representation of one world inhabitant.
//
// Fields are grouped by concern, matching the shape of the claim and
// observer views derived from them.
type Agent struct {
	// Identity
	ID          string `json:"agent_id"`
	DisplayName string `json:"display_name"`
	PublicKey   string `json:"public_key"`

	// Location
	Region string `json:"region"`

	// Economy
	Resources resources.Pool `json:"resources"`

	// Lifecycle
	Status        Status  `json:"status"`
	OwnerIdentity string  `json:"owner_identity,omitempty"`
	ClaimToken    string  `json:"claim_token,omitempty"`
	ClaimExpires  int64   `json:"claim_token_expires,omitempty"`
	CreatedAtTick uint64  `json:"created_at_tick"`
	DiedAtTick    *uint64 `json:"died_at_tick,omitempty"`
	ParentAgent   string  `json:"parent_agent,omitempty"`

	// Social
	Alliances []string `json:"alliances"`

	// Metadata is a free-form, forward-compatible extension bag. No rule
	// interprets its contents.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsAlive reports whether the agent may still act (unclaimed or claimed).
func (a *Agent) IsAlive() bool {
	return a.Status == StatusUnclaimed || a.Status == StatusClaimed
}

// IsClaimed reports whether the agent has a verified human owner.
func (a *Agent) IsClaimed() bool {
	return a.Status == StatusClaimed
}

// HasAlliance reports whether targetID is already in the agent's
// alliance list.
func (a *Agent) HasAlliance(targetID string) bool {
	for _, id := range a.Alliances {
		if id == targetID {
			return true
		}
	}
	return false
}

// PublicView is the observer-safe projection of an Agent: it elides
// PublicKey and ClaimToken/ClaimExpires, the agent's authentication
// secrets.
type PublicView struct {
	ID            string   `json:"agent_id"`
	DisplayName   string   `json:"display_name"`
	Region        string   `json:"region"`
	Resources     resources.Pool `json:"resources"`
	Status        Status   `json:"status"`
	OwnerIdentity string   `json:"owner_identity,omitempty"`
	CreatedAtTick uint64   `json:"created_at_tick"`
	DiedAtTick    *uint64  `json:"died_at_tick,omitempty"`
	ParentAgent   string   `json:"parent_agent,omitempty"`
	Alliances     []string `json:"alliances"`
}

// Public returns the observer-safe view of the agent.
func (a *Agent) Public() PublicView {
	return PublicView{
		ID:            a.ID,
		DisplayName:   a.DisplayName,
		Region:        a.Region,
		Resources:     a.Resources,
		Status:        a.Status,
		OwnerIdentity: a.OwnerIdentity,
		CreatedAtTick: a.CreatedAtTick,
		DiedAtTick:    a.DiedAtTick,
		ParentAgent:   a.ParentAgent,
		Alliances:     a.Alliances,
	}
}

// RegionOf resolves an agent's current Region object from a manager,
// returning nil if the agent's region id is unknown.
func RegionOf(a *Agent, regions *region.Manager) *region.Region {
	return regions.Get(a.Region)
}
