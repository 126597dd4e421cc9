// Package replay reconstructs the world as it existed at any historical
// tick by folding the ledger's events forward from empty state, and
// serves per-agent and world-wide event timelines. It never mutates the
// live world; it only derives read-only views from already-recorded
// events.
package replay

import (
	"github.com/talgya/observatory/internal/ledger"
	"github.com/talgya/observatory/internal/region"
)

// Engine replays a ledger's events to produce historical snapshots.
type Engine struct {
	ledger *ledger.Ledger
}

// New returns a replay engine reading from led.
func New(led *ledger.Ledger) *Engine {
	return &Engine{ledger: led}
}

// AgentSnapshot is one agent's reconstructed state at a target tick.
type AgentSnapshot struct {
	AgentID        string   `json:"agent_id"`
	Status         string   `json:"status"`
	Region         string   `json:"region"`
	OwnerIdentity  string   `json:"owner_identity,omitempty"`
	ParentAgent    string   `json:"parent_agent,omitempty"`
	Alliances      []string `json:"alliances"`
	CreatedAtTick  uint64   `json:"created_at_tick"`
	DiedAtTick     *uint64  `json:"died_at_tick,omitempty"`
}

// Snapshot is a reconstructed world state at a target tick.
type Snapshot struct {
	Tick        uint64                    `json:"tick"`
	Agents      map[string]*AgentSnapshot `json:"agents"`
	Regions     map[string]any            `json:"regions"`
	TotalEvents int                       `json:"total_events"`
}

// ReconstructAtTick folds every successful event with tick <= targetTick
// into a fresh world, applying each event's effect in order, and returns
// the resulting snapshot. Regions start from the same defaults the live
// world starts from, since no event currently alters region geometry.
func (e *Engine) ReconstructAtTick(targetTick uint64) Snapshot {
	events := e.ledger.Get(ledger.Query{FromTick: 0, ToTick: targetTick, Limit: 1_000_000})

	agents := make(map[string]*AgentSnapshot)
	regions := region.NewManager()

	for _, ev := range events {
		applyEvent(ev, agents, regions)
	}

	snap := regions.Snapshot()
	regionsOut := make(map[string]any, len(snap))
	for id, r := range snap {
		regionsOut[id] = r
	}

	return Snapshot{
		Tick:        targetTick,
		Agents:      agents,
		Regions:     regionsOut,
		TotalEvents: len(events),
	}
}

func applyEvent(ev ledger.Event, agents map[string]*AgentSnapshot, regions *region.Manager) {
	if !ev.Success {
		return
	}

	switch ev.ActionType {
	case "tick":
		return

	case "register":
		agents[ev.AgentID] = &AgentSnapshot{
			AgentID:       ev.AgentID,
			Status:        "unclaimed",
			Region:        stringDetail(ev.Details, "spawn_region", region.SpawnRegionID),
			Alliances:     []string{},
			CreatedAtTick: ev.Tick,
		}

	case "claim":
		if a, ok := agents[ev.AgentID]; ok {
			a.Status = "claimed"
			a.OwnerIdentity = stringDetail(ev.Details, "owner_identity", "")
		}

	case "death":
		if a, ok := agents[ev.AgentID]; ok {
			a.Status = "dead"
			died := ev.Tick
			a.DiedAtTick = &died
		}

	case "move":
		if a, ok := agents[ev.AgentID]; ok {
			a.Region = stringDetail(ev.Details, "to_region", a.Region)
		}

	case "fork":
		childName := stringDetail(ev.Details, "child_name", "")
		if childName == "" {
			return
		}
		parentStatus := "unclaimed"
		if p, ok := agents[ev.AgentID]; ok {
			parentStatus = p.Status
		}
		agents[childName] = &AgentSnapshot{
			AgentID:       childName,
			Status:        parentStatus,
			Region:        stringDetail(ev.Details, "spawn_region", region.SpawnRegionID),
			ParentAgent:   ev.AgentID,
			CreatedAtTick: ev.Tick,
		}

	case "merge":
		absorbed := stringDetail(ev.Details, "absorbed_agent", "")
		if a, ok := agents[absorbed]; absorbed != "" && ok {
			a.Status = "dead"
			died := ev.Tick
			a.DiedAtTick = &died
		}

	case "attack":
		// Attack effects surface as a subsequent death event.

	case "ally":
		target := stringDetail(ev.Details, "target_agent", "")
		if a, ok := agents[ev.AgentID]; ok && target != "" {
			if !containsString(a.Alliances, target) {
				a.Alliances = append(a.Alliances, target)
			}
		}
	}
}

func stringDetail(details map[string]any, key, fallback string) string {
	if details == nil {
		return fallback
	}
	if v, ok := details[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AgentTimeline returns every event naming agentID within [fromTick, toTick].
func (e *Engine) AgentTimeline(agentID string, fromTick, toTick uint64) []ledger.Event {
	return e.ledger.Get(ledger.Query{FromTick: fromTick, ToTick: toTick, AgentID: agentID, Limit: 10000})
}

// WorldTimeline returns the global event timeline within [fromTick, toTick].
func (e *Engine) WorldTimeline(fromTick, toTick uint64, limit int) []ledger.Event {
	return e.ledger.Get(ledger.Query{FromTick: fromTick, ToTick: toTick, Limit: limit})
}
