package rules

import (
	"testing"

	"github.com/talgya/observatory/internal/region"
	"github.com/talgya/observatory/internal/resources"
	"github.com/talgya/observatory/internal/worldstate"
)

func newTestAgent(id, regionID string) *worldstate.Agent {
	return &worldstate.Agent{
		ID:          id,
		DisplayName: id,
		Region:      regionID,
		Resources:   resources.NewDefaultPool(),
		Status:      worldstate.StatusClaimed,
		Alliances:   []string{},
	}
}

func summaryFor(agents ...*worldstate.Agent) map[string]worldstate.AgentSummary {
	out := make(map[string]worldstate.AgentSummary, len(agents))
	for _, a := range agents {
		out[a.ID] = worldstate.AgentSummary{Region: a.Region, Status: a.Status}
	}
	return out
}

func TestResolveMoveSuccess(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	from := regions.Get("nexus")

	result := resolveMove(agent, from, regions, map[string]any{"target_region": "forge"}, 1)
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if agent.Resources.Holdings[resources.Energy] >= resources.ResourceDefaults[resources.Energy].Initial {
		t.Fatal("expected energy to be debited for move")
	}
}

func TestResolveMoveUnknownRegion(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	from := regions.Get("nexus")

	result := resolveMove(agent, from, regions, map[string]any{"target_region": "nowhere"}, 1)
	if result.Success {
		t.Fatal("expected failure for unknown region")
	}
}

func TestResolveMoveMissingTarget(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	from := regions.Get("nexus")

	result := resolveMove(agent, from, regions, map[string]any{}, 1)
	if result.Success {
		t.Fatal("expected failure when target_region is missing")
	}
}

func TestResolveMoveInsufficientResources(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	agent.Resources.Holdings[resources.Energy] = 0
	from := regions.Get("nexus")

	result := resolveMove(agent, from, regions, map[string]any{"target_region": "forge"}, 1)
	if result.Success {
		t.Fatal("expected failure with zero energy")
	}
}

func TestResolveMoveFullRegionRejected(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	from := regions.Get("nexus")
	target := regions.Get("void")
	target.Capacity = 0

	result := resolveMove(agent, from, regions, map[string]any{"target_region": "void"}, 1)
	if result.Success {
		t.Fatal("expected failure moving into a full region")
	}
}

func TestResolveTradeSuccess(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "nexus")
	summary := summaryFor(agent, target)

	params := map[string]any{
		"target_agent":     "agent-2",
		"offer_resource":   "energy",
		"offer_amount":     5.0,
		"request_resource": "memory",
		"request_amount":   5.0,
	}
	result := resolveTrade(agent, summary, params, 1)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
}

func TestResolveTradeUnknownTarget(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	summary := summaryFor(agent)
	params := map[string]any{
		"target_agent":     "ghost",
		"offer_resource":   "energy",
		"offer_amount":     5.0,
		"request_resource": "memory",
		"request_amount":   5.0,
	}
	result := resolveTrade(agent, summary, params, 1)
	if result.Success {
		t.Fatal("expected failure against a nonexistent target")
	}
}

func TestResolveTradeInvalidResourceKind(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "nexus")
	summary := summaryFor(agent, target)
	params := map[string]any{
		"target_agent":     "agent-2",
		"offer_resource":   "gold",
		"offer_amount":     5.0,
		"request_resource": "memory",
		"request_amount":   5.0,
	}
	result := resolveTrade(agent, summary, params, 1)
	if result.Success {
		t.Fatal("expected failure for an invalid resource kind")
	}
}

func TestResolveSendMessageSuccess(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "forge")
	summary := summaryFor(agent, target)
	from := regions.Get("nexus")

	result := resolveSendMessage(agent, from, regions, summary, map[string]any{
		"target_agent": "agent-2",
		"content":      "hello",
	}, 1)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if _, ok := result.Details["noise_factor"]; !ok {
		t.Fatal("expected noise_factor in details")
	}
}

func TestResolveSendMessageToDeadAgentFails(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "forge")
	target.Status = worldstate.StatusDead
	summary := summaryFor(agent, target)
	from := regions.Get("nexus")

	result := resolveSendMessage(agent, from, regions, summary, map[string]any{
		"target_agent": "agent-2",
		"content":      "hello",
	}, 1)
	if result.Success {
		t.Fatal("expected failure sending to a dead agent")
	}
}

func TestResolveObserveListsLivingOccupantsOnly(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	nexus := regions.Get("nexus")
	nexus.AddOccupant("agent-1")
	nexus.AddOccupant("agent-2")
	nexus.AddOccupant("agent-3")

	alive := newTestAgent("agent-2", "nexus")
	dead := newTestAgent("agent-3", "nexus")
	dead.Status = worldstate.StatusDead
	summary := summaryFor(agent, alive, dead)

	result := resolveObserve(agent, nexus, summary, 1)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	occupants := result.Details["occupants"].([]string)
	if len(occupants) != 1 || occupants[0] != "agent-2" {
		t.Fatalf("occupants = %v, want [agent-2]", occupants)
	}
}

func TestResolveForkDefaultsChildName(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	result := resolveFork(agent, map[string]any{}, 1)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Details["child_name"] != "agent-1-fork" {
		t.Fatalf("child_name = %v, want agent-1-fork", result.Details["child_name"])
	}
}

func TestResolveForkInsufficientResourcesFails(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	agent.Resources.Holdings[resources.Memory] = 0
	result := resolveFork(agent, map[string]any{}, 1)
	if result.Success {
		t.Fatal("expected failure with insufficient memory for fork")
	}
}

func TestResolveAttackRequiresSameRegion(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "forge")
	summary := summaryFor(agent, target)

	result := resolveAttack(agent, summary, map[string]any{"target_agent": "agent-2"}, 1)
	if result.Success {
		t.Fatal("expected failure attacking across regions")
	}
}

func TestResolveAttackSuccessReportsStrength(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "nexus")
	summary := summaryFor(agent, target)

	result := resolveAttack(agent, summary, map[string]any{"target_agent": "agent-2"}, 1)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if _, ok := result.Details["attacker_strength"]; !ok {
		t.Fatal("expected attacker_strength in details")
	}
}

func TestResolveAllySuccess(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	target := newTestAgent("agent-2", "nexus")
	summary := summaryFor(agent, target)

	result := resolveAlly(agent, summary, map[string]any{"target_agent": "agent-2"}, 1)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
}

func TestResolveMergeUnknownTargetFails(t *testing.T) {
	agent := newTestAgent("agent-1", "nexus")
	summary := summaryFor(agent)

	result := resolveMerge(agent, summary, map[string]any{"target_agent": "ghost"}, 1)
	if result.Success {
		t.Fatal("expected failure merging with a nonexistent agent")
	}
}

func TestResolveDispatchesUnknownAction(t *testing.T) {
	regions := region.NewManager()
	agent := newTestAgent("agent-1", "nexus")
	summary := summaryFor(agent)

	result := Resolve("teleport", agent, regions.Get("nexus"), regions, summary, map[string]any{}, 1)
	if result.Success {
		t.Fatal("expected failure for an unknown action type")
	}
}
