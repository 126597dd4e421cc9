// Package rules implements the deterministic action resolver: one pure
// function per action type that validates preconditions, debits the
// action's resource cost, and returns the details the tick engine needs
// to apply side effects. Resolvers never mutate anything beyond the
// acting agent's own resource pool — side effects that touch other
// agents or regions are applied by the caller after a successful result.
package rules

import (
	"fmt"

	"github.com/talgya/observatory/internal/region"
	"github.com/talgya/observatory/internal/resources"
	"github.com/talgya/observatory/internal/worldstate"
)

// ActionResult is the outcome of resolving one queued action.
type ActionResult struct {
	Success    bool
	ActionType string
	AgentID    string
	Details    map[string]any
	Tick       uint64
	Error      string
}

func fail(actionType, agentID string, tick uint64, format string, args ...any) ActionResult {
	return ActionResult{
		Success:    false,
		ActionType: actionType,
		AgentID:    agentID,
		Tick:       tick,
		Error:      fmt.Sprintf(format, args...),
	}
}

func ok(actionType, agentID string, tick uint64, details map[string]any) ActionResult {
	return ActionResult{
		Success:    true,
		ActionType: actionType,
		AgentID:    agentID,
		Tick:       tick,
		Details:    details,
	}
}

// Resolve dispatches to the resolver for actionType. agent and its
// current region must already be resolved by the caller, which must
// hold the world state lock for the duration of the call. summary is the
// minimal {region, status} view of every agent, used to validate
// targets without re-locking.
func Resolve(
	actionType resources.Action,
	agent *worldstate.Agent,
	agentRegion *region.Region,
	regions *region.Manager,
	summary map[string]worldstate.AgentSummary,
	params map[string]any,
	tick uint64,
) ActionResult {
	switch actionType {
	case resources.ActionMove:
		return resolveMove(agent, agentRegion, regions, params, tick)
	case resources.ActionTrade:
		return resolveTrade(agent, summary, params, tick)
	case resources.ActionSendMessage:
		return resolveSendMessage(agent, agentRegion, regions, summary, params, tick)
	case resources.ActionObserve:
		return resolveObserve(agent, agentRegion, summary, tick)
	case resources.ActionFork:
		return resolveFork(agent, params, tick)
	case resources.ActionMerge:
		return resolveMerge(agent, summary, params, tick)
	case resources.ActionAttack:
		return resolveAttack(agent, summary, params, tick)
	case resources.ActionAlly:
		return resolveAlly(agent, summary, params, tick)
	default:
		return fail(string(actionType), agent.ID, tick, "unknown action type %q", actionType)
	}
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func resolveMove(agent *worldstate.Agent, from *region.Region, regions *region.Manager, params map[string]any, tick uint64) ActionResult {
	targetID, present := stringParam(params, "target_region")
	if !present || targetID == "" {
		return fail(string(resources.ActionMove), agent.ID, tick, "missing target_region")
	}
	target := regions.Get(targetID)
	if target == nil {
		return fail(string(resources.ActionMove), agent.ID, tick, "unknown region %q", targetID)
	}
	if target.ID != from.ID && target.IsFull() {
		return fail(string(resources.ActionMove), agent.ID, tick, "region %q is full", targetID)
	}

	multiplier := region.MovementCostMultiplier(from, target)
	cost := resources.TotalCost(resources.ActionCosts[resources.ActionMove], multiplier)
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionMove), agent.ID, tick, "insufficient resources for move")
	}

	return ok(string(resources.ActionMove), agent.ID, tick, map[string]any{
		"from_region": from.ID,
		"to_region":   target.ID,
		"cost":        cost,
	})
}

func resolveTrade(agent *worldstate.Agent, summary map[string]worldstate.AgentSummary, params map[string]any, tick uint64) ActionResult {
	targetID, _ := stringParam(params, "target_agent")
	offerResource, _ := stringParam(params, "offer_resource")
	requestResource, _ := stringParam(params, "request_resource")
	offerAmount, _ := floatParam(params, "offer_amount")
	requestAmount, _ := floatParam(params, "request_amount")

	if targetID == "" {
		return fail(string(resources.ActionTrade), agent.ID, tick, "missing target_agent")
	}
	targetSummary, exists := summary[targetID]
	if !exists || targetSummary.Status == worldstate.StatusDead {
		return fail(string(resources.ActionTrade), agent.ID, tick, "target agent %q not found or not alive", targetID)
	}
	if !validResourceKind(offerResource) || !validResourceKind(requestResource) {
		return fail(string(resources.ActionTrade), agent.ID, tick, "invalid resource kind")
	}
	if offerAmount <= 0 || requestAmount <= 0 {
		return fail(string(resources.ActionTrade), agent.ID, tick, "amounts must be positive")
	}

	cost := resources.ActionCosts[resources.ActionTrade]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionTrade), agent.ID, tick, "insufficient resources for trade offer")
	}

	return ok(string(resources.ActionTrade), agent.ID, tick, map[string]any{
		"target_agent":     targetID,
		"offer_resource":   offerResource,
		"offer_amount":     offerAmount,
		"request_resource": requestResource,
		"request_amount":   requestAmount,
	})
}

func validResourceKind(kind string) bool {
	for _, k := range resources.Kinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

func resolveSendMessage(agent *worldstate.Agent, fromRegion *region.Region, regions *region.Manager, summary map[string]worldstate.AgentSummary, params map[string]any, tick uint64) ActionResult {
	targetID, _ := stringParam(params, "target_agent")
	content, _ := stringParam(params, "content")

	targetSummary, exists := summary[targetID]
	if targetID == "" || !exists || targetSummary.Status == worldstate.StatusDead {
		return fail(string(resources.ActionSendMessage), agent.ID, tick, "target agent %q not found or not alive", targetID)
	}

	cost := resources.ActionCosts[resources.ActionSendMessage]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionSendMessage), agent.ID, tick, "insufficient resources to send message")
	}

	toRegion := regions.Get(targetSummary.Region)
	noise := 0.0
	if fromRegion != nil && toRegion != nil {
		noise = region.CommunicationNoiseFactor(fromRegion, toRegion)
	}

	return ok(string(resources.ActionSendMessage), agent.ID, tick, map[string]any{
		"target_agent":    targetID,
		"content":         content,
		"noise_factor":    noise,
		"sender_region":   agent.Region,
		"receiver_region": targetSummary.Region,
	})
}

func resolveObserve(agent *worldstate.Agent, agentRegion *region.Region, summary map[string]worldstate.AgentSummary, tick uint64) ActionResult {
	cost := resources.ActionCosts[resources.ActionObserve]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionObserve), agent.ID, tick, "insufficient resources to observe")
	}

	var occupants []string
	if agentRegion != nil {
		for id := range agentRegion.Occupants {
			if id == agent.ID {
				continue
			}
			if s, ok := summary[id]; ok && s.Status != worldstate.StatusDead {
				occupants = append(occupants, id)
			}
		}
	}

	return ok(string(resources.ActionObserve), agent.ID, tick, map[string]any{
		"region":    agentRegion.ID,
		"occupants": occupants,
	})
}

func resolveFork(agent *worldstate.Agent, params map[string]any, tick uint64) ActionResult {
	childName, _ := stringParam(params, "child_name")
	if childName == "" {
		childName = agent.DisplayName + "-fork"
	}

	cost := resources.ActionCosts[resources.ActionFork]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionFork), agent.ID, tick, "insufficient resources to fork")
	}

	return ok(string(resources.ActionFork), agent.ID, tick, map[string]any{
		"child_name":   childName,
		"spawn_region": agent.Region,
	})
}

func resolveMerge(agent *worldstate.Agent, summary map[string]worldstate.AgentSummary, params map[string]any, tick uint64) ActionResult {
	targetID, _ := stringParam(params, "target_agent")
	if targetID == "" {
		return fail(string(resources.ActionMerge), agent.ID, tick, "missing target_agent")
	}
	if _, exists := summary[targetID]; !exists {
		return fail(string(resources.ActionMerge), agent.ID, tick, "target agent %q not found", targetID)
	}

	cost := resources.ActionCosts[resources.ActionMerge]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionMerge), agent.ID, tick, "insufficient resources to merge")
	}

	return ok(string(resources.ActionMerge), agent.ID, tick, map[string]any{
		"absorbed_agent":  targetID,
		"surviving_agent": agent.ID,
	})
}

func resolveAttack(agent *worldstate.Agent, summary map[string]worldstate.AgentSummary, params map[string]any, tick uint64) ActionResult {
	targetID, _ := stringParam(params, "target_agent")
	if targetID == "" {
		return fail(string(resources.ActionAttack), agent.ID, tick, "missing target_agent")
	}
	targetSummary, exists := summary[targetID]
	if !exists || targetSummary.Status == worldstate.StatusDead {
		return fail(string(resources.ActionAttack), agent.ID, tick, "target agent %q not found or not alive", targetID)
	}
	if targetSummary.Region != agent.Region {
		return fail(string(resources.ActionAttack), agent.ID, tick, "target agent %q is not in the same region", targetID)
	}

	cost := resources.ActionCosts[resources.ActionAttack]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionAttack), agent.ID, tick, "insufficient resources to attack")
	}

	strength := agent.Resources.Holdings[resources.Compute] + agent.Resources.Holdings[resources.Energy]

	return ok(string(resources.ActionAttack), agent.ID, tick, map[string]any{
		"target_agent":      targetID,
		"attacker_strength": strength,
	})
}

func resolveAlly(agent *worldstate.Agent, summary map[string]worldstate.AgentSummary, params map[string]any, tick uint64) ActionResult {
	targetID, _ := stringParam(params, "target_agent")
	if targetID == "" {
		return fail(string(resources.ActionAlly), agent.ID, tick, "missing target_agent")
	}
	if _, exists := summary[targetID]; !exists {
		return fail(string(resources.ActionAlly), agent.ID, tick, "target agent %q not found", targetID)
	}

	cost := resources.ActionCosts[resources.ActionAlly]
	if !agent.Resources.Deduct(cost) {
		return fail(string(resources.ActionAlly), agent.ID, tick, "insufficient resources to propose alliance")
	}

	return ok(string(resources.ActionAlly), agent.ID, tick, map[string]any{
		"target_agent": targetID,
	})
}
