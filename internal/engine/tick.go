// Package engine drives the tick-based simulation loop: a FIFO action
// queue, the per-tick resolution pass through the rules engine, side
// effect application, resource regeneration and danger, persistence, and
// ledger emission.
package engine

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/observatory/internal/analytics"
	"github.com/talgya/observatory/internal/ledger"
	"github.com/talgya/observatory/internal/lifecycle"
	"github.com/talgya/observatory/internal/messaging"
	"github.com/talgya/observatory/internal/resources"
	"github.com/talgya/observatory/internal/rules"
	"github.com/talgya/observatory/internal/trade"
	"github.com/talgya/observatory/internal/worldstate"
)

// QueuedAction is one submitted, not-yet-resolved agent action.
type QueuedAction struct {
	AgentID         string
	ActionType      resources.Action
	Params          map[string]any
	SubmittedAtTick uint64
	ValidForTicks   uint64
}

// Flux supplies a bounded, deterministic per-tick jitter on a region's
// regen multiplier. A nil Flux leaves the multiplier unmodified.
type Flux interface {
	Jitter(regionID string, tick uint64, base float64) float64
}

// Engine owns the action queue and the tick loop. It holds non-owning
// references to every other kernel component it must coordinate with
// during a tick.
type Engine struct {
	State      *worldstate.State
	Ledger     *ledger.Ledger
	Trades     *trade.Ledger
	Accounting *trade.AccountingLedger
	Messages   *messaging.Bus
	Lifecycle  *lifecycle.Manager
	Flux       Flux
	Analytics  *analytics.DB
	StatePath  string

	Interval time.Duration
	Running  bool

	queueMu sync.Mutex
	queue   []QueuedAction

	stop chan struct{}
}

// New constructs an Engine bound to the given components.
func New(state *worldstate.State, led *ledger.Ledger, trades *trade.Ledger, accounting *trade.AccountingLedger, messages *messaging.Bus, lifecycleMgr *lifecycle.Manager, statePath string, interval time.Duration) *Engine {
	return &Engine{
		State:      state,
		Ledger:     led,
		Trades:     trades,
		Accounting: accounting,
		Messages:   messages,
		Lifecycle:  lifecycleMgr,
		StatePath:  statePath,
		Interval:   interval,
		stop:       make(chan struct{}),
	}
}

// EnqueueAction appends a new action to the FIFO queue, stamped with the
// current tick. It never blocks on resolution — the caller gets back the
// tick the action was queued at.
func (e *Engine) EnqueueAction(agentID string, actionType resources.Action, params map[string]any) uint64 {
	tick := e.State.CurrentTick()

	e.queueMu.Lock()
	e.queue = append(e.queue, QueuedAction{
		AgentID:         agentID,
		ActionType:      actionType,
		Params:          params,
		SubmittedAtTick: tick,
		ValidForTicks:   1,
	})
	e.queueMu.Unlock()

	return tick
}

func (e *Engine) drainQueue(tick uint64) []QueuedAction {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	actions := e.queue
	e.queue = nil

	valid := actions[:0]
	for _, a := range actions {
		if tick-a.SubmittedAtTick <= a.ValidForTicks {
			valid = append(valid, a)
		}
	}
	return valid
}

// Run starts the tick loop. It blocks until Stop is called; the loop
// checks the stop signal at the sleep boundary and exits within one tick
// duration.
func (e *Engine) Run() {
	e.Running = true
	slog.Info("tick engine started", "tick", e.State.CurrentTick(), "interval", e.Interval)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			e.Running = false
			slog.Info("tick engine stopped", "tick", e.State.CurrentTick())
			return
		case <-ticker.C:
			e.processTick()
		}
	}
}

// Stop signals the tick loop to exit.
func (e *Engine) Stop() {
	close(e.stop)
}

// RunSingleTick synchronously executes exactly one tick. Used by tests
// and deterministic replays, where a caller drives the clock itself.
func (e *Engine) RunSingleTick() {
	e.processTick()
}

type effect struct {
	action  resources.Action
	agentID string
	result  rules.ActionResult
}

// processTick executes one full tick: advance, drain, resolve, apply
// side effects, regenerate/apply danger, persist, emit.
func (e *Engine) processTick() {
	tick := e.State.AdvanceTick()
	actions := e.drainQueue(tick)

	var toEmit []rules.ActionResult
	var pendingTradeCreations []effect
	var pendingDeliveries []effect

	func() {
		e.State.Lock()
		defer e.State.Unlock()

		summary := e.State.AllAgentsSummaryUnlocked()

		for _, qa := range actions {
			agent := e.State.AgentUnlocked(qa.AgentID)
			if agent == nil || !agent.IsAlive() {
				continue
			}
			if !agent.IsClaimed() && qa.ActionType != resources.ActionObserve {
				toEmit = append(toEmit, rules.ActionResult{
					Success:    false,
					ActionType: string(qa.ActionType),
					AgentID:    agent.ID,
					Tick:       tick,
					Error:      "agent is unclaimed; only observe is permitted",
				})
				continue
			}

			agentRegion := e.State.Regions.Get(agent.Region)
			result := rules.Resolve(qa.ActionType, agent, agentRegion, e.State.Regions, summary, qa.Params, tick)
			toEmit = append(toEmit, result)
			if !result.Success {
				continue
			}

			switch qa.ActionType {
			case resources.ActionMove:
				e.applyMove(agent, result)
			case resources.ActionFork:
				e.applyFork(agent, result, tick)
			case resources.ActionMerge:
				e.applyMerge(agent, result, tick, &toEmit)
			case resources.ActionAttack:
				e.applyAttack(agent, result, tick, &toEmit)
			case resources.ActionAlly:
				e.applyAlly(agent, result, tick)
			case resources.ActionTrade:
				pendingTradeCreations = append(pendingTradeCreations, effect{agentID: agent.ID, result: result})
			case resources.ActionSendMessage:
				pendingDeliveries = append(pendingDeliveries, effect{agentID: agent.ID, result: result})
			}
		}

		// Regeneration and danger pass over every alive agent.
		for _, agent := range e.State.Agents {
			if !agent.IsAlive() {
				continue
			}
			r := e.State.Regions.Get(agent.Region)
			multiplier := 1.0
			danger := 0.0
			if r != nil {
				multiplier = r.ResourceMultiplier
				danger = r.DangerLevel
			}
			if e.Flux != nil {
				multiplier = e.Flux.Jitter(agent.Region, tick, multiplier)
			}
			agent.Resources.Regenerate(multiplier)

			if agent.Resources.ApplyDanger(danger) {
				e.State.RemoveOccupantUnlocked(agent)
				agent.Status = worldstate.StatusDead
				died := tick
				agent.DiedAtTick = &died
				toEmit = append(toEmit, rules.ActionResult{
					Success:    true,
					ActionType: "death",
					AgentID:    agent.ID,
					Tick:       tick,
					Details:    map[string]any{"cause": "energy_depletion"},
				})
			}
		}
	}()

	for _, p := range pendingTradeCreations {
		target, _ := p.result.Details["target_agent"].(string)
		offerResource, _ := p.result.Details["offer_resource"].(string)
		requestResource, _ := p.result.Details["request_resource"].(string)
		offerAmount, _ := p.result.Details["offer_amount"].(float64)
		requestAmount, _ := p.result.Details["request_amount"].(float64)
		offer := e.Trades.CreateOffer(tick, p.agentID, target, resources.Kind(offerResource), offerAmount, resources.Kind(requestResource), requestAmount)
		p.result.Details["offer_id"] = offer.OfferID
		p.result.Details["expires_at_tick"] = offer.ExpiresAtTick
	}

	for _, p := range pendingDeliveries {
		target, _ := p.result.Details["target_agent"].(string)
		content, _ := p.result.Details["content"].(string)
		noise, _ := p.result.Details["noise_factor"].(float64)
		senderRegion, _ := p.result.Details["sender_region"].(string)
		receiverRegion, _ := p.result.Details["receiver_region"].(string)
		msg := e.Messages.Send(tick, p.agentID, target, content, noise, senderRegion, receiverRegion)
		p.result.Details["message_id"] = msg.MessageID
		p.result.Details["delivered_content"] = msg.Content
	}

	e.Trades.ExpireOldOffers(tick)
	e.State.SetPendingTradesSnapshot(e.Trades.AllPending())

	if err := e.State.Save(e.StatePath); err != nil {
		slog.Error("persist world state", "tick", tick, "error", err)
	}

	aliveCount := 0
	for _, a := range e.State.Agents {
		if a.IsAlive() {
			aliveCount++
		}
	}

	now := float64(time.Now().UnixNano()) / 1e9
	for _, result := range toEmit {
		ev := e.Ledger.Append(ledger.Event{
			Tick:       tick,
			ActionType: result.ActionType,
			AgentID:    result.AgentID,
			Success:    result.Success,
			Details:    result.Details,
			Error:      result.Error,
			Timestamp:  now,
		})
		e.indexEvent(ev)
	}
	ev := e.Ledger.Append(ledger.Event{
		Tick:       tick,
		ActionType: "tick",
		Success:    true,
		Details: map[string]any{
			"actions_processed": len(actions),
			"results":           len(toEmit),
			"total_agents":      len(e.State.Agents),
			"alive_agents":      aliveCount,
		},
		Timestamp: now,
	})
	e.indexEvent(ev)
}

// indexEvent mirrors a ledger event into the secondary analytics index,
// when one is configured. The ledger file remains the authoritative
// record; this is best-effort and never blocks tick processing on a
// query failure.
func (e *Engine) indexEvent(ev ledger.Event) {
	if e.Analytics == nil {
		return
	}
	detailsJSON, err := json.Marshal(ev.Details)
	if err != nil {
		slog.Error("marshal event details for analytics index", "error", err)
		return
	}
	row := analytics.EventRow{
		EventID:     ev.EventID,
		Tick:        ev.Tick,
		EventType:   ev.ActionType,
		AgentID:     ev.AgentID,
		DetailsJSON: string(detailsJSON),
	}
	if err := e.Analytics.IndexEvent(row); err != nil {
		slog.Error("index ledger event", "event_id", ev.EventID, "error", err)
	}
}

func (e *Engine) applyMove(agent *worldstate.Agent, result rules.ActionResult) {
	from, _ := result.Details["from_region"].(string)
	to, _ := result.Details["to_region"].(string)
	e.State.MoveOccupantUnlocked(agent, from, to)
	agent.Region = to
}

func (e *Engine) applyFork(agent *worldstate.Agent, result rules.ActionResult, tick uint64) {
	childName, _ := result.Details["child_name"].(string)
	spawnRegion, _ := result.Details["spawn_region"].(string)

	childID := childName
	if _, exists := e.State.Agents[childID]; exists {
		childID = childName + "-" + agent.ID
	}

	childPool := agent.Resources.Half()

	child := &worldstate.Agent{
		ID:            childID,
		DisplayName:   childName,
		PublicKey:     agent.PublicKey,
		Region:        spawnRegion,
		Resources:     childPool,
		Status:        agent.Status,
		OwnerIdentity: agent.OwnerIdentity,
		CreatedAtTick: tick,
		ParentAgent:   agent.ID,
		Alliances:     []string{},
	}
	e.State.PutAgentUnlocked(child)
	result.Details["child_id"] = childID
}

func (e *Engine) applyMerge(agent *worldstate.Agent, result rules.ActionResult, tick uint64, toEmit *[]rules.ActionResult) {
	absorbedID, _ := result.Details["absorbed_agent"].(string)
	absorbed := e.State.AgentUnlocked(absorbedID)
	if absorbed == nil {
		return
	}
	for _, k := range resources.Kinds {
		cap := agent.Resources.Caps[k]
		if cap == 0 {
			cap = resources.ResourceDefaults[k].Cap
		}
		next := agent.Resources.Holdings[k] + absorbed.Resources.Holdings[k]
		if next > cap {
			next = cap
		}
		agent.Resources.Holdings[k] = next
	}

	e.State.RemoveOccupantUnlocked(absorbed)
	absorbed.Status = worldstate.StatusDead
	died := tick
	absorbed.DiedAtTick = &died

	*toEmit = append(*toEmit, rules.ActionResult{
		Success:    true,
		ActionType: "death",
		AgentID:    absorbed.ID,
		Tick:       tick,
		Details:    map[string]any{"cause": "merge", "absorbed_by": agent.ID},
	})
}

func (e *Engine) applyAttack(agent *worldstate.Agent, result rules.ActionResult, tick uint64, toEmit *[]rules.ActionResult) {
	targetID, _ := result.Details["target_agent"].(string)
	strength, _ := result.Details["attacker_strength"].(float64)
	target := e.State.AgentUnlocked(targetID)
	if target == nil {
		return
	}

	damage := strength * 0.3
	next := target.Resources.Holdings[resources.Energy] - damage
	if next <= 0 {
		target.Resources.Holdings[resources.Energy] = 0
		e.State.RemoveOccupantUnlocked(target)
		target.Status = worldstate.StatusDead
		died := tick
		target.DiedAtTick = &died
		*toEmit = append(*toEmit, rules.ActionResult{
			Success:    true,
			ActionType: "death",
			AgentID:    target.ID,
			Tick:       tick,
			Details:    map[string]any{"cause": "attack", "attacker": agent.ID},
		})
	} else {
		target.Resources.Holdings[resources.Energy] = next
	}
}

func (e *Engine) applyAlly(agent *worldstate.Agent, result rules.ActionResult, tick uint64) {
	targetID, _ := result.Details["target_agent"].(string)
	if !agent.HasAlliance(targetID) {
		agent.Alliances = append(agent.Alliances, targetID)
	}
	e.State.RecordAllianceProposalUnlocked(agent.ID, targetID, tick)
}
