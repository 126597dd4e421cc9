package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/observatory/internal/analytics"
	"github.com/talgya/observatory/internal/ledger"
	"github.com/talgya/observatory/internal/lifecycle"
	"github.com/talgya/observatory/internal/messaging"
	"github.com/talgya/observatory/internal/resources"
	"github.com/talgya/observatory/internal/trade"
	"github.com/talgya/observatory/internal/worldstate"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	state := worldstate.New()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	trades := trade.NewLedger()
	accounting := trade.NewAccountingLedger()
	messages := messaging.NewBus()
	lifecycleMgr := lifecycle.NewManager(state)
	statePath := filepath.Join(t.TempDir(), "world.json")

	return New(state, led, trades, accounting, messages, lifecycleMgr, statePath, time.Second)
}

func claimedAgent(id, region string) *worldstate.Agent {
	return &worldstate.Agent{
		ID:          id,
		DisplayName: id,
		Region:      region,
		Resources:   resources.NewDefaultPool(),
		Status:      worldstate.StatusClaimed,
		Alliances:   []string{},
	}
}

func TestEnqueueActionStampsCurrentTick(t *testing.T) {
	e := newTestEngine(t)
	e.State.AddAgent(claimedAgent("agent-1", "nexus"))

	tick := e.EnqueueAction("agent-1", resources.ActionObserve, map[string]any{})
	if tick != 0 {
		t.Fatalf("expected enqueue at tick 0, got %d", tick)
	}
}

func TestProcessTickAppliesMoveAndUpdatesOccupancy(t *testing.T) {
	e := newTestEngine(t)
	e.State.AddAgent(claimedAgent("agent-1", "nexus"))
	e.EnqueueAction("agent-1", resources.ActionMove, map[string]any{"target_region": "forge"})

	e.RunSingleTick()

	agent := e.State.GetAgent("agent-1")
	if agent.Region != "forge" {
		t.Fatalf("agent region = %q, want forge", agent.Region)
	}
	if e.State.Regions.Get("nexus").Occupants["agent-1"] {
		t.Fatal("expected agent removed from nexus occupancy")
	}
	if !e.State.Regions.Get("forge").Occupants["agent-1"] {
		t.Fatal("expected agent added to forge occupancy")
	}
}

func TestProcessTickForkCreatesChildWithHalfResources(t *testing.T) {
	e := newTestEngine(t)
	parent := claimedAgent("agent-1", "nexus")
	e.State.AddAgent(parent)
	parentEnergyBefore := parent.Resources.Holdings[resources.Energy]

	e.EnqueueAction("agent-1", resources.ActionFork, map[string]any{"child_name": "agent-1-child"})
	e.RunSingleTick()

	child := e.State.GetAgent("agent-1-child")
	if child == nil {
		t.Fatal("expected child agent to be created")
	}
	if child.ParentAgent != "agent-1" {
		t.Fatalf("parent agent = %q, want agent-1", child.ParentAgent)
	}

	// Parent paid the fork action cost before the split, so compare
	// against what's left after the cost deduction rather than the
	// original full value. The child is alive for the rest of the same
	// tick, so it also receives that tick's regeneration and danger drain.
	afterCost := parentEnergyBefore - resources.ActionCosts[resources.ActionFork][resources.Energy]
	nexus := e.State.Regions.Get("nexus")
	wantEach := afterCost/2 + resources.ResourceDefaults[resources.Energy].Regen*nexus.ResourceMultiplier - nexus.DangerLevel*5
	if child.Resources.Holdings[resources.Energy] != wantEach {
		t.Fatalf("child energy = %v, want %v", child.Resources.Holdings[resources.Energy], wantEach)
	}
}

func TestProcessTickForkHandlesNameCollision(t *testing.T) {
	e := newTestEngine(t)
	e.State.AddAgent(claimedAgent("agent-1", "nexus"))
	e.State.AddAgent(claimedAgent("dupe", "nexus"))

	e.EnqueueAction("agent-1", resources.ActionFork, map[string]any{"child_name": "dupe"})
	e.RunSingleTick()

	if e.State.GetAgent("dupe-agent-1") == nil {
		t.Fatal("expected the colliding child to be suffixed with the parent's id")
	}
}

func TestProcessTickAttackCanKillTarget(t *testing.T) {
	e := newTestEngine(t)
	attacker := claimedAgent("attacker", "nexus")
	attacker.Resources.Holdings[resources.Compute] = 80
	attacker.Resources.Holdings[resources.Energy] = 100
	target := claimedAgent("target", "nexus")
	target.Resources.Holdings[resources.Energy] = 1

	e.State.AddAgent(attacker)
	e.State.AddAgent(target)

	e.EnqueueAction("attacker", resources.ActionAttack, map[string]any{"target_agent": "target"})
	e.RunSingleTick()

	got := e.State.GetAgent("target")
	if got.Status != worldstate.StatusDead {
		t.Fatalf("target status = %v, want dead", got.Status)
	}
}

func TestProcessTickMergeAbsorbsTargetResources(t *testing.T) {
	e := newTestEngine(t)
	surviving := claimedAgent("agent-1", "nexus")
	absorbed := claimedAgent("agent-2", "nexus")
	e.State.AddAgent(surviving)
	e.State.AddAgent(absorbed)

	e.EnqueueAction("agent-1", resources.ActionMerge, map[string]any{"target_agent": "agent-2"})
	e.RunSingleTick()

	if e.State.GetAgent("agent-2").Status != worldstate.StatusDead {
		t.Fatal("expected absorbed agent to be dead after merge")
	}
}

func TestProcessTickTradeCreatesOfferAtTickTime(t *testing.T) {
	e := newTestEngine(t)
	e.State.AddAgent(claimedAgent("agent-1", "nexus"))
	e.State.AddAgent(claimedAgent("agent-2", "nexus"))

	e.EnqueueAction("agent-1", resources.ActionTrade, map[string]any{
		"target_agent":     "agent-2",
		"offer_resource":   "energy",
		"offer_amount":     5.0,
		"request_resource": "memory",
		"request_amount":   5.0,
	})
	e.RunSingleTick()

	pending := e.Trades.GetOffersForAgent("agent-1")
	if len(pending) != 1 {
		t.Fatalf("expected one pending offer created at tick time, got %d", len(pending))
	}
}

func TestProcessTickSendMessageDeliversThroughBus(t *testing.T) {
	e := newTestEngine(t)
	e.State.AddAgent(claimedAgent("agent-1", "nexus"))
	e.State.AddAgent(claimedAgent("agent-2", "nexus"))

	e.EnqueueAction("agent-1", resources.ActionSendMessage, map[string]any{
		"target_agent": "agent-2",
		"content":      "hello",
	})
	e.RunSingleTick()

	inbox := e.Messages.GetInbox("agent-2", 0)
	if len(inbox) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(inbox))
	}
}

func TestProcessTickUnclaimedAgentOnlyObserveAllowed(t *testing.T) {
	e := newTestEngine(t)
	agent := claimedAgent("agent-1", "nexus")
	agent.Status = worldstate.StatusUnclaimed
	e.State.AddAgent(agent)

	e.EnqueueAction("agent-1", resources.ActionMove, map[string]any{"target_region": "forge"})
	e.RunSingleTick()

	if e.State.GetAgent("agent-1").Region != "nexus" {
		t.Fatal("expected an unclaimed agent's non-observe action to be rejected")
	}
}

func TestProcessTickDeadAgentDangerDepletion(t *testing.T) {
	e := newTestEngine(t)
	agent := claimedAgent("agent-1", "void") // void has the highest danger level
	agent.Resources.Holdings[resources.Energy] = 1
	e.State.AddAgent(agent)

	e.RunSingleTick()

	if e.State.GetAgent("agent-1").Status != worldstate.StatusDead {
		t.Fatal("expected the agent to die from danger depletion in the void")
	}
}

func TestProcessTickExpiredActionIsDropped(t *testing.T) {
	e := newTestEngine(t)
	e.State.AddAgent(claimedAgent("agent-1", "nexus"))

	// Manually queue an action stamped far in the past so the drain at
	// the next tick considers it expired (ValidForTicks is 1).
	e.queueMu.Lock()
	e.queue = append(e.queue, QueuedAction{
		AgentID:         "agent-1",
		ActionType:      resources.ActionMove,
		Params:          map[string]any{"target_region": "forge"},
		SubmittedAtTick: 0,
		ValidForTicks:   1,
	})
	e.queueMu.Unlock()

	// Advance several ticks before draining so the action is stale.
	e.State.AdvanceTick()
	e.State.AdvanceTick()
	e.State.AdvanceTick()

	e.RunSingleTick()

	if e.State.GetAgent("agent-1").Region != "nexus" {
		t.Fatal("expected a stale action past its validity window to be dropped")
	}
}

func TestProcessTickIndexesEventsWhenAnalyticsConfigured(t *testing.T) {
	e := newTestEngine(t)
	db, err := analytics.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	e.Analytics = db

	e.State.AddAgent(claimedAgent("agent-1", "nexus"))
	e.EnqueueAction("agent-1", resources.ActionMove, map[string]any{"target_region": "forge"})

	e.RunSingleTick()

	rows, err := db.EventsForAgent("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) == 0 {
		t.Fatal("expected the move event to be indexed into the analytics DB")
	}
}

func TestIndexEventNoopWhenAnalyticsUnconfigured(t *testing.T) {
	e := newTestEngine(t)
	e.indexEvent(ledger.Event{EventID: 1, Tick: 1, ActionType: "tick"})
}
