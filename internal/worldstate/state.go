package worldstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/talgya/observatory/internal/region"
)

// AllianceProposal records one "ally" resolution for persistence and
// observer queries. Alliances are unilateral: a proposal does not by
// itself imply reciprocity.
type AllianceProposal struct {
	From string `json:"from"`
	To   string `json:"to"`
	Tick uint64 `json:"tick"`
}

// State is the canonical mutable world: the agent map, the region
// manager, and the tick counter. All reads and writes go through its
// lock.
//
// PendingTrades is a point-in-time copy maintained by the trade ledger
// for inclusion in the combined persistence document; the trade ledger
// itself remains the authoritative in-memory store of offers.
type State struct {
	mu sync.Mutex

	Tick    uint64
	Agents  map[string]*Agent
	Regions *region.Manager

	AllianceProposals []AllianceProposal
	PendingTrades     []map[string]any
}

// New constructs an initialized, empty world state with default regions.
func New() *State {
	return &State{
		Agents:  make(map[string]*Agent),
		Regions: region.NewManager(),
	}
}

// Lock acquires the world lock. Callers that need to perform several
// operations atomically (e.g. the tick engine resolving one tick) should
// Lock once and call the *Unlocked helpers in locked.go, but the common case
// uses the exported methods below which lock internally.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// AddAgent inserts a new agent and places it into its region's occupant
// set. Returns false if an agent with the same id already exists.
func (s *State) AddAgent(a *Agent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Agents[a.ID]; exists {
		return false
	}
	s.Agents[a.ID] = a
	if r := s.Regions.Get(a.Region); r != nil {
		r.AddOccupant(a.ID)
	}
	return true
}

// GetAgent returns the agent with the given id, or nil.
func (s *State) GetAgent(id string) *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Agents[id]
}

// FindByPublicKey linear-scans for an agent already registered under the
// given public key (used to reject duplicate registration).
func (s *State) FindByPublicKey(publicKey string) *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.Agents {
		if a.PublicKey == publicKey {
			return a
		}
	}
	return nil
}

// RemoveAgent drops the agent from its region's occupant set. The agent
// record itself is kept in the Agents map (its status is expected to be
// StatusDead); the ledger and replay are what preserve its history.
func (s *State) RemoveAgent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Agents[id]
	if !ok {
		return
	}
	if r := s.Regions.Get(a.Region); r != nil {
		r.RemoveOccupant(id)
	}
}

// AdvanceTick increments and returns the new tick counter.
func (s *State) AdvanceTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tick++
	return s.Tick
}

// CurrentTick returns the tick counter without mutating it.
func (s *State) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Tick
}

// RegionSnapshot returns a locked, copied view of one region, safe for
// callers outside the tick engine (e.g. the HTTP gateway) that must read
// region geometry and occupancy without racing the tick thread's direct,
// lock-assuming access to Regions.
func (s *State) RegionSnapshot(id string) (region.Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.Regions.Get(id)
	if r == nil {
		return region.Region{}, false
	}
	cp := *r
	cp.Occupants = make(map[string]bool, len(r.Occupants))
	for k, v := range r.Occupants {
		cp.Occupants[k] = v
	}
	return cp, true
}

// AllAgentsSummary returns a minimal {region, status} view used by the
// rules engine to validate target agents without holding the full lock
// for the duration of resolution.
type AgentSummary struct {
	Region string
	Status Status
}

func (s *State) AllAgentsSummary() map[string]AgentSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]AgentSummary, len(s.Agents))
	for id, a := range s.Agents {
		out[id] = AgentSummary{Region: a.Region, Status: a.Status}
	}
	return out
}

// RecordAllianceProposal appends an ally resolution to the persisted
// proposal log.
func (s *State) RecordAllianceProposal(from, to string, tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AllianceProposals = append(s.AllianceProposals, AllianceProposal{From: from, To: to, Tick: tick})
}

// SetPendingTradesSnapshot replaces the point-in-time copy of pending
// trade offers included in the combined persistence document.
func (s *State) SetPendingTradesSnapshot(offers []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PendingTrades = offers
}

// document is the single JSON shape persisted to the world state file.
type document struct {
	Tick              uint64                     `json:"tick"`
	Agents            map[string]*Agent          `json:"agents"`
	Regions           map[string]region.Region   `json:"regions"`
	PendingTrades     []map[string]any           `json:"pending_trades"`
	AllianceProposals []AllianceProposal         `json:"alliance_proposals"`
}

// Snapshot returns the observer-safe view of the whole world: every
// agent's PublicView, every region, and summary counts. It never
// exposes secrets.
type Snapshot struct {
	Tick                uint64                `json:"tick"`
	Agents              map[string]PublicView `json:"agents"`
	Regions             map[string]any        `json:"regions"`
	PendingTradesCount  int                   `json:"pending_trades_count"`
	AllianceProposalsCount int                `json:"alliance_proposals_count"`
}

// MakeSnapshot builds the observer-safe snapshot of the current world.
func (s *State) MakeSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make(map[string]PublicView, len(s.Agents))
	for id, a := range s.Agents {
		agents[id] = a.Public()
	}

	regionsRaw := s.Regions.Snapshot()
	regions := make(map[string]any, len(regionsRaw))
	for id, r := range regionsRaw {
		regions[id] = r
	}

	return Snapshot{
		Tick:                   s.Tick,
		Agents:                 agents,
		Regions:                regions,
		PendingTradesCount:     len(s.PendingTrades),
		AllianceProposalsCount: len(s.AllianceProposals),
	}
}

// Save atomically persists the full world document: write to a temp file
// in the same directory, then rename over the destination, so a crash
// mid-write never leaves a corrupt file in place.
func (s *State) Save(path string) error {
	s.mu.Lock()
	doc := document{
		Tick:              s.Tick,
		Agents:            s.Agents,
		AllianceProposals: s.AllianceProposals,
		PendingTrades:     s.PendingTrades,
	}
	regionsRaw := s.Regions.Snapshot()
	doc.Regions = make(map[string]region.Region, len(regionsRaw))
	for id, r := range regionsRaw {
		doc.Regions[id] = r.Region
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".world_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load restores world state from path. Occupant lists are not trusted
// from the persisted region data; they are rebuilt from each alive
// agent's current region, matching the save format's design.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world state: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal world state: %w", err)
	}

	s := New()
	s.Tick = doc.Tick
	s.AllianceProposals = doc.AllianceProposals
	s.PendingTrades = doc.PendingTrades
	if doc.Agents != nil {
		s.Agents = doc.Agents
	}

	s.Regions.Reset()
	for id, persisted := range doc.Regions {
		if r := s.Regions.Get(id); r != nil {
			r.ResourceMultiplier = persisted.ResourceMultiplier
			r.DangerLevel = persisted.DangerLevel
			r.Capacity = persisted.Capacity
		}
	}

	for _, a := range s.Agents {
		if !a.IsAlive() {
			continue
		}
		if r := s.Regions.Get(a.Region); r != nil {
			r.AddOccupant(a.ID)
		}
	}

	return s, nil
}

// LoadOrNew loads world state from path if it exists, otherwise returns
// a fresh, default-initialized state.
func LoadOrNew(path string) (*State, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return Load(path)
}
