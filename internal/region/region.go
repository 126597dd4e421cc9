// Package region models the spatial zones agents occupy: their
// coordinates, capacity, danger, and the distance-derived formulas the
// rules engine uses for movement cost and message noise.
package region

import "math"

// Region is a spatial zone. Occupants is the set of agent ids currently
// located here; mutations to it happen only under the world state lock.
type Region struct {
	ID                 string          `json:"region_id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	X                  float64         `json:"x"`
	Y                  float64         `json:"y"`
	ResourceMultiplier float64         `json:"resource_multiplier"`
	DangerLevel        float64         `json:"danger_level"`
	Capacity           int             `json:"capacity"`
	Occupants          map[string]bool `json:"-"`
}

// SpawnRegionID is the region new agents always begin in.
const SpawnRegionID = "nexus"

// Defaults returns fresh copies of the five default regions, in a stable
// order.
func Defaults() []*Region {
	return []*Region{
		{ID: "nexus", Name: "Nexus", Description: "The central hub region.", X: 0, Y: 0, ResourceMultiplier: 1.0, DangerLevel: 0.05, Capacity: 200, Occupants: map[string]bool{}},
		{ID: "forge", Name: "Forge", Description: "An industrious, resource-rich region.", X: 3, Y: 1, ResourceMultiplier: 1.5, DangerLevel: 0.2, Capacity: 80, Occupants: map[string]bool{}},
		{ID: "wasteland", Name: "Wasteland", Description: "A desolate and dangerous frontier.", X: -4, Y: 3, ResourceMultiplier: 0.5, DangerLevel: 0.7, Capacity: 50, Occupants: map[string]bool{}},
		{ID: "archive", Name: "Archive", Description: "A quiet region of stored knowledge.", X: 1, Y: -3, ResourceMultiplier: 1.2, DangerLevel: 0.1, Capacity: 100, Occupants: map[string]bool{}},
		{ID: "void", Name: "Void", Description: "The edge of known space.", X: -2, Y: -5, ResourceMultiplier: 0.3, DangerLevel: 0.9, Capacity: 30, Occupants: map[string]bool{}},
	}
}

// IsFull reports whether the region has reached capacity.
func (r *Region) IsFull() bool {
	return len(r.Occupants) >= r.Capacity
}

// AddOccupant adds agentID to the region's occupant set. Returns false if
// the region is already full or the agent is already present.
func (r *Region) AddOccupant(agentID string) bool {
	if r.Occupants == nil {
		r.Occupants = map[string]bool{}
	}
	if r.Occupants[agentID] {
		return false
	}
	if r.IsFull() {
		return false
	}
	r.Occupants[agentID] = true
	return true
}

// RemoveOccupant removes agentID from the region's occupant set.
func (r *Region) RemoveOccupant(agentID string) {
	delete(r.Occupants, agentID)
}

// AgentCount returns the current occupant count (used for observer-safe
// serialization, which exposes a count rather than the raw id set).
func (r *Region) AgentCount() int {
	return len(r.Occupants)
}

// Distance returns the Euclidean distance between two regions.
func Distance(a, b *Region) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// MovementCostMultiplier scales an action's base cost by the distance
// between source and target region.
func MovementCostMultiplier(a, b *Region) float64 {
	return 1.0 + Distance(a, b)*0.5
}

// CommunicationNoiseFactor derives a message's noise factor from the
// distance between sender and receiver region, capped at 0.8.
func CommunicationNoiseFactor(a, b *Region) float64 {
	n := Distance(a, b) * 0.1
	if n > 0.8 {
		return 0.8
	}
	return n
}

// Manager indexes regions by id and tracks the default spawn region.
type Manager struct {
	byID map[string]*Region
}

// NewManager builds a Manager seeded with the default regions.
func NewManager() *Manager {
	m := &Manager{byID: make(map[string]*Region)}
	for _, r := range Defaults() {
		m.byID[r.ID] = r
	}
	return m
}

// Get returns the region with the given id, or nil if unknown.
func (m *Manager) Get(id string) *Region {
	return m.byID[id]
}

// SpawnRegion returns the region new agents spawn into.
func (m *Manager) SpawnRegion() *Region {
	return m.byID[SpawnRegionID]
}

// All returns every region, in a stable order matching Defaults.
func (m *Manager) All() []*Region {
	out := make([]*Region, 0, len(m.byID))
	for _, r := range Defaults() {
		if existing, ok := m.byID[r.ID]; ok {
			out = append(out, existing)
		}
	}
	return out
}

// snapshotRegion is the observer-safe, JSON-serializable view of a
// Region: it reports the occupant count, not the occupant set itself.
type snapshotRegion struct {
	Region
	AgentCount int `json:"agent_count"`
}

// Snapshot returns a map of region id to its observer-safe view.
func (m *Manager) Snapshot() map[string]snapshotRegion {
	out := make(map[string]snapshotRegion, len(m.byID))
	for id, r := range m.byID {
		out[id] = snapshotRegion{Region: *r, AgentCount: r.AgentCount()}
	}
	return out
}

// Reset replaces the manager's regions with fresh defaults (occupants
// empty); used when loading persisted state, which rebuilds occupants
// separately from each alive agent's current region.
func (m *Manager) Reset() {
	m.byID = make(map[string]*Region)
	for _, r := range Defaults() {
		m.byID[r.ID] = r
	}
}
