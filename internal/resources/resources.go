// Package resources defines the four resource kinds agents hold and spend,
// the per-tick regeneration rule, and the action-cost table the rules
// engine debits against.
package resources

// Kind is one of the four closed resource kinds.
type Kind string

const (
	Energy    Kind = "energy"
	Bandwidth Kind = "bandwidth"
	Memory    Kind = "memory"
	Compute   Kind = "compute"
)

// Kinds lists every resource kind in a stable order, useful for
// iteration and serialization.
var Kinds = []Kind{Energy, Bandwidth, Memory, Compute}

// Defaults describes the cap, per-tick regen rate, and initial value for
// a resource kind.
type Defaults struct {
	Cap     float64
	Regen   float64
	Initial float64
}

// ResourceDefaults holds the per-kind defaults specified for the world.
var ResourceDefaults = map[Kind]Defaults{
	Energy:    {Cap: 100, Regen: 2, Initial: 50},
	Bandwidth: {Cap: 50, Regen: 1, Initial: 25},
	Memory:    {Cap: 200, Regen: 0, Initial: 100},
	Compute:   {Cap: 80, Regen: 1.5, Initial: 40},
}

// Action is one of the eight agent action types (the ninth internal
// bookkeeping step, danger, has no action-cost entry of its own).
type Action string

const (
	ActionMove         Action = "move"
	ActionTrade        Action = "trade"
	ActionSendMessage  Action = "send_message"
	ActionObserve      Action = "observe"
	ActionFork         Action = "fork"
	ActionMerge        Action = "merge"
	ActionAttack       Action = "attack"
	ActionAlly         Action = "ally"
)

// ActionCosts is the fixed, pre-multiplier cost table. Resource kinds
// absent from an entry cost nothing for that action.
var ActionCosts = map[Action]map[Kind]float64{
	ActionMove:        {Energy: 5},
	ActionTrade:       {Energy: 2, Bandwidth: 3},
	ActionSendMessage: {Energy: 1, Bandwidth: 5},
	ActionObserve:     {Energy: 1},
	ActionFork:        {Energy: 40, Memory: 50, Compute: 30},
	ActionMerge:       {Energy: 20, Compute: 20},
	ActionAttack:      {Energy: 15, Compute: 10},
	ActionAlly:        {Energy: 3, Bandwidth: 2},
}

// Pool holds an agent's current holdings and per-kind caps.
type Pool struct {
	Holdings map[Kind]float64 `json:"holdings"`
	Caps     map[Kind]float64 `json:"caps"`
}

// NewDefaultPool returns a pool seeded with the world's resource defaults.
func NewDefaultPool() Pool {
	p := Pool{
		Holdings: make(map[Kind]float64, len(Kinds)),
		Caps:     make(map[Kind]float64, len(Kinds)),
	}
	for _, k := range Kinds {
		d := ResourceDefaults[k]
		p.Holdings[k] = d.Initial
		p.Caps[k] = d.Cap
	}
	return p
}

// CanAfford reports whether every cost in costs can be deducted without
// taking a holding negative.
func (p Pool) CanAfford(costs map[Kind]float64) bool {
	for k, amount := range costs {
		if p.Holdings[k] < amount {
			return false
		}
	}
	return true
}

// Deduct atomically debits costs from the pool. If any single kind is
// insufficient, nothing is debited and Deduct returns false.
func (p *Pool) Deduct(costs map[Kind]float64) bool {
	if !p.CanAfford(costs) {
		return false
	}
	for k, amount := range costs {
		p.Holdings[k] -= amount
	}
	return true
}

// Regenerate applies one tick of regeneration, scaled by regionMultiplier
// and clamped to each kind's cap. Every resource kind regenerates, even
// one with a zero holding.
func (p *Pool) Regenerate(regionMultiplier float64) {
	if p.Holdings == nil {
		p.Holdings = make(map[Kind]float64, len(Kinds))
	}
	for _, k := range Kinds {
		d := ResourceDefaults[k]
		cap := p.Caps[k]
		if cap == 0 {
			cap = d.Cap
		}
		next := p.Holdings[k] + d.Regen*regionMultiplier
		if next > cap {
			next = cap
		}
		p.Holdings[k] = next
	}
}

// ApplyDanger drains energy by dangerLevel*5, clamped at zero, and
// reports whether the pool was fully drained (agent dies this tick).
func (p *Pool) ApplyDanger(dangerLevel float64) (depleted bool) {
	drain := dangerLevel * 5
	next := p.Holdings[Energy] - drain
	if next <= 0 {
		p.Holdings[Energy] = 0
		return true
	}
	p.Holdings[Energy] = next
	return false
}

// Clamp clamps every holding into [0, cap].
func (p *Pool) Clamp() {
	for _, k := range Kinds {
		cap := p.Caps[k]
		if cap == 0 {
			cap = ResourceDefaults[k].Cap
		}
		if p.Holdings[k] > cap {
			p.Holdings[k] = cap
		}
		if p.Holdings[k] < 0 {
			p.Holdings[k] = 0
		}
	}
}

// Half returns a new pool with half of each of p's holdings, and mutates
// p in place to hold the other half (used by fork, which splits the
// parent's remaining resources symmetrically with the child).
func (p *Pool) Half() Pool {
	child := Pool{
		Holdings: make(map[Kind]float64, len(Kinds)),
		Caps:     make(map[Kind]float64, len(Kinds)),
	}
	for _, k := range Kinds {
		half := p.Holdings[k] / 2
		p.Holdings[k] -= half
		child.Holdings[k] = half
		child.Caps[k] = ResourceDefaults[k].Cap
	}
	return child
}

// TotalCost multiplies every entry in costs by multiplier, returning a
// fresh map (used by move, whose cost scales with distance).
func TotalCost(costs map[Kind]float64, multiplier float64) map[Kind]float64 {
	out := make(map[Kind]float64, len(costs))
	for k, v := range costs {
		out[k] = v * multiplier
	}
	return out
}
