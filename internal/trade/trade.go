// Package trade implements the trade offer lifecycle (pending → accepted
// / rejected / expired) and the accounting ledger of executed resource
// transfers.
package trade

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/observatory/internal/resources"
	"github.com/talgya/observatory/internal/worldstate"
)

// OfferWindowTicks is how many ticks a pending offer remains acceptable.
const OfferWindowTicks = 10

// Status is a trade offer's lifecycle stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Offer is one proposed two-way resource exchange.
type Offer struct {
	OfferID         string         `json:"offer_id"`
	Tick            uint64         `json:"tick"`
	FromAgent       string         `json:"from_agent"`
	ToAgent         string         `json:"to_agent"`
	OfferResource   resources.Kind `json:"offer_resource"`
	OfferAmount     float64        `json:"offer_amount"`
	RequestResource resources.Kind `json:"request_resource"`
	RequestAmount   float64        `json:"request_amount"`
	Status          Status         `json:"status"`
	ExpiresAtTick   uint64         `json:"expires_at_tick"`
	ExecutedAtTick  uint64         `json:"executed_at_tick,omitempty"`
}

// AsMap returns a persistence-friendly representation of the offer, used
// to populate the world snapshot's pending_trades field.
func (o Offer) AsMap() map[string]any {
	return map[string]any{
		"offer_id":         o.OfferID,
		"tick":             o.Tick,
		"from_agent":       o.FromAgent,
		"to_agent":         o.ToAgent,
		"offer_resource":   o.OfferResource,
		"offer_amount":     o.OfferAmount,
		"request_resource": o.RequestResource,
		"request_amount":   o.RequestAmount,
		"status":           o.Status,
		"expires_at_tick":  o.ExpiresAtTick,
	}
}

// Ledger tracks every offer ever created, keyed by id.
type Ledger struct {
	mu      sync.Mutex
	offers  map[string]*Offer
	history []string // insertion order, for stable iteration
}

// NewLedger returns an empty trade ledger.
func NewLedger() *Ledger {
	return &Ledger{offers: make(map[string]*Offer)}
}

// CreateOffer records a new pending offer, to be applied as a tick-time
// side effect of a successful "trade" action resolution.
func (l *Ledger) CreateOffer(tick uint64, from, to string, offerResource resources.Kind, offerAmount float64, requestResource resources.Kind, requestAmount float64) *Offer {
	l.mu.Lock()
	defer l.mu.Unlock()

	offer := &Offer{
		OfferID:         "trade_" + uuid.NewString(),
		Tick:            tick,
		FromAgent:       from,
		ToAgent:         to,
		OfferResource:   offerResource,
		OfferAmount:     offerAmount,
		RequestResource: requestResource,
		RequestAmount:   requestAmount,
		Status:          StatusPending,
		ExpiresAtTick:   tick + OfferWindowTicks,
	}
	l.offers[offer.OfferID] = offer
	l.history = append(l.history, offer.OfferID)
	return offer
}

// AcceptResult carries the outcome of accepting an offer; on success Offer
// is the executed offer, from which the caller records the two transfers.
type AcceptResult struct {
	Success bool
	Error   string
	Offer   *Offer
}

// AcceptOffer validates and, on success, atomically executes the
// two-way transfer between the offer's parties. Resources credited are
// clamped to the receiving agent's caps; deduction never produces a
// negative holding since it is checked before any mutation occurs.
func (l *Ledger) AcceptOffer(offerID, acceptingAgent string, tick uint64, state *worldstate.State) AcceptResult {
	l.mu.Lock()
	offer, exists := l.offers[offerID]
	l.mu.Unlock()

	if !exists {
		return AcceptResult{Error: fmt.Sprintf("offer %q not found", offerID)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if offer.Status != StatusPending {
		return AcceptResult{Error: fmt.Sprintf("offer is %s, not pending", offer.Status)}
	}
	if offer.ToAgent != acceptingAgent {
		return AcceptResult{Error: "not the intended recipient"}
	}
	if tick > offer.ExpiresAtTick {
		offer.Status = StatusExpired
		return AcceptResult{Error: "offer has expired"}
	}

	state.Lock()
	defer state.Unlock()

	from := state.AgentUnlocked(offer.FromAgent)
	to := state.AgentUnlocked(offer.ToAgent)
	if from == nil || to == nil || !from.IsAlive() || !to.IsAlive() {
		offer.Status = StatusRejected
		return AcceptResult{Error: "a party to the trade is no longer alive"}
	}

	if from.Resources.Holdings[offer.OfferResource] < offer.OfferAmount ||
		to.Resources.Holdings[offer.RequestResource] < offer.RequestAmount {
		offer.Status = StatusRejected
		return AcceptResult{Error: "insufficient resources at acceptance time"}
	}

	from.Resources.Holdings[offer.OfferResource] -= offer.OfferAmount
	to.Resources.Holdings[offer.OfferResource] += offer.OfferAmount
	to.Resources.Holdings[offer.RequestResource] -= offer.RequestAmount
	from.Resources.Holdings[offer.RequestResource] += offer.RequestAmount
	from.Resources.Clamp()
	to.Resources.Clamp()

	offer.Status = StatusExecuted
	offer.ExecutedAtTick = tick

	return AcceptResult{Success: true, Offer: offer}
}

// ExpireOldOffers marks every pending offer whose window has passed as
// expired, returning the count swept.
func (l *Ledger) ExpireOldOffers(tick uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	swept := 0
	for _, offer := range l.offers {
		if offer.Status == StatusPending && tick > offer.ExpiresAtTick {
			offer.Status = StatusExpired
			swept++
		}
	}
	return swept
}

// GetOffersForAgent returns every pending offer where agentID is either
// party.
func (l *Ledger) GetOffersForAgent(agentID string) []*Offer {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Offer
	for _, id := range l.history {
		o := l.offers[id]
		if o.Status == StatusPending && (o.FromAgent == agentID || o.ToAgent == agentID) {
			out = append(out, o)
		}
	}
	return out
}

// AllPending returns every pending offer as a persistence-friendly map,
// in creation order, for inclusion in the world snapshot document.
func (l *Ledger) AllPending() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []map[string]any
	for _, id := range l.history {
		o := l.offers[id]
		if o.Status == StatusPending {
			out = append(out, o.AsMap())
		}
	}
	return out
}

// Get returns the offer with the given id.
func (l *Ledger) Get(offerID string) (*Offer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.offers[offerID]
	return o, ok
}
