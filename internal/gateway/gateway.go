// Package gateway implements the two HTTP surfaces agents and humans
// use to reach the world kernel: the authenticated Agent Gateway
// (write) in this file, and the read-only Observer surface in
// observer.go. Both share the same underlying components and never
// share credentials.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/talgya/observatory/internal/analytics"
	"github.com/talgya/observatory/internal/identity"
	"github.com/talgya/observatory/internal/ledger"
	"github.com/talgya/observatory/internal/lifecycle"
	obsengine "github.com/talgya/observatory/internal/engine"
	"github.com/talgya/observatory/internal/messaging"
	"github.com/talgya/observatory/internal/ratelimit"
	"github.com/talgya/observatory/internal/region"
	"github.com/talgya/observatory/internal/resources"
	"github.com/talgya/observatory/internal/trade"
	"github.com/talgya/observatory/internal/verifier"
	"github.com/talgya/observatory/internal/worldstate"
)

// Gateway serves the agent-facing write surface: registration, the
// authenticated action/observe/message endpoints, and the human claim
// flow. It holds non-owning references to every kernel component it
// coordinates.
type Gateway struct {
	State      *worldstate.State
	Ledger     *ledger.Ledger
	Engine     *obsengine.Engine
	Trades     *trade.Ledger
	Accounting *trade.AccountingLedger
	Messages   *messaging.Bus
	Lifecycle  *lifecycle.Manager
	Verifier   *verifier.Client
	Analytics  *analytics.DB

	Domain string
	Port   int

	ChallengeLimiter *ratelimit.Limiter
	ClaimLimiter     *ratelimit.Limiter
}

type agentIDKey struct{}

// Start begins serving the Agent Gateway in a goroutine.
func (g *Gateway) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/agent/register/challenge", ratelimit.Middleware(g.ChallengeLimiter, g.handleRegisterChallenge))
	mux.HandleFunc("/agent/register", g.handleRegister)
	mux.HandleFunc("/agent/observe", g.requireAuth(g.handleObserve))
	mux.HandleFunc("/agent/action", g.requireAuth(g.handleAction))
	mux.HandleFunc("/agent/message", g.requireAuth(g.handleMessage))

	mux.HandleFunc("/claim/", ratelimit.Middleware(g.ClaimLimiter, g.handleClaimRoutes))

	g.registerStaticRoutes(mux)

	addr := fmt.Sprintf(":%d", g.Port)
	slog.Info("agent gateway starting", "addr", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("agent gateway error", "error", err)
		}
	}()
}

func (g *Gateway) handleRegisterChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	challenge, err := identity.GenerateChallenge()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate challenge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": challenge})
}

type registerRequest struct {
	AgentPublicKey   string `json:"agent_public_key"`
	AgentDisplayName string `json:"agent_display_name"`
	Nonce            string `json:"nonce"`
	SignedNonce      string `json:"signed_nonce"`
	PowChallenge     string `json:"pow_challenge"`
	PowNonce         string `json:"pow_nonce"`
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !identity.VerifyProofOfWork(req.PowChallenge, req.PowNonce) {
		writeError(w, http.StatusBadRequest, "invalid proof-of-work")
		return
	}
	if !identity.VerifySignedNonce(req.AgentPublicKey, req.Nonce, req.SignedNonce) {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	agentID := identity.DeriveAgentID(req.AgentPublicKey)
	if g.State.GetAgent(agentID) != nil {
		writeError(w, http.StatusBadRequest, "agent already registered")
		return
	}

	claimToken, err := identity.GenerateClaimToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate claim token")
		return
	}

	displayName := req.AgentDisplayName
	if displayName == "" {
		displayName = agentID
	}

	agent := &worldstate.Agent{
		ID:            agentID,
		DisplayName:   displayName,
		PublicKey:     req.AgentPublicKey,
		Region:        region.SpawnRegionID,
		Resources:     resources.NewDefaultPool(),
		Status:        worldstate.StatusUnclaimed,
		ClaimToken:    claimToken,
		ClaimExpires:  time.Now().Add(lifecycle.ClaimTokenExpiry).Unix(),
		CreatedAtTick: g.State.CurrentTick(),
		Alliances:     []string{},
	}
	if !g.State.AddAgent(agent) {
		writeError(w, http.StatusBadRequest, "agent already registered")
		return
	}

	scheme := "https"
	if strings.Contains(g.Domain, "localhost") || strings.Contains(g.Domain, "127.0.0.1") {
		scheme = "http"
	}
	claimURL := fmt.Sprintf("%s://%s/claim/%s", scheme, g.Domain, claimToken)

	g.Ledger.Append(ledger.Event{
		Tick:       g.State.CurrentTick(),
		ActionType: "register",
		AgentID:    agentID,
		Success:    true,
		Details: map[string]any{
			"spawn_region":      agent.Region,
			"initial_resources": agent.Resources,
		},
		Timestamp: nowUnix(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"agent_id":             agentID,
		"claim_token":          claimToken,
		"claim_url":            claimURL,
		"initial_spawn_region": agent.Region,
		"initial_resources":    agent.Resources,
		"auth_method":          "signed_requests",
		"instructions":         "Return the claim_url to your human operator for ownership verification.",
	})
}

// requireAuth wraps a handler with the signed-request authentication
// scheme: X-Agent-ID/X-Timestamp/X-Signature headers verified against
// the stored public key, over the canonical METHOD:PATH:BODY:TIMESTAMP
// message.
func (g *Gateway) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get("X-Agent-ID")
		timestamp := r.Header.Get("X-Timestamp")
		signature := r.Header.Get("X-Signature")

		if agentID == "" || timestamp == "" || signature == "" {
			writeError(w, http.StatusUnauthorized, "missing authentication headers")
			return
		}

		if !identity.IsTimestampValid(timestamp, time.Now()) {
			writeError(w, http.StatusForbidden, "request timestamp expired or invalid")
			return
		}

		agent := g.State.GetAgent(agentID)
		if agent == nil {
			writeError(w, http.StatusForbidden, "agent not found")
			return
		}
		if !agent.IsAlive() {
			writeError(w, http.StatusForbidden, "agent is dead")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		r.Body.Close()

		if !identity.VerifyActionSignature(agent.PublicKey, r.Method, r.URL.Path, string(body), timestamp, signature) {
			writeError(w, http.StatusForbidden, "invalid signature")
			return
		}

		r.Body = io.NopCloser(strings.NewReader(string(body)))
		ctx := context.WithValue(r.Context(), agentIDKey{}, agentID)
		next(w, r.WithContext(ctx))
	}
}

func agentIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(agentIDKey{}).(string)
	return id
}

func (g *Gateway) handleObserve(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFromContext(r)
	agent := g.State.GetAgent(agentID)
	if agent == nil || !agent.IsAlive() {
		writeError(w, http.StatusBadRequest, "agent not found or dead")
		return
	}

	regionObj, regionOK := g.State.RegionSnapshot(agent.Region)
	summary := g.State.AllAgentsSummary()

	var visible []map[string]any
	if regionOK {
		for id := range regionObj.Occupants {
			if id == agentID {
				continue
			}
			if s, ok := summary[id]; ok && s.Status != worldstate.StatusDead {
				other := g.State.GetAgent(id)
				if other == nil {
					continue
				}
				visible = append(visible, map[string]any{
					"agent_id":     other.ID,
					"display_name": other.DisplayName,
					"status":       other.Status,
				})
			}
		}
	}

	inbox := g.Messages.GetInbox(agentID, 0)
	if len(inbox) > 20 {
		inbox = inbox[len(inbox)-20:]
	}

	offers := g.Trades.GetOffersForAgent(agentID)
	pending := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		pending = append(pending, o.AsMap())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"tick":           g.State.CurrentTick(),
		"region":         regionObj,
		"visible_agents": visible,
		"your_resources": agent.Resources,
		"your_status":    agent.Status,
		"inbox":          inbox,
		"pending_trades": pending,
	})
}

type actionRequest struct {
	ActionType string         `json:"action_type"`
	Params     map[string]any `json:"params"`
}

func (g *Gateway) handleAction(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFromContext(r)

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ActionType == "accept_trade" {
		offerID, _ := req.Params["offer_id"].(string)
		result := g.Trades.AcceptOffer(offerID, agentID, g.State.CurrentTick(), g.State)
		if !result.Success {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": result.Error})
			return
		}
		legs := g.Accounting.RecordExecutedTrade(result.Offer)
		g.indexTransactions(legs)
		g.Ledger.Append(ledger.Event{
			Tick:       g.State.CurrentTick(),
			ActionType: "accept_trade",
			AgentID:    agentID,
			Success:    true,
			Details:    result.Offer.AsMap(),
			Timestamp:  nowUnix(),
		})
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "action_type": "accept_trade", "details": result.Offer.AsMap()})
		return
	}

	actionType := resources.Action(req.ActionType)
	if !validActionType(actionType) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid action type: %s", req.ActionType))
		return
	}

	agent := g.State.GetAgent(agentID)
	if agent == nil || !agent.IsAlive() {
		writeError(w, http.StatusBadRequest, "agent not found or dead")
		return
	}
	if !agent.IsClaimed() && actionType != resources.ActionObserve {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "agent is unclaimed. only observe actions allowed until claimed.",
		})
		return
	}

	queuedAt := g.Engine.EnqueueAction(agentID, actionType, req.Params)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"action_type": req.ActionType,
		"details":     map[string]any{"queued_at_tick": queuedAt},
	})
}

func validActionType(a resources.Action) bool {
	switch a {
	case resources.ActionMove, resources.ActionTrade, resources.ActionSendMessage,
		resources.ActionObserve, resources.ActionFork, resources.ActionMerge,
		resources.ActionAttack, resources.ActionAlly:
		return true
	}
	return false
}

type messageRequest struct {
	TargetAgent string `json:"target_agent"`
	Content     string `json:"content"`
}

// handleMessage queues a send_message action (resource-debited at the
// next tick) and, matching the convenience this route historically
// provided, also performs one immediate noisy delivery so senders see
// their message land without waiting for tick resolution. The queued
// action resolves and delivers again at tick time — callers that want
// exactly-once delivery should use /agent/action directly.
func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	agentID := agentIDFromContext(r)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TargetAgent == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "missing target_agent or content")
		return
	}

	agent := g.State.GetAgent(agentID)
	if agent == nil || !agent.IsAlive() {
		writeError(w, http.StatusBadRequest, "agent not found or dead")
		return
	}
	if !agent.IsClaimed() {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "agent is unclaimed. only observe actions allowed until claimed.",
		})
		return
	}

	target := g.State.GetAgent(req.TargetAgent)
	if target == nil || !target.IsAlive() {
		writeError(w, http.StatusBadRequest, "target agent not found or not alive")
		return
	}

	g.Engine.EnqueueAction(agentID, resources.ActionSendMessage, map[string]any{
		"target_agent": req.TargetAgent,
		"content":      req.Content,
	})

	fromRegion, fromOK := g.State.RegionSnapshot(agent.Region)
	toRegion, toOK := g.State.RegionSnapshot(target.Region)
	noise := 0.0
	if fromOK && toOK {
		noise = region.CommunicationNoiseFactor(&fromRegion, &toRegion)
	}
	g.Messages.Send(g.State.CurrentTick(), agentID, req.TargetAgent, req.Content, noise, agent.Region, target.Region)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "queued": true})
}

func (g *Gateway) handleClaimRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/claim/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(rest, "/verify") {
		token := strings.TrimSuffix(rest, "/verify")
		g.handleClaimVerify(w, r, token)
		return
	}
	g.handleClaimPage(w, r, rest)
}

func (g *Gateway) handleClaimPage(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	phrase, cerr := g.Lifecycle.VerificationPhrase(token)
	if cerr != nil {
		writeError(w, http.StatusBadRequest, cerr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claim_token":          token,
		"verification_phrase": phrase,
		"instructions":        "Post the verification phrase from an account you control, then submit its identity/location here to complete the claim.",
	})

}

type claimVerifyRequest struct {
	OwnerIdentity      string `json:"owner_identity"`
	VerificationMethod string `json:"verification_method"`
	Locator            string `json:"locator"`
}

func (g *Gateway) handleClaimVerify(w http.ResponseWriter, r *http.Request, token string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req claimVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if g.Verifier.Enabled() && req.Locator != "" {
		phrase, _ := g.Lifecycle.VerificationPhrase(token)
		result := g.Verifier.Check(req.Locator, phrase)
		if result.Identity != "" {
			req.OwnerIdentity = result.Identity
		}
	}

	agent, cerr := g.Lifecycle.Claim(token, req.OwnerIdentity, req.VerificationMethod)
	if cerr != nil {
		writeError(w, http.StatusBadRequest, cerr.Error())
		return
	}

	g.Ledger.Append(ledger.Event{
		Tick:       g.State.CurrentTick(),
		ActionType: "claim",
		AgentID:    agent.ID,
		Success:    true,
		Details:    map[string]any{"owner_identity": agent.OwnerIdentity},
		Timestamp:  nowUnix(),
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agent_id": agent.ID, "status": agent.Status})
}

// indexTransactions mirrors executed trade legs into the secondary
// analytics index, when one is configured. Best-effort: the accounting
// ledger remains the authoritative record of executed trades.
func (g *Gateway) indexTransactions(legs [2]trade.Transaction) {
	if g.Analytics == nil {
		return
	}
	for _, leg := range legs {
		row := analytics.TransactionRow{
			TransactionID: leg.TransactionID,
			Tick:          leg.Tick,
			FromAgent:     leg.FromAgent,
			ToAgent:       leg.ToAgent,
			ResourceType:  string(leg.Resource),
			Amount:        leg.Amount,
			TradeID:       leg.TradeID,
		}
		if err := g.Analytics.IndexTransaction(row); err != nil {
			slog.Error("index trade transaction", "transaction_id", leg.TransactionID, "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
