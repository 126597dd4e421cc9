package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/talgya/observatory/internal/analytics"
	"github.com/talgya/observatory/internal/ledger"
	"github.com/talgya/observatory/internal/messaging"
	"github.com/talgya/observatory/internal/replay"
	"github.com/talgya/observatory/internal/worldstate"
)

// maxLedgerQueryLimit caps how many events a single ledger query can
// return, regardless of the requested limit.
const maxLedgerQueryLimit = 1000

// Observer serves the read-only surface: world/agent/ledger/analytics
// views derived from the same kernel the Agent Gateway writes to. It
// never accepts a write and rejects any method but GET/HEAD/OPTIONS.
type Observer struct {
	State    *worldstate.State
	Ledger   *ledger.Ledger
	Messages *messaging.Bus
	Replay   *replay.Engine
	Analytics *analytics.DB

	Port int
}

// Start begins serving the Observer surface in a goroutine.
func (o *Observer) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/observer/world/state", readOnly(o.handleWorldState))
	mux.HandleFunc("/api/observer/world/regions", readOnly(o.handleWorldRegions))
	mux.HandleFunc("/api/observer/agents", readOnly(o.handleAgents))
	mux.HandleFunc("/api/observer/agents/", readOnly(o.handleAgentDetail))
	mux.HandleFunc("/api/observer/ledger/events", readOnly(o.handleLedgerEvents))
	mux.HandleFunc("/api/observer/analytics/summary", readOnly(o.handleAnalyticsSummary))
	mux.HandleFunc("/api/observer/analytics/trade-history", readOnly(o.handleTradeHistory))
	mux.HandleFunc("/api/observer/replay/", readOnly(o.handleReplay))
	mux.HandleFunc("/api/observer/timeline", readOnly(o.handleWorldTimeline))
	mux.HandleFunc("/api/observer/timeline/", readOnly(o.handleAgentTimeline))

	addr := fmt.Sprintf(":%d", o.Port)
	slog.Info("observer surface starting", "addr", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("observer surface error", "error", err)
		}
	}()
}

// readOnly rejects any method other than GET/HEAD/OPTIONS with 405,
// since the observer surface exposes no mutation path of any kind.
func readOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "observer surface is read-only")
		}
	}
}

func (o *Observer) handleWorldState(w http.ResponseWriter, r *http.Request) {
	snap := o.State.MakeSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"world":   snap,
		"summary": humanize.Comma(int64(len(snap.Agents))) + " agents known",
	})
}

func (o *Observer) handleWorldRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"regions": o.State.Regions.Snapshot(),
	})
}

func (o *Observer) handleAgents(w http.ResponseWriter, r *http.Request) {
	snap := o.State.MakeSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agents": snap.Agents})
}

func (o *Observer) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/observer/agents/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	agent := o.State.GetAgent(id)
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agent": agent.Public()})
}

func (o *Observer) handleLedgerEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := parseIntDefault(q.Get("limit"), 100)
	if limit <= 0 || limit > maxLedgerQueryLimit {
		limit = maxLedgerQueryLimit
	}

	query := ledger.Query{
		FromTick:   uint64(parseIntDefault(q.Get("from"), 0)),
		ToTick:     uint64(parseIntDefault(q.Get("to"), 0)),
		ActionType: q.Get("action_type"),
		AgentID:    q.Get("agent_id"),
		Limit:      limit,
	}

	events := o.Ledger.Get(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

func (o *Observer) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	if o.Analytics == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"enabled": false,
			"detail":  "analytics index not configured",
		})
		return
	}

	volume, err := o.Analytics.VolumeByResource(0, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute resource volume")
		return
	}

	readableVolume := make(map[string]string, len(volume))
	for kind, amount := range volume {
		readableVolume[string(kind)] = humanize.CommafWithDigits(amount, 2)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"enabled":              true,
		"total_messages":       o.Messages.Count(),
		"volume_by_resource":   volume,
		"volume_by_resource_h": readableVolume,
	})
}

// handleTradeHistory serves executed trade legs from the SQLite
// analytics index rather than scanning the in-memory accounting
// ledger, demonstrating the index's query path independent of
// analytics/summary's aggregate view.
func (o *Observer) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	if o.Analytics == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"enabled": false,
			"detail":  "analytics index not configured",
		})
		return
	}

	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 100)
	if limit <= 0 || limit > maxLedgerQueryLimit {
		limit = maxLedgerQueryLimit
	}
	from := uint64(parseIntDefault(q.Get("from"), 0))
	to := uint64(parseIntDefault(q.Get("to"), 0))

	var (
		rows []analytics.TransactionRow
		err  error
	)
	if agentID := q.Get("agent_id"); agentID != "" {
		rows, err = o.Analytics.TransactionsForAgent(agentID)
	} else {
		rows, err = o.Analytics.TransactionsInRange(from, to, limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query trade history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"enabled":      true,
		"transactions": rows,
		"count":        len(rows),
	})
}

func (o *Observer) handleReplay(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/observer/replay/")
	tick, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tick")
		return
	}
	snap := o.Replay.ReconstructAtTick(tick)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "snapshot": snap})
}

func (o *Observer) handleWorldTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := uint64(parseIntDefault(q.Get("from"), 0))
	to := uint64(parseIntDefault(q.Get("to"), 0))
	limit := parseIntDefault(q.Get("limit"), maxLedgerQueryLimit)
	if limit <= 0 || limit > maxLedgerQueryLimit {
		limit = maxLedgerQueryLimit
	}
	events := o.Replay.WorldTimeline(from, to, limit)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "events": events})
}

func (o *Observer) handleAgentTimeline(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/observer/timeline/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	from := uint64(parseIntDefault(q.Get("from"), 0))
	to := uint64(parseIntDefault(q.Get("to"), 0))
	events := o.Replay.AgentTimeline(id, from, to)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agent_id": id, "events": events})
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
