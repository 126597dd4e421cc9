package trade

import (
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/observatory/internal/resources"
)

// Transaction is one immutable recorded resource transfer.
type Transaction struct {
	TransactionID string         `json:"transaction_id"`
	Tick          uint64         `json:"tick"`
	FromAgent     string         `json:"from_agent"`
	ToAgent       string         `json:"to_agent"`
	Resource      resources.Kind `json:"resource_type"`
	Amount        float64        `json:"amount"`
	TradeID       string         `json:"trade_id,omitempty"`
}

// AccountingLedger is the immutable record of every executed transfer.
type AccountingLedger struct {
	mu           sync.Mutex
	transactions []Transaction
}

// NewAccountingLedger returns an empty accounting ledger.
func NewAccountingLedger() *AccountingLedger {
	return &AccountingLedger{}
}

// RecordTransfer appends a transaction.
func (a *AccountingLedger) RecordTransfer(tick uint64, from, to string, resource resources.Kind, amount float64, tradeID string) Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx := Transaction{
		TransactionID: "tx_" + uuid.NewString(),
		Tick:          tick,
		FromAgent:     from,
		ToAgent:       to,
		Resource:      resource,
		Amount:        amount,
		TradeID:       tradeID,
	}
	a.transactions = append(a.transactions, tx)
	return tx
}

// RecordExecutedTrade records both legs of an executed offer under a
// shared trade id and returns them for any caller that needs to mirror
// the transactions elsewhere (e.g. the analytics index).
func (a *AccountingLedger) RecordExecutedTrade(o *Offer) [2]Transaction {
	leg1 := a.RecordTransfer(o.ExecutedAtTick, o.FromAgent, o.ToAgent, o.OfferResource, o.OfferAmount, o.OfferID)
	leg2 := a.RecordTransfer(o.ExecutedAtTick, o.ToAgent, o.FromAgent, o.RequestResource, o.RequestAmount, o.OfferID)
	return [2]Transaction{leg1, leg2}
}

// GetTransactions returns transactions within [fromTick, toTick]
// involving agentID on either side (empty agentID matches all).
func (a *AccountingLedger) GetTransactions(fromTick, toTick uint64, agentID string) []Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Transaction
	for _, tx := range a.transactions {
		if tx.Tick < fromTick || (toTick > 0 && tx.Tick > toTick) {
			continue
		}
		if agentID != "" && tx.FromAgent != agentID && tx.ToAgent != agentID {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// BalanceSheet is the net signed flow per resource kind for one agent.
type BalanceSheet map[resources.Kind]float64

// GetBalanceSheet sums signed transaction amounts for agentID: positive
// when agentID receives, negative when agentID sends.
func (a *AccountingLedger) GetBalanceSheet(agentID string) BalanceSheet {
	a.mu.Lock()
	defer a.mu.Unlock()

	sheet := BalanceSheet{}
	for _, tx := range a.transactions {
		switch agentID {
		case tx.ToAgent:
			sheet[tx.Resource] += tx.Amount
		case tx.FromAgent:
			sheet[tx.Resource] -= tx.Amount
		}
	}
	return sheet
}

// TotalVolume sums the absolute amount transacted per resource kind
// across every recorded transaction.
func (a *AccountingLedger) TotalVolume() map[resources.Kind]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	totals := map[resources.Kind]float64{}
	for _, tx := range a.transactions {
		totals[tx.Resource] += tx.Amount
	}
	return totals
}

// Count returns the total number of recorded transactions.
func (a *AccountingLedger) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transactions)
}
