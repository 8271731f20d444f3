// Package events implements the engine's append-only event log.
//
// Every state transition of interest (market created, prediction recorded or
// failed, market resolved, reward claimed, fee configuration changed) is
// appended as a typed Event and fanned out to subscribers. The log is
// in-process and not re-queryable by the core — components act on their own
// state, never on the log — but the API server streams it to clients and
// tests assert against it.
package events

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Event type tags, one per payload struct below.
const (
	TypeMarketCreated    = "market_created"
	TypeMarketResolved   = "market_resolved"
	TypePredictionRec    = "prediction_recorded"
	TypePredictionFailed = "prediction_failed"
	TypeRewardClaimed    = "reward_claimed"
	TypeFeeConfigChanged = "fee_config_changed"
)

// Event is the envelope for all log entries.
type Event struct {
	Seq       uint64      `json:"seq"` // position in the log, starts at 1
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// MarketCreated is appended when the registry accepts a new market.
type MarketCreated struct {
	MarketID       uint64          `json:"market_id"`
	Name           string          `json:"name"`
	AssetSymbol    string          `json:"asset_symbol"`
	ExpirationTime time.Time       `json:"expiration_time"`
	FeedID         string          `json:"feed_id"`
	PriceThreshold decimal.Decimal `json:"price_threshold"`
}

// PredictionRecorded is appended when the ledger mints a ticket.
// SwapAmount is set only on the swap-triggered path.
type PredictionRecorded struct {
	User       common.Address  `json:"user"`
	PoolID     string          `json:"pool_id,omitempty"` // swap pool, empty for direct predictions
	MarketID   uint64          `json:"market_id"`
	TicketID   uint64          `json:"ticket_id"`
	Outcome    string          `json:"outcome"`
	Stake      decimal.Decimal `json:"stake"`
	SwapAmount decimal.Decimal `json:"swap_amount,omitempty"`
}

// PredictionFailed is appended when a swap-triggered prediction is rejected
// downstream. Code carries the original error kind so the failure cause
// survives the adapter boundary.
type PredictionFailed struct {
	User       common.Address  `json:"user"`
	PoolID     string          `json:"pool_id,omitempty"`
	MarketID   uint64          `json:"market_id"`
	Outcome    string          `json:"outcome"`
	Stake      decimal.Decimal `json:"stake"`
	SwapAmount decimal.Decimal `json:"swap_amount,omitempty"`
	Code       string          `json:"code"`
	Reason     string          `json:"reason"`
}

// MarketResolved is appended exactly once per market.
type MarketResolved struct {
	MarketID       uint64          `json:"market_id"`
	WinningOutcome string          `json:"winning_outcome"`
	Price          decimal.Decimal `json:"price"`
	TotalPrizePool decimal.Decimal `json:"total_prize_pool"`
}

// RewardClaimed is appended when a winning ticket is paid out.
type RewardClaimed struct {
	User     common.Address  `json:"user"`
	TicketID uint64          `json:"ticket_id"`
	MarketID uint64          `json:"market_id"`
	Amount   decimal.Decimal `json:"amount"` // net payout, after protocol fee
	Fee      decimal.Decimal `json:"fee"`
}

// FeeConfigChanged is appended on every successful admin fee update.
type FeeConfigChanged struct {
	Treasury common.Address `json:"treasury"`
	FeeBps   uint32         `json:"fee_bps"`
}

// Log is an append-only, mutex-protected event log with subscriber fan-out.
// Subscribers receive events on buffered channels; a slow subscriber drops
// events rather than blocking the emitting call.
type Log struct {
	mu   sync.RWMutex
	seq  uint64
	all  []Event
	subs []chan Event
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{}
}

// Append adds an event to the log and notifies subscribers.
func (l *Log) Append(typ string, data interface{}) Event {
	l.mu.Lock()
	l.seq++
	evt := Event{Seq: l.seq, Type: typ, Timestamp: time.Now(), Data: data}
	l.all = append(l.all, evt)
	subs := make([]chan Event, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default: // slow subscriber, drop
		}
	}
	return evt
}

// Subscribe returns a channel receiving all future events.
func (l *Log) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// All returns a copy of every event appended so far.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.all))
	copy(out, l.all)
	return out
}

// OfType returns all events with the given type tag, in append order.
func (l *Log) OfType(typ string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.all {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
