package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/pkg/types"
)

// TicketRegistry is the claim-ticket registry the ledger mints into and the
// reward distributor validates against. The concrete mint/burn mechanics are
// outside the settlement core; this interface is the boundary.
type TicketRegistry interface {
	// Mint creates a new unclaimed ticket and returns its id.
	Mint(owner common.Address, marketID uint64, outcome types.Outcome, amount decimal.Decimal) uint64
	// Get returns a snapshot of the ticket and whether it exists.
	Get(id uint64) (types.Ticket, bool)
	// OwnerOf returns the ticket owner, failing with ErrTicketDoesNotExist.
	OwnerOf(id uint64) (common.Address, error)
	// SetClaimed updates the claimed flag. The distributor sets it before
	// paying out and restores it if the payout transfer fails.
	SetClaimed(id uint64, claimed bool) error
}

// Tickets is the in-memory ticket registry. Ids are monotonic and never
// reused, including across restarts (the counter is persisted).
type Tickets struct {
	mu      sync.RWMutex
	tickets map[uint64]*types.Ticket
	nextID  uint64

	now func() time.Time
}

// NewTickets creates an empty ticket registry; ids start at 1.
func NewTickets() *Tickets {
	return &Tickets{
		tickets: make(map[uint64]*types.Ticket),
		nextID:  1,
		now:     time.Now,
	}
}

// Mint creates a new unclaimed ticket.
func (t *Tickets) Mint(owner common.Address, marketID uint64, outcome types.Outcome, amount decimal.Decimal) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.tickets[id] = &types.Ticket{
		ID:       id,
		MarketID: marketID,
		Owner:    owner,
		Outcome:  outcome,
		Amount:   amount,
		MintedAt: t.now(),
	}
	return id
}

// Get returns a snapshot of the ticket.
func (t *Tickets) Get(id uint64) (types.Ticket, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.tickets[id]
	if !ok {
		return types.Ticket{}, false
	}
	return *tk, true
}

// OwnerOf returns the ticket's owner.
func (t *Tickets) OwnerOf(id uint64) (common.Address, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tk, ok := t.tickets[id]
	if !ok {
		return common.Address{}, fmt.Errorf("ticket %d: %w", id, types.ErrTicketDoesNotExist)
	}
	return tk.Owner, nil
}

// SetClaimed updates the claimed flag.
func (t *Tickets) SetClaimed(id uint64, claimed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tk, ok := t.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %d: %w", id, types.ErrTicketDoesNotExist)
	}
	tk.Claimed = claimed
	return nil
}

// ForMarket returns snapshots of all tickets referencing the market.
func (t *Tickets) ForMarket(marketID uint64) []types.Ticket {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.Ticket
	for _, tk := range t.tickets {
		if tk.MarketID == marketID {
			out = append(out, *tk)
		}
	}
	return out
}

// Snapshot returns the ticket map and id counter for persistence.
func (t *Tickets) Snapshot() (map[uint64]*types.Ticket, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint64]*types.Ticket, len(t.tickets))
	for id, tk := range t.tickets {
		cp := *tk
		out[id] = &cp
	}
	return out, t.nextID
}

// Restore loads persisted tickets, replacing current state.
func (t *Tickets) Restore(tickets map[uint64]*types.Ticket, nextID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickets = make(map[uint64]*types.Ticket, len(tickets))
	for id, tk := range tickets {
		cp := *tk
		t.tickets[id] = &cp
	}
	if nextID > 0 {
		t.nextID = nextID
	}
}
