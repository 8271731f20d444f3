// Package bank maintains the value balances the engine settles against.
//
// Accounts are keyed by address and hold decimal balances. Besides plain
// transfers, the bank supports journaled sessions: a Journal snapshots every
// account it touches and can roll all of its transfers back, which is how
// the swap+stake path gets its all-or-nothing semantics without partial
// state ever becoming visible to a later call.
package bank

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/pkg/types"
)

// Bank is a thread-safe in-memory balance ledger.
type Bank struct {
	mu       sync.RWMutex
	balances map[common.Address]decimal.Decimal
}

// New creates an empty bank.
func New() *Bank {
	return &Bank{balances: make(map[common.Address]decimal.Decimal)}
}

// Balance returns the current balance for an account (zero if unknown).
func (b *Bank) Balance(addr common.Address) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[addr]
}

// Deposit credits an account. Used to fund accounts; amounts must be positive.
func (b *Bank) Deposit(addr common.Address, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("deposit %s: %w", amount, types.ErrInvalidArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = b.balances[addr].Add(amount)
	return nil
}

// Transfer moves amount from one account to another. Zero-amount transfers
// are a no-op; the sender must have sufficient balance.
func (b *Bank) Transfer(from, to common.Address, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer %s: %w", amount, types.ErrInvalidArgument)
	}
	if amount.IsZero() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferLocked(from, to, amount)
}

func (b *Bank) transferLocked(from, to common.Address, amount decimal.Decimal) error {
	if b.balances[from].LessThan(amount) {
		return fmt.Errorf("transfer %s from %s: %w", amount, from.Hex(), types.ErrInsufficientFunds)
	}
	b.balances[from] = b.balances[from].Sub(amount)
	b.balances[to] = b.balances[to].Add(amount)
	return nil
}

// Restore loads persisted balances, replacing current state.
func (b *Bank) Restore(balances map[common.Address]decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[common.Address]decimal.Decimal, len(balances))
	for addr, bal := range balances {
		b.balances[addr] = bal
	}
}

// Snapshot returns a copy of all non-zero balances for persistence.
func (b *Bank) Snapshot() map[common.Address]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[common.Address]decimal.Decimal, len(b.balances))
	for addr, bal := range b.balances {
		if !bal.IsZero() {
			out[addr] = bal
		}
	}
	return out
}

// Journal is a transactional session over the bank. Every account a journal
// touches is snapshotted on first touch; Rollback restores those snapshots,
// undoing all of the session's transfers at once. A journal is not safe for
// concurrent use — the engine serializes composite calls around it.
type Journal struct {
	bank     *Bank
	saved    map[common.Address]decimal.Decimal
	finished bool
}

// Begin starts a journaled session.
func (b *Bank) Begin() *Journal {
	return &Journal{bank: b, saved: make(map[common.Address]decimal.Decimal)}
}

// Transfer performs a transfer inside the session, snapshotting both accounts
// before the first mutation so Rollback can restore them.
func (j *Journal) Transfer(from, to common.Address, amount decimal.Decimal) error {
	if j.finished {
		return fmt.Errorf("journal already finished: %w", types.ErrInvalidArgument)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer %s: %w", amount, types.ErrInvalidArgument)
	}
	if amount.IsZero() {
		return nil
	}
	j.bank.mu.Lock()
	defer j.bank.mu.Unlock()
	j.save(from)
	j.save(to)
	return j.bank.transferLocked(from, to, amount)
}

func (j *Journal) save(addr common.Address) {
	if _, ok := j.saved[addr]; !ok {
		j.saved[addr] = j.bank.balances[addr]
	}
}

// Commit finalizes the session; its transfers become permanent.
func (j *Journal) Commit() {
	j.finished = true
	j.saved = nil
}

// Rollback restores every touched account to its pre-session balance.
// Safe to call after Commit (no-op).
func (j *Journal) Rollback() {
	if j.finished {
		return
	}
	j.finished = true
	j.bank.mu.Lock()
	defer j.bank.mu.Unlock()
	for addr, bal := range j.saved {
		if bal.IsZero() {
			delete(j.bank.balances, addr)
		} else {
			j.bank.balances[addr] = bal
		}
	}
	j.saved = nil
}
