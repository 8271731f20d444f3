// Package store provides crash-safe engine state persistence using JSON files.
//
// The full settlement state — markets, tickets, the ticket id counter,
// account balances, and the live fee configuration — is stored as a single
// state.json snapshot. Writes use atomic file replacement (write to .tmp,
// then rename) to prevent corruption from partial writes or crashes
// mid-save. The engine saves after every committed mutation and loads on
// startup to restore state.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/pkg/types"
)

const stateFile = "state.json"

// State is the persisted snapshot of everything the engine settles against.
// Balance map keys are hex addresses (common.Address does not marshal as a
// JSON object key).
type State struct {
	SavedAt      time.Time                  `json:"saved_at"`
	Markets      map[uint64]*types.Market   `json:"markets"`
	Tickets      map[uint64]*types.Ticket   `json:"tickets"`
	NextTicketID uint64                     `json:"next_ticket_id"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	FeeConfig    types.FeeConfig            `json:"fee_config"`
	MinStake     decimal.Decimal            `json:"min_stake"`
}

// BalancesByAddress converts the persisted balance map back to address keys.
func (s *State) BalancesByAddress() map[common.Address]decimal.Decimal {
	out := make(map[common.Address]decimal.Decimal, len(s.Balances))
	for hex, bal := range s.Balances {
		out[common.HexToAddress(hex)] = bal
	}
	return out
}

// EncodeBalances converts an address-keyed balance map for persistence.
func EncodeBalances(balances map[common.Address]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(balances))
	for addr, bal := range balances {
		out[addr.Hex()] = bal
	}
	return out
}

// Store persists engine state to a JSON file in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// Save atomically persists the state snapshot. It writes to a .tmp file
// first, then renames over the target to ensure the file is never left in a
// partial state (crash-safe).
func (s *Store) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.SavedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	path := filepath.Join(s.dir, stateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the state snapshot from disk.
// Returns nil, nil if no saved state exists (fresh start).
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}
