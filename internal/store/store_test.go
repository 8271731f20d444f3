package store

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/pkg/types"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	state := &State{
		Markets: map[uint64]*types.Market{
			7: {
				ID:              7,
				Name:            "ETH above 2500 by Friday",
				Symbol:          "ETH",
				PriceThreshold:  decimal.NewFromInt(2500),
				ExpirationTime:  time.Now().Add(time.Hour).UTC(),
				FeedID:          "eth-usd",
				TotalStakeBelow: decimal.NewFromInt(3),
				TotalStakeAbove: decimal.NewFromInt(1),
			},
		},
		Tickets: map[uint64]*types.Ticket{
			1: {ID: 1, MarketID: 7, Owner: owner, Outcome: types.Above, Amount: decimal.NewFromInt(1)},
		},
		NextTicketID: 2,
		Balances:     EncodeBalances(map[common.Address]decimal.Decimal{owner: decimal.NewFromInt(50)}),
		FeeConfig:    types.FeeConfig{Treasury: owner, FeeBps: 250},
		MinStake:     decimal.RequireFromString("0.1"),
	}

	if err := s.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("load returned nil for saved state")
	}

	m := loaded.Markets[7]
	if m == nil || m.Name != "ETH above 2500 by Friday" {
		t.Fatalf("market 7 not restored: %+v", m)
	}
	if !m.TotalStakeBelow.Equal(decimal.NewFromInt(3)) {
		t.Errorf("restored below pool = %s, want 3", m.TotalStakeBelow)
	}
	if loaded.NextTicketID != 2 {
		t.Errorf("next ticket id = %d, want 2", loaded.NextTicketID)
	}
	tk := loaded.Tickets[1]
	if tk == nil || tk.Owner != owner || tk.Outcome != types.Above {
		t.Fatalf("ticket 1 not restored: %+v", tk)
	}
	if got := loaded.BalancesByAddress()[owner]; !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("restored balance = %s, want 50", got)
	}
	if loaded.FeeConfig.FeeBps != 250 {
		t.Errorf("fee bps = %d, want 250", loaded.FeeConfig.FeeBps)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	state, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for fresh dir, got %+v", state)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first := &State{NextTicketID: 1, Markets: map[uint64]*types.Market{}, Tickets: map[uint64]*types.Ticket{}}
	second := &State{NextTicketID: 9, Markets: map[uint64]*types.Market{}, Tickets: map[uint64]*types.Ticket{}}

	if err := s.Save(first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := s.Save(second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.NextTicketID != 9 {
		t.Errorf("next ticket id = %d, want 9 (latest save wins)", loaded.NextTicketID)
	}
}
