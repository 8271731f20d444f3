package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stakecast/internal/config"
	"stakecast/internal/events"
	"stakecast/internal/hook"
	"stakecast/pkg/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stubSource serves one fixed reading; zero at means "published now".
type stubSource struct {
	price int64
	expo  int32
	at    time.Time
	err   error
}

func (s *stubSource) Latest(_ context.Context, _ string) (types.OracleReading, error) {
	if s.err != nil {
		return types.OracleReading{}, s.err
	}
	at := s.at
	if at.IsZero() {
		at = time.Now()
	}
	return types.OracleReading{Price: s.price, Confidence: 1, Exponent: s.expo, PublishTime: at}, nil
}

// priced returns a source publishing the given USD price in Pyth-style
// fixed-point (expo −8).
func priced(usd int64) *stubSource {
	return &stubSource{price: usd * 1e8, expo: -8}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Admin: config.AdminConfig{Address: admin.Hex()},
		Fees:  config.FeeConfig{Treasury: treasury.Hex(), FeeBps: 250},
		Stake: config.StakeConfig{MinStakeAmount: "0.1", HookMinStake: "0.1"},
		Oracle: config.OracleConfig{
			BaseURL:      "http://localhost:0",
			MaxStaleness: time.Minute,
			Timeout:      time.Second,
		},
		Store: config.StoreConfig{DataDir: t.TempDir()},
	}
}

func newEngine(t *testing.T, cfg *config.Config, src *stubSource) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	e, err := New(cfg, src, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// createShortMarket registers a market expiring in ttl so tests can wait it
// out and resolve.
func createShortMarket(t *testing.T, e *Engine, id uint64, threshold string, ttl time.Duration) {
	t.Helper()
	err := e.CreateMarket(admin, id, "ETH above threshold", "ETH", d(threshold), time.Now().Add(ttl), "eth-usd")
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
}

func TestPredictResolveClaim(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))
	createShortMarket(t, e, 1, "2500", 40*time.Millisecond)

	if err := e.Deposit(alice, d("10")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	ticketID, err := e.Predict(alice, 1, types.Above, d("1"))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if got := e.Balance(alice); !got.Equal(d("9")) {
		t.Errorf("alice balance after stake = %s, want 9", got)
	}
	if got := e.Balance(EscrowAccount); !got.Equal(d("1")) {
		t.Errorf("escrow = %s, want 1", got)
	}

	time.Sleep(60 * time.Millisecond)
	if err := e.ResolveMarket(context.Background(), 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	m, _ := e.GetMarket(1)
	if m.WinningOutcome != types.Above {
		t.Fatalf("winning outcome = %s, want Above", m.WinningOutcome)
	}

	// Sole winner, no losing pool: principal back, no profit, no fee.
	payout, err := e.ClaimReward(alice, ticketID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !payout.Net.Equal(d("1")) || !payout.Fee.IsZero() {
		t.Errorf("payout = %+v, want net 1 fee 0", payout)
	}
	if got := e.Balance(alice); !got.Equal(d("10")) {
		t.Errorf("alice final balance = %s, want 10", got)
	}
	if got := e.Balance(EscrowAccount); !got.IsZero() {
		t.Errorf("escrow final balance = %s, want 0", got)
	}
}

func TestTwoSidedSettlement(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2400)) // settles below threshold
	createShortMarket(t, e, 1, "2500", 40*time.Millisecond)

	_ = e.Deposit(alice, d("1"))
	_ = e.Deposit(bob, d("3"))
	aliceTicket, err := e.Predict(alice, 1, types.Above, d("1"))
	if err != nil {
		t.Fatalf("predict above: %v", err)
	}
	bobTicket, err := e.Predict(bob, 1, types.Below, d("3"))
	if err != nil {
		t.Fatalf("predict below: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if err := e.ResolveMarket(context.Background(), 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := e.ClaimReward(alice, aliceTicket); !errors.Is(err, types.ErrIncorrectPrediction) {
		t.Errorf("losing claim err = %v, want ErrIncorrectPrediction", err)
	}

	// Bob holds the whole 3.0 win pool: profit 1.0, fee 2.5% of 1.0.
	payout, err := e.ClaimReward(bob, bobTicket)
	if err != nil {
		t.Fatalf("winning claim: %v", err)
	}
	if !payout.Net.Equal(d("3.975")) {
		t.Errorf("net = %s, want 3.975", payout.Net)
	}
	if got := e.Balance(bob); !got.Equal(d("3.975")) {
		t.Errorf("bob balance = %s, want 3.975", got)
	}
	if got := e.Balance(treasury); !got.Equal(d("0.025")) {
		t.Errorf("treasury balance = %s, want 0.025", got)
	}
	if got := e.Balance(EscrowAccount); !got.IsZero() {
		t.Errorf("escrow balance = %s, want 0", got)
	}
}

func TestPredictWithoutFunds(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))
	createShortMarket(t, e, 1, "2500", time.Hour)

	_, err := e.Predict(alice, 1, types.Above, d("1"))
	if !errors.Is(err, types.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	m, _ := e.GetMarket(1)
	if !m.TotalPool().IsZero() {
		t.Error("failed predict must not move stake totals")
	}
}

func TestPredictLedgerFailureRefundsStake(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))

	_ = e.Deposit(alice, d("5"))
	_, err := e.Predict(alice, 99, types.Above, d("1"))
	if !errors.Is(err, types.ErrMarketDoesNotExist) {
		t.Fatalf("err = %v, want ErrMarketDoesNotExist", err)
	}
	if got := e.Balance(alice); !got.Equal(d("5")) {
		t.Errorf("alice balance = %s, want 5 after rollback", got)
	}
	if got := e.Balance(EscrowAccount); !got.IsZero() {
		t.Errorf("escrow = %s, want 0 after rollback", got)
	}
}

func TestExecuteSwapRecordsPrediction(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))
	createShortMarket(t, e, 7, "2500", time.Hour)

	pool := PoolAccount("pool-1")
	_ = e.Deposit(alice, d("200"))
	_ = e.Deposit(pool, d("100"))

	raw := hook.Encode(hook.Payload{User: alice, MarketID: 7, Outcome: types.Above})
	swap, res, err := e.ExecuteSwap(SwapRequest{
		PoolID:    "pool-1",
		Trader:    alice,
		TokenIn:   "USDC",
		TokenOut:  "ETH",
		AmountIn:  d("100"),
		AmountOut: d("100"),
		HookData:  raw,
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !res.Recorded || !res.Stake.Equal(d("1")) {
		t.Fatalf("hook result = %+v, want recorded stake 1", res)
	}
	if !swap.AmountOut.Equal(d("100")) {
		t.Errorf("swap amount out = %s, want 100", swap.AmountOut)
	}

	// 200 − 100 in + 100 out − 1 stake
	if got := e.Balance(alice); !got.Equal(d("199")) {
		t.Errorf("alice balance = %s, want 199", got)
	}
	if got := e.Balance(EscrowAccount); !got.Equal(d("1")) {
		t.Errorf("escrow = %s, want 1", got)
	}
	tk, ok := e.GetTicket(res.TicketID)
	if !ok || tk.Owner != alice || tk.Outcome != types.Above {
		t.Errorf("ticket = %+v, ok = %v", tk, ok)
	}
}

// A payload one byte short of the contract is skipped: the swap stands, no
// prediction exists, and no failure is reported.
func TestExecuteSwapMalformedPayloadSkipped(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))
	createShortMarket(t, e, 7, "2500", time.Hour)

	pool := PoolAccount("pool-1")
	_ = e.Deposit(alice, d("200"))
	_ = e.Deposit(pool, d("100"))

	raw := hook.Encode(hook.Payload{User: alice, MarketID: 7, Outcome: types.Above})
	_, res, err := e.ExecuteSwap(SwapRequest{
		PoolID:    "pool-1",
		Trader:    alice,
		TokenIn:   "USDC",
		TokenOut:  "ETH",
		AmountIn:  d("100"),
		AmountOut: d("100"),
		HookData:  raw[:52],
	})
	if err != nil {
		t.Fatalf("malformed payload must not abort the swap: %v", err)
	}
	if res.Recorded {
		t.Error("malformed payload must not record a prediction")
	}
	// Swap legs settled, no stake taken
	if got := e.Balance(alice); !got.Equal(d("200")) {
		t.Errorf("alice balance = %s, want 200", got)
	}
	if got := e.Balance(EscrowAccount); !got.IsZero() {
		t.Errorf("escrow = %s, want 0", got)
	}
	if got := e.Events().OfType(events.TypePredictionFailed); len(got) != 0 {
		t.Errorf("failure events = %d, want 0 for a skipped payload", len(got))
	}
}

func TestExecuteSwapHookFailureRollsBackSwap(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))

	pool := PoolAccount("pool-1")
	_ = e.Deposit(alice, d("200"))
	_ = e.Deposit(pool, d("100"))

	// Market 42 was never created; the prediction fails and the swap must
	// unwind with it.
	raw := hook.Encode(hook.Payload{User: alice, MarketID: 42, Outcome: types.Above})
	_, _, err := e.ExecuteSwap(SwapRequest{
		PoolID:    "pool-1",
		Trader:    alice,
		TokenIn:   "USDC",
		TokenOut:  "ETH",
		AmountIn:  d("100"),
		AmountOut: d("100"),
		HookData:  raw,
	})
	if !errors.Is(err, types.ErrMarketDoesNotExist) {
		t.Fatalf("err = %v, want ErrMarketDoesNotExist", err)
	}
	if got := e.Balance(alice); !got.Equal(d("200")) {
		t.Errorf("alice balance = %s, want 200 after rollback", got)
	}
	if got := e.Balance(pool); !got.Equal(d("100")) {
		t.Errorf("pool balance = %s, want 100 after rollback", got)
	}

	fails := e.Events().OfType(events.TypePredictionFailed)
	if len(fails) != 1 {
		t.Fatalf("failure events = %d, want 1", len(fails))
	}
	if evt := fails[0].Data.(events.PredictionFailed); evt.Code != "MARKET_DOES_NOT_EXIST" {
		t.Errorf("failure code = %q, want MARKET_DOES_NOT_EXIST", evt.Code)
	}
}

func TestResolveTwice(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))
	createShortMarket(t, e, 1, "2500", 40*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if err := e.ResolveMarket(context.Background(), 1); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	err := e.ResolveMarket(context.Background(), 1)
	if !errors.Is(err, types.ErrMarketAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want ErrMarketAlreadyResolved", err)
	}
}

func TestStaleOracleBlocksResolution(t *testing.T) {
	t.Parallel()
	src := priced(2600)
	src.at = time.Now().Add(-2 * time.Minute) // outside the 1m window
	e := newEngine(t, testConfig(t), src)
	createShortMarket(t, e, 1, "2500", 40*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	err := e.ResolveMarket(context.Background(), 1)
	if !errors.Is(err, types.ErrStalePrice) {
		t.Fatalf("err = %v, want ErrStalePrice", err)
	}
	m, _ := e.GetMarket(1)
	if m.Resolved {
		t.Error("market must stay unresolved on a stale reading")
	}
}

func TestAdminGating(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))

	if err := e.CreateMarket(alice, 1, "m", "ETH", d("2500"), time.Now().Add(time.Hour), "eth-usd"); !errors.Is(err, types.ErrNotAuthorized) {
		t.Errorf("create market err = %v, want ErrNotAuthorized", err)
	}
	if err := e.SetFeeConfiguration(alice, treasury, 100); !errors.Is(err, types.ErrNotAuthorized) {
		t.Errorf("set fees err = %v, want ErrNotAuthorized", err)
	}
	if err := e.SetMinStakeAmount(alice, d("1")); !errors.Is(err, types.ErrNotAuthorized) {
		t.Errorf("set min stake err = %v, want ErrNotAuthorized", err)
	}
	if err := e.SetMaxPriceStaleness(alice, time.Minute); !errors.Is(err, types.ErrNotAuthorized) {
		t.Errorf("set staleness err = %v, want ErrNotAuthorized", err)
	}
}

func TestSetFeeConfiguration(t *testing.T) {
	t.Parallel()
	e := newEngine(t, testConfig(t), priced(2600))

	if err := e.SetFeeConfiguration(admin, common.Address{}, 100); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("zero treasury err = %v, want ErrInvalidArgument", err)
	}
	if err := e.SetFeeConfiguration(admin, treasury, 10001); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("over-cap bps err = %v, want ErrInvalidArgument", err)
	}

	if err := e.SetFeeConfiguration(admin, treasury, 500); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	if got := e.FeeConfig(); got.FeeBps != 500 || got.Treasury != treasury {
		t.Errorf("fee config = %+v, want 500 bps to treasury", got)
	}
	if got := e.Events().OfType(events.TypeFeeConfigChanged); len(got) != 1 {
		t.Errorf("fee change events = %d, want 1", len(got))
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	e1 := newEngine(t, cfg, priced(2600))
	createShortMarket(t, e1, 1, "2500", time.Hour)
	_ = e1.Deposit(alice, d("10"))
	ticketID, err := e1.Predict(alice, 1, types.Above, d("2"))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if err := e1.SetMinStakeAmount(admin, d("0.5")); err != nil {
		t.Fatalf("set min stake: %v", err)
	}

	// Same data dir: the second engine restores everything.
	e2 := newEngine(t, cfg, priced(2600))
	m, ok := e2.GetMarket(1)
	if !ok || !m.TotalStakeAbove.Equal(d("2")) {
		t.Fatalf("restored market = %+v, ok = %v", m, ok)
	}
	tk, ok := e2.GetTicket(ticketID)
	if !ok || tk.Owner != alice {
		t.Fatalf("restored ticket = %+v, ok = %v", tk, ok)
	}
	if got := e2.Balance(alice); !got.Equal(d("8")) {
		t.Errorf("restored alice balance = %s, want 8", got)
	}
	if got := e2.MinStake(); !got.Equal(d("0.5")) {
		t.Errorf("restored min stake = %s, want 0.5", got)
	}

	// Ticket ids keep counting from where the first engine stopped.
	_ = e2.Deposit(bob, d("3"))
	nextID, err := e2.Predict(bob, 1, types.Below, d("1"))
	if err != nil {
		t.Fatalf("predict on restored engine: %v", err)
	}
	if nextID != ticketID+1 {
		t.Errorf("next ticket id = %d, want %d", nextID, ticketID+1)
	}
}
