// Package resolver settles expired markets against the oracle.
//
// Resolution is the single Open/Expired → Resolved transition. It happens
// exactly once per market: a second attempt fails with
// ErrMarketAlreadyResolved and changes nothing. The tie-break is fixed —
// a settlement price exactly equal to the threshold resolves Above.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stakecast/internal/events"
	"stakecast/internal/registry"
	"stakecast/pkg/types"
)

// PriceGateway is the staleness-bounded oracle read the resolver consumes.
type PriceGateway interface {
	Latest(ctx context.Context, feedID string) (types.OracleReading, error)
}

// Resolver drives market settlement.
type Resolver struct {
	registry *registry.Registry
	gateway  PriceGateway
	log      *events.Log
	logger   *slog.Logger

	now func() time.Time // injectable clock for tests
}

// New creates a resolver.
func New(reg *registry.Registry, gateway PriceGateway, log *events.Log, logger *slog.Logger) *Resolver {
	return &Resolver{
		registry: reg,
		gateway:  gateway,
		log:      log,
		logger:   logger.With("component", "resolver"),
		now:      time.Now,
	}
}

// ResolveMarket settles the market against the freshest in-window oracle
// reading. Callable by anyone once the market has expired.
func (r *Resolver) ResolveMarket(ctx context.Context, marketID uint64) error {
	m, ok := r.registry.GetMarket(marketID)
	if !ok {
		return fmt.Errorf("market %d: %w", marketID, types.ErrMarketDoesNotExist)
	}
	if m.Resolved {
		return fmt.Errorf("market %d: %w", marketID, types.ErrMarketAlreadyResolved)
	}
	// Resolvable from the expiration instant onward; only a strictly
	// earlier clock is premature.
	now := r.now()
	if now.Before(m.ExpirationTime) {
		return fmt.Errorf("market %d expires %s: %w", marketID, m.ExpirationTime, types.ErrMarketNotYetResolved)
	}

	reading, err := r.gateway.Latest(ctx, m.FeedID)
	if err != nil {
		return fmt.Errorf("resolve market %d: %w", marketID, err)
	}
	price := reading.Decimal()

	// price == threshold resolves Above.
	winning := types.Below
	if price.GreaterThanOrEqual(m.PriceThreshold) {
		winning = types.Above
	}

	if err := r.registry.SetResolved(marketID, winning, price, now); err != nil {
		return err
	}

	prizePool := m.TotalStakeBelow.Add(m.TotalStakeAbove)
	r.logger.Info("market resolved",
		"market", marketID,
		"outcome", winning.String(),
		"price", price,
		"threshold", m.PriceThreshold,
		"prize_pool", prizePool,
	)
	r.log.Append(events.TypeMarketResolved, events.MarketResolved{
		MarketID:       marketID,
		WinningOutcome: winning.String(),
		Price:          price,
		TotalPrizePool: prizePool,
	})
	return nil
}
