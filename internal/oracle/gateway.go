// Package oracle wraps price-feed reads behind a staleness bound.
//
// The Gateway is the only way the engine observes prices. It asks a
// PriceSource for the freshest reading of a feed and rejects anything older
// than the configured staleness window, so a market can never settle on a
// dead feed. Unit conversion from the feed's fixed-point encoding to decimal
// happens on the reading itself (types.OracleReading.Decimal).
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stakecast/pkg/types"
)

// PriceSource supplies the freshest available reading for a feed.
// Implementations return types.ErrPriceFeedNotFound for unknown feeds.
type PriceSource interface {
	Latest(ctx context.Context, feedID string) (types.OracleReading, error)
}

// Gateway enforces the maximum staleness window over a PriceSource.
// The window is adjustable at runtime through the engine's admin surface.
type Gateway struct {
	src    PriceSource
	logger *slog.Logger

	mu           sync.RWMutex
	maxStaleness time.Duration

	now func() time.Time // injectable clock for tests
}

// NewGateway creates a gateway with the given staleness window.
func NewGateway(src PriceSource, maxStaleness time.Duration, logger *slog.Logger) *Gateway {
	return &Gateway{
		src:          src,
		logger:       logger.With("component", "oracle"),
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// MaxStaleness returns the current staleness window.
func (g *Gateway) MaxStaleness() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxStaleness
}

// SetMaxStaleness updates the staleness window. Called only from the
// engine's authorized admin path.
func (g *Gateway) SetMaxStaleness(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("max staleness %s: %w", d, types.ErrInvalidArgument)
	}
	g.mu.Lock()
	g.maxStaleness = d
	g.mu.Unlock()
	return nil
}

// GetPriceNoOlderThan returns the freshest reading for feedID, failing with
// types.ErrStalePrice if that reading is older than maxAge.
func (g *Gateway) GetPriceNoOlderThan(ctx context.Context, feedID string, maxAge time.Duration) (types.OracleReading, error) {
	reading, err := g.src.Latest(ctx, feedID)
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("feed %s: %w", feedID, err)
	}

	age := g.now().Sub(reading.PublishTime)
	if age > maxAge {
		g.logger.Warn("rejecting stale reading",
			"feed", feedID,
			"age", age,
			"max_age", maxAge,
		)
		return types.OracleReading{}, fmt.Errorf("feed %s: reading is %s old: %w", feedID, age, types.ErrStalePrice)
	}
	return reading, nil
}

// Latest returns the freshest reading within the configured staleness window.
func (g *Gateway) Latest(ctx context.Context, feedID string) (types.OracleReading, error) {
	return g.GetPriceNoOlderThan(ctx, feedID, g.MaxStaleness())
}
