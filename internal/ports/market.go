package ports

import (
	"context"

	"github.com/hiregauge/hiregauge/internal/domain"
)

// MarketSource supplies the per-role market reference table consumed by
// the compensation step. Implementations validate tables before serving
// them, so callers can rely on the monotonicity invariants holding.
type MarketSource interface {
	// Table returns the reference table for a role. It fails with
	// domain.ErrNoMarketData when the role has no entry; callers may
	// then consult a fallback source.
	Table(ctx context.Context, role string) (domain.MarketTable, error)
}
