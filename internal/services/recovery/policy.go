package recovery

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/interfaces"
)

// Policy dismisses the known interstitial prompt that blocks content access
type Policy struct {
	config common.RecoveryConfig
	logger arbor.ILogger
}

// NewPolicy creates a recovery policy
func NewPolicy(config common.RecoveryConfig, logger arbor.ILogger) *Policy {
	return &Policy{
		config: config,
		logger: logger,
	}
}

// Recover checks for the interstitial marker and, when present, performs one
// dismissal click. It reports whether it intervened. With no interstitial on
// the page it has no side effect.
func (p *Policy) Recover(ctx context.Context, surface interfaces.BrowserSurface) (bool, error) {
	if p.config.InterstitialSelector == "" {
		return false, nil
	}

	markers, err := surface.Query(ctx, p.config.InterstitialSelector)
	if err != nil {
		return false, fmt.Errorf("interstitial check failed: %w", err)
	}
	if len(markers) == 0 {
		return false, nil
	}

	target := markers[0]
	if p.config.DismissSelector != "" {
		dismiss, err := surface.Query(ctx, p.config.DismissSelector)
		if err != nil {
			return false, fmt.Errorf("dismiss lookup failed: %w", err)
		}
		if len(dismiss) > 0 {
			target = dismiss[0]
		}
	}

	p.logger.Info().
		Str("selector", target.Selector).
		Msg("Interstitial detected, dismissing")

	if err := surface.Click(ctx, target); err != nil {
		return false, fmt.Errorf("interstitial dismissal failed: %w", err)
	}
	return true, nil
}
