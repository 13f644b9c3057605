package ratelimit

import (
	"slices"
	"time"

	"github.com/Proton-105/account-ledger/pkg/config"
)

// Rules exposes the configured coin mutation limit.
type Rules struct {
	config config.RateLimitConfig
}

func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether mutations are limited at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled && r.config.Window > 0
}

// IsWhitelisted returns true if accountID bypasses rate limits.
func (r *Rules) IsWhitelisted(accountID uint32) bool {
	return slices.Contains(r.config.Whitelist, accountID)
}

// MutationLimit returns how many coin mutations one account may perform per
// window.
func (r *Rules) MutationLimit() (int, time.Duration) {
	return r.config.Limit, r.config.Window
}
