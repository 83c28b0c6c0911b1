/*

This file contains the per-token circuit breaker. Two observations of a
token's price and volume inside the comparison window are enough to trip on a
suspicious move; a tripped breaker stays tripped until an operator resets it.

The breaker fails safe: an observation it cannot interpret trips it rather
than being ignored.

*/

package risk

import (
	"fmt"

	"github.com/mevforge/searcher/internal/types"
)

// CheckCircuitBreaker folds one market observation into the token's breaker
// and returns ErrBreakerTripped if the breaker is, or becomes, tripped.
func (m *Manager) CheckCircuitBreaker(token string, price, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now().UTC()
	b, ok := m.breakers[token]
	if !ok {
		b = &types.BreakerState{}
		m.breakers[token] = b
	}

	if b.Triggered {
		return fmt.Errorf("%w: %s", ErrBreakerTripped, token)
	}

	// An uninterpretable observation trips the breaker instead of being
	// skipped.
	if price <= 0 || volume < 0 {
		b.Triggered = true
		riskLogger.Error().
			Str("token", token).
			Float64("price", price).
			Float64("volume", volume).
			Msg("Circuit breaker tripped on invalid observation")
		return fmt.Errorf("%w: %s (invalid observation)", ErrBreakerTripped, token)
	}

	// Only compare against an observation inside the window; a stale
	// baseline just gets replaced.
	if !b.LastCheck.IsZero() && now.Sub(b.LastCheck) <= m.params.BreakerWindow {
		if deviation(price, b.LastPrice) > m.params.PriceDeviation {
			b.Triggered = true
			riskLogger.Error().
				Str("token", token).
				Float64("price", price).
				Float64("lastPrice", b.LastPrice).
				Msg("Circuit breaker tripped on price deviation")
			return fmt.Errorf("%w: %s (price deviation)", ErrBreakerTripped, token)
		}
		if b.LastVolume > 0 && volume > b.LastVolume*m.params.VolumeMultiplier {
			b.Triggered = true
			riskLogger.Error().
				Str("token", token).
				Float64("volume", volume).
				Float64("lastVolume", b.LastVolume).
				Msg("Circuit breaker tripped on volume spike")
			return fmt.Errorf("%w: %s (volume spike)", ErrBreakerTripped, token)
		}
	}

	b.LastPrice = price
	b.LastVolume = volume
	b.LastCheck = now
	return nil
}

// TripBreaker trips a token's breaker directly. Used when an observation
// cannot be produced at all; the breaker fails safe rather than open.
func (m *Manager) TripBreaker(token, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[token]
	if !ok {
		b = &types.BreakerState{}
		m.breakers[token] = b
	}
	if !b.Triggered {
		b.Triggered = true
		riskLogger.Error().Str("token", token).Str("reason", reason).Msg("Circuit breaker tripped")
	}
}

// ResetBreaker clears a tripped breaker. Operator action only.
func (m *Manager) ResetBreaker(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[token]; ok && b.Triggered {
		riskLogger.Warn().Str("token", token).Msg("Circuit breaker reset")
		*b = types.BreakerState{}
	}
}

func deviation(current, last float64) float64 {
	if last == 0 {
		return 0
	}
	d := (current - last) / last
	if d < 0 {
		return -d
	}
	return d
}
