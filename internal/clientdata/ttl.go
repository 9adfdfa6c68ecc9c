package clientdata

import "time"

// TTL constants for cached provider data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Daily bars only change once per session; a few hours keeps intraday reruns cheap
	TTLPriceHistory = 4 * time.Hour

	// Macro quotes are captured once per batch
	TTLMacro = time.Hour

	// Stale entries are kept this long past expiry as an outage fallback
	StaleRetention = 7 * 24 * time.Hour
)
