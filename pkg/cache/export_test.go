package cache

import "time"

// SetClock replaces the time source of c.
func SetClock[V any](c *TTL[V], now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// RemoveExpired runs one sweep.
func RemoveExpired[V any](c *TTL[V]) {
	c.removeExpired()
}
