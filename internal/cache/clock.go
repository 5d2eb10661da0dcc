package cache

import "time"

// Clock supplies the current time. All expiry and staleness decisions go
// through it so tests can drive TTL behavior deterministically.
type Clock func() time.Time
