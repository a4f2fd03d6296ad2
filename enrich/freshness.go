package enrich

import (
	"time"

	"github.com/coldpath/coldpath-backend/models"
)

// DefaultFreshnessWindow is how long a resolved record may be served as a
// hit before the provider must be consulted again.
const DefaultFreshnessWindow = 30 * 24 * time.Hour

// FreshnessPolicy decides whether a stored record may satisfy a lookup
// without a new paid call. Pure function of the record and the clock.
type FreshnessPolicy struct {
	Window time.Duration
}

func NewFreshnessPolicy(window time.Duration) FreshnessPolicy {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return FreshnessPolicy{Window: window}
}

// IsFresh reports whether rec can be served as a cache hit at instant now.
// A record with no resolved email is never fresh: failed lookups are not
// negative-cached, so a later request must retry the provider.
func (p FreshnessPolicy) IsFresh(rec *models.EmailCacheRecord, now time.Time) bool {
	if rec == nil || rec.ResolvedEmail == "" {
		return false
	}
	return now.Sub(rec.UpdatedAt) <= p.Window
}
