// Package enrich implements the global contact-enrichment cache: a
// deduplicating, hash-keyed lookup layer in front of a metered pay-per-call
// provider. A given identity is billed to the provider at most once per
// freshness window, no matter which organization asks.
package enrich

import (
	"context"
	"errors"
)

// Sentinel errors shared across the store, provider adapters and coordinator.
var (
	// ErrNotFound means the store has no record for the identity hash.
	ErrNotFound = errors.New("enrich: record not found")

	// ErrStoreUnavailable wraps any store read/write that failed for
	// infrastructure reasons rather than a plain miss.
	ErrStoreUnavailable = errors.New("enrich: cache store unavailable")

	// ErrProviderNotFound means the provider ran and found nothing.
	ErrProviderNotFound = errors.New("enrich: provider found no result")
)

// ProviderError is a transient provider failure (timeout, 5xx, rate limit,
// out of credits). Distinct from ErrProviderNotFound so callers can decide
// whether a retry later is worthwhile.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return "enrich: provider " + e.Provider + " error: " + e.Message
}

// Result is the resolved contact payload produced by a provider and stored
// in the cache.
type Result struct {
	Email              string `json:"email"`
	Name               string `json:"name,omitempty"`
	LinkedInURL        string `json:"linkedin_url,omitempty"`
	VerificationStatus string `json:"verification_status"` // verified | unverified | risky | invalid
	ProviderSource     string `json:"provider_source"`
}

// Provider is the metered external lookup API. Every successful find or
// verify costs exactly one provider-side credit; the coordinator's whole job
// is to call these methods as rarely as possible.
type Provider interface {
	FindEmailByLinkedIn(ctx context.Context, url string) (*Result, error)
	VerifyEmail(ctx context.Context, email string) (*Result, error)
	RemainingCredits(ctx context.Context) (*Credits, error)
	Name() string
}

// Credits is the provider-side balance snapshot.
type Credits struct {
	FinderCredits   int64 `json:"finder_credits"`
	VerifierCredits int64 `json:"verifier_credits"`
}

// IdentityContext says who asked. It is used for logging and per-tenant
// usage attribution only; it never reaches the cache key or either cache
// table.
type IdentityContext struct {
	OrgID  uint
	UserID uint
}

// OutcomeKind classifies how a resolve call was satisfied.
type OutcomeKind string

const (
	KindCacheHit        OutcomeKind = "cache_hit"
	KindProviderSuccess OutcomeKind = "provider_success"
	KindProviderFailure OutcomeKind = "provider_failure"
)

// Outcome is the typed result of one resolve call.
//
// CreditsCharged is 1 only for KindProviderSuccess. For KindProviderFailure
// it is always 0: the caller is never billed for a failed external call.
type Outcome struct {
	Kind           OutcomeKind `json:"kind"`
	Result         *Result     `json:"result,omitempty"`
	CreditsCharged int         `json:"credits_charged"`

	// Stale marks a result served from a past-freshness record under the
	// stale-on-error fallback. Never set silently.
	Stale bool `json:"stale,omitempty"`

	// Failure details, set only for KindProviderFailure.
	FailureReason string `json:"failure_reason,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

// SearchOutcome feeds the per-identity search-history counters. Hits bump
// the volume counter only; found/failed also bump their respective counter
// and refresh the last-provider-call timestamp.
type SearchOutcome int

const (
	SearchHit SearchOutcome = iota
	SearchFound
	SearchFailed
)
