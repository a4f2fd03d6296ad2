package models

import "time"

// ========================
// GLOBAL ENRICHMENT CACHE
// ========================
//
// Both tables below are keyed by the sha256 of the normalized lookup input
// and are shared across every organization. A contact resolved once is a
// free cache hit for all tenants until the record goes stale, so neither
// table may carry an org or user column.

// EmailCacheRecord is the last-known successful resolution for one identity.
// It is only ever written on a successful provider call; failed lookups are
// never cached (no negative caching).
type EmailCacheRecord struct {
	IdentityHash       string    `gorm:"primaryKey;size:64" json:"identity_hash"`
	OriginalInput      string    `json:"original_input"` // diagnostic only, not part of the key
	ResolvedEmail      string    `json:"resolved_email"`
	ResolvedName       string    `json:"resolved_name,omitempty"`
	ResolvedLinkedIn   string    `gorm:"column:resolved_linkedin_url" json:"resolved_linkedin_url,omitempty"`
	VerificationStatus string    `json:"verification_status"` // verified | unverified | risky | invalid
	ProviderSource     string    `json:"provider_source"`
	HitCount           int64     `gorm:"default:1" json:"hit_count"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (EmailCacheRecord) TableName() string {
	return "email_cache_records"
}

// EmailSearchHistory counts lookup volume per identity, including identities
// that never resolved. Carries nothing but the hash and counters: no resolved
// content, no requester, no tenant.
type EmailSearchHistory struct {
	IdentityHash       string    `gorm:"primaryKey;size:64" json:"identity_hash"`
	TimesSearched      int64     `gorm:"default:1" json:"times_searched"`
	SuccessfulFinds    int64     `gorm:"default:0" json:"successful_finds"`
	FailedSearches     int64     `gorm:"default:0" json:"failed_searches"`
	FirstSearchedAt    time.Time `json:"first_searched_at"`
	LastProviderCallAt time.Time `json:"last_provider_call_at"`
}

func (EmailSearchHistory) TableName() string {
	return "email_search_histories"
}
