package enrich

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Summary is the flat aggregate record exposed to reporting endpoints.
// creditsSaved counts every hit after a record's first paid resolution; at
// cost-per-credit that is money the cache kept in the bank.
type Summary struct {
	CachedIdentities    int64   `json:"cached_identities"`
	CreditsSaved        int64   `json:"credits_saved"`
	TotalSearches       int64   `json:"total_searches"`
	SuccessfulFinds     int64   `json:"successful_finds"`
	FailedSearches      int64   `json:"failed_searches"`
	CostPerCredit       float64 `json:"cost_per_credit"`
	EstimatedMoneySaved float64 `json:"estimated_money_saved"`
}

// Reporter aggregates the two cache tables. Read-only; an empty store
// reports zeros, not an error.
type Reporter struct {
	db            *gorm.DB
	costPerCredit float64
}

func NewReporter(db *gorm.DB, costPerCredit float64) *Reporter {
	return &Reporter{db: db, costPerCredit: costPerCredit}
}

func (r *Reporter) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{CostPerCredit: r.costPerCredit}

	row := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(*), COALESCE(SUM(hit_count - 1), 0) FROM email_cache_records`,
	).Row()
	if err := row.Scan(&s.CachedIdentities, &s.CreditsSaved); err != nil {
		return nil, fmt.Errorf("%w: cache aggregates: %v", ErrStoreUnavailable, err)
	}

	row = r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(times_searched), 0),
		        COALESCE(SUM(successful_finds), 0),
		        COALESCE(SUM(failed_searches), 0)
		   FROM email_search_histories`,
	).Row()
	if err := row.Scan(&s.TotalSearches, &s.SuccessfulFinds, &s.FailedSearches); err != nil {
		return nil, fmt.Errorf("%w: search aggregates: %v", ErrStoreUnavailable, err)
	}

	s.EstimatedMoneySaved = float64(s.CreditsSaved) * r.costPerCredit
	return s, nil
}
