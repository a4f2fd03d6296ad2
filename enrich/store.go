package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coldpath/coldpath-backend/models"
)

// Store is the persistent keyed storage behind the coordinator. Implementations
// must make Touch and RecordSearch single atomic statements: two simultaneous
// hits on the same identity both have to land (no lost hit_count updates).
type Store interface {
	// Get returns the record for hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (*models.EmailCacheRecord, error)

	// Put inserts or refreshes the resolved result for hash. On insert the
	// hit count starts at 1; on update the resolution fields and updated_at
	// are replaced and the hit count is left alone.
	Put(ctx context.Context, hash, originalInput string, res *Result) (*models.EmailCacheRecord, error)

	// Touch atomically increments hit_count and refreshes last_accessed_at
	// without touching the resolved fields or updated_at.
	Touch(ctx context.Context, hash string) error

	// RecordSearch upserts the search-history counters for hash.
	RecordSearch(ctx context.Context, hash string, outcome SearchOutcome) error

	// PurgeOlderThan deletes cache records whose resolution is older than
	// cutoff. Retention GC only; correctness never depends on it.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormStore is the sqlite/gorm implementation of Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, hash string) (*models.EmailCacheRecord, error) {
	var rec models.EmailCacheRecord
	err := s.db.WithContext(ctx).First(&rec, "identity_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, hash, err)
	}
	return &rec, nil
}

func (s *GormStore) Put(ctx context.Context, hash, originalInput string, res *Result) (*models.EmailCacheRecord, error) {
	now := time.Now().UTC()
	rec := models.EmailCacheRecord{
		IdentityHash:       hash,
		OriginalInput:      originalInput,
		ResolvedEmail:      res.Email,
		ResolvedName:       res.Name,
		ResolvedLinkedIn:   res.LinkedInURL,
		VerificationStatus: res.VerificationStatus,
		ProviderSource:     res.ProviderSource,
		HitCount:           1,
		LastAccessedAt:     now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"original_input":        originalInput,
			"resolved_email":        res.Email,
			"resolved_name":         res.Name,
			"resolved_linkedin_url": res.LinkedInURL,
			"verification_status":   res.VerificationStatus,
			"provider_source":       res.ProviderSource,
			"last_accessed_at":      now,
			"updated_at":            now,
		}),
	}).Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("%w: put %s: %v", ErrStoreUnavailable, hash, err)
	}
	return &rec, nil
}

func (s *GormStore) Touch(ctx context.Context, hash string) error {
	// UpdateColumns skips gorm's auto-timestamping on purpose: a hit must
	// not refresh updated_at, or popular records would never go stale.
	tx := s.db.WithContext(ctx).Model(&models.EmailCacheRecord{}).
		Where("identity_hash = ?", hash).
		UpdateColumns(map[string]interface{}{
			"hit_count":        gorm.Expr("hit_count + 1"),
			"last_accessed_at": time.Now().UTC(),
		})
	if tx.Error != nil {
		return fmt.Errorf("%w: touch %s: %v", ErrStoreUnavailable, hash, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) RecordSearch(ctx context.Context, hash string, outcome SearchOutcome) error {
	now := time.Now().UTC()
	row := models.EmailSearchHistory{
		IdentityHash:    hash,
		TimesSearched:   1,
		FirstSearchedAt: now,
	}
	assign := map[string]interface{}{
		"times_searched": gorm.Expr("times_searched + 1"),
	}
	switch outcome {
	case SearchFound:
		row.SuccessfulFinds = 1
		row.LastProviderCallAt = now
		assign["successful_finds"] = gorm.Expr("successful_finds + 1")
		assign["last_provider_call_at"] = now
	case SearchFailed:
		row.FailedSearches = 1
		row.LastProviderCallAt = now
		assign["failed_searches"] = gorm.Expr("failed_searches + 1")
		assign["last_provider_call_at"] = now
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_hash"}},
		DoUpdates: clause.Assignments(assign),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: record search %s: %v", ErrStoreUnavailable, hash, err)
	}
	return nil
}

func (s *GormStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.EmailCacheRecord{})
	if tx.Error != nil {
		return 0, fmt.Errorf("%w: purge: %v", ErrStoreUnavailable, tx.Error)
	}
	return tx.RowsAffected, nil
}
