package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/coldpath/coldpath-backend/logger"
	"github.com/coldpath/coldpath-backend/models"
)

// Config tunes the coordinator. Zero values fall back to safe defaults.
type Config struct {
	// FreshnessWindow bounds how old a cached resolution may be and still
	// satisfy a lookup. Default 30 days.
	FreshnessWindow time.Duration

	// LockWait bounds how long a caller waits for the per-identity lock
	// before giving up on coalescing and paying for its own provider call.
	LockWait time.Duration

	// AllowDegradedReads lets a resolve treat a failed store read as a miss
	// instead of failing the call. Off by default: silently paying for
	// provider calls the cache should have absorbed is worse than an error.
	AllowDegradedReads bool

	// StaleFallback serves a stale record (flagged as such) when the
	// provider fails and a stale record exists. Off by default.
	StaleFallback bool
}

// Coordinator orchestrates one lookup: key derivation, tiered cache read,
// freshness check, coalesced provider fallback, persistence and accounting.
type Coordinator struct {
	store    Store
	hot      HotTier // may be nil
	provider Provider
	locks    *KeyLock
	policy   FreshnessPolicy
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

func NewCoordinator(store Store, provider Provider, hot HotTier, cfg Config, log *logger.Logger) *Coordinator {
	if cfg.LockWait <= 0 {
		cfg.LockWait = 30 * time.Second
	}
	return &Coordinator{
		store:    store,
		hot:      hot,
		provider: provider,
		locks:    NewKeyLock(),
		policy:   NewFreshnessPolicy(cfg.FreshnessWindow),
		cfg:      cfg,
		log:      log.With("component", "enrich"),
		now:      time.Now,
	}
}

// ResolveLinkedIn finds an email address for a LinkedIn profile URL, serving
// from the global cache when it can.
func (c *Coordinator) ResolveLinkedIn(ctx context.Context, idctx IdentityContext, url string) (*Outcome, error) {
	return c.resolve(ctx, idctx, url, func(pctx context.Context) (*Result, error) {
		return c.provider.FindEmailByLinkedIn(pctx, url)
	})
}

// ResolveEmailVerification verifies a known email address, serving from the
// global cache when it can.
func (c *Coordinator) ResolveEmailVerification(ctx context.Context, idctx IdentityContext, email string) (*Outcome, error) {
	return c.resolve(ctx, idctx, email, func(pctx context.Context) (*Result, error) {
		return c.provider.VerifyEmail(pctx, email)
	})
}

// RemainingCredits passes through the provider-side balance.
func (c *Coordinator) RemainingCredits(ctx context.Context) (*Credits, error) {
	return c.provider.RemainingCredits(ctx)
}

type providerCall func(ctx context.Context) (*Result, error)

func (c *Coordinator) resolve(ctx context.Context, idctx IdentityContext, raw string, call providerCall) (*Outcome, error) {
	norm := Normalize(raw)
	hash := HashIdentity(norm)
	log := c.log.With("identity", shortHash(hash), "org_id", idctx.OrgID)

	// Fast path: tiered read, freshness check, zero-cost hit. The identity,
	// not the tenant, is the unit of caching, so whichever org populated the
	// record is irrelevant here.
	rec, err := c.lookup(ctx, hash, true)
	if err != nil && !errors.Is(err, ErrNotFound) {
		if !c.cfg.AllowDegradedReads {
			return nil, err
		}
		log.Warn("cache read failed, continuing degraded", "err", err)
		rec = nil
	}
	if c.policy.IsFresh(rec, c.now()) {
		if out, ok := c.serveHit(ctx, hash, rec, log); ok {
			return out, nil
		}
		// The record vanished between read and touch (retention purge);
		// fall through to the provider path.
		rec = nil
	}

	// Miss or stale: serialize per identity so concurrent cold lookups
	// collapse into one paid call.
	lockCtx, cancel := context.WithTimeout(ctx, c.cfg.LockWait)
	defer cancel()
	release, lockErr := c.locks.Acquire(lockCtx, hash)
	if lockErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Lock wait exceeded. Losing coalescing is a cost regression, not a
		// correctness one, so pay for an unguarded call rather than fail.
		log.Warn("identity lock wait exceeded, proceeding uncoalesced")
	} else {
		defer release()
		// Double-check under the lock: a previous holder may have already
		// populated the cache while this caller was queued, which converts
		// the wait into a free hit.
		fresh, err := c.lookup(ctx, hash, false)
		if err != nil && !errors.Is(err, ErrNotFound) && !c.cfg.AllowDegradedReads {
			return nil, err
		}
		if c.policy.IsFresh(fresh, c.now()) {
			if out, ok := c.serveHit(ctx, hash, fresh, log); ok {
				return out, nil
			}
		}
	}

	return c.callProvider(ctx, hash, raw, rec, call, log)
}

// lookup reads the record for hash, consulting the hot tier first when asked.
// The double-check under the lock skips the hot tier so a just-written record
// is always seen.
func (c *Coordinator) lookup(ctx context.Context, hash string, useHot bool) (*models.EmailCacheRecord, error) {
	if useHot && c.hot != nil {
		if rec, ok := c.hot.Get(ctx, hash); ok {
			return rec, nil
		}
	}
	rec, err := c.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if c.hot != nil {
		c.hot.Set(ctx, hash, rec)
	}
	return rec, nil
}

// serveHit books the hit (atomic hit_count increment plus a volume-only
// search-history entry) and builds the zero-cost outcome. Returns ok=false
// when the record no longer exists and the caller should take the miss path.
func (c *Coordinator) serveHit(ctx context.Context, hash string, rec *models.EmailCacheRecord, log *logger.Logger) (*Outcome, bool) {
	if err := c.store.Touch(ctx, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			if c.hot != nil {
				c.hot.Delete(ctx, hash)
			}
			return nil, false
		}
		// Hit accounting is lost but the cached data is good; serving it
		// beats surfacing a store hiccup to the caller.
		log.Warn("hit accounting lost", "err", err)
	}
	c.recordSearch(ctx, hash, SearchHit, log)
	log.Debug("cache hit", "provider", rec.ProviderSource)
	return &Outcome{
		Kind:           KindCacheHit,
		Result:         resultFromRecord(rec),
		CreditsCharged: 0,
	}, true
}

// callProvider performs the metered call and persists its outcome. staleRec,
// when non-nil, is a past-freshness record available for the configured
// stale-on-error fallback.
func (c *Coordinator) callProvider(ctx context.Context, hash, raw string, staleRec *models.EmailCacheRecord, call providerCall, log *logger.Logger) (*Outcome, error) {
	// The call must run to completion even if the originating request is
	// cancelled: the result has value to every future caller, and a waiting
	// coalesced caller may be counting on it.
	pctx := context.WithoutCancel(ctx)

	res, err := call(pctx)
	if err == nil && (res == nil || res.Email == "") {
		// A "success" with no email is useless as a cache record.
		err = ErrProviderNotFound
	}

	if err == nil {
		if _, perr := c.store.Put(pctx, hash, raw, res); perr != nil {
			// Worst failure mode in the system: the credit is spent and
			// nothing is cached to show for it. Alert distinctly, but do
			// not waste the paid result — the caller still gets it.
			log.Error("paid provider result could not be persisted",
				"provider", res.ProviderSource, "err", perr)
		} else if c.hot != nil {
			if rec, gerr := c.store.Get(pctx, hash); gerr == nil {
				c.hot.Set(pctx, hash, rec)
			}
		}
		c.recordSearch(pctx, hash, SearchFound, log)
		log.Info("provider resolved identity", "provider", res.ProviderSource)
		return &Outcome{
			Kind:           KindProviderSuccess,
			Result:         res,
			CreditsCharged: 1,
		}, nil
	}

	// Failure: zero credits charged to the caller, nothing cached, the
	// stale record (if any) left exactly as it was.
	c.recordSearch(pctx, hash, SearchFailed, log)

	if c.cfg.StaleFallback && staleRec != nil && staleRec.ResolvedEmail != "" {
		log.Warn("provider failed, serving stale record", "err", err)
		return &Outcome{
			Kind:           KindCacheHit,
			Result:         resultFromRecord(staleRec),
			CreditsCharged: 0,
			Stale:          true,
		}, nil
	}

	out := &Outcome{Kind: KindProviderFailure, CreditsCharged: 0}
	var pe *ProviderError
	switch {
	case errors.Is(err, ErrProviderNotFound):
		out.FailureReason = "not_found"
		out.Retryable = false
	case errors.As(err, &pe):
		out.FailureReason = pe.Message
		out.Retryable = true
	default:
		out.FailureReason = err.Error()
		out.Retryable = true
	}
	log.Info("provider lookup failed", "reason", out.FailureReason, "retryable", out.Retryable)
	return out, nil
}

// recordSearch books one search-history update. Counter loss is an analytics
// problem, not a correctness one, so failures are logged and swallowed.
func (c *Coordinator) recordSearch(ctx context.Context, hash string, outcome SearchOutcome, log *logger.Logger) {
	if err := c.store.RecordSearch(ctx, hash, outcome); err != nil {
		log.Warn("search history update lost", "err", err)
	}
}

func resultFromRecord(rec *models.EmailCacheRecord) *Result {
	return &Result{
		Email:              rec.ResolvedEmail,
		Name:               rec.ResolvedName,
		LinkedInURL:        rec.ResolvedLinkedIn,
		VerificationStatus: rec.VerificationStatus,
		ProviderSource:     rec.ProviderSource,
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
