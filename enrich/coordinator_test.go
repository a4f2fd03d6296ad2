package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coldpath/coldpath-backend/logger"
	"github.com/coldpath/coldpath-backend/models"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.EmailCacheRecord
	history map[string]*models.EmailSearchHistory

	getErr   error
	putErr   error
	touchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*models.EmailCacheRecord),
		history: make(map[string]*models.EmailSearchHistory),
	}
}

func (s *fakeStore) Get(_ context.Context, hash string) (*models.EmailCacheRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Put(_ context.Context, hash, originalInput string, res *Result) (*models.EmailCacheRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return nil, s.putErr
	}
	now := time.Now()
	rec, ok := s.records[hash]
	if !ok {
		rec = &models.EmailCacheRecord{IdentityHash: hash, HitCount: 1, CreatedAt: now}
		s.records[hash] = rec
	}
	rec.OriginalInput = originalInput
	rec.ResolvedEmail = res.Email
	rec.ResolvedName = res.Name
	rec.ResolvedLinkedIn = res.LinkedInURL
	rec.VerificationStatus = res.VerificationStatus
	rec.ProviderSource = res.ProviderSource
	rec.UpdatedAt = now
	rec.LastAccessedAt = now
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Touch(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	rec, ok := s.records[hash]
	if !ok {
		return ErrNotFound
	}
	rec.HitCount++
	rec.LastAccessedAt = time.Now()
	return nil
}

func (s *fakeStore) RecordSearch(_ context.Context, hash string, outcome SearchOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[hash]
	if !ok {
		h = &models.EmailSearchHistory{IdentityHash: hash, FirstSearchedAt: time.Now()}
		s.history[hash] = h
	}
	h.TimesSearched++
	switch outcome {
	case SearchFound:
		h.SuccessfulFinds++
		h.LastProviderCallAt = time.Now()
	case SearchFailed:
		h.FailedSearches++
		h.LastProviderCallAt = time.Now()
	}
	return nil
}

func (s *fakeStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.records, hash)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) record(hash string) *models.EmailCacheRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[hash]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *fakeStore) searchHistory(hash string) *models.EmailSearchHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[hash]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	res   *Result
	err   error
	delay time.Duration
	hook  func(ctx context.Context) // runs inside every call, before the reply
}

func (p *fakeProvider) lookup(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	p.calls++
	res, err, delay, hook := p.res, p.err, p.delay, p.hook
	p.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &ProviderError{Provider: "fake", Message: "request cancelled"}
		}
	}
	if err != nil {
		return nil, err
	}
	cp := *res
	return &cp, nil
}

func (p *fakeProvider) FindEmailByLinkedIn(ctx context.Context, _ string) (*Result, error) {
	return p.lookup(ctx)
}

func (p *fakeProvider) VerifyEmail(ctx context.Context, _ string) (*Result, error) {
	return p.lookup(ctx)
}

func (p *fakeProvider) RemainingCredits(context.Context) (*Credits, error) {
	return &Credits{FinderCredits: 100, VerifierCredits: 100}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestCoordinator(store Store, provider Provider, cfg Config) *Coordinator {
	return NewCoordinator(store, provider, nil, cfg, logger.NewNop())
}

var testResult = &Result{
	Email:              "jane.doe@acme.com",
	Name:               "Jane Doe",
	VerificationStatus: "verified",
	ProviderSource:     "fake",
}

// ─── Hit/miss economics ───────────────────────────────────────────────────────

func TestFirstResolvePaysThenEveryRepeatIsFree(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{})
	idctx := IdentityContext{OrgID: 1}
	ctx := context.Background()

	out, err := coord.ResolveLinkedIn(ctx, idctx, "https://linkedin.com/in/jdoe")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindProviderSuccess || out.CreditsCharged != 1 {
		t.Fatalf("creating call should be a paid provider success, got %+v", out)
	}

	const repeats = 5
	for i := 0; i < repeats; i++ {
		out, err := coord.ResolveLinkedIn(ctx, idctx, "https://linkedin.com/in/jdoe")
		if err != nil {
			t.Fatalf("repeat resolve %d: %v", i, err)
		}
		if out.Kind != KindCacheHit || out.CreditsCharged != 0 {
			t.Fatalf("repeat %d should be a free hit, got %+v", i, out)
		}
		if out.Result.Email != testResult.Email {
			t.Fatalf("hit returned wrong result: %+v", out.Result)
		}
	}

	if provider.callCount() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", provider.callCount())
	}
	hash := IdentityKey("https://linkedin.com/in/jdoe")
	rec := store.record(hash)
	if rec == nil || rec.HitCount != 1+repeats {
		t.Fatalf("expected hit_count %d, got %+v", 1+repeats, rec)
	}
	h := store.searchHistory(hash)
	if h == nil || h.TimesSearched != 1+repeats || h.SuccessfulFinds != 1 || h.FailedSearches != 0 {
		t.Fatalf("unexpected search history: %+v", h)
	}
}

func TestFailureCostsNothingAndIsNotCached(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{err: ErrProviderNotFound}
	coord := newTestCoordinator(store, provider, Config{})
	ctx := context.Background()
	idctx := IdentityContext{OrgID: 1}

	out, err := coord.ResolveLinkedIn(ctx, idctx, "https://linkedin.com/in/ghost")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindProviderFailure || out.CreditsCharged != 0 {
		t.Fatalf("expected free provider failure, got %+v", out)
	}
	if out.Retryable {
		t.Fatalf("not-found must not be retryable")
	}

	hash := IdentityKey("https://linkedin.com/in/ghost")
	if store.record(hash) != nil {
		t.Fatalf("failures must not create cache records")
	}
	h := store.searchHistory(hash)
	if h == nil || h.FailedSearches != 1 || h.TimesSearched != 1 {
		t.Fatalf("unexpected search history after failure: %+v", h)
	}

	// No negative caching: the next identical call tries the provider again.
	if _, err := coord.ResolveLinkedIn(ctx, idctx, "https://linkedin.com/in/ghost"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected the provider retried, got %d calls", provider.callCount())
	}
}

func TestTransientProviderErrorIsRetryable(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{err: &ProviderError{Provider: "fake", StatusCode: 503, Message: "upstream down"}}
	coord := newTestCoordinator(store, provider, Config{})

	out, err := coord.ResolveEmailVerification(context.Background(), IdentityContext{}, "jane@acme.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindProviderFailure || !out.Retryable || out.CreditsCharged != 0 {
		t.Fatalf("expected retryable free failure, got %+v", out)
	}
}

// ─── Cross-tenant and case-insensitive sharing ────────────────────────────────

func TestSecondTenantGetsAFreeHit(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{})
	ctx := context.Background()

	out1, err := coord.ResolveEmailVerification(ctx, IdentityContext{OrgID: 1}, " Jane.Doe@Acme.com ")
	if err != nil {
		t.Fatalf("org 1 resolve: %v", err)
	}
	if out1.Kind != KindProviderSuccess {
		t.Fatalf("org 1 should pay for the cold lookup, got %+v", out1)
	}

	out2, err := coord.ResolveEmailVerification(ctx, IdentityContext{OrgID: 2}, "jane.doe@acme.com")
	if err != nil {
		t.Fatalf("org 2 resolve: %v", err)
	}
	if out2.Kind != KindCacheHit || out2.CreditsCharged != 0 {
		t.Fatalf("org 2 must ride org 1's resolution for free, got %+v", out2)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 provider call across tenants, got %d", provider.callCount())
	}
}

// ─── Freshness ────────────────────────────────────────────────────────────────

func TestStaleRecordGoesBackToProvider(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{FreshnessWindow: 30 * 24 * time.Hour})
	ctx := context.Background()

	hash := IdentityKey("jane@acme.com")
	if _, err := store.Put(ctx, hash, "jane@acme.com", testResult); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.mu.Lock()
	store.records[hash].UpdatedAt = time.Now().Add(-31 * 24 * time.Hour)
	store.mu.Unlock()

	out, err := coord.ResolveEmailVerification(ctx, IdentityContext{}, "jane@acme.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindProviderSuccess || out.CreditsCharged != 1 {
		t.Fatalf("stale record must trigger a fresh paid call, got %+v", out)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.callCount())
	}
}

func TestStaleRecordLeftAloneWhenProviderFails(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{err: ErrProviderNotFound}
	coord := newTestCoordinator(store, provider, Config{})
	ctx := context.Background()

	hash := IdentityKey("jane@acme.com")
	store.Put(ctx, hash, "jane@acme.com", testResult)
	old := time.Now().Add(-60 * 24 * time.Hour)
	store.mu.Lock()
	store.records[hash].UpdatedAt = old
	store.mu.Unlock()

	out, err := coord.ResolveEmailVerification(ctx, IdentityContext{}, "jane@acme.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindProviderFailure {
		t.Fatalf("default policy must not serve stale on failure, got %+v", out)
	}

	rec := store.record(hash)
	if rec == nil {
		t.Fatalf("stale record must not be deleted on provider failure")
	}
	if !rec.UpdatedAt.Equal(old) || rec.ResolvedEmail != testResult.Email {
		t.Fatalf("stale record must be left untouched, got %+v", rec)
	}
}

func TestStaleFallbackServesFlaggedStaleResult(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{err: &ProviderError{Provider: "fake", Message: "timeout"}}
	coord := newTestCoordinator(store, provider, Config{StaleFallback: true})
	ctx := context.Background()

	hash := IdentityKey("jane@acme.com")
	store.Put(ctx, hash, "jane@acme.com", testResult)
	store.mu.Lock()
	store.records[hash].UpdatedAt = time.Now().Add(-60 * 24 * time.Hour)
	store.mu.Unlock()

	out, err := coord.ResolveEmailVerification(ctx, IdentityContext{}, "jane@acme.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindCacheHit || !out.Stale || out.CreditsCharged != 0 {
		t.Fatalf("expected flagged stale hit, got %+v", out)
	}
}

// ─── Concurrency ──────────────────────────────────────────────────────────────

func TestConcurrentColdLookupsCoalesceIntoOneCall(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult, delay: 50 * time.Millisecond}
	coord := newTestCoordinator(store, provider, Config{})
	ctx := context.Background()

	const m = 10
	outcomes := make([]*Outcome, m)
	errs := make([]error, m)
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = coord.ResolveLinkedIn(ctx,
				IdentityContext{OrgID: uint(i + 1)}, "https://linkedin.com/in/jdoe")
		}(i)
	}
	wg.Wait()

	if provider.callCount() != 1 {
		t.Fatalf("expected 1 coalesced provider call, got %d", provider.callCount())
	}

	paid, hits := 0, 0
	for i := 0; i < m; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		switch outcomes[i].Kind {
		case KindProviderSuccess:
			paid++
			if outcomes[i].CreditsCharged != 1 {
				t.Fatalf("paid outcome with wrong credit count: %+v", outcomes[i])
			}
		case KindCacheHit:
			hits++
			if outcomes[i].CreditsCharged != 0 {
				t.Fatalf("hit outcome with nonzero cost: %+v", outcomes[i])
			}
		default:
			t.Fatalf("caller %d got unexpected outcome %+v", i, outcomes[i])
		}
		if outcomes[i].Result == nil || outcomes[i].Result.Email != testResult.Email {
			t.Fatalf("caller %d got wrong result: %+v", i, outcomes[i].Result)
		}
	}
	if paid != 1 || hits != m-1 {
		t.Fatalf("expected 1 paid + %d hits, got %d paid + %d hits", m-1, paid, hits)
	}
}

func TestDifferentIdentitiesDoNotSerialize(t *testing.T) {
	store := newFakeStore()
	const n = 4

	// Every provider call parks until all n identities are in flight at once.
	// If the coordinator serialized distinct identities the barrier would never
	// fill and maxInFlight would stay at 1.
	var (
		mu          sync.Mutex
		inFlight    int
		maxInFlight int
	)
	allBusy := make(chan struct{})
	provider := &fakeProvider{res: testResult}
	provider.hook = func(context.Context) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		if inFlight == n {
			close(allBusy)
		}
		mu.Unlock()

		select {
		case <-allBusy:
		case <-time.After(2 * time.Second):
		}

		mu.Lock()
		inFlight--
		mu.Unlock()
	}
	coord := newTestCoordinator(store, provider, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.ResolveEmailVerification(ctx, IdentityContext{},
				fmt.Sprintf("user%d@acme.com", i))
			if err != nil {
				t.Errorf("resolve %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != n {
		t.Fatalf("expected %d overlapping provider calls, saw at most %d", n, maxInFlight)
	}
	if provider.callCount() != n {
		t.Fatalf("expected %d provider calls, got %d", n, provider.callCount())
	}
}

func TestLockWaitTimeoutFallsBackToUnguardedCall(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{LockWait: 20 * time.Millisecond})

	hash := IdentityKey("https://linkedin.com/in/jdoe")
	release, err := coord.locks.Acquire(context.Background(), hash)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer release()

	// Losing coalescing is a cost regression, not a correctness one: the
	// caller must still get a paid result rather than an error.
	out, err := coord.ResolveLinkedIn(context.Background(), IdentityContext{}, "https://linkedin.com/in/jdoe")
	if err != nil {
		t.Fatalf("lock-wait timeout must not fail the request: %v", err)
	}
	if out.Kind != KindProviderSuccess || out.CreditsCharged != 1 {
		t.Fatalf("expected an uncoalesced paid success, got %+v", out)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", provider.callCount())
	}
	if store.record(hash) == nil {
		t.Fatalf("uncoalesced result must still be cached")
	}
}

func TestCallerCancelledWhileWaitingForLock(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{LockWait: time.Second})

	hash := IdentityKey("jane@acme.com")
	release, err := coord.locks.Acquire(context.Background(), hash)
	if err != nil {
		t.Fatalf("hold lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = coord.ResolveEmailVerification(ctx, IdentityContext{}, "jane@acme.com")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the caller's cancellation back, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("a cancelled caller must not trigger a paid call, got %d", provider.callCount())
	}
}

func TestCallerCancellationDoesNotAbandonThePaidCall(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: testResult, delay: 50 * time.Millisecond}
	coord := newTestCoordinator(store, provider, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	out, err := coord.ResolveLinkedIn(ctx, IdentityContext{}, "https://linkedin.com/in/jdoe")
	if err != nil {
		t.Fatalf("resolve should outlive the caller: %v", err)
	}
	if out.Kind != KindProviderSuccess {
		t.Fatalf("expected the paid call to complete, got %+v", out)
	}
	if rec := store.record(IdentityKey("https://linkedin.com/in/jdoe")); rec == nil {
		t.Fatalf("cancelled caller's paid result must still be cached for others")
	}
}

// ─── Store failure modes ──────────────────────────────────────────────────────

func TestStoreReadFailureFailsLoudlyByDefault(t *testing.T) {
	store := newFakeStore()
	store.getErr = fmt.Errorf("%w: disk on fire", ErrStoreUnavailable)
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{})

	_, err := coord.ResolveEmailVerification(context.Background(), IdentityContext{}, "jane@acme.com")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected loud store failure, got %v", err)
	}
	if provider.callCount() != 0 {
		t.Fatalf("must not pay for a provider call when the cache cannot be read")
	}
}

func TestDegradedReadsTreatStoreFailureAsMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = fmt.Errorf("%w: disk on fire", ErrStoreUnavailable)
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{AllowDegradedReads: true})

	out, err := coord.ResolveEmailVerification(context.Background(), IdentityContext{}, "jane@acme.com")
	if err != nil {
		t.Fatalf("degraded resolve: %v", err)
	}
	if out.Kind != KindProviderSuccess {
		t.Fatalf("degraded read should fall through to the provider, got %+v", out)
	}
}

func TestPaidResultSurvivesWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.putErr = fmt.Errorf("%w: disk on fire", ErrStoreUnavailable)
	provider := &fakeProvider{res: testResult}
	coord := newTestCoordinator(store, provider, Config{})

	out, err := coord.ResolveLinkedIn(context.Background(), IdentityContext{}, "https://linkedin.com/in/jdoe")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// The credit is spent and nothing got cached, but the immediate caller
	// must still receive the paid result.
	if out.Kind != KindProviderSuccess || out.Result == nil || out.Result.Email != testResult.Email {
		t.Fatalf("paid result must reach the caller despite the write failure, got %+v", out)
	}
}

func TestEmptyProviderResultCountsAsNotFound(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{res: &Result{ProviderSource: "fake"}} // no email
	coord := newTestCoordinator(store, provider, Config{})

	out, err := coord.ResolveLinkedIn(context.Background(), IdentityContext{}, "https://linkedin.com/in/jdoe")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindProviderFailure || out.FailureReason != "not_found" {
		t.Fatalf("email-less success must be treated as not found, got %+v", out)
	}
	if store.record(IdentityKey("https://linkedin.com/in/jdoe")) != nil {
		t.Fatalf("email-less result must not be cached")
	}
}
