package revalidate

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/internal/profiles"
	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
)

func TestNotifyAccountResolvesHandleFromStore(t *testing.T) {
	accountID := uuid.New()
	repo := &stubProfileRepo{profile: &models.Profile{AccountID: accountID, Handle: "sunroad-gallery"}}
	client := &stubRevalidator{}
	cache := newStubCache()
	notifier := newTestNotifier(t, client, repo, cache)

	notifier.NotifyAccount(context.Background(), accountID)

	if got := client.handles(); len(got) != 1 || got[0] != "sunroad-gallery" {
		t.Fatalf("expected one revalidation for the handle, got %v", got)
	}
	if cache.values[cache.CacheKey(handleCacheScope, accountID.String())] != "sunroad-gallery" {
		t.Fatal("expected handle cached after store lookup")
	}
}

func TestNotifyAccountUsesCachedHandle(t *testing.T) {
	accountID := uuid.New()
	repo := &stubProfileRepo{}
	client := &stubRevalidator{}
	cache := newStubCache()
	cache.values[cache.CacheKey(handleCacheScope, accountID.String())] = "cached-handle"
	notifier := newTestNotifier(t, client, repo, cache)

	notifier.NotifyAccount(context.Background(), accountID)

	if repo.finds != 0 {
		t.Fatalf("expected no store lookup on cache hit, got %d", repo.finds)
	}
	if got := client.handles(); len(got) != 1 || got[0] != "cached-handle" {
		t.Fatalf("expected cached handle revalidated, got %v", got)
	}
}

func TestNotifyAccountMissingProfileIsSilent(t *testing.T) {
	client := &stubRevalidator{}
	notifier := newTestNotifier(t, client, &stubProfileRepo{}, newStubCache())

	notifier.NotifyAccount(context.Background(), uuid.New())

	if got := client.handles(); len(got) != 0 {
		t.Fatalf("expected no revalidation without a profile, got %v", got)
	}
}

func TestNotifyAccountSwallowsFailures(t *testing.T) {
	accountID := uuid.New()
	repo := &stubProfileRepo{profile: &models.Profile{AccountID: accountID, Handle: "sunroad-gallery"}}
	client := &stubRevalidator{err: errors.New("endpoint down")}
	notifier := newTestNotifier(t, client, repo, newStubCache())

	// Must not panic or propagate; invalidation is best-effort.
	notifier.NotifyAccount(context.Background(), accountID)

	repoErr := &stubProfileRepo{findErr: errors.New("connection reset")}
	notifier = newTestNotifier(t, client, repoErr, newStubCache())
	notifier.NotifyAccount(context.Background(), accountID)
}

func newTestNotifier(t *testing.T, client pageRevalidator, repo profiles.Repository, cache *stubCache) *Notifier {
	t.Helper()
	notifier, err := NewNotifier(NotifierParams{
		Client:      client,
		ProfileRepo: repo,
		Cache:       cache,
		CacheTTL:    time.Minute,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	return notifier
}

type stubRevalidator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubRevalidator) RevalidateHandle(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, handle)
	return s.err
}

func (s *stubRevalidator) handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubProfileRepo struct {
	profile *models.Profile
	findErr error
	finds   int
}

func (s *stubProfileRepo) WithTx(tx *gorm.DB) profiles.Repository { return s }

func (s *stubProfileRepo) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.profile, nil
}

func (s *stubProfileRepo) UpdateTier(ctx context.Context, accountID uuid.UUID, tier enums.EntitlementTier, syncedAt time.Time) (bool, error) {
	return true, nil
}

type stubCache struct {
	values map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if value, ok := s.values[key]; ok {
		return value, nil
	}
	return "", nil
}

func (s *stubCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if str, ok := value.(string); ok {
		s.values[key] = str
	}
	return nil
}

func (s *stubCache) CacheKey(scope, id string) string {
	return "sr:cache:" + scope + ":" + id
}
