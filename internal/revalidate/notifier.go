package revalidate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sunroad-co/sunroad-backend/internal/profiles"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
	"github.com/sunroad-co/sunroad-backend/pkg/redis"
)

const handleCacheScope = "profile-handle"

type pageRevalidator interface {
	RevalidateHandle(ctx context.Context, handle string) error
}

// Notifier resolves an account's public handle and fires the cache
// invalidation. Failures are logged and swallowed: a stale public page heals
// on the next event or on its regular revalidation interval, so invalidation
// must never fail webhook processing.
type Notifier struct {
	client      pageRevalidator
	profileRepo profiles.Repository
	cache       redis.Cache
	cacheTTL    time.Duration
	log         *logger.Logger
}

type NotifierParams struct {
	Client      pageRevalidator
	ProfileRepo profiles.Repository
	Cache       redis.Cache
	CacheTTL    time.Duration
	Logger      *logger.Logger
}

func NewNotifier(params NotifierParams) (*Notifier, error) {
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "revalidate client required")
	}
	if params.ProfileRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Notifier{
		client:      params.Client,
		profileRepo: params.ProfileRepo,
		cache:       params.Cache,
		cacheTTL:    ttl,
		log:         params.Logger,
	}, nil
}

// NotifyAccount invalidates the public page for the account, if it has one.
func (n *Notifier) NotifyAccount(ctx context.Context, accountID uuid.UUID) {
	if accountID == uuid.Nil {
		return
	}
	ctx = n.log.WithAccountID(ctx, accountID.String())

	handle, err := n.resolveHandle(ctx, accountID)
	if err != nil {
		n.log.Warn(ctx, "cache invalidation skipped, handle lookup failed")
		return
	}
	if handle == "" {
		return
	}

	if err := n.client.RevalidateHandle(ctx, handle); err != nil {
		n.log.Error(ctx, "cache invalidation failed", err)
	}
}

// resolveHandle prefers the cached handle; handles change rarely and a short
// TTL bounds how long a rename serves the old page.
func (n *Notifier) resolveHandle(ctx context.Context, accountID uuid.UUID) (string, error) {
	var cacheKey string
	if n.cache != nil {
		cacheKey = n.cache.CacheKey(handleCacheScope, accountID.String())
		if cached, err := n.cache.Get(ctx, cacheKey); err == nil && cached != "" {
			return cached, nil
		} else if err != nil && !redis.IsNil(err) {
			n.log.Warn(ctx, "handle cache read failed, falling back to store")
		}
	}

	profile, err := n.profileRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return "", nil
	}

	if n.cache != nil && profile.Handle != "" {
		if err := n.cache.Set(ctx, cacheKey, profile.Handle, n.cacheTTL); err != nil {
			n.log.Warn(ctx, "handle cache write failed")
		}
	}
	return profile.Handle, nil
}
