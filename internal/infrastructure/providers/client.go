package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/infrastructure/cache"
	"github.com/sawpanic/cryptolens/internal/infrastructure/httpclient"
)

// fetcher is the cache, guard and HTTP pool chain shared by every provider.
type fetcher struct {
	name  string
	pool  *httpclient.ClientPool
	guard *Guard
	cache cache.Cache
	ttl   time.Duration
}

// get returns the body for rawURL, serving and filling the cache when set.
// Cache faults are logged and bypassed.
func (f *fetcher) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	key := f.name + ":" + rawURL + "?" + params.Encode()
	if f.cache != nil && f.ttl > 0 {
		body, ok, err := f.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("provider", f.name).Msg("Cache read failed")
		} else if ok {
			return body, nil
		}
	}

	// Client errors such as an unknown coin id do not count against the breaker.
	var clientErr error
	body, err := f.guard.Do(ctx, func() ([]byte, error) {
		b, err := f.pool.Get(ctx, rawURL, params)
		if httpclient.IsClientError(err) {
			clientErr = err
			return nil, nil
		}
		return b, err
	})
	if clientErr != nil {
		return nil, clientErr
	}
	if err != nil {
		return nil, err
	}

	if f.cache != nil && f.ttl > 0 {
		if err := f.cache.Set(ctx, key, body, f.ttl); err != nil {
			log.Warn().Err(err).Str("provider", f.name).Msg("Cache write failed")
		}
	}
	return body, nil
}

// unavailable tags a provider failure so callers can degrade on it.
func unavailable(provider, what string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", provider, what, market.ErrDependencyUnavailable, err)
}
