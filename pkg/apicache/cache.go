package apicache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrStaleDataExceeded means the upstream failed and the only cached payload
// was older than the staleness ceiling. Consumers should show "no data"
// rather than the stale payload.
var ErrStaleDataExceeded = errors.New("apicache: no sufficiently fresh data")

const (
	DefaultStalenessFactor = 10

	// Never let the ceiling fall below this, even for very short TTLs -
	// a prediction endpoint with a 15s TTL is still worth serving for a
	// couple of minutes during an upstream blip
	minStalenessCeiling = 2 * time.Minute

	storeCleanupInterval = 10 * time.Minute
)

// Entry is a single cached upstream payload
type Entry struct {
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (e Entry) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Entry) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// Result is what a Fetch call hands back. Stale marks a payload served from
// cache because the upstream was unreachable.
type Result struct {
	Payload   []byte
	FetchedAt time.Time
	Stale     bool
}

type FetchFunc func(ctx context.Context) ([]byte, error)

type temporary interface {
	Temporary() bool
}

// Service is the layered cache every upstream request goes through. It is
// constructed once at process start and shared by all trackers, so identical
// concurrent requests from different journeys collapse into one upstream call.
type Service struct {
	entries *cache.Cache[Entry]
	group   singleflight.Group

	stalenessFactor int
	now             func() time.Time

	stats *Statistics
}

type Options struct {
	// StalenessFactor multiplies an endpoint TTL into its staleness ceiling.
	// Zero means DefaultStalenessFactor.
	StalenessFactor int

	// Now substitutes the clock, for tests
	Now func() time.Time

	// RequestsPerStatsReport controls how often the hit/miss counters are
	// logged. Zero means the default, negative disables reporting.
	RequestsPerStatsReport int
}

func NewService(opts Options) *Service {
	if opts.StalenessFactor == 0 {
		opts.StalenessFactor = DefaultStalenessFactor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	goCacheClient := gocache.New(gocache.NoExpiration, storeCleanupInterval)
	goCacheStore := gocache_store.NewGoCache(goCacheClient)

	return &Service{
		entries:         cache.New[Entry](goCacheStore),
		stalenessFactor: opts.StalenessFactor,
		now:             opts.Now,
		stats:           newStatistics(opts.RequestsPerStatsReport),
	}
}

// Fetch returns the payload for (endpoint, params), going upstream only when
// the cached copy is older than ttl. Concurrent calls for the same key share
// a single upstream request. On a transient upstream failure the last cached
// payload is served, marked stale, as long as it is younger than the
// staleness ceiling.
func (s *Service) Fetch(ctx context.Context, endpoint string, params url.Values, ttl time.Duration, upstream FetchFunc) (Result, error) {
	key := cacheKey(endpoint, params)
	s.stats.request()

	if entry, err := s.entries.Get(ctx, key); err == nil {
		if s.now().Sub(entry.FetchedAt) < ttl {
			s.stats.hit()
			return Result{Payload: entry.Payload, FetchedAt: entry.FetchedAt}, nil
		}
	}

	value, err, shared := s.group.Do(key, func() (interface{}, error) {
		// The closure runs under the first caller's context but its result is
		// shared by everyone joined on the key, so detach from that caller's
		// cancellation. The HTTP client's own timeout still bounds the fetch.
		ctx := context.WithoutCancel(ctx)

		// Another caller may have refreshed the entry while we were queued
		if entry, err := s.entries.Get(ctx, key); err == nil && s.now().Sub(entry.FetchedAt) < ttl {
			return Result{Payload: entry.Payload, FetchedAt: entry.FetchedAt}, nil
		}

		payload, err := upstream(ctx)
		if err != nil {
			return Result{}, err
		}

		entry := Entry{Payload: payload, FetchedAt: s.now()}
		if setErr := s.entries.Set(ctx, key, entry, store.WithExpiration(s.ceiling(ttl))); setErr != nil {
			log.Warn().Err(setErr).Str("endpoint", endpoint).Msg("Failed to store cache entry")
		}

		s.stats.miss()
		return Result{Payload: payload, FetchedAt: entry.FetchedAt}, nil
	})

	if shared {
		s.stats.dedup()
	}

	if err == nil {
		return value.(Result), nil
	}

	if !isTemporary(err) {
		return Result{}, err
	}

	// Upstream is unreachable or rate limited - fall back onto whatever we
	// still hold, as long as it hasnt aged past the ceiling
	if entry, getErr := s.entries.Get(ctx, key); getErr == nil {
		if s.now().Sub(entry.FetchedAt) <= s.ceiling(ttl) {
			s.stats.staleServe()
			log.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Str("age", s.now().Sub(entry.FetchedAt).String()).
				Msg("Upstream failed, serving stale cache entry")
			return Result{Payload: entry.Payload, FetchedAt: entry.FetchedAt, Stale: true}, nil
		}
		return Result{}, errors.Join(ErrStaleDataExceeded, err)
	}

	return Result{}, err
}

// Clear evicts every cached entry. Used on reconfiguration and in tests.
func (s *Service) Clear(ctx context.Context) {
	if err := s.entries.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to clear cache")
	}
}

func (s *Service) ceiling(ttl time.Duration) time.Duration {
	ceiling := ttl * time.Duration(s.stalenessFactor)
	if ceiling < minStalenessCeiling {
		ceiling = minStalenessCeiling
	}
	return ceiling
}

func cacheKey(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

func isTemporary(err error) bool {
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}
