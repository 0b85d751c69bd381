package apicache

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const defaultRequestsPerStatsReport = 1000

// Statistics tracks cache effectiveness and periodically reports it, so a
// long-running process leaves a trace of how hard it is hitting the MBTA
type Statistics struct {
	requests    atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	staleServes atomic.Int64
	dedups      atomic.Int64

	requestsPerReport int64
}

func newStatistics(requestsPerReport int) *Statistics {
	if requestsPerReport == 0 {
		requestsPerReport = defaultRequestsPerStatsReport
	}
	return &Statistics{requestsPerReport: int64(requestsPerReport)}
}

func (s *Statistics) request() {
	total := s.requests.Add(1)

	if s.requestsPerReport > 0 && total%s.requestsPerReport == 0 {
		log.Info().
			Int64("requests", total).
			Int64("hits", s.hits.Load()).
			Int64("misses", s.misses.Load()).
			Int64("stale", s.staleServes.Load()).
			Int64("deduplicated", s.dedups.Load()).
			Msg("API cache statistics")
	}
}

func (s *Statistics) hit()        { s.hits.Add(1) }
func (s *Statistics) miss()       { s.misses.Add(1) }
func (s *Statistics) staleServe() { s.staleServes.Add(1) }
func (s *Statistics) dedup()      { s.dedups.Add(1) }

// Snapshot returns the current counter values
func (s *Statistics) Snapshot() (requests, hits, misses, stale, dedups int64) {
	return s.requests.Load(), s.hits.Load(), s.misses.Load(), s.staleServes.Load(), s.dedups.Load()
}

// Stats exposes the service counters for tests and the version endpoint
func (s *Service) Stats() *Statistics {
	return s.stats
}
