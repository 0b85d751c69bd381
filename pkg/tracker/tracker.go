package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mbtalive/mbtalive/pkg/apicache"
	"github.com/mbtalive/mbtalive/pkg/config"
	"github.com/mbtalive/mbtalive/pkg/journey"
	"github.com/mbtalive/mbtalive/pkg/mbta"
)

type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	// StateDegraded - last cycle was served from stale cache or failed;
	// the previous generation is still published
	StateDegraded State = "degraded"
	// StateHalted - fatal error (rejected API key, vanished train); no
	// further polling until reconfigured
	StateHalted State = "halted"
)

const (
	// Schedule lookahead starts small and doubles until enough candidate
	// trips are found, capped to bound API cost
	initialLookahead = 1 * time.Hour
	maxLookahead     = 12 * time.Hour

	// Predictions older than this fall back to the schedule - an honest
	// "scheduled" label beats a misleading stale estimate
	predictionStalenessWindow = 90 * time.Second

	// The schedule window reaches slightly back so trips that have departed
	// but not yet arrived stay visible until arrival
	enRouteLookback = 30 * time.Minute

	// A generation kept through failed cycles is replaced by placeholders
	// once it gets this old, even when the cache layer has nothing to say
	maxGenerationAge = 10 * time.Minute

	trainLookaheadDays = 7
)

// Tracker follows one configured journey. Each refresh cycle rebuilds the
// full generation of tracked trips from scratch and swaps it in atomically.
type Tracker struct {
	Name            string
	Journey         config.JourneyConfig
	RefreshInterval time.Duration

	client *mbta.Client
	now    func() time.Time

	depart  *journey.ResolvedStop
	arrive  *journey.ResolvedStop
	pattern *journey.Pattern

	busy       sync.Mutex
	state      atomic.Value
	generation atomic.Pointer[Generation]
}

func New(name string, journeyConfig config.JourneyConfig, client *mbta.Client, refreshInterval time.Duration) *Tracker {
	t := &Tracker{
		Name:            name,
		Journey:         journeyConfig,
		RefreshInterval: refreshInterval,

		client: client,
		now:    time.Now,
	}
	t.state.Store(StateInitializing)

	return t
}

// Setup resolves the configured stops and, for trip-basis journeys, discovers
// the fastest direct pattern. Run once per configuration, again only on
// reconfiguration. Errors abort creation and map onto the named validation
// failures.
func (t *Tracker) Setup(ctx context.Context) error {
	resolver := &journey.Resolver{Client: t.client}

	depart, err := resolver.Resolve(ctx, t.Journey.DepartFrom, journey.StopFieldDepart)
	if err != nil {
		return err
	}
	arrive, err := resolver.Resolve(ctx, t.Journey.ArriveAt, journey.StopFieldArrive)
	if err != nil {
		return err
	}
	t.depart, t.arrive = depart, arrive

	if t.trainBasis() {
		// Validate the train number has a scheduled instance coming up
		if _, _, _, err := t.findTrainTrip(ctx); err != nil {
			return err
		}
		return nil
	}

	discoverer := &journey.Discoverer{Client: t.client}
	pattern, err := discoverer.Discover(ctx, depart, arrive)
	if err != nil {
		return err
	}
	t.pattern = pattern

	return nil
}

func (t *Tracker) trainBasis() bool {
	return t.Journey.Train != ""
}

func (t *Tracker) State() State {
	return t.state.Load().(State)
}

// Generation returns the current published generation, nil before the first
// successful cycle
func (t *Tracker) Generation() *Generation {
	return t.generation.Load()
}

// Run drives the refresh cycles until ctx is cancelled. A cycle still
// running when the next tick arrives causes that tick to be skipped, never
// queued.
func (t *Tracker) Run(ctx context.Context) {
	event := log.Info().
		Str("journey", t.Name).
		Str("depart", t.depart.ID).
		Str("arrive", t.arrive.ID).
		Dur("refresh", t.RefreshInterval)
	if t.trainBasis() {
		event = event.Str("train", t.Journey.Train)
	} else {
		event = event.Str("route", t.pattern.Route.ID)
	}
	event.Msg("Registered journey tracker")

	t.refreshOnce(ctx)

	ticker := time.NewTicker(t.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refreshOnce(ctx)
		}
	}
}

func (t *Tracker) refreshOnce(ctx context.Context) {
	if !t.busy.TryLock() {
		log.Debug().Str("journey", t.Name).Msg("Previous cycle still running, skipping tick")
		return
	}
	defer t.busy.Unlock()

	if t.State() == StateHalted {
		return
	}

	entities, stale, err := t.refresh(ctx)

	// A cancelled cycle publishes nothing
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, mbta.ErrAuthentication):
			log.Error().Err(err).Str("journey", t.Name).Msg("API key rejected, halting tracker")
			t.setState(StateHalted)
		case errors.Is(err, ErrTrainNotFound):
			log.Error().Err(err).Str("journey", t.Name).Msg("Train no longer scheduled, halting tracker")
			t.setState(StateHalted)
		case errors.Is(err, apicache.ErrStaleDataExceeded):
			// Cached data aged past the ceiling - publish an explicit
			// "no data" generation instead of misleading stale values
			t.publish(t.paddedPlaceholders(), true)
			t.setState(StateDegraded)
		default:
			log.Warn().Err(err).Str("journey", t.Name).Msg("Refresh cycle failed, keeping last generation")
			if gen := t.generation.Load(); gen != nil && t.now().Sub(gen.UpdatedAt) > maxGenerationAge {
				t.publish(t.paddedPlaceholders(), true)
			}
			t.setState(StateDegraded)
		}
		return
	}

	t.publish(entities, stale)
	if stale {
		t.setState(StateDegraded)
	} else {
		t.setState(StateActive)
	}
}

func (t *Tracker) refresh(ctx context.Context) ([]TrackedEntity, bool, error) {
	if t.trainBasis() {
		return t.refreshTrain(ctx)
	}
	return t.refreshTrips(ctx)
}

// refreshTrips fetches upcoming departures for the discovered pattern. Whole
// service days are fetched under time-stable cache keys; the lookahead window
// is applied locally and widened until enough boardable candidates are found.
func (t *Tracker) refreshTrips(ctx context.Context) ([]TrackedEntity, bool, error) {
	now := t.now()
	windowStart := now.Add(-enRouteLookback)
	stopIDs := append(t.depart.FilterIDs(), t.arrive.FilterIDs()...)

	dates := []time.Time{windowStart}
	if end := now.Add(maxLookahead); end.YearDay() != windowStart.YearDay() {
		dates = append(dates, end)
	}

	var schedules []mbta.Schedule
	anyStale := false
	for _, date := range dates {
		batch, stale, err := t.client.Schedules(ctx, mbta.SchedulesQuery{
			RouteID: t.pattern.Route.ID,
			StopIDs: stopIDs,
			Date:    date.Format("2006-01-02"),
		})
		if err != nil {
			return nil, false, err
		}
		anyStale = anyStale || stale
		schedules = append(schedules, batch...)
	}

	legs := buildLegs(schedules, t.depart, t.arrive)

	var window []tripLeg
	for lookahead := initialLookahead; ; lookahead *= 2 {
		window = legsInWindow(legs, windowStart, now.Add(lookahead))
		if upcomingCount(window, now) >= t.Journey.MaxTrips || lookahead >= maxLookahead {
			break
		}
	}

	return t.assemble(ctx, window, t.pattern.Route, now, anyStale)
}

func (t *Tracker) publish(entities []TrackedEntity, stale bool) {
	t.generation.Store(&Generation{
		Entities:  entities,
		UpdatedAt: t.now(),
		Stale:     stale,
	})
}

func (t *Tracker) paddedPlaceholders() []TrackedEntity {
	entities := make([]TrackedEntity, 0, t.Journey.MaxTrips)
	for rank := 0; rank < t.Journey.MaxTrips; rank++ {
		entities = append(entities, placeholderEntity(rank))
	}
	return entities
}

func (t *Tracker) setState(state State) {
	previous := t.state.Swap(state)
	if previous == state {
		return
	}

	event := log.Info()
	if state == StateDegraded || state == StateHalted {
		event = log.Warn()
	}
	event.
		Str("journey", t.Name).
		Str("from", string(previous.(State))).
		Str("to", string(state)).
		Msg("Tracker state changed")
}
