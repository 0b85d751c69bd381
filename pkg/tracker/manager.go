package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mbtalive/mbtalive/pkg/config"
	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// JourneySnapshot is the read-only view of one tracked journey handed to
// consumers
type JourneySnapshot struct {
	Name       string               `json:"name"`
	State      State                `json:"state"`
	Journey    config.JourneyConfig `json:"journey"`
	Generation *Generation          `json:"generation"`
}

// Manager owns one tracker goroutine per configured journey. Trackers share
// the client (and through it the cache service) but run independently - a
// slow cycle on one journey never stalls another.
type Manager struct {
	client          *mbta.Client
	refreshInterval time.Duration

	mu       sync.Mutex
	trackers map[string]*managedTracker
	wg       sync.WaitGroup
}

type managedTracker struct {
	tracker *Tracker
	cancel  context.CancelFunc
}

func NewManager(client *mbta.Client, refreshInterval time.Duration) *Manager {
	return &Manager{
		client:          client,
		refreshInterval: refreshInterval,
		trackers:        map[string]*managedTracker{},
	}
}

// Start sets up and launches a tracker for every configured journey. Any
// setup failure aborts the whole start and nothing is left running.
func (m *Manager) Start(ctx context.Context, journeys []config.JourneyConfig) error {
	for _, journeyConfig := range journeys {
		if err := m.launch(ctx, journeyConfig); err != nil {
			m.Stop()
			return fmt.Errorf("journey %q: %w", journeyConfig.Name, err)
		}
	}
	return nil
}

// Reconfigure replaces a journey's tracker. The old tracker's in-flight
// cycle is cancelled first so a stale cycle can never publish into the new
// configuration.
func (m *Manager) Reconfigure(ctx context.Context, journeyConfig config.JourneyConfig) error {
	m.mu.Lock()
	if existing, ok := m.trackers[journeyConfig.Name]; ok {
		existing.cancel()
		delete(m.trackers, journeyConfig.Name)
	}
	m.mu.Unlock()

	return m.launch(ctx, journeyConfig)
}

// Stop cancels every tracker and waits for their goroutines to exit
func (m *Manager) Stop() {
	m.mu.Lock()
	for name, managed := range m.trackers {
		managed.cancel()
		delete(m.trackers, name)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// Journey returns the snapshot for a single tracked journey
func (m *Manager) Journey(name string) (JourneySnapshot, bool) {
	m.mu.Lock()
	managed, ok := m.trackers[name]
	m.mu.Unlock()

	if !ok {
		return JourneySnapshot{}, false
	}
	return snapshot(managed.tracker), true
}

// Journeys returns snapshots for every tracked journey
func (m *Manager) Journeys() []JourneySnapshot {
	m.mu.Lock()
	trackers := make([]*Tracker, 0, len(m.trackers))
	for _, managed := range m.trackers {
		trackers = append(trackers, managed.tracker)
	}
	m.mu.Unlock()

	snapshots := make([]JourneySnapshot, 0, len(trackers))
	for _, t := range trackers {
		snapshots = append(snapshots, snapshot(t))
	}
	return snapshots
}

func (m *Manager) launch(ctx context.Context, journeyConfig config.JourneyConfig) error {
	t := New(journeyConfig.Name, journeyConfig, m.client, m.refreshInterval)

	if err := t.Setup(ctx); err != nil {
		log.Error().
			Err(err).
			Str("journey", journeyConfig.Name).
			Str("code", ValidationCode(err)).
			Msg("Journey setup failed")
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.trackers[journeyConfig.Name] = &managedTracker{tracker: t, cancel: cancel}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t.Run(runCtx)
	}()

	return nil
}

func snapshot(t *Tracker) JourneySnapshot {
	return JourneySnapshot{
		Name:       t.Name,
		State:      t.State(),
		Journey:    t.Journey,
		Generation: t.Generation(),
	}
}
