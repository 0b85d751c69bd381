package journey

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbtalive/mbtalive/pkg/mbta"
	"github.com/rs/zerolog/log"
)

// StopField identifies which configuration field a stop lookup was for, so
// validation failures can point at the right form field.
type StopField string

const (
	StopFieldDepart StopField = "depart_from"
	StopFieldArrive StopField = "arrive_at"
)

type StopError struct {
	Field StopField
	Name  string
}

func (e *StopError) Error() string {
	return fmt.Sprintf("journey: no stop matching %q for %s", e.Name, e.Field)
}

// ResolvedStop is a station matched from a user-provided name. ChildIDs
// holds the platform-level stop ids belonging to the station - schedule and
// prediction records reference those rather than the parent.
type ResolvedStop struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	ChildIDs []string `json:"child_ids"`

	// ChildPlatforms maps a platform stop id to its customer-facing
	// platform name, where the feed provides one
	ChildPlatforms map[string]string `json:"child_platforms,omitempty"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Platform returns the platform name for a stop id belonging to this station
func (s *ResolvedStop) Platform(stopID string) string {
	return s.ChildPlatforms[stopID]
}

// FilterIDs returns every stop id usable in an API filter for this station
func (s *ResolvedStop) FilterIDs() []string {
	return append([]string{s.ID}, s.ChildIDs...)
}

// Contains reports whether stopID refers to this station or one of its
// platforms
func (s *ResolvedStop) Contains(stopID string) bool {
	if stopID == s.ID {
		return true
	}
	for _, id := range s.ChildIDs {
		if id == stopID {
			return true
		}
	}
	return false
}

type Resolver struct {
	Client *mbta.Client
}

// Resolve matches a human-provided station name against the cached stop
// catalog. Exact normalized match first, then prefix, then substring.
func (r *Resolver) Resolve(ctx context.Context, name string, field StopField) (*ResolvedStop, error) {
	stops, _, err := r.Client.ListStops(ctx)
	if err != nil {
		return nil, err
	}

	wanted := normalizeStopName(name)
	if wanted == "" {
		return nil, &StopError{Field: field, Name: name}
	}

	// Parent stations and standalone stops are match candidates; platform
	// children only contribute their ids to whichever parent wins
	childIDs := map[string][]string{}
	childPlatforms := map[string]map[string]string{}
	var candidates []mbta.Stop
	for _, stop := range stops {
		if stop.ParentStation != "" {
			childIDs[stop.ParentStation] = append(childIDs[stop.ParentStation], stop.ID)
			if stop.PlatformName != "" {
				if childPlatforms[stop.ParentStation] == nil {
					childPlatforms[stop.ParentStation] = map[string]string{}
				}
				childPlatforms[stop.ParentStation][stop.ID] = stop.PlatformName
			}
			continue
		}
		candidates = append(candidates, stop)
	}

	match := findStop(candidates, wanted)
	if match == nil {
		return nil, &StopError{Field: field, Name: name}
	}

	log.Debug().
		Str("name", name).
		Str("stop", match.ID).
		Str("matched", match.Name).
		Msg("Resolved stop")

	return &ResolvedStop{
		ID:             match.ID,
		Name:           match.Name,
		ChildIDs:       childIDs[match.ID],
		ChildPlatforms: childPlatforms[match.ID],
		Latitude:       match.Latitude,
		Longitude:      match.Longitude,
	}, nil
}

func findStop(candidates []mbta.Stop, wanted string) *mbta.Stop {
	var prefix, substring *mbta.Stop

	for i := range candidates {
		got := normalizeStopName(candidates[i].Name)

		if got == wanted {
			return &candidates[i]
		}
		if prefix == nil && strings.HasPrefix(got, wanted) {
			prefix = &candidates[i]
		}
		if substring == nil && strings.Contains(got, wanted) {
			substring = &candidates[i]
		}
	}

	if prefix != nil {
		return prefix
	}
	return substring
}

func normalizeStopName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
