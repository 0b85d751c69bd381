package tracker

import (
	"errors"

	"github.com/mbtalive/mbtalive/pkg/config"
	"github.com/mbtalive/mbtalive/pkg/journey"
	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// ValidationCode maps a setup failure onto the stable error name the
// configuration surface reports to the user
func ValidationCode(err error) string {
	var stopErr *journey.StopError
	switch {
	case errors.As(err, &stopErr):
		if stopErr.Field == journey.StopFieldDepart {
			return "stop_not_found_depart_from"
		}
		return "stop_not_found_arrive_at"
	case errors.Is(err, ErrTrainNotFound):
		return "train_not_found"
	case errors.Is(err, mbta.ErrAuthentication):
		return "api_key_invalid"
	case errors.Is(err, journey.ErrNoDirectTrip):
		return "no_direct_trip"
	case errors.Is(err, config.ErrInvalidInput):
		return "invalid_input"
	default:
		return "api_key_error"
	}
}
