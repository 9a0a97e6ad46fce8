package engine

import "github.com/rotisserie/eris"

// ErrInvalidConfig wraps a Config.Validate failure at Engine construction
// time.
var ErrInvalidConfig = eris.New("invalid config")

// ErrPopulationNotGenerated is returned by Tick when no population exists
// yet.
var ErrPopulationNotGenerated = eris.New("population not generated")

// ErrUnknownPlayer is returned when an accessor is asked about a
// PlayerID that was never minted by GeneratePopulation.
var ErrUnknownPlayer = eris.New("unknown player id")

// ErrEmptyPopulation is returned by Engine.GeneratePopulation when asked
// for a non-positive number of players.
var ErrEmptyPopulation = eris.New("population size must be positive")

func wrapConfig(err error) error {
	return eris.Wrap(err, ErrInvalidConfig.Error())
}
