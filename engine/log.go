package engine

import (
	"io"

	"github.com/rs/zerolog"
)

// newDefaultLogger returns a disabled zerolog.Logger; telemetry defaults
// off and callers opt in via WithLogger.
func newDefaultLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}
