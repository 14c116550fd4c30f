// Package logtrace sets up the process-wide zerolog logger and carries
// request ids through contexts for the ops listeners.
package logtrace

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger points the global logger at stderr with unix timestamps.
// Daemons log JSON lines; the supervisor owns formatting.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetDebugLevel lowers the global level to debug. The default level logs
// info and above.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// Component returns a child of the global logger tagged with a component
// name. Long-running loops use it so every line carries the loop identity.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
