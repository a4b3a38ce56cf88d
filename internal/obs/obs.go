// Package obs wires up the structured logger shared across the sync core.
package obs

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger writing structured, leveled output to w. Components
// attach context via With() and structured fields rather than string
// concatenation.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default is a ready-to-use logger at info level for components that don't
// need a custom sink (tests construct their own via New).
var Default = New(os.Stderr, zerolog.InfoLevel)
