// Package runtime defines the explicit handle threaded through every call
// chain in place of package-level mutable singletons (config, pool,
// "initialized?" flags).
package runtime

import (
	"github.com/rs/zerolog"

	"stationsync/internal/config"
	"stationsync/internal/dbpool"
)

// Runtime bundles the resolved config, connection pool, and logger that
// every component needs. No component holds its own copy of any of these
// as a package global.
type Runtime struct {
	Config *config.Config
	Pool   *dbpool.Pool
	Logger zerolog.Logger
	RunID  string
}

// With returns a copy of the Runtime with its logger annotated for a
// specific component, leaving Config/Pool/RunID shared.
func (r *Runtime) With(component string) *Runtime {
	cp := *r
	cp.Logger = r.Logger.With().Str("component", component).Logger()
	return &cp
}
