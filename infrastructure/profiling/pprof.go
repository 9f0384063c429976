// Package profiling serves the runtime pprof endpoints on a loopback-only
// listener separate from the public API.
package profiling

import (
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
)

// DefaultPort is used when Config.Port is empty.
const DefaultPort = "6060"

const readHeaderTimeout = 5 * time.Second

// Config enables the pprof listener.
type Config struct {
	Enabled bool   `env:"ENABLE_PROFILING" yaml:"enabled"`
	Port    string `env:"PPROF_PORT"       yaml:"port"`
}

// Handler returns a mux exposing /debug/pprof/.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start serves Handler on localhost when enabled. The returned server is nil
// when profiling is off; callers shut it down with the rest of the process.
func Start(cfg Config, log infralogger.Logger) *http.Server {
	if !cfg.Enabled {
		return nil
	}
	port := cfg.Port
	if port == "" {
		port = DefaultPort
	}

	srv := &http.Server{
		Addr:              "localhost:" + port,
		Handler:           Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info("Starting pprof server", infralogger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", infralogger.Error(err))
		}
	}()
	return srv
}
