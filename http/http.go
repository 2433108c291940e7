// Package http serves the admin surface of the destruction service.
package http

import (
	"context"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const pprofPath = "/debug/pprof"

// ShutdownTimeout is how long servers wait for active requests when the
// context passed to ListenAndServe is done.
const ShutdownTimeout = 5 * time.Second

// ListenAndServe runs the servers until ctx is done.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.Newf("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed, context.Canceled:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.Newf("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// Admin holds the destruction endpoints served next to the operational ones.
type Admin struct {
	Version string

	// Reports whether destructibles are loaded.
	Ready func() bool

	Stats     http.Handler
	Debris    http.Handler
	SmokeTest http.Handler
}

// NewAdminHandler returns the admin routes instrumented with request metrics.
// Stats and debris responses are compressed.
func NewAdminHandler(a Admin) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", HandleHealthCheck)
	mux.Handle("/ready", HandleReadyCheck(a.Ready))
	mux.Handle("/version", HandleVersion(a.Version))

	if a.Stats != nil {
		mux.Handle("/stats", Compress(a.Stats))
	}
	if a.Debris != nil {
		mux.Handle("/debris", Compress(a.Debris))
	}
	if a.SmokeTest != nil {
		mux.Handle("/smoke-test", a.SmokeTest)
	}

	mux.HandleFunc(pprofPath+"/", pprof.Index)
	mux.HandleFunc(pprofPath+"/cmdline", pprof.Cmdline)
	mux.HandleFunc(pprofPath+"/profile", pprof.Profile)
	mux.HandleFunc(pprofPath+"/symbol", pprof.Symbol)
	mux.HandleFunc(pprofPath+"/trace", pprof.Trace)

	return metrics.HTTPHandler(mux, MetricsPathFormatter)
}

// MetricsPathFormatter returns empty string on HTTP 301, 400, 404 or 405
// statusCode. Profiling paths are reported as a single path.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	if strings.HasPrefix(path, pprofPath) {
		return pprofPath
	}
	return path
}
