// Package obslog wires graphdberr.InternalInvariant violations (the
// kind that should never happen in correct code — a parity mismatch
// between a rel table's forward and backward stores, a torn page read
// past WAL recovery) to Sentry, so they surface in an error-tracking
// dashboard instead of only a log line.
//
// It registers itself with graphdberr.RegisterReporter at Init time
// rather than graphdberr importing sentry-go directly, keeping the
// error-taxonomy package free of any particular reporting backend.
package obslog

import (
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/bobboyms/graphdb/pkg/graphdberr"
)

var initOnce sync.Once

// Options configures the Sentry client. An empty DSN disables reporting
// entirely — Init still registers the reporter hook, but it's a no-op,
// so call sites don't need an environment check of their own.
type Options struct {
	DSN         string
	Environment string
	Release     string
}

// Init configures the global Sentry client and registers graphdberr's
// reporter hook. Safe to call multiple times; only the first call takes
// effect.
func Init(opts Options) error {
	var initErr error
	initOnce.Do(func() {
		if opts.DSN != "" {
			initErr = sentry.Init(sentry.ClientOptions{
				Dsn:         opts.DSN,
				Environment: opts.Environment,
				Release:     opts.Release,
			})
			if initErr != nil {
				initErr = fmt.Errorf("obslog: sentry.Init: %w", initErr)
				return
			}
		}
		graphdberr.Debug = true
		graphdberr.RegisterReporter(report)
	})
	return initErr
}

// report is graphdberr's reporter hook. Only InternalInvariant errors
// are forwarded to Sentry; everything else (malformed input, runtime
// constraint violations the caller is expected to handle) is ordinary
// application error flow, not an incident.
func report(err error) {
	type kinder interface{ Kind() graphdberr.Kind }
	k, ok := err.(kinder)
	if !ok || k.Kind() != graphdberr.KindInternalInvariant {
		return
	}
	sentry.CaptureException(err)
}

// Flush blocks until pending events are sent or the timeout elapses,
// for use at process shutdown.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
