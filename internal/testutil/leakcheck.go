// Package testutil provides testing utilities for the session packages.
package testutil

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyNoLeaks should be deferred at the start of tests that spawn goroutines.
// It verifies that no goroutines were leaked during the test.
func VerifyNoLeaks(t *testing.T, opts ...goleak.Option) {
	t.Helper()
	goleak.VerifyNone(t, append(opts, IgnoreSQLiteGoroutines()...)...)
}

// IgnoreSQLiteGoroutines returns goleak options for goroutines owned by
// database/sql connection pools that outlive a single test.
func IgnoreSQLiteGoroutines() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	}
}
