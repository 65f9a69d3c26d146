package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that drops all output. Use it to
// keep test logs quiet; components take *slog.Logger in constructors.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
