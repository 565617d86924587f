package relay

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the package logger used by the client side. Servers take
// their logger from ServerConfig.
func UseLogger(l slog.Logger) { log = l }
