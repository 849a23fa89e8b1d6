// Package logging builds the slog loggers used by the realtime-gateway binaries.
//
// Text output goes through a colorized handler (github.com/fatih/color);
// logging.format: json selects slog's JSON handler instead. Levels are
// debug, info, warn, and error; anything else means info.
package logging
