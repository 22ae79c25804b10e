// Package logging provides file-based structured logging with rotation for
// the freetext engine and its CLI.
//
// The engine itself logs through log/slog; this package configures the default
// logger with a rotating JSON file handler and an optional stderr mirror.
package logging
