// Package logging configures structured slog output for amanidx.
//
// Records go to stderr (text when attached to a terminal, JSON otherwise) and,
// when a file path is configured, to a size-rotated JSON log file.
// Job-level records carry the requester and index they belong to; see ForJob.
package logging
