// Package logging provides structured slog logging for StudyTutor with an
// optional size-rotated log file under ~/.studytutor/logs/.
//
// Serving MCP over stdio must never write logs to stdout or stderr, so
// Config.WriteToStderr is switched off in that mode.
package logging
