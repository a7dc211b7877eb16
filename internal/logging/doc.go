// Package logging configures log/slog for indexbot.
//
// Without --debug, records at the configured level go to stderr: a text
// handler on a terminal, JSON otherwise. With --debug (or logging.file set),
// JSON records are also written to a size-rotated file under ~/.indexbot/logs/.
package logging
