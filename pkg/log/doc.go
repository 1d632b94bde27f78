/*
Package log provides structured logging for the dataflow core using
zerolog. A single global Logger is configured once via Init; packages
derive component loggers with WithComponent and, where a log line is
about a specific node, with WithOID/WithUID.

Short writes, swallowed event-subscriber panics, and container exit
diagnostics all go through this package rather than fmt.Printf, so
they carry consistent fields and respect the configured level.
*/
package log
