/*
Package types holds the enumerations shared by every other package in
the dataflow core: node statuses, execution statuses, checksum and I/O
backend kinds. Nothing here depends on node, events, or runtime, which
keeps those packages free to import it without cycles.
*/
package types
