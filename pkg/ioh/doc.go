/*
Package ioh is the I/O capability interface data nodes are
parameterized by: a closed set of backend variants (file, memory,
remote object, null, error) behind a single Handle interface, so that
pkg/node never type-switches on storage technology.

DataURLs are purely informational strings describing where a backend
physically lives (see DataURL on each constructor); nothing in this
package or pkg/node parses them back.
*/
package ioh
