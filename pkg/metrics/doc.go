/*
Package metrics registers the Prometheus collectors dflow exposes:
data node and application node counts by status, event throughput,
barrier execution outcomes, and container-process launch/run metrics.
Handler returns the promhttp handler a host binary mounts under
/metrics; Timer is a small helper for observing a histogram over the
lifetime of an operation.

Collectors are package-level vars registered in init() rather than
built per-instance, matching how a single process hosts one dataflow
graph manager.
*/
package metrics
