/*
Package events implements the per-node publish/subscribe hub used by
data nodes, application nodes, and container-process applications to
announce status transitions and attribute changes.

Unlike a cluster-wide event bus, delivery here is synchronous with
respect to the firing goroutine: Fire calls every matching subscriber
in registration order before returning, so a caller that fires a
status event and then reads downstream state is guaranteed to observe
the effects of every subscriber that ran synchronously. A subscriber
that must block (the barrier application's completion handler, for
example) is responsible for dispatching its own work to a fresh
goroutine; see pkg/app.

A subscriber callback that panics is recovered and logged; it never
prevents the remaining subscribers from receiving the event.
*/
package events
