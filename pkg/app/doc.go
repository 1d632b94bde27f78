/*
Package app implements application nodes: data nodes that additionally
consume inputs and produce outputs by performing work, tracked through
a separate execution status.

ApplicationNode is the common base (inputs/streamingInputs/outputs
bookkeeping, the execStatus state machine, and the producerFinished
propagation to outputs). BarrierApplication adds the "wait for every
non-streaming input, then run once on a fresh goroutine" pattern.
ContainerProcessApplication is the one concrete barrier variant in this
package: it launches its command in a pkg/runtime sandbox, publishes
its container's address for interested peers, and waits for exit.

Because Go has no virtual dispatch through embedding, BarrierApplication
takes a Runner at construction time rather than calling an overridden
run() method; ContainerProcessApplication builds itself in two steps
(allocate, then wire a BarrierApplication whose Runner is itself) to
get the same effect.
*/
package app
