/*
Package node implements the data node and container node state
machines at the core of the dataflow graph: status transitions,
producer/consumer/streaming-consumer wiring with the back-reference
protocol, lazy I/O acquisition, checksum and size tracking, reference
counting, and auto-completion.

Application nodes (which add inputs, outputs, and a separate execution
status on top of a data node) live in pkg/app; that package embeds
*DataNode rather than duplicating its state machine.

Wiring uses small capability interfaces (DropCompleter,
StreamingReceiver, InputRegistrar, ...) instead of a concrete consumer
type so that any node satisfying the right methods can participate,
following the "back-reference only if the peer declares support"
pattern used throughout the dataflow graph.
*/
package node
