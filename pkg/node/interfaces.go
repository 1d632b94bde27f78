package node

// Identity is the minimal capability every node in the graph exposes.
type Identity interface {
	OID() string
	UID() string
}

// DropCompleter is implemented by anything that can be registered as a
// normal consumer of a data node: it is notified once, after the
// producer reaches COMPLETED (when the producer's ExecutionMode is
// AUTO) or when a streaming producer's stream ends.
type DropCompleter interface {
	Identity
	DropCompleted(producerUID string)
}

// StreamingReceiver is implemented by anything that can be registered
// as a streaming consumer: in addition to DropCompleted (fired when
// the stream ends), it receives each chunk as it is written.
type StreamingReceiver interface {
	DropCompleter
	DataWritten(producerUID string, data []byte)
}

// InputRegistrar is the optional back-reference a consumer exposes so
// AddConsumer can register the producer as one of the consumer's
// inputs. Implementations must make AddInput idempotent.
type InputRegistrar interface {
	AddInput(d Identity)
}

// StreamingInputRegistrar is InputRegistrar's streaming counterpart.
type StreamingInputRegistrar interface {
	AddStreamingInput(d Identity)
}

// OutputRegistrar is the optional back-reference a producer exposes so
// AddProducer can register the data node as one of the producer's
// outputs.
type OutputRegistrar interface {
	AddOutput(d Identity) error
}

// interestHandler is implemented by nodes that want to be told about
// sibling nodes as the graph is wired (the container-process
// application is the only core implementer: it inspects its command
// line for %containerIp[oid]% references to other container
// applications). HandleInterest is a no-op default on DataNode.
type interestHandler interface {
	HandleInterest(other Identity)
}
