package node

import (
	"crypto/rand"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sync"

	"github.com/cuemby/dflow/pkg/events"
	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/log"
	"github.com/cuemby/dflow/pkg/metrics"
	"github.com/cuemby/dflow/pkg/types"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Options configures a DataNode at construction time.
type Options struct {
	Phase          types.Phase
	ExecutionMode  types.ExecutionMode
	Location       string
	Node           string
	ExpirationDate int64
	ExpectedSize   int64
	Precious       *bool // nil defaults to true
}

// DataNode is a unit of data with a lifecycle and an I/O capability.
// Two DataNodes may share an OID to represent the same logical datum
// held in different storage; UID always identifies one instance.
type DataNode struct {
	oid, uid string
	handle   Handle

	broadcaster *events.Broadcaster

	statusMu sync.Mutex
	status   types.DataStatus

	phase          types.Phase
	executionMode  types.ExecutionMode
	location, node string
	expirationDate int64
	expectedSize   int64
	precious       bool

	metaMu       sync.Mutex
	checksum     uint32
	checksumType types.ChecksumType
	size         int64
	wrote        bool
	externalMetaSet bool

	writeMu    sync.Mutex
	writerOpen bool

	refMu    sync.Mutex
	refCount int

	wiringMu            sync.Mutex
	consumerOrder       []string
	consumers           map[string]DropCompleter
	consumerSubs        map[string]any
	streamingOrder      []string
	streamingConsumers  map[string]StreamingReceiver
	producerOrder       []string
	producers           map[string]Identity
	parent              *ContainerNode

	finishedMu        sync.Mutex
	finishedProducers map[string]bool

	contentMu sync.Mutex
	content   []byte
	loaded    bool

	descMu      sync.Mutex
	descOffsets map[int64]*int
}

// Handle is the set of ioh.Handle methods a DataNode uses, declared
// here as an interface so a DataNode can be built over any value that
// has them. pkg/ioh.Handle satisfies it.
type Handle interface {
	Backend() types.IOBackend
	Open(mode types.OpenMode) error
	Read(n int) ([]byte, error)
	Write(p []byte) (int, error)
	Close() error
	Exists() (bool, error)
	Delete() error
	DataURL() string
}

// New constructs a DataNode backed by handle. Construction always
// succeeds; the returned node starts in INITIALIZED.
func New(oid, uid string, handle Handle, opts Options) *DataNode {
	if opts.Node == "" {
		opts.Node = types.LoopbackNode
	}
	precious := true
	if opts.Precious != nil {
		precious = *opts.Precious
	}
	expiration := opts.ExpirationDate
	if expiration == 0 {
		expiration = types.NoExpiration
	}
	d := &DataNode{
		oid:               oid,
		uid:               uid,
		handle:            handle,
		broadcaster:       events.NewBroadcaster(),
		status:            types.StatusInitialized,
		phase:             opts.Phase,
		executionMode:     opts.ExecutionMode,
		location:          opts.Location,
		node:              opts.Node,
		expirationDate:    expiration,
		expectedSize:      opts.ExpectedSize,
		precious:          precious,
		consumers:         make(map[string]DropCompleter),
		consumerSubs:      make(map[string]any),
		streamingConsumers: make(map[string]StreamingReceiver),
		producers:         make(map[string]Identity),
		finishedProducers: make(map[string]bool),
		descOffsets:       make(map[int64]*int),
	}
	metrics.DataNodesTotal.WithLabelValues(types.StatusInitialized.String()).Inc()
	return d
}

func (d *DataNode) OID() string { return d.oid }
func (d *DataNode) UID() string { return d.uid }

// Status returns the current status under lock.
func (d *DataNode) Status() types.DataStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	return d.status
}

func (d *DataNode) setStatus(s types.DataStatus) {
	d.statusMu.Lock()
	prev := d.status
	d.status = s
	d.statusMu.Unlock()
	if prev != s {
		metrics.DataNodesTotal.WithLabelValues(prev.String()).Dec()
		metrics.DataNodesTotal.WithLabelValues(s.String()).Inc()
	}
	d.broadcaster.Fire(d.oid, d.uid, events.KindStatus, map[string]any{"status": s})
}

// Broadcaster exposes this node's event hub so callers can subscribe
// to status or attribute events.
func (d *DataNode) Broadcaster() *events.Broadcaster { return d.broadcaster }

func (d *DataNode) Phase() types.Phase                 { return d.phase }
func (d *DataNode) SetPhase(p types.Phase)              { d.phase = p }
func (d *DataNode) ExecutionMode() types.ExecutionMode  { return d.executionMode }
func (d *DataNode) Precious() bool                      { return d.precious }

// ExpirationDate returns the absolute Unix timestamp after which this
// node may be reclaimed, or types.NoExpiration. ContainerNode
// overrides this with the max over its children.
func (d *DataNode) ExpirationDate() int64 { return d.expirationDate }

// Size returns the number of bytes written so far.
func (d *DataNode) Size() int64 {
	d.metaMu.Lock()
	defer d.metaMu.Unlock()
	return d.size
}

// Checksum returns the running checksum and its algorithm.
func (d *DataNode) Checksum() (uint32, types.ChecksumType) {
	d.metaMu.Lock()
	defer d.metaMu.Unlock()
	return d.checksum, d.checksumType
}

// SetChecksumAndSize assigns checksum/size for data written
// out-of-band. It is write-once and only legal once status has
// reached COMPLETED.
func (d *DataNode) SetChecksumAndSize(checksum uint32, checksumType types.ChecksumType, size int64) error {
	if d.Status() < types.StatusCompleted {
		return &ferrors.InvalidState{UID: d.uid, Op: "set external checksum/size", Current: d.Status().String()}
	}
	d.metaMu.Lock()
	defer d.metaMu.Unlock()
	if d.wrote || d.externalMetaSet {
		return &ferrors.InvalidState{UID: d.uid, Op: "set external checksum/size twice", Current: d.Status().String()}
	}
	d.checksum = checksum
	d.checksumType = checksumType
	d.size = size
	d.externalMetaSet = true
	return nil
}

// Write appends data to the node. It lazily opens the writer on first
// call, updates size and the running checksum using only the bytes
// actually persisted, fans out to streaming consumers, and advances
// status (to WRITING, or to COMPLETED if ExpectedSize is reached).
func (d *DataNode) Write(data []byte) (int, error) {
	status := d.Status()
	if status != types.StatusInitialized && status != types.StatusWriting {
		return 0, &ferrors.InvalidState{UID: d.uid, Op: "write", Current: status.String()}
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if !d.writerOpen {
		if err := d.handle.Open(types.OpenWrite); err != nil {
			return 0, &ferrors.IOError{Op: "write-open", Err: err}
		}
		d.writerOpen = true
	}

	n, err := d.handle.Write(data)
	if err != nil {
		return n, &ferrors.IOError{Op: "write", Err: err}
	}
	if n < len(data) {
		log.WithUID(d.uid).Warn().
			Int("requested", len(data)).Int("persisted", n).
			Msg("short write")
	}
	persisted := data[:n]

	d.metaMu.Lock()
	d.wrote = true
	d.checksum = crc32.Update(d.checksum, crc32cTable, persisted)
	d.checksumType = types.ChecksumCRC32C
	d.size += int64(n)
	size := d.size
	expected := d.expectedSize
	d.metaMu.Unlock()

	metrics.BytesWrittenTotal.Add(float64(len(persisted)))

	d.notifyStreamingConsumers(persisted)

	if expected > 0 && size >= expected {
		if size > expected {
			log.WithUID(d.uid).Warn().
				Int64("expected", expected).Int64("actual", size).
				Msg("wrote past expectedSize")
		}
		if err := d.setCompletedLocked(); err != nil {
			return n, err
		}
	} else {
		d.setStatus(types.StatusWriting)
	}
	return n, nil
}

func (d *DataNode) notifyStreamingConsumers(chunk []byte) {
	d.wiringMu.Lock()
	order := append([]string(nil), d.streamingOrder...)
	receivers := make([]StreamingReceiver, 0, len(order))
	for _, uid := range order {
		receivers = append(receivers, d.streamingConsumers[uid])
	}
	d.wiringMu.Unlock()

	for _, r := range receivers {
		r.DataWritten(d.uid, chunk)
	}
}

// SetCompleted closes the writer if one is open and transitions to
// COMPLETED, notifying streaming consumers that the stream has ended.
func (d *DataNode) SetCompleted() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.setCompletedLocked()
}

// setCompletedLocked assumes writeMu is already held by the caller
// (Write calls it directly to avoid re-entrant locking).
func (d *DataNode) setCompletedLocked() error {
	status := d.Status()
	if status != types.StatusInitialized && status != types.StatusWriting {
		return &ferrors.InvalidState{UID: d.uid, Op: "setCompleted", Current: status.String()}
	}
	if d.writerOpen {
		if err := d.handle.Close(); err != nil {
			log.WithUID(d.uid).Warn().Err(err).Msg("failed to close writer on completion")
		}
		d.writerOpen = false
	}
	d.setStatus(types.StatusCompleted)

	d.wiringMu.Lock()
	order := append([]string(nil), d.streamingOrder...)
	receivers := make([]StreamingReceiver, 0, len(order))
	for _, uid := range order {
		receivers = append(receivers, d.streamingConsumers[uid])
	}
	d.wiringMu.Unlock()
	for _, r := range receivers {
		r.DropCompleted(d.uid)
	}
	return nil
}

// Delete invokes the backing store's delete and moves this node to
// the terminal DELETED status.
func (d *DataNode) Delete() error {
	if err := d.handle.Delete(); err != nil {
		return &ferrors.IOError{Op: "delete", Err: err}
	}
	d.setStatus(types.StatusDeleted)
	return nil
}

// Exists reports whether the backing store currently holds data.
func (d *DataNode) Exists() (bool, error) {
	ok, err := d.handle.Exists()
	if err != nil {
		return false, &ferrors.IOError{Op: "exists", Err: err}
	}
	return ok, nil
}

// AddConsumer idempotently registers c as a normal consumer. If c
// implements InputRegistrar, c.AddInput(d) is invoked so the
// back-reference is symmetric. If ExecutionMode is AUTO, a status
// subscription is installed so c.DropCompleted is called once this
// node reaches COMPLETED.
func (d *DataNode) AddConsumer(c DropCompleter) error {
	d.wiringMu.Lock()
	if _, isStreaming := d.streamingConsumers[c.UID()]; isStreaming {
		d.wiringMu.Unlock()
		return &ferrors.WiringError{Reason: "node is already a streaming consumer of this producer"}
	}
	if _, already := d.consumers[c.UID()]; already {
		d.wiringMu.Unlock()
		return nil
	}
	d.consumers[c.UID()] = c
	d.consumerOrder = append(d.consumerOrder, c.UID())
	if d.executionMode == types.ExecutionModeAuto {
		h := d.broadcaster.Subscribe(events.KindStatus, func(e events.Event) {
			if s, ok := e.Payload["status"].(types.DataStatus); ok && s == types.StatusCompleted {
				c.DropCompleted(d.uid)
			}
		})
		d.consumerSubs[c.UID()] = h
	}
	d.wiringMu.Unlock()

	if registrar, ok := c.(InputRegistrar); ok {
		registrar.AddInput(d)
	}
	return nil
}

// AddStreamingConsumer is AddConsumer's streaming counterpart: c
// receives DataWritten as bytes are written and DropCompleted when
// the stream ends, regardless of ExecutionMode.
func (d *DataNode) AddStreamingConsumer(c StreamingReceiver) error {
	d.wiringMu.Lock()
	if _, isNormal := d.consumers[c.UID()]; isNormal {
		d.wiringMu.Unlock()
		return &ferrors.WiringError{Reason: "node is already a normal consumer of this producer"}
	}
	if _, already := d.streamingConsumers[c.UID()]; already {
		d.wiringMu.Unlock()
		return nil
	}
	d.streamingConsumers[c.UID()] = c
	d.streamingOrder = append(d.streamingOrder, c.UID())
	d.wiringMu.Unlock()

	if registrar, ok := c.(StreamingInputRegistrar); ok {
		registrar.AddStreamingInput(d)
	}
	return nil
}

// AddProducer idempotently registers p as a producer of this node. If
// p implements OutputRegistrar, p.AddOutput(d) is invoked.
func (d *DataNode) AddProducer(p Identity) error {
	d.wiringMu.Lock()
	if _, already := d.producers[p.UID()]; already {
		d.wiringMu.Unlock()
		return nil
	}
	d.producers[p.UID()] = p
	d.producerOrder = append(d.producerOrder, p.UID())
	d.wiringMu.Unlock()

	if registrar, ok := p.(OutputRegistrar); ok {
		return registrar.AddOutput(d)
	}
	return nil
}

// ProducerFinished atomically records that the producer identified by
// uid has finished its work. Once every registered producer has
// reported, the node is completed automatically.
func (d *DataNode) ProducerFinished(uid string) error {
	d.wiringMu.Lock()
	_, known := d.producers[uid]
	total := len(d.producers)
	d.wiringMu.Unlock()
	if !known {
		return &ferrors.WiringError{Reason: "producerFinished from unregistered producer " + uid}
	}

	d.finishedMu.Lock()
	if d.finishedProducers[uid] {
		d.finishedMu.Unlock()
		return &ferrors.WiringError{Reason: "producer " + uid + " reported finished twice"}
	}
	d.finishedProducers[uid] = true
	finished := len(d.finishedProducers)
	d.finishedMu.Unlock()

	if finished >= total {
		return d.SetCompleted()
	}
	return nil
}

// HandleInterest is the default no-op; application variants that care
// about a sibling's runtime-published attributes override it.
func (d *DataNode) HandleInterest(other Identity) {}

// Open acquires a read descriptor. The node's content is snapshotted
// into memory on first call (status must be COMPLETED, so the content
// is already immutable), and each descriptor tracks its own read
// offset into that snapshot, making concurrent reads through distinct
// descriptors safe.
func (d *DataNode) Open() (int64, error) {
	if d.Status() != types.StatusCompleted {
		return 0, &ferrors.InvalidState{UID: d.uid, Op: "open", Current: d.Status().String()}
	}
	if err := d.ensureLoaded(); err != nil {
		return 0, err
	}

	desc, err := d.allocDescriptor()
	if err != nil {
		return 0, err
	}

	d.refMu.Lock()
	d.refCount++
	d.refMu.Unlock()

	d.broadcaster.Fire(d.oid, d.uid, events.KindOpen, map[string]any{"descriptor": desc})
	return desc, nil
}

func (d *DataNode) ensureLoaded() error {
	d.contentMu.Lock()
	defer d.contentMu.Unlock()
	if d.loaded {
		return nil
	}
	if err := d.handle.Open(types.OpenRead); err != nil {
		return &ferrors.IOError{Op: "read-open", Err: err}
	}
	var buf []byte
	for {
		chunk, err := d.handle.Read(64 * 1024)
		if err != nil {
			_ = d.handle.Close()
			return &ferrors.IOError{Op: "read", Err: err}
		}
		if len(chunk) == 0 {
			break
		}
		buf = append(buf, chunk...)
	}
	if err := d.handle.Close(); err != nil {
		return &ferrors.IOError{Op: "read-close", Err: err}
	}
	d.content = buf
	d.loaded = true
	return nil
}

func (d *DataNode) allocDescriptor() (int64, error) {
	d.descMu.Lock()
	defer d.descMu.Unlock()
	for i := 0; i < 100; i++ {
		desc, err := randomInt64()
		if err != nil {
			return 0, &ferrors.IOError{Op: "allocate descriptor", Err: err}
		}
		if _, taken := d.descOffsets[desc]; taken {
			continue
		}
		offset := 0
		d.descOffsets[desc] = &offset
		return desc, nil
	}
	return 0, &ferrors.IOError{Op: "allocate descriptor", Err: io.ErrShortBuffer}
}

func randomInt64() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// Read returns up to n bytes for the given descriptor, advancing its
// private read offset.
func (d *DataNode) Read(desc int64, n int) ([]byte, error) {
	if d.Status() != types.StatusCompleted {
		return nil, &ferrors.InvalidState{UID: d.uid, Op: "read", Current: d.Status().String()}
	}
	d.descMu.Lock()
	offset, ok := d.descOffsets[desc]
	d.descMu.Unlock()
	if !ok {
		return nil, &ferrors.BadDescriptor{UID: d.uid, Desc: desc}
	}

	d.contentMu.Lock()
	defer d.contentMu.Unlock()
	if *offset >= len(d.content) {
		return nil, nil
	}
	end := *offset + n
	if end > len(d.content) {
		end = len(d.content)
	}
	chunk := d.content[*offset:end]
	*offset = end
	out := make([]byte, len(chunk))
	copy(out, chunk)
	return out, nil
}

// CloseDesc releases a descriptor acquired with Open, decrementing the
// reference count.
func (d *DataNode) CloseDesc(desc int64) error {
	d.descMu.Lock()
	_, ok := d.descOffsets[desc]
	if ok {
		delete(d.descOffsets, desc)
	}
	d.descMu.Unlock()
	if !ok {
		return &ferrors.BadDescriptor{UID: d.uid, Desc: desc}
	}
	d.refMu.Lock()
	d.refCount--
	d.refMu.Unlock()
	return nil
}

// RefCount returns the number of currently open read descriptors.
func (d *DataNode) RefCount() int {
	d.refMu.Lock()
	defer d.refMu.Unlock()
	return d.refCount
}

// DataURL returns the backing store's informational locator.
func (d *DataNode) DataURL() string { return d.handle.DataURL() }

// Parent returns the owning container, or nil if this node has no
// parent.
func (d *DataNode) Parent() *ContainerNode {
	d.wiringMu.Lock()
	defer d.wiringMu.Unlock()
	return d.parent
}

func (d *DataNode) setParent(c *ContainerNode) error {
	d.wiringMu.Lock()
	defer d.wiringMu.Unlock()
	if d.parent != nil {
		if d.parent == c {
			return nil
		}
		return &ferrors.WiringError{Reason: "data node already belongs to a different container"}
	}
	d.parent = c
	return nil
}

type pather interface {
	Path() (string, error)
}

// Path returns the filesystem path backing this node, if its handle
// exposes one (the file backend does).
func (d *DataNode) Path() (string, bool) {
	p, ok := d.handle.(pather)
	if !ok {
		return "", false
	}
	path, err := p.Path()
	if err != nil {
		return "", false
	}
	return path, true
}
