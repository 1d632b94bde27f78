package node

import (
	"sync"
	"testing"

	"github.com/cuemby/dflow/pkg/ioh"
	"github.com/cuemby/dflow/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeConsumer implements DropCompleter and InputRegistrar.
type fakeConsumer struct {
	oid, uid string
	mu       sync.Mutex
	inputs   []string
	drops    []string
}

func newFakeConsumer(oid, uid string) *fakeConsumer { return &fakeConsumer{oid: oid, uid: uid} }

func (f *fakeConsumer) OID() string { return f.oid }
func (f *fakeConsumer) UID() string { return f.uid }

func (f *fakeConsumer) AddInput(d Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, d.UID())
}

func (f *fakeConsumer) DropCompleted(producerUID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, producerUID)
}

func (f *fakeConsumer) seenDrops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.drops...)
}

// fakeStreamer implements StreamingReceiver and StreamingInputRegistrar.
type fakeStreamer struct {
	oid, uid string
	mu       sync.Mutex
	chunks   [][]byte
	drops    []string
}

func newFakeStreamer(oid, uid string) *fakeStreamer { return &fakeStreamer{oid: oid, uid: uid} }

func (f *fakeStreamer) OID() string { return f.oid }
func (f *fakeStreamer) UID() string { return f.uid }

func (f *fakeStreamer) AddStreamingInput(d Identity) {}

func (f *fakeStreamer) DataWritten(producerUID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.chunks = append(f.chunks, cp)
}

func (f *fakeStreamer) DropCompleted(producerUID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, producerUID)
}

func newMemNode(oid, uid string, opts Options) *DataNode {
	return New(oid, uid, ioh.NewMemoryHandle(ioh.MemoryOptions{}), opts)
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	n, err := d.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, types.StatusWriting, d.Status())

	require.NoError(t, d.SetCompleted())
	require.Equal(t, types.StatusCompleted, d.Status())

	desc, err := d.Open()
	require.NoError(t, err)
	require.Equal(t, 1, d.RefCount())

	data, err := d.Read(desc, 1024)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	eof, err := d.Read(desc, 1024)
	require.NoError(t, err)
	require.Empty(t, eof)

	require.NoError(t, d.CloseDesc(desc))
	require.Equal(t, 0, d.RefCount())
}

func TestWriteAutoCompletesAtExpectedSize(t *testing.T) {
	d := newMemNode("a", "a1", Options{ExpectedSize: 5})
	_, err := d.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, d.Status())
}

func TestReadBeforeCompletedIsInvalidState(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	_, err := d.Open()
	require.Error(t, err)
}

func TestReadWithUnknownDescriptorFails(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	require.NoError(t, d.SetCompleted())
	_, err := d.Read(12345, 10)
	require.Error(t, err)
}

func TestChecksumAccumulatesAcrossWrites(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	_, err := d.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = d.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, d.SetCompleted())

	checksum, kind := d.Checksum()
	require.Equal(t, types.ChecksumCRC32C, kind)
	require.NotZero(t, checksum)
	require.Equal(t, int64(6), d.Size())
}

func TestSetChecksumAndSizeRequiresCompletedAndIsWriteOnce(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	err := d.SetChecksumAndSize(42, types.ChecksumCRC32, 100)
	require.Error(t, err)

	require.NoError(t, d.SetCompleted())
	require.NoError(t, d.SetChecksumAndSize(42, types.ChecksumCRC32, 100))
	require.Equal(t, int64(100), d.Size())

	require.Error(t, d.SetChecksumAndSize(43, types.ChecksumCRC32, 200))
}

func TestAddConsumerNotifiesOnCompletionInAutoMode(t *testing.T) {
	d := newMemNode("a", "a1", Options{ExecutionMode: types.ExecutionModeAuto})
	c := newFakeConsumer("b", "b1")
	require.NoError(t, d.AddConsumer(c))
	require.Equal(t, []string{"a1"}, c.inputs)

	_, err := d.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, d.SetCompleted())

	require.Equal(t, []string{"a1"}, c.seenDrops())
}

func TestAddConsumerDoesNotNotifyInExternalMode(t *testing.T) {
	d := newMemNode("a", "a1", Options{ExecutionMode: types.ExecutionModeExternal})
	c := newFakeConsumer("b", "b1")
	require.NoError(t, d.AddConsumer(c))
	require.NoError(t, d.SetCompleted())
	require.Empty(t, c.seenDrops())
}

func TestAddConsumerIsIdempotent(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	c := newFakeConsumer("b", "b1")
	require.NoError(t, d.AddConsumer(c))
	require.NoError(t, d.AddConsumer(c))
	require.Len(t, c.inputs, 1)
}

func TestStreamingConsumerReceivesChunksAndEndOfStream(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	s := newFakeStreamer("b", "b1")
	require.NoError(t, d.AddStreamingConsumer(s))

	_, err := d.Write([]byte("foo"))
	require.NoError(t, err)
	_, err = d.Write([]byte("bar"))
	require.NoError(t, err)
	require.NoError(t, d.SetCompleted())

	require.Len(t, s.chunks, 2)
	require.Equal(t, "foo", string(s.chunks[0]))
	require.Equal(t, "bar", string(s.chunks[1]))
	require.Equal(t, []string{"a1"}, s.drops)
}

func TestCannotBeBothNormalAndStreamingConsumer(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	uid := "shared"
	c := newFakeConsumer("b", uid)
	s := newFakeStreamer("b", uid)
	require.NoError(t, d.AddConsumer(c))
	require.Error(t, d.AddStreamingConsumer(s))
}

func TestProducerFinishedCompletesOnceAllProducersReport(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	p1 := newFakeConsumer("p", "p1")
	p2 := newFakeConsumer("p", "p2")
	require.NoError(t, d.AddProducer(p1))
	require.NoError(t, d.AddProducer(p2))

	require.NoError(t, d.ProducerFinished("p1"))
	require.NotEqual(t, types.StatusCompleted, d.Status())

	require.NoError(t, d.ProducerFinished("p2"))
	require.Equal(t, types.StatusCompleted, d.Status())
}

func TestProducerFinishedRejectsUnknownOrDuplicate(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	require.Error(t, d.ProducerFinished("ghost"))

	p1 := newFakeConsumer("p", "p1")
	require.NoError(t, d.AddProducer(p1))
	require.NoError(t, d.ProducerFinished("p1"))
	require.Error(t, d.ProducerFinished("p1"))
}

func TestDeleteMovesToTerminalStatus(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	require.NoError(t, d.Delete())
	require.Equal(t, types.StatusDeleted, d.Status())
}

func TestHandleInterestDefaultIsNoop(t *testing.T) {
	d := newMemNode("a", "a1", Options{})
	require.NotPanics(t, func() {
		d.HandleInterest(newFakeConsumer("x", "x1"))
	})
}
