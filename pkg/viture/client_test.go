package viture

import (
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeRead struct {
	b   []byte
	err error
}

// fakeTransport replays queued reads per endpoint. An empty queue behaves
// like an idle device: the read blocks for its timeout and fails with
// ErrTimeout.
type fakeTransport struct {
	mu       sync.Mutex
	reads    map[uint8][]fakeRead
	writes   [][]byte
	timeouts []time.Duration

	// ack is queued on the response endpoint after every command write
	ack []byte

	// writes beyond failAfter fail with writeErr
	failAfter int
	writeErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: map[uint8][]fakeRead{}, failAfter: -1}
}

func (f *fakeTransport) push(ep uint8, b []byte) {
	f.mu.Lock()
	f.reads[ep] = append(f.reads[ep], fakeRead{b: b})
	f.mu.Unlock()
}

func (f *fakeTransport) pushErr(ep uint8, err error) {
	f.mu.Lock()
	f.reads[ep] = append(f.reads[ep], fakeRead{err: err})
	f.mu.Unlock()
}

func (f *fakeTransport) Write(ep uint8, b []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.timeouts = append(f.timeouts, timeout)

	if f.failAfter >= 0 && len(f.writes) >= f.failAfter {
		return 0, f.writeErr
	}

	f.writes = append(f.writes, append([]byte(nil), b...))

	if f.ack != nil && ep == EndpointCommand {
		f.reads[EndpointResponse] = append(f.reads[EndpointResponse], fakeRead{b: f.ack})
	}

	return len(b), nil
}

func (f *fakeTransport) Read(ep uint8, size int, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	if q := f.reads[ep]; len(q) > 0 {
		r := q[0]
		f.reads[ep] = q[1:]
		f.mu.Unlock()

		if r.err != nil {
			return nil, r.err
		}
		if len(r.b) > size {
			return r.b[:size], nil
		}
		return r.b, nil
	}
	f.mu.Unlock()

	time.Sleep(timeout)
	return nil, ErrTimeout
}

func (f *fakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func (f *fakeTransport) Pending(ep uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads[ep])
}

func newTestClient(tr Transport) *Client {
	c := NewClient(tr, DefaultEndpoints(), zerolog.Nop())
	c.Timeout = 20 * time.Millisecond
	return c
}

func TestSendContinuation(t *testing.T) {
	tr := newFakeTransport()
	tr.push(EndpointResponse, []byte{0xFA, 0x55, 0xEA, 0x00, 0x05, 0x00})
	tr.push(EndpointResponse, []byte{1, 2, 3, 4, 5, 6, 7})

	c := newTestClient(tr)

	res, err := c.Send(TriggerCommand(0))
	require.Nil(t, err)
	require.True(t, res.OK())
	require.Equal(t, uint16(5), res.Length)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, res.Payload)
	require.False(t, res.Truncated)

	writes := tr.Writes()
	require.Len(t, writes, 1)
	require.Equal(t, []byte{0xFA, 0x55, 0xEA, 0x00, 0x08, 0x01, 0x00, 0, 0, 0, 0, 0, 0}, writes[0])
}

func TestSendSplitContinuation(t *testing.T) {
	tr := newFakeTransport()
	tr.push(EndpointResponse, []byte{0xFA, 0x55, 0x10, 0x00, 0x04, 0x00, 0xA1})
	tr.push(EndpointResponse, []byte{0xA2})
	tr.push(EndpointResponse, []byte{0xA3, 0xA4})

	c := newTestClient(tr)

	res, err := c.Send(EncodeShort(0x10, 0))
	require.Nil(t, err)
	require.Equal(t, []byte{0xA1, 0xA2, 0xA3, 0xA4}, res.Payload)
	require.False(t, res.Truncated)
	require.Zero(t, tr.Pending(EndpointResponse))
}

func TestSendTruncated(t *testing.T) {
	tr := newFakeTransport()
	tr.push(EndpointResponse, []byte{0xFA, 0x55, 0xEA, 0x00, 0x05, 0x00, 0x01})

	c := newTestClient(tr)

	res, err := c.Send(TriggerCommand(0))
	require.Nil(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, []byte{0x01}, res.Payload)
	require.Equal(t, 4, res.Missing())
}

func TestSendContinuationLimit(t *testing.T) {
	tr := newFakeTransport()
	tr.push(EndpointResponse, []byte{0xFA, 0x55, 0xEA, 0x00, 0x20, 0x00})
	for i := 0; i < 10; i++ {
		tr.push(EndpointResponse, []byte{byte(i)})
	}

	c := newTestClient(tr)
	c.ContinueReads = 3

	res, err := c.Send(TriggerCommand(0))
	require.Nil(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, []byte{0, 1, 2}, res.Payload)
	require.Equal(t, 7, tr.Pending(EndpointResponse))
}

func TestSendStatusError(t *testing.T) {
	tr := newFakeTransport()
	tr.push(EndpointResponse, []byte{0xFA, 0x55, 0xEA, 0x03, 0x05, 0x00})
	tr.push(EndpointResponse, []byte{1, 2, 3})

	c := newTestClient(tr)

	res, err := c.Send(TriggerCommand(0))
	require.Nil(t, err)
	require.False(t, res.OK())
	require.Equal(t, byte(3), res.Status)
	require.Nil(t, res.Payload)
	require.False(t, res.Truncated)

	// no continuation for a failed status
	require.Equal(t, 1, tr.Pending(EndpointResponse))
}

func TestSendAck(t *testing.T) {
	tr := newFakeTransport()
	tr.push(EndpointResponse, []byte{0xFA, 0x55})

	c := newTestClient(tr)

	res, err := c.Send(TriggerCommand(0))
	require.Nil(t, err)
	require.True(t, res.Ack)
	require.False(t, res.OK())
	require.Equal(t, []byte{0xFA, 0x55}, res.Raw)
}

func TestTriggerWriteTimeout(t *testing.T) {
	tr := newFakeTransport()
	tr.ack = okAck

	c := newTestClient(tr)
	c.Timeout = ControlTimeout

	res, err := c.Trigger(TriggerCommand(0), 30*time.Millisecond)
	require.Nil(t, err)
	require.True(t, res.OK())

	_, err = c.Send(TriggerCommand(0))
	require.Nil(t, err)

	tr.mu.Lock()
	require.Equal(t, []time.Duration{30 * time.Millisecond, ControlTimeout}, tr.timeouts)
	tr.mu.Unlock()
}

func TestSendTimeout(t *testing.T) {
	c := newTestClient(newFakeTransport())

	res, err := c.Send(TriggerCommand(0))
	require.Nil(t, res)
	require.True(t, IsTimeout(err))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSendTransportError(t *testing.T) {
	tr := newFakeTransport()
	tr.failAfter = 0
	tr.writeErr = syscall.ENODEV

	c := newTestClient(tr)

	_, err := c.Send(TriggerCommand(0))
	require.False(t, IsTimeout(err))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "write", te.Op)
	require.Equal(t, EndpointCommand, te.Endpoint)
	require.ErrorIs(t, err, syscall.ENODEV)
}

func TestSendReadError(t *testing.T) {
	tr := newFakeTransport()
	tr.pushErr(EndpointResponse, syscall.EPIPE)

	c := newTestClient(tr)

	_, err := c.Send(TriggerCommand(0))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "read", te.Op)
	require.Equal(t, EndpointResponse, te.Endpoint)
}

func TestWrapError(t *testing.T) {
	err := wrapError("read", 0x81, syscall.ETIMEDOUT)
	require.True(t, IsTimeout(err))
	require.ErrorIs(t, err, ErrTimeout)

	err = wrapError("read", 0x81, syscall.ENODEV)
	require.False(t, IsTimeout(err))
	require.EqualError(t, err, "viture: read ep=0x81: no such device")

	// already wrapped errors pass through
	require.Equal(t, err, wrapError("write", 0x04, err))

	require.Nil(t, wrapError("read", 0x81, nil))
	require.False(t, IsTimeout(nil))
}
