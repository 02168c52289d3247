package usbmon

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Filter selects one device from a capture. Zero values match any.
type Filter struct {
	Bus    uint16
	Device uint8
}

func (f Filter) match(t *Transfer) bool {
	return (f.Bus == 0 || f.Bus == t.Bus) && (f.Device == 0 || f.Device == t.Device)
}

// Replay serves IN transfers from a capture in their original order, one
// queue per endpoint. Writes are accepted and counted.
type Replay struct {
	// Realtime holds each transfer until its original offset has elapsed
	Realtime bool

	mu      sync.Mutex
	queues  map[uint8][]*Transfer
	first   time.Time
	start   time.Time
	writes  map[uint8]int
	written []*Transfer
}

func Open(path string, filter Filter) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewReplay(f, filter)
}

func NewReplay(r io.Reader, filter Filter) (*Replay, error) {
	rd, err := newReader(r)
	if err != nil {
		return nil, err
	}

	switch rd.LinkType() {
	case LinkTypeLinuxUSB48, layers.LinkTypeLinuxUSB:
	default:
		return nil, fmt.Errorf("%w: link type %d", ErrFormat, rd.LinkType())
	}

	p := &Replay{
		queues: map[uint8][]*Transfer{},
		writes: map[uint8]int{},
	}

	for {
		data, ci, err := rd.ReadPacketData()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		t, ok := decode(data, ci)
		if !ok || !filter.match(t) {
			continue
		}

		if p.first.IsZero() {
			p.first = t.Time
		}

		// OUT transfers are the recorded host commands
		if t.Endpoint&0x80 == 0 {
			continue
		}

		p.queues[t.Endpoint] = append(p.queues[t.Endpoint], t)
	}

	return p, nil
}

func newReader(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)

	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	// pcapng section header block
	if bytes.Equal(magic, []byte{0x0A, 0x0D, 0x0D, 0x0A}) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}

	return pcapgo.NewReader(br)
}

// Pending returns the number of queued transfers for an IN endpoint.
func (p *Replay) Pending(ep uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[ep])
}

func (p *Replay) Endpoints() []uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var eps []uint8
	for ep := range p.queues {
		eps = append(eps, ep)
	}
	return eps
}

// Writes returns how many writes each endpoint received.
func (p *Replay) Writes(ep uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[ep]
}

func (p *Replay) Write(ep uint8, b []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	p.writes[ep]++
	p.mu.Unlock()
	return len(b), nil
}

// Read returns the next transfer of ep, truncated to size. With nothing
// ready it waits out timeout and returns ErrTimeout.
func (p *Replay) Read(ep uint8, size int, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()

	q := p.queues[ep]
	if len(q) == 0 {
		p.mu.Unlock()
		time.Sleep(timeout)
		return nil, ErrTimeout
	}

	t := q[0]

	if p.Realtime {
		if p.start.IsZero() {
			p.start = time.Now()
		}
		if wait := time.Until(p.start.Add(t.Time.Sub(p.first))); wait > 0 {
			p.mu.Unlock()
			if wait > timeout {
				time.Sleep(timeout)
				return nil, ErrTimeout
			}
			time.Sleep(wait)
			p.mu.Lock()
			// another reader could have taken it
			if q = p.queues[ep]; len(q) == 0 || q[0] != t {
				p.mu.Unlock()
				return nil, ErrTimeout
			}
		}
	}

	p.queues[ep] = q[1:]
	p.mu.Unlock()

	if len(t.Data) > size {
		return t.Data[:size], nil
	}
	return t.Data, nil
}
