package viture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Transport is a bulk channel pair on an already claimed device handle.
//
// Both calls return an error satisfying IsTimeout when nothing arrived within
// timeout. Any other error means the channel is broken.
type Transport interface {
	Write(ep uint8, b []byte, timeout time.Duration) (int, error)
	Read(ep uint8, size int, timeout time.Duration) ([]byte, error)
}

type Endpoints struct {
	Command  uint8 `yaml:"command_ep" json:"command_ep"`
	Response uint8 `yaml:"response_ep" json:"response_ep"`
	Stream   uint8 `yaml:"stream_ep" json:"stream_ep"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Command:  EndpointCommand,
		Response: EndpointResponse,
		Stream:   EndpointStream,
	}
}

// Client owns one device handle. Exchanges on the control pair are
// serialized and only one capture session may run at a time.
type Client struct {
	Endpoints Endpoints

	Timeout       time.Duration
	ReadSize      int
	ContinueReads int

	log zerolog.Logger

	tr        Transport
	commandMu sync.Mutex
	busy      atomic.Bool
}

func NewClient(tr Transport, ep Endpoints, log zerolog.Logger) *Client {
	return &Client{
		Endpoints:     ep,
		Timeout:       ControlTimeout,
		ReadSize:      ControlReadSize,
		ContinueReads: ContinueReads,
		log:           log,
		tr:            tr,
	}
}

// Busy reports whether a capture session currently owns the handle.
func (c *Client) Busy() bool {
	return c.busy.Load()
}

func (c *Client) write(ep uint8, b []byte, timeout time.Duration) error {
	n, err := c.tr.Write(ep, b, timeout)
	if err != nil {
		return wrapError("write", ep, err)
	}
	if n != len(b) {
		return &TransportError{Op: "write", Endpoint: ep, Err: fmt.Errorf("short write %d of %d", n, len(b))}
	}
	return nil
}

func (c *Client) read(ep uint8, size int, timeout time.Duration) ([]byte, error) {
	b, err := c.tr.Read(ep, size, timeout)
	if err != nil {
		return nil, wrapError("read", ep, err)
	}
	return b, nil
}

// Send writes one command frame and reads its response. When the response
// declares more payload than the first read returned, it keeps reading up
// to ContinueReads times. If the declared length is still not reached the
// collected bytes are returned with Truncated set.
//
// A non-zero device status is not an error. A timeout on the first read
// returns ErrTimeout.
func (c *Client) Send(cmd []byte) (*Response, error) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	return c.exchange(cmd, c.Timeout, true)
}

// Trigger is Send without continuation reads. timeout bounds both the write
// and the read.
func (c *Client) Trigger(cmd []byte, timeout time.Duration) (*Response, error) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	return c.exchange(cmd, timeout, false)
}

func (c *Client) exchange(cmd []byte, timeout time.Duration, follow bool) (*Response, error) {
	if err := c.write(c.Endpoints.Command, cmd, timeout); err != nil {
		return nil, err
	}

	b, err := c.read(c.Endpoints.Response, c.ReadSize, timeout)
	if err != nil {
		return nil, err
	}

	res, err := Decode(b)
	if err != nil {
		// shorter than a status header
		return &Response{Ack: true, Raw: b}, nil
	}

	if !res.ValidMagic() {
		c.log.Debug().Uint16("magic", res.Magic).Msg("[viture] unexpected response magic")
	}

	if !follow || res.Missing() == 0 {
		return res, nil
	}

	for i := 0; i < c.ContinueReads && res.Missing() > 0; i++ {
		if b, err = c.read(c.Endpoints.Response, c.ReadSize, c.Timeout); err != nil {
			if IsTimeout(err) {
				break
			}
			res.Truncated = true
			return res, err
		}
		if n := res.Missing(); len(b) > n {
			b = b[:n]
		}
		res.Payload = append(res.Payload, b...)
	}

	res.Truncated = res.Missing() > 0
	if res.Truncated {
		c.log.Debug().Int("missing", res.Missing()).Msg("[viture] truncated response")
	}

	return res, nil
}
