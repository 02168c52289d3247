// Package usbmon replays and records Linux usbmon captures (pcap or pcapng,
// link types LINUX_USB and LINUX_USB_MMAPPED) as bulk transfers.
package usbmon

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// LINUX_USB with the 48 byte header; gopacket's LinkTypeLinuxUSB (220)
	// is the 64 byte mmapped variant
	LinkTypeLinuxUSB48 layers.LinkType = 189

	headerSize       = 48
	headerSizeMapped = 64
)

var ErrFormat = errors.New("usbmon: unsupported capture")

type timeoutError struct{}

func (timeoutError) Error() string   { return "usbmon: no data" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ErrTimeout is returned by Read when the endpoint has nothing queued.
var ErrTimeout error = timeoutError{}

// Transfer is one completed transfer with data, taken from a capture.
type Transfer struct {
	Time     time.Time
	Bus      uint16
	Device   uint8
	Endpoint uint8 // with 0x80 for IN
	Data     []byte
}

// decode pulls the data stage out of one usbmon record. Setup, submit and
// error events return ok=false.
func decode(data []byte, ci gopacket.CaptureInfo) (*Transfer, bool) {
	if len(data) < headerSize {
		return nil, false
	}

	// captured data is at the tail, after a 48 or 64 byte header
	n := int(binary.LittleEndian.Uint32(data[36:]))
	if n == 0 || n > len(data)-headerSize {
		return nil, false
	}

	var usb layers.USB
	if err := usb.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, false
	}

	if usb.TransferType != layers.USBTransportTypeBulk {
		return nil, false
	}

	ep := usb.EndpointNumber
	switch {
	case usb.Direction == layers.USBDirectionTypeIn && usb.EventType == layers.USBEventTypeComplete:
		ep |= 0x80
	case usb.Direction != layers.USBDirectionTypeIn && usb.EventType == layers.USBEventTypeSubmit:
	default:
		return nil, false
	}

	return &Transfer{
		Time:     ci.Timestamp,
		Bus:      usb.BusID,
		Device:   usb.DeviceAddress,
		Endpoint: ep,
		Data:     append([]byte(nil), data[len(data)-n:]...),
	}, true
}

// encode builds a mmapped usbmon record for a completed bulk transfer.
func encode(t *Transfer, id uint64) []byte {
	b := make([]byte, headerSizeMapped+len(t.Data))

	binary.LittleEndian.PutUint64(b, id)
	if t.Endpoint&0x80 != 0 {
		b[8] = byte(layers.USBEventTypeComplete)
	} else {
		b[8] = byte(layers.USBEventTypeSubmit)
	}
	b[9] = byte(layers.USBTransportTypeBulk)
	b[10] = t.Endpoint
	b[11] = t.Device
	binary.LittleEndian.PutUint16(b[12:], t.Bus)
	b[14] = '-' // no setup packet
	b[15] = 0   // data present
	binary.LittleEndian.PutUint64(b[16:], uint64(t.Time.Unix()))
	binary.LittleEndian.PutUint32(b[24:], uint32(t.Time.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(b[32:], uint32(len(t.Data)))
	binary.LittleEndian.PutUint32(b[36:], uint32(len(t.Data)))
	copy(b[headerSizeMapped:], t.Data)

	return b
}
