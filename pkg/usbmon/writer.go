package usbmon

import (
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 1 << 20

// Writer records bulk transfers as a LINUX_USB_MMAPPED pcap that Replay
// and Wireshark can read.
type Writer struct {
	Bus    uint16
	Device uint8

	mu sync.Mutex
	w  *pcapgo.Writer
	id uint64
}

func NewWriter(w io.Writer, bus uint16, device uint8) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeLinuxUSB); err != nil {
		return nil, err
	}
	return &Writer{Bus: bus, Device: device, w: pw}, nil
}

func (w *Writer) WriteTransfer(ep uint8, b []byte, ts time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.id++

	data := encode(&Transfer{Time: ts, Bus: w.Bus, Device: w.Device, Endpoint: ep, Data: b}, w.id)
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	return w.w.WritePacket(ci, data)
}
