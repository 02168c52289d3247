package capture

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xrcap/xrcap/pkg/usbmon"
	"github.com/xrcap/xrcap/pkg/viture"
)

// FileSink appends streaming packets to a file. A .pcap path is written as
// a usbmon capture that the pcap source can replay; anything else gets the
// raw bytes back to back.
type FileSink struct {
	Path string

	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	pcap *usbmon.Writer
	ep   uint8
}

func OpenSink(path string, ep uint8) (*FileSink, error) {
	s := &FileSink{Path: path, ep: ep}

	if strings.EqualFold(filepath.Ext(path), ".pcap") {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		s.f = f
		s.w = bufio.NewWriter(f)
		if s.pcap, err = usbmon.NewWriter(s.w, 0, 0); err != nil {
			_ = f.Close()
			return nil, err
		}
		return s, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	return s, nil
}

func (s *FileSink) WritePacket(typ viture.PacketType, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pcap != nil {
		return s.pcap.WriteTransfer(s.ep, b, time.Now())
	}

	_, err := s.w.Write(b)
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Flush()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
