package capture

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xrcap/xrcap/pkg/usbfs"
	"github.com/xrcap/xrcap/pkg/usbmon"
	"github.com/xrcap/xrcap/pkg/viture"
)

// Source is an opened device handle or capture replay.
type Source struct {
	URL       string           `json:"url"`
	Kind      string           `json:"kind"`
	Device    *usbfs.Device    `json:"device,omitempty"`
	Interface uint8            `json:"interface"`
	Driver    string           `json:"driver,omitempty"`
	Endpoints []usbfs.Endpoint `json:"endpoints,omitempty"`

	tr     viture.Transport
	closer io.Closer
}

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenSource supports:
// - usb               first device with the configured vendor and product
// - usb:/dev/bus/...  exact usbfs node
// - pcap:path         usbmon capture replay (pcap or pcapng)
func OpenSource(cfg Config) (*Source, error) {
	kind, arg, _ := strings.Cut(cfg.Source, ":")

	switch kind {
	case "usb":
		return openUSB(cfg, arg)
	case "pcap":
		return openPcap(cfg, arg)
	}

	return nil, fmt.Errorf("capture: unsupported source %q", cfg.Source)
}

func openUSB(cfg Config, path string) (*Source, error) {
	src := &Source{Kind: "usb", Interface: cfg.Interface}

	if path == "" {
		dev, err := usbfs.FindFirst(cfg.VendorID, cfg.ProductID)
		if err != nil {
			return nil, err
		}
		src.Device = dev
		path = dev.Path
	}

	h, err := usbfs.Open(path)
	if err != nil {
		return nil, err
	}

	// the kernel driver that Claim is about to detach
	if src.Driver, err = h.Driver(cfg.Interface); err != nil {
		_ = h.Close()
		return nil, err
	}

	if err = h.Claim(cfg.Interface); err != nil {
		_ = h.Close()
		return nil, err
	}

	if src.Device != nil {
		if eps, err := usbfs.Endpoints(src.Device, cfg.Interface); err == nil {
			src.Endpoints = eps
		}
	}

	src.URL = "usb:" + path
	src.tr = h
	src.closer = h
	return src, nil
}

func openPcap(cfg Config, path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("capture: empty pcap path")
	}

	p, err := usbmon.Open(path, usbmon.Filter{})
	if err != nil {
		return nil, err
	}
	p.Realtime = cfg.Realtime

	src := &Source{URL: "pcap:" + path, Kind: "pcap", Interface: cfg.Interface, tr: p}
	eps := p.Endpoints()
	slices.Sort(eps)
	for _, ep := range eps {
		src.Endpoints = append(src.Endpoints, usbfs.Endpoint{Address: ep, Type: "Bulk", Direction: "in"})
	}
	return src, nil
}
