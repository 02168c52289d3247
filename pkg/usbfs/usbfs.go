// Package usbfs talks to USB devices through the Linux usbfs character
// devices with synchronous bulk transfers.
package usbfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	SysfsPath = "/sys/bus/usb/devices"
	DevfsPath = "/dev/bus/usb"
)

var (
	ErrNotFound    = errors.New("usbfs: device not found")
	ErrUnsupported = errors.New("usbfs: unsupported platform")
	ErrClosed      = errors.New("usbfs: handle closed")
)

type Device struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Bus       uint8  `json:"bus"`
	Address   uint8  `json:"address"`
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Product   string `json:"product,omitempty"`
	Serial    string `json:"serial,omitempty"`
	Speed     string `json:"speed,omitempty"`
}

func (d *Device) String() string {
	return fmt.Sprintf("%04x:%04x bus=%d addr=%d %s", d.VendorID, d.ProductID, d.Bus, d.Address, d.Path)
}

// Find lists attached devices with matching IDs. Zero IDs match anything.
func Find(vendorID, productID uint16) ([]*Device, error) {
	entries, err := os.ReadDir(SysfsPath)
	if err != nil {
		return nil, err
	}

	var devices []*Device

	for _, entry := range entries {
		name := entry.Name()

		// skip root hubs (usb1) and interfaces (1-1:1.0)
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}

		dev, err := readDevice(filepath.Join(SysfsPath, name))
		if err != nil {
			continue
		}

		if vendorID != 0 && dev.VendorID != vendorID {
			continue
		}
		if productID != 0 && dev.ProductID != productID {
			continue
		}

		devices = append(devices, dev)
	}

	return devices, nil
}

// FindFirst returns the first matching device or ErrNotFound.
func FindFirst(vendorID, productID uint16) (*Device, error) {
	devices, err := Find(vendorID, productID)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %04x:%04x", ErrNotFound, vendorID, productID)
	}
	return devices[0], nil
}

func readDevice(path string) (*Device, error) {
	bus, err := readUint(path, "busnum", 10, 8)
	if err != nil {
		return nil, err
	}
	addr, err := readUint(path, "devnum", 10, 8)
	if err != nil {
		return nil, err
	}
	vid, err := readUint(path, "idVendor", 16, 16)
	if err != nil {
		return nil, err
	}
	pid, err := readUint(path, "idProduct", 16, 16)
	if err != nil {
		return nil, err
	}

	return &Device{
		Name:      filepath.Base(path),
		Path:      DevicePath(uint8(bus), uint8(addr)),
		Bus:       uint8(bus),
		Address:   uint8(addr),
		VendorID:  uint16(vid),
		ProductID: uint16(pid),
		Product:   readString(path, "product"),
		Serial:    readString(path, "serial"),
		Speed:     readString(path, "speed"),
	}, nil
}

func DevicePath(bus, addr uint8) string {
	return fmt.Sprintf("%s/%03d/%03d", DevfsPath, bus, addr)
}

func readString(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readUint(dir, name string, base, bits int) (uint64, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(b)), "0x")
	return strconv.ParseUint(s, base, bits)
}

type Endpoint struct {
	Address       uint8  `json:"address"`
	Type          string `json:"type"`
	Direction     string `json:"direction"`
	MaxPacketSize uint16 `json:"max_packet_size"`
}

// Endpoints lists the endpoints of one interface of an attached device.
func Endpoints(dev *Device, iface uint8) ([]Endpoint, error) {
	pattern := filepath.Join(SysfsPath, dev.Name+":*."+strconv.Itoa(int(iface)), "ep_*")

	dirs, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var eps []Endpoint
	for _, dir := range dirs {
		addr, err := readUint(dir, "bEndpointAddress", 16, 8)
		if err != nil {
			continue
		}
		size, _ := readUint(dir, "wMaxPacketSize", 16, 16)
		eps = append(eps, Endpoint{
			Address:       uint8(addr),
			Type:          readString(dir, "type"),
			Direction:     readString(dir, "direction"),
			MaxPacketSize: uint16(size),
		})
	}
	return eps, nil
}
