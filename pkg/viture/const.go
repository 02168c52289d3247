package viture

import "time"

// USB identity of the stereo camera interface.
const (
	VendorID  = 0x35CA
	ProductID = 0x1101
	Interface = 0
)

// Default endpoint addresses. The streaming endpoint was never confirmed on
// hardware and is normally overridden from config.
const (
	EndpointCommand  uint8 = 0x04 // bulk OUT
	EndpointResponse uint8 = 0x85 // bulk IN
	EndpointStream   uint8 = 0x81 // bulk IN
)

const (
	Magic0 byte = 0xFA
	Magic1 byte = 0x55

	// Magic as read little endian from the first two bytes
	Magic uint16 = uint16(Magic1)<<8 | uint16(Magic0)
)

const (
	LongFrameSize  = 13
	ShortFrameSize = 5

	// status byte is the minimum meaningful response
	minStatusSize = 4
	// status + declared payload length
	headerSize = 6
)

// Command codes.
const (
	CmdStereo byte = 0xEA
)

// Trigger parameters for CmdStereo.
const (
	TriggerSize   uint16 = 0x0800
	TriggerFlag   byte   = 0x01
	TriggerTarget byte   = 0x00
)

// Status codes. Anything non-zero is device defined.
const (
	StatusOK byte = 0x00
)

// Streaming packet signatures.
var (
	SignatureFrame     = [2]byte{0xAA, 0x8F}
	SignatureTelemetry = [2]byte{0xA2, 0xC4}
)

// FRAME packet header layout.
const (
	frameSideOffset   = 4
	frameNumberOffset = 6
	frameHeaderSize   = 8
)

// Camera sides as reported in the FRAME header.
const (
	SideLeft  byte = 0x00
	SideRight byte = 0x01
)

const (
	ControlTimeout   = 1500 * time.Millisecond
	StreamTimeout    = 100 * time.Millisecond
	KeepAlive        = time.Second
	KeepAliveTimeout = 100 * time.Millisecond
	DrainTimeout     = 50 * time.Millisecond

	DrainAttempts   = 8
	PrimeAttempts   = 3
	FlushReads      = 16
	ContinueReads   = 8
	ControlReadSize = 512
	StreamReadSize  = 64 * 1024
)
