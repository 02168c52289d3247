package viture

import (
	"encoding/binary"
	"fmt"
	"strings"
)

type Form byte

const (
	FormLong Form = iota
	FormShort
)

func (f Form) String() string {
	switch f {
	case FormLong:
		return "long"
	case FormShort:
		return "short"
	}
	return "unknown"
}

func (f Form) Size() int {
	if f == FormShort {
		return ShortFrameSize
	}
	return LongFrameSize
}

// Encode builds a command frame. The short form carries only the magic,
// the command code and the 16-bit parameter; flag and target are dropped.
func Encode(form Form, code byte, param uint16, flag, target byte) []byte {
	b := make([]byte, form.Size())
	b[0] = Magic0
	b[1] = Magic1
	b[2] = code
	binary.LittleEndian.PutUint16(b[3:], param)
	if form == FormLong {
		b[5] = flag
		b[6] = target
	}
	return b
}

func EncodeLong(code byte, param uint16, flag, target byte) []byte {
	return Encode(FormLong, code, param, flag, target)
}

func EncodeShort(code byte, param uint16) []byte {
	return Encode(FormShort, code, param, 0, 0)
}

// TriggerCommand is the stereo stream trigger also used as keep-alive.
func TriggerCommand(target byte) []byte {
	return EncodeLong(CmdStereo, TriggerSize, TriggerFlag, target)
}

// Command is a decoded command frame, mostly useful for logs and tests.
type Command struct {
	Form   Form   `json:"form"`
	Code   byte   `json:"code"`
	Param  uint16 `json:"param"`
	Flag   byte   `json:"flag"`
	Target byte   `json:"target"`
}

func DecodeCommand(b []byte) (*Command, error) {
	var form Form
	switch len(b) {
	case LongFrameSize:
		form = FormLong
	case ShortFrameSize:
		form = FormShort
	default:
		return nil, fmt.Errorf("%w: command size %d", ErrMalformedFrame, len(b))
	}
	if b[0] != Magic0 || b[1] != Magic1 {
		return nil, fmt.Errorf("%w: magic %02x%02x", ErrMalformedFrame, b[0], b[1])
	}
	cmd := &Command{
		Form:  form,
		Code:  b[2],
		Param: binary.LittleEndian.Uint16(b[3:]),
	}
	if form == FormLong {
		cmd.Flag = b[5]
		cmd.Target = b[6]
	}
	return cmd, nil
}

// Response is a decoded control response.
//
// Length is the payload length the device declared, which may be larger than
// what one read returned. Truncated is set by the exchange when it gave up
// before collecting Length bytes.
type Response struct {
	Magic     uint16 `json:"magic"`
	Command   byte   `json:"command"`
	Status    byte   `json:"status"`
	Length    uint16 `json:"length"`
	Payload   []byte `json:"payload,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	// Ack is true for reads shorter than a status header
	Ack bool   `json:"ack,omitempty"`
	Raw []byte `json:"-"`
}

// Decode parses a response frame. Inputs shorter than the 4-byte status
// header fail with ErrMalformedFrame. With 4 or 5 bytes the length is zero.
func Decode(b []byte) (*Response, error) {
	if len(b) < minStatusSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(b))
	}

	r := &Response{
		Magic:   binary.LittleEndian.Uint16(b),
		Command: b[2],
		Status:  b[3],
		Raw:     b,
	}

	if len(b) < headerSize {
		return r, nil
	}

	r.Length = binary.LittleEndian.Uint16(b[4:])

	if r.Status == StatusOK && r.Length > 0 {
		payload := b[headerSize:]
		if len(payload) > int(r.Length) {
			payload = payload[:r.Length]
		}
		r.Payload = append([]byte(nil), payload...)
	}

	return r, nil
}

func (r *Response) OK() bool {
	return !r.Ack && r.Status == StatusOK
}

func (r *Response) ValidMagic() bool {
	return r.Magic == Magic
}

// Missing returns how many declared payload bytes were not received.
func (r *Response) Missing() int {
	if r.Status != StatusOK || len(r.Payload) >= int(r.Length) {
		return 0
	}
	return int(r.Length) - len(r.Payload)
}

func (r *Response) String() string {
	if r.Ack {
		return fmt.Sprintf("ack len=%d", len(r.Raw))
	}
	s := fmt.Sprintf("cmd=0x%02x status=0x%02x length=%d payload=%d", r.Command, r.Status, r.Length, len(r.Payload))
	if r.Truncated {
		s += " truncated"
	}
	return s
}

// Dump renders b as offset, hex and ASCII columns, 16 bytes per line.
func Dump(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i += 16 {
		end := i + 16
		if end > len(b) {
			end = len(b)
		}
		line := b[i:end]

		fmt.Fprintf(&sb, "%04x: ", i)
		for j := 0; j < 16; j++ {
			if j < len(line) {
				fmt.Fprintf(&sb, "%02x ", line[j])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteByte(' ')
		for _, c := range line {
			if c >= 32 && c < 127 {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
