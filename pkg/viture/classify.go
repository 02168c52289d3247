package viture

type PacketType byte

const (
	PacketOther PacketType = iota
	PacketFrame
	PacketTelemetry
)

func (t PacketType) String() string {
	switch t {
	case PacketFrame:
		return "frame"
	case PacketTelemetry:
		return "telemetry"
	}
	return "other"
}

// Classify assigns a streaming packet its type by the first two bytes.
func Classify(b []byte) PacketType {
	if len(b) < 2 {
		return PacketOther
	}
	switch {
	case b[0] == SignatureFrame[0] && b[1] == SignatureFrame[1]:
		return PacketFrame
	case b[0] == SignatureTelemetry[0] && b[1] == SignatureTelemetry[1]:
		return PacketTelemetry
	}
	return PacketOther
}
