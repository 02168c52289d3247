package viture

import (
	"encoding/binary"
	"strconv"
)

// FrameRecord is the header of one FRAME packet.
type FrameRecord struct {
	Side   byte
	Number uint16
	Size   int
}

// ParseFrame reads the camera side and frame number of a FRAME packet.
func ParseFrame(b []byte) (FrameRecord, bool) {
	if len(b) < frameHeaderSize || Classify(b) != PacketFrame {
		return FrameRecord{}, false
	}
	return FrameRecord{
		Side:   b[frameSideOffset],
		Number: binary.LittleEndian.Uint16(b[frameNumberOffset:]),
		Size:   len(b),
	}, true
}

func SideName(side byte) string {
	switch side {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return "cam" + strconv.Itoa(int(side))
}

type FrameStats struct {
	Packets  int            `json:"packets"`
	Distinct int            `json:"distinct_frames"`
	Min      uint16         `json:"min_frame"`
	Max      uint16         `json:"max_frame"`
	Cameras  map[string]int `json:"cameras,omitempty"`
}

// Reassembler aggregates FRAME packets by frame number and camera side.
// It does not rebuild images and keeps no per-packet records.
// Not safe for concurrent use.
type Reassembler struct {
	numbers map[uint16]struct{}
	sides   map[byte]int
	packets int
	min     uint16
	max     uint16
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		numbers: map[uint16]struct{}{},
		sides:   map[byte]int{},
	}
}

// Ingest folds one classified packet into the statistics and returns the
// type it was counted as. FRAME packets too short to carry a header are
// downgraded to PacketOther.
func (r *Reassembler) Ingest(typ PacketType, b []byte) PacketType {
	if typ != PacketFrame {
		return typ
	}

	rec, ok := ParseFrame(b)
	if !ok {
		return PacketOther
	}

	if r.packets == 0 || rec.Number < r.min {
		r.min = rec.Number
	}
	if r.packets == 0 || rec.Number > r.max {
		r.max = rec.Number
	}

	r.packets++
	r.numbers[rec.Number] = struct{}{}
	r.sides[rec.Side]++

	return PacketFrame
}

func (r *Reassembler) Stats() FrameStats {
	s := FrameStats{
		Packets:  r.packets,
		Distinct: len(r.numbers),
		Min:      r.min,
		Max:      r.max,
	}
	if len(r.sides) > 0 {
		s.Cameras = make(map[string]int, len(r.sides))
		for side, n := range r.sides {
			s.Cameras[SideName(side)] = n
		}
	}
	return s
}
