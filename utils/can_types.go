package utils

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValueType selects how a signal's raw bits are interpreted.
type ValueType int

const (
	ValueInt     ValueType = iota // scaled integer (factor/offset)
	ValueFloat32                  // IEEE-754 single
	ValueFloat64                  // IEEE-754 double
)

func (v ValueType) String() string {
	switch v {
	case ValueInt:
		return "int"
	case ValueFloat32:
		return "float"
	case ValueFloat64:
		return "double"
	default:
		return "unknown"
	}
}

// ParseValueType accepts the value_type column of the CSV map. Empty means int.
func ParseValueType(s string) (ValueType, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "int", "integer":
		return ValueInt, nil
	case "float", "float32":
		return ValueFloat32, nil
	case "double", "float64":
		return ValueFloat64, nil
	default:
		return ValueInt, fmt.Errorf("unknown value_type %q", s)
	}
}

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	ValueType  ValueType
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness string // "little" (Intel) or "big" (Motorola); for big, StartBit is the MSB as in DBC
}

func (s SignalDef) bigEndian() bool { return s.Endianness == "big" }

// bitSpan returns the first and last bit of the signal counted from the start
// of the payload in transmission order, used for bounds checks.
func (s SignalDef) bitSpan() (first, last int) {
	if !s.bigEndian() {
		return s.StartBit, s.StartBit + s.BitLength - 1
	}
	msb := 8*(s.StartBit/8) + 7 - s.StartBit%8
	return msb, msb + s.BitLength - 1
}

// Range returns the physical values the signal can carry without saturating:
// its declared min/max intersected with what the raw bits can represent.
func (s SignalDef) Range() (lo, hi float64) {
	switch s.ValueType {
	case ValueFloat32:
		lo, hi = -math.MaxFloat32, math.MaxFloat32
	case ValueFloat64:
		lo, hi = -math.MaxFloat64, math.MaxFloat64
	default:
		rawLo, rawHi := 0.0, math.Ldexp(1, s.BitLength)-1
		if s.Signed {
			rawLo, rawHi = -math.Ldexp(1, s.BitLength-1), math.Ldexp(1, s.BitLength-1)-1
		}
		lo, hi = rawLo*s.Factor+s.Offset, rawHi*s.Factor+s.Offset
		if lo > hi {
			lo, hi = hi, lo
		}
	}
	if s.Max > s.Min {
		lo, hi = math.Max(lo, s.Min), math.Min(hi, s.Max)
	}
	return lo, hi
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// Signal returns the named signal of the frame.
func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func newCANMap() *CANMap {
	return &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// validateSignal checks a signal against its frame's payload size.
func validateSignal(fd *FrameDef, s SignalDef) error {
	switch s.Endianness {
	case "", "little", "big":
	default:
		return fmt.Errorf("frame %s signal %s: unknown endianness %q (want little or big)",
			fd.Name, s.Name, s.Endianness)
	}
	if s.BitLength <= 0 || s.BitLength > 64 {
		return fmt.Errorf("frame %s signal %s: invalid bit_length %d", fd.Name, s.Name, s.BitLength)
	}
	switch s.ValueType {
	case ValueFloat32:
		if s.BitLength != 32 {
			return fmt.Errorf("frame %s signal %s: float signals need bit_length 32, got %d", fd.Name, s.Name, s.BitLength)
		}
	case ValueFloat64:
		if s.BitLength != 64 {
			return fmt.Errorf("frame %s signal %s: double signals need bit_length 64, got %d", fd.Name, s.Name, s.BitLength)
		}
	}
	if s.ValueType == ValueInt && s.Factor == 0 {
		return fmt.Errorf("frame %s signal %s: factor must not be zero", fd.Name, s.Name)
	}
	if first, last := s.bitSpan(); s.StartBit < 0 || s.StartBit > 63 || last >= 8*fd.DLC {
		return fmt.Errorf("frame %s signal %s: %s-endian bits %d..%d exceed dlc %d",
			fd.Name, s.Name, s.endiannessName(), first, last, fd.DLC)
	}
	return nil
}

func (s SignalDef) endiannessName() string {
	if s.bigEndian() {
		return "big"
	}
	return "little"
}
