package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// signalBits converts a physical value into the raw bit pattern of the signal.
func signalBits(s SignalDef, v float64) uint64 {
	switch s.ValueType {
	case ValueFloat32:
		return uint64(math.Float32bits(float32(clampRange(v, s.Min, s.Max))))
	case ValueFloat64:
		return math.Float64bits(clampRange(v, s.Min, s.Max))
	}

	v = clampRange(v, s.Min, s.Max)

	rawFloat := (v - s.Offset) / s.Factor
	raw := int64(math.Round(rawFloat))
	raw = clampRaw(raw, s.BitLength, s.Signed)

	return rawToUnsigned(raw, s.BitLength)
}

// signalValue is the inverse of signalBits.
func signalValue(s SignalDef, u uint64) float64 {
	switch s.ValueType {
	case ValueFloat32:
		return float64(math.Float32frombits(uint32(u)))
	case ValueFloat64:
		return math.Float64frombits(u)
	}
	raw := unsignedToRawInt64(u, s.BitLength, s.Signed)
	return float64(raw)*s.Factor + s.Offset
}

func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) ([]byte, uint32, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return nil, 0, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, 0, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}

	var data can.Data
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if s.bigEndian() {
			data.SetUnsignedBitsBigEndian(uint8(s.StartBit), uint8(s.BitLength), signalBits(s, v))
		} else {
			data.SetUnsignedBitsLittleEndian(uint8(s.StartBit), uint8(s.BitLength), signalBits(s, v))
		}
	}

	out := make([]byte, fd.DLC)
	copy(out, data[:fd.DLC])
	return out, fd.ID, nil
}

// EncodeEinrideFrame produces a can.Frame ready to transmit.
func (m *CANMap) EncodeEinrideFrame(frameName string, values map[string]float64) (can.Frame, error) {
	payload, id, err := m.EncodeFrame(frameName, values)
	if err != nil {
		return can.Frame{}, err
	}

	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	f.IsExtended = id > can.MaxID
	copy(f.Data[:], payload)

	if err := f.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("frame %s: %w", frameName, err)
	}
	return f, nil
}

func (m *CANMap) DecodeFrame(frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, err
	}
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", frameID, fd.DLC, len(data))
	}

	var payload can.Data
	copy(payload[:], data[:fd.DLC])

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		var u uint64
		if s.bigEndian() {
			u = payload.UnsignedBitsBigEndian(uint8(s.StartBit), uint8(s.BitLength))
		} else {
			u = payload.UnsignedBitsLittleEndian(uint8(s.StartBit), uint8(s.BitLength))
		}
		out[s.Name] = signalValue(s, u)
	}
	return out, nil
}
