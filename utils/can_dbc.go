package utils

import (
	"fmt"
	"os"
	"sort"

	"go.einride.tech/can/pkg/dbc"
)

// independentSignalsMessage is the pseudo-message DBC editors use for unassigned signals.
const independentSignalsMessage = "VECTOR__INDEPENDENT_SIG_MSG"

func LoadDBCMap(path string) (*CANMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDBCMap(path, data)
}

// ParseDBCMap builds a CANMap from DBC source. Both byte orders (@1 Intel,
// @0 Motorola) are accepted; SIG_VALTYPE_ entries mark IEEE float signals.
func ParseDBCMap(name string, data []byte) (*CANMap, error) {
	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("parse dbc: %w", err)
	}

	type sigKey struct {
		id   uint32
		name string
	}
	valueTypes := map[sigKey]ValueType{}
	var messages []*dbc.MessageDef

	for _, def := range p.Defs() {
		switch def := def.(type) {
		case *dbc.MessageDef:
			if string(def.Name) == independentSignalsMessage {
				continue
			}
			messages = append(messages, def)
		case *dbc.SignalValueTypeDef:
			k := sigKey{id: def.MessageID.ToCAN(), name: string(def.SignalName)}
			switch def.SignalValueType {
			case dbc.SignalValueTypeFloat32:
				valueTypes[k] = ValueFloat32
			case dbc.SignalValueTypeFloat64:
				valueTypes[k] = ValueFloat64
			default:
				valueTypes[k] = ValueInt
			}
		}
	}

	m := newCANMap()
	for _, msg := range messages {
		id := msg.MessageID.ToCAN()
		if msg.Size == 0 || msg.Size > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", msg.Name, id, msg.Size)
		}
		fd := &FrameDef{
			ID:        id,
			Name:      string(msg.Name),
			DLC:       int(msg.Size),
			Direction: "tx",
			Signals:   make([]SignalDef, 0, len(msg.Signals)),
		}
		for _, s := range msg.Signals {
			endianness := "little"
			if s.IsBigEndian {
				endianness = "big"
			}
			sig := SignalDef{
				Name:       string(s.Name),
				StartBit:   int(s.StartBit),
				BitLength:  int(s.Size),
				Signed:     s.IsSigned,
				ValueType:  valueTypes[sigKey{id: id, name: string(s.Name)}],
				Factor:     s.Factor,
				Offset:     s.Offset,
				Min:        s.Minimum,
				Max:        s.Maximum,
				Unit:       s.Unit,
				Endianness: endianness,
			}
			if err := validateSignal(fd, sig); err != nil {
				return nil, err
			}
			fd.Signals = append(fd.Signals, sig)
		}
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })

		if _, dup := m.ByID[id]; dup {
			return nil, fmt.Errorf("duplicate frame id 0x%X", id)
		}
		m.ByID[id] = fd
		m.ByName[fd.Name] = fd
	}
	return m, nil
}
