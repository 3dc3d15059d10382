package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.einride.tech/can"

	"pad2can/utils"
)

// Monitor receives the bridge's frames from the bus and logs their decoded values.
type Monitor struct {
	log    *utils.Logger
	reader utils.CANReader
	enc    *Encoder

	received [numRoles]uint64
	ignored  uint64
	invalid  uint64
	rxErr    error
}

func NewMonitor(log *utils.Logger, reader utils.CANReader, enc *Encoder) *Monitor {
	return &Monitor{log: log, reader: reader, enc: enc}
}

// Run decodes frames until ctx ends or the reader stops.
func (m *Monitor) Run(ctx context.Context) error {
	for _, role := range m.enc.Roles() {
		m.log.Info("RX %s: frame=%s id=0x%X", role, m.enc.Frame(role).Name, m.enc.Frame(role).ID)
	}
	m.log.Info("Starting RX monitor")

	rxChan := make(chan can.Frame, 100)
	go m.receiveLoop(ctx, rxChan)

	for {
		select {
		case <-ctx.Done():
			m.logSummary()
			return ctx.Err()

		case f, ok := <-rxChan:
			if !ok {
				m.logSummary()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return m.rxErr
			}
			m.handle(f)
		}
	}
}

// receiveLoop forwards frames until the reader fails; rxErr is set before
// frames is closed.
func (m *Monitor) receiveLoop(ctx context.Context, frames chan<- can.Frame) {
	m.log.Debug("RX loop started")
	defer m.log.Debug("RX loop stopped")
	defer close(frames)

	for {
		frame, err := m.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, utils.ErrReaderClosed) {
				m.log.Error("RX error: %v", err)
				m.rxErr = err
			}
			return
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) handle(f can.Frame) {
	role, values, err := m.enc.Decode(f)
	switch {
	case errors.Is(err, ErrUnknownFrame):
		m.ignored++
		m.log.Trace("RX id=0x%X len=%d data=% X (ignored)", f.ID, f.Length, f.Data[:f.Length])
	case err != nil:
		m.invalid++
		m.log.Warn("RX %v", err)
	default:
		m.received[role]++
		m.log.Info("RX %s id=0x%X %s", role, f.ID, formatValues(values))
	}
}

func formatValues(values map[string]float64) string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%g", n, values[n])
	}
	return b.String()
}

func (m *Monitor) logSummary() {
	m.log.Info("Completed RX. received=%v ignored=%d invalid=%d", m.received, m.ignored, m.invalid)
}
