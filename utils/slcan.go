package utils

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.einride.tech/can"
)

// slcanBitrates maps a nominal bit rate to the Lawicel "Sn" setup command.
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// SLCANWriter sends frames through a serial-line CAN adapter speaking the
// Lawicel ASCII protocol (CANable, USBtin, CANUSB and similar).
type SLCANWriter struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

func NewSLCANWriter(portName string, baud, bitrate int) (*SLCANWriter, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	w, err := newSLCANWriter(port, bitrate)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return w, nil
}

func newSLCANWriter(port io.ReadWriteCloser, bitrate int) (*SLCANWriter, error) {
	setup, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("unsupported slcan bitrate %d", bitrate)
	}
	// Close first so a channel left open by a previous run accepts the new rate.
	for _, cmd := range []string{"C", setup, "O"} {
		if _, err := io.WriteString(port, cmd+"\r"); err != nil {
			return nil, fmt.Errorf("slcan %s: %w", cmd, err)
		}
	}
	return &SLCANWriter{port: port}, nil
}

// FormatSLCAN renders a data frame as an SLCAN transmit record, including the trailing CR.
func FormatSLCAN(frame can.Frame) string {
	var b strings.Builder
	switch {
	case frame.IsExtended && frame.IsRemote:
		fmt.Fprintf(&b, "R%08X%d", frame.ID, frame.Length)
	case frame.IsExtended:
		fmt.Fprintf(&b, "T%08X%d", frame.ID, frame.Length)
	case frame.IsRemote:
		fmt.Fprintf(&b, "r%03X%d", frame.ID, frame.Length)
	default:
		fmt.Fprintf(&b, "t%03X%d", frame.ID, frame.Length)
	}
	if !frame.IsRemote {
		for _, d := range frame.Data[:frame.Length] {
			fmt.Fprintf(&b, "%02X", d)
		}
	}
	b.WriteByte('\r')
	return b.String()
}

func (w *SLCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := frame.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.port, FormatSLCAN(frame))
	return err
}

func (w *SLCANWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.port, "C\r")
	return w.port.Close()
}
