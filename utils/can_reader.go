package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANReader defines the interface for reading CAN frames
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCANReader implements CANReader using Einride's socketcan.
// A single goroutine owns the receiver; ReadFrame only waits on its output.
type SocketCANReader struct {
	conn   net.Conn
	frames chan can.Frame
	done   chan struct{}
	quit   chan struct{}
	once   sync.Once

	errMu sync.Mutex
	err   error
}

// ErrReaderClosed is returned by ReadFrame once the reader has been closed.
var ErrReaderClosed = errors.New("can reader closed")

func NewSocketCANReader(ctx context.Context, ifname string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", ifname)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", ifname, err)
	}

	r := &SocketCANReader{
		conn:   conn,
		frames: make(chan can.Frame, 64),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go r.receive(socketcan.NewReceiver(conn))
	return r, nil
}

func (r *SocketCANReader) receive(recv *socketcan.Receiver) {
	defer close(r.done)
	for recv.Receive() {
		if recv.HasErrorFrame() {
			continue
		}
		select {
		case r.frames <- recv.Frame():
		case <-r.quit:
			return
		}
	}
	r.errMu.Lock()
	r.err = recv.Err()
	r.errMu.Unlock()
}

// ReadFrame blocks until a frame arrives, the receiver stops or ctx ends.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case frame := <-r.frames:
		return frame, nil
	case <-r.done:
		r.errMu.Lock()
		defer r.errMu.Unlock()
		if r.err != nil {
			return can.Frame{}, fmt.Errorf("receive failed: %w", r.err)
		}
		return can.Frame{}, ErrReaderClosed
	}
}

// Close closes the CAN socket
func (r *SocketCANReader) Close() error {
	r.once.Do(func() { close(r.quit) })
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
