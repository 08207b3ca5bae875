// Package sensorport delivers raw byte chunks from a bat sensor, over a real
// serial connection or a simulated one for development. Chunk boundaries are
// transport artifacts; the frame reassembler downstream owns framing.
package sensorport

import (
	"context"
	"io"

	"go.bug.st/serial"

	"github.com/batmetrics/swing.report/internal/monitoring"
)

// DefaultBaudRate matches the sensor firmware's UART configuration.
const DefaultBaudRate = 115200

// readBufSize is the per-read buffer. The sensor emits ~4KB/s, so a read
// returns well under this in practice.
const readBufSize = 512

// Port is a chunk source for one sensor connection.
type Port interface {
	// Chunks delivers raw byte chunks in arrival order. The channel is
	// unbuffered: the consumer paces the reads.
	Chunks() <-chan []byte

	// Monitor reads from the transport until ctx is cancelled or the
	// transport fails, delivering chunks to Chunks.
	Monitor(ctx context.Context) error

	Close() error
}

// SerialPort is a Port over a physical serial connection.
type SerialPort struct {
	serial.Port
	chunks chan []byte
}

// Open opens the serial device at name. baud <= 0 selects DefaultBaudRate.
func Open(name string, baud int) (*SerialPort, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return &SerialPort{port, make(chan []byte)}, nil
}

// Chunks returns the chunk delivery channel.
func (p *SerialPort) Chunks() <-chan []byte {
	return p.chunks
}

// Monitor reads the port until ctx is cancelled or the read fails. A clean
// EOF (device unplugged) returns nil; the caller decides whether to reopen.
func (p *SerialPort) Monitor(ctx context.Context) error {
	defer p.Close()
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := p.Port.Read(buf)
		if err == io.EOF {
			monitoring.Logf("sensorport: serial stream ended")
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		select {
		case p.chunks <- chunk:
		case <-ctx.Done():
			return nil
		}
	}
}

// MockPort is a Port that replays bytes from an in-memory reader, for tests
// and offline replay of captured streams. ChunkSize controls how the bytes
// are split; zero means one read-sized chunk at a time.
type MockPort struct {
	Data      io.Reader
	ChunkSize int

	chunks chan []byte
}

// NewMockPort creates a MockPort replaying r.
func NewMockPort(r io.Reader, chunkSize int) *MockPort {
	return &MockPort{
		Data:      r,
		ChunkSize: chunkSize,
		chunks:    make(chan []byte),
	}
}

// Chunks returns the chunk delivery channel.
func (m *MockPort) Chunks() <-chan []byte {
	return m.chunks
}

// Monitor replays the reader to exhaustion, then blocks until ctx is
// cancelled, mimicking a live port that has gone quiet.
func (m *MockPort) Monitor(ctx context.Context) error {
	size := m.ChunkSize
	if size <= 0 {
		size = readBufSize
	}
	buf := make([]byte, size)
	for {
		n, err := m.Data.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case m.chunks <- chunk:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			break
		}
	}
	<-ctx.Done()
	return nil
}

// Close implements Port; a MockPort holds nothing to release.
func (m *MockPort) Close() error {
	return nil
}
