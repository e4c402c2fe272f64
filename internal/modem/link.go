package modem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/BrandonDHaskell/gatectl/internal/gate/fault"
)

// Port is the subset of a serial port the link needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

const (
	DefaultBaudRate = 115200
	readPoll        = 20 * time.Millisecond
	maxRecv         = 64 << 10
)

// OpenSerial opens name at baud, 8N1, with a short read timeout so reads
// return whatever is buffered.
func OpenSerial(name string, baud int) (Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}

// Link frames AT commands over a Port. It is owned by one goroutine.
type Link struct {
	port    Port
	buf     []byte
	partial []byte // bytes after the last line terminator seen
}

func NewLink(p Port) (*Link, error) {
	if err := p.SetReadTimeout(readPoll); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Link{port: p, buf: make([]byte, 512)}, nil
}

// Send writes cmd terminated by CRLF.
func (l *Link) Send(cmd string) error {
	if _, err := io.WriteString(l.port, cmd+"\r\n"); err != nil {
		return fault.Fatal("send "+cmd, err)
	}
	return nil
}

// Recv returns every byte currently buffered by the port, possibly none.
func (l *Link) Recv() ([]byte, error) {
	var out []byte
	for len(out) < maxRecv {
		n, err := l.port.Read(l.buf)
		out = append(out, l.buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) && len(out) > 0 {
				return out, nil
			}
			return out, fault.Fatal("recv", err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// Lines is Recv followed by Frame.
func (l *Link) Lines() ([]string, error) {
	data, err := l.Recv()
	return l.Frame(data), err
}

// Frame appends data to any held partial line and returns the complete
// lines. Bytes after the last CR or LF are held for the next call; a held
// fragment longer than maxRecv is flushed as a line.
func (l *Link) Frame(data []byte) []string {
	all := append(l.partial, data...)
	cut := bytes.LastIndexAny(all, "\r\n") + 1
	if cut == 0 && len(all) > maxRecv {
		cut = len(all)
	}
	l.partial = append([]byte(nil), all[cut:]...)
	return SplitLines(all[:cut])
}

// Pending returns the held partial line.
func (l *Link) Pending() string { return string(l.partial) }

func (l *Link) Close() error { return l.port.Close() }
