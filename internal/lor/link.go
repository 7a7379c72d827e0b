package lor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Opener opens the byte stream behind a Link.
type Opener func(name string, baud int) (io.WriteCloser, error)

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int) (io.WriteCloser, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Link owns the connection to the controller: it reopens the port on demand,
// keeps it alive with heartbeats and writes intensity packets.
//
// Intensity writes never fail from the caller's point of view. While the port
// is closed they are dropped, and a write error only closes the port on the
// next heartbeat tick, which then tries to reopen it.
type Link struct {
	mu      sync.Mutex
	open    Opener
	logger  *slog.Logger
	name    string
	baud    int
	port    io.WriteCloser
	ioErr   error
	dropped uint64
}

// NewLink creates a closed link. A nil opener uses OpenSerial.
func NewLink(open Opener, logger *slog.Logger) *Link {
	if open == nil {
		open = OpenSerial
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{open: open, logger: logger}
}

// SetPort points the link at a port and opens it. Nothing happens when the
// link is already open on the same port and baud rate.
func (l *Link) SetPort(name string, baud int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		if name == l.name && baud == l.baud {
			return true
		}
		l.closeLocked("port changed")
	}
	l.name = name
	l.baud = baud
	return l.openLocked()
}

// IsOpen reports whether the port is currently open.
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// Dropped returns how many packets were discarded because the link was closed.
func (l *Link) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// SetIntensity encodes and writes one intensity packet.
func (l *Link) SetIntensity(addr Address, intensity float64) {
	p := EncodeIntensity(intensity, addr)
	l.write(p[:])
}

// Tick runs one heartbeat period: drop a failed port, reopen a closed one,
// then send the heartbeat.
func (l *Link) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil && l.ioErr != nil {
		l.closeLocked("io error")
	}
	if l.port == nil && !l.openLocked() {
		return
	}
	l.writeLocked(Heartbeat[:])
}

// Run ticks every HeartbeatPeriod until ctx is cancelled.
func (l *Link) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Close closes the port. The link can be reopened by SetPort or Tick.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.ioErr = nil
	l.logger.Info("lor: link closed", "port", l.name)
	return err
}

// -------------------- internal --------------------

func (l *Link) write(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(b)
}

func (l *Link) writeLocked(b []byte) {
	if l.port == nil {
		l.dropped++
		return
	}
	if _, err := l.port.Write(b); err != nil && l.ioErr == nil {
		l.ioErr = err
		l.logger.Warn("lor: write error", "port", l.name, "err", err)
	}
}

func (l *Link) openLocked() bool {
	if l.name == "" {
		return false
	}
	p, err := l.open(l.name, l.baud)
	if err != nil {
		l.logger.Warn("lor: open failed",
			"port", l.name,
			"baud", l.baud,
			"reason", portErrorReason(err),
			"err", err,
		)
		return false
	}
	l.port = p
	l.ioErr = nil
	l.logger.Info("lor: link open", "port", l.name, "baud", l.baud)
	return true
}

func (l *Link) closeLocked(reason string) {
	if err := l.port.Close(); err != nil {
		l.logger.Debug("lor: close error", "port", l.name, "err", err)
	}
	l.port = nil
	l.ioErr = nil
	l.logger.Warn("lor: link closed", "port", l.name, "reason", reason)
}

func portErrorReason(err error) string {
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		return "io"
	}
	switch pe.Code() {
	case serial.PortNotFound:
		return "not found"
	case serial.PortBusy:
		return "busy"
	case serial.PermissionDenied:
		return "permission denied"
	default:
		return pe.EncodedErrorString()
	}
}

// -------------------- port discovery --------------------

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates serial ports with USB details where available.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("lor: list ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
