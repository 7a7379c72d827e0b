// Package midictl connects a MIDI pad controller and turns its pads into
// channel flashes.
package midictl

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const RescanInterval = time.Second

// DefaultExcluded are virtual or system ports that are never auto-connected.
var DefaultExcluded = []string{"Midi Through", "Through Port", "Dummy"}

// Status is a connection change reported by the watcher.
type Status struct {
	Device    string
	Connected bool
}

// Watcher keeps a connection to the preferred MIDI input across hot-plug and
// unplug. Every message from the connected device goes to the handler, on the
// driver's listener goroutine.
type Watcher struct {
	drv       drivers.Driver
	logger    *slog.Logger
	preferred []string
	excluded  []string
	handle    func(midi.Message)
	now       func() time.Time

	mu       sync.Mutex
	conn     *connection
	nextScan time.Time
	onStatus func(Status)
}

// connection is one open input. failed is set from the listener goroutine
// and acted on by the next Tick.
type connection struct {
	name   string
	in     drivers.In
	stop   func()
	failed atomic.Bool
}

// NewWatcher opens the rtmidi driver. preferred names are matched
// case-insensitively as substrings; with no match a single remaining input is
// used. A nil excluded list means DefaultExcluded.
func NewWatcher(preferred, excluded []string, handle func(midi.Message), logger *slog.Logger) (*Watcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midictl: rtmididrv: %w", err)
	}
	return newWatcher(drv, preferred, excluded, handle, logger), nil
}

func newWatcher(drv drivers.Driver, preferred, excluded []string, handle func(midi.Message), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if excluded == nil {
		excluded = DefaultExcluded
	}
	return &Watcher{
		drv:       drv,
		logger:    logger,
		preferred: preferred,
		excluded:  excluded,
		handle:    handle,
		now:       time.Now,
	}
}

// OnStatus registers fn to be told about every connect and disconnect. fn
// runs on the goroutine calling Tick or Close, after the watcher is unlocked.
func (w *Watcher) OnStatus(fn func(Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStatus = fn
}

// Connected returns the name of the connected device, if any.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return "", false
	}
	return w.conn.name, true
}

// Close shuts down the connection and the driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	var changes []Status
	if w.conn != nil {
		changes = append(changes, w.disconnect("closed"))
	}
	if err := w.drv.Close(); err != nil {
		w.logger.Warn("midictl: driver close", "err", err)
	}
	fn := w.onStatus
	w.mu.Unlock()
	notify(fn, changes)
}

// Tick rescans the inputs at most once per RescanInterval. A listener error
// or a vanished device drops the connection and allows an immediate rescan,
// so a replacement is picked up in the same tick.
func (w *Watcher) Tick() {
	w.mu.Lock()
	changes := w.scan()
	fn := w.onStatus
	w.mu.Unlock()
	notify(fn, changes)
}

func (w *Watcher) scan() []Status {
	var changes []Status
	if w.conn != nil && w.conn.failed.Load() {
		changes = append(changes, w.disconnect("listener failed"))
	}

	now := w.now()
	if now.Before(w.nextScan) {
		return changes
	}
	w.nextScan = now.Add(RescanInterval)

	inputs := w.listInputs()
	if w.conn != nil {
		if slices.Contains(inputs, w.conn.name) {
			return changes
		}
		changes = append(changes, w.disconnect("device disappeared"))
	}

	name, ok := pickPreferred(inputs, w.preferred)
	if !ok {
		return changes
	}
	if err := w.connect(name); err != nil {
		w.logger.Error("midictl: connect failed", "device", name, "err", err)
		return changes
	}
	return append(changes, Status{Device: name, Connected: true})
}

func notify(fn func(Status), changes []Status) {
	if fn == nil {
		return
	}
	for _, s := range changes {
		fn(s)
	}
}

// ---- internal ----

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		w.logger.Error("midictl: list inputs failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	names = filterExcluded(names, w.excluded)
	w.logger.Debug("midictl: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func filterExcluded(names, excluded []string) []string {
	return slices.DeleteFunc(slices.Clone(names), func(name string) bool {
		return slices.ContainsFunc(excluded, func(pat string) bool { return containsCI(name, pat) })
	})
}

func pickPreferred(inputs, preferred []string) (string, bool) {
	for _, pat := range preferred {
		if i := slices.IndexFunc(inputs, func(name string) bool { return containsCI(name, pat) }); i >= 0 {
			return inputs[i], true
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

// disconnect closes the current connection and clears the rescan throttle.
func (w *Watcher) disconnect(reason string) Status {
	c := w.conn
	w.conn = nil
	w.nextScan = time.Time{}
	if c.stop != nil {
		c.stop()
	}
	if err := c.in.Close(); err != nil {
		w.logger.Debug("midictl: input close", "device", c.name, "err", err)
	}
	w.logger.Warn("midictl: disconnected", "device", c.name, "reason", reason)
	return Status{Device: c.name}
}

func (w *Watcher) connect(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(ins, func(in drivers.In) bool { return in.String() == name })
	if i < 0 {
		return fmt.Errorf("input %q not found", name)
	}
	in := ins[i]
	if err := in.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	c := &connection{name: name, in: in}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		w.handle(msg)
	}, midi.HandleError(func(err error) {
		if !c.failed.Swap(true) {
			w.logger.Warn("midictl: listener error", "device", name, "err", err)
		}
	}))
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}
	c.stop = stop

	w.conn = c
	w.logger.Info("midictl: connected", "device", name)
	return nil
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
