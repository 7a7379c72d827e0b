package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/config"
	"github.com/ikukishev/rama-light-generator/internal/engine"
	"github.com/ikukishev/rama-light-generator/internal/export"
	"github.com/ikukishev/rama-light-generator/internal/lor"
	"github.com/ikukishev/rama-light-generator/internal/midictl"
	"github.com/ikukishev/rama-light-generator/internal/show"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

// -------------------- Logger --------------------

// logger is the process-wide structured logger; slog.Default() until
// initLogger runs.
var logger = slog.Default()

// initLogger configures the shared slog logger and makes it the default so
// the stdlib log package goes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

const usage = `usage: ramalight <command> [flags]

commands:
  play     drive the controller from a recorded spectrum history
  export   render a spectrum history into a .lms sequence
  ports    list serial ports
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "play":
		err = runPlay(args)
	case "export":
		err = runExport(args)
	case "ports":
		err = runPorts(args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "ramalight: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("ramalight: failed", "err", err)
		os.Exit(1)
	}
}

// showFlags are shared by play and export.
type showFlags struct {
	debug    *bool
	config   *string
	sequence *string
	history  *string
}

func addShowFlags(fs *flag.FlagSet) showFlags {
	return showFlags{
		debug:    fs.Bool("debug", false, "enable debug logging (adds source location)"),
		config:   fs.String("config", "ramalight.yaml", "hardware and channel configuration"),
		sequence: fs.String("sequence", "", "per-song overrides and effects (JSON)"),
		history:  fs.String("history", "", "recorded spectrum history (JSON lines)"),
	}
}

// load reads the configuration, the optional sequence and the history.
// Repaired defects are logged, not returned.
func (f showFlags) load() (*config.Config, *show.Show, []spectrum.Frame, error) {
	if *f.history == "" {
		return nil, nil, nil, errors.New("-history is required")
	}

	cfg, err := config.Load(*f.config)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config: entry repaired or skipped", "err", w)
	}

	s := cfg.Show()
	if *f.sequence != "" {
		warnings, err := s.LoadSequence(*f.sequence)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, w := range warnings {
			logger.Warn("sequence: entry skipped", "err", w)
		}
	}

	frames, err := spectrum.LoadHistory(*f.history)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, nil, fmt.Errorf("%s: no frames", *f.history)
	}
	logger.Info("show loaded",
		"channels", len(s.Channels),
		"frames", len(frames),
		"sequence", *f.sequence,
	)
	return cfg, s, frames, nil
}

// -------------------- play --------------------

func runPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	sf := addShowFlags(fs)
	loop := fs.Bool("loop", false, "start over when the history ends")
	port := fs.String("serial", "", "serial port device (overrides config)")
	baud := fs.Int("baud", 0, "serial baud rate (overrides config)")
	fs.Parse(args)

	initLogger(*sf.debug)
	cfg, s, frames, err := sf.load()
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud > 0 {
		cfg.Serial.Baud = *baud
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link := lor.NewLink(nil, logger)
	defer link.Close()
	if !link.SetPort(cfg.Serial.Port, cfg.Serial.Baud) {
		logger.Warn("play: link not open yet, retrying on heartbeat", "port", cfg.Serial.Port)
	}
	go link.Run(ctx)

	eng := engine.New(link, logger)

	if cfg.MIDI.Enabled {
		watcher, err := startMIDI(ctx, cfg.MIDI, s, eng)
		if err != nil {
			logger.Error("midi: control surface disabled", "err", err)
		} else {
			defer watcher.Close()
		}
	}

	logger.Info("play: running", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud, "loop", *loop)
	for {
		sess := eng.StartSession(s)
		err := spectrum.Replay(ctx, frames, func(f spectrum.Frame) {
			if _, err := sess.Feed(f); err != nil {
				logger.Debug("play: frame dropped", "position", f.Position, "err", err)
			}
		})
		sess.End()
		if err != nil || !*loop {
			break
		}
	}
	logger.Info("play: stopped", "dropped_packets", link.Dropped())
	return nil
}

// startMIDI maps pads to channels in show order and polls for the device
// until ctx is done.
func startMIDI(ctx context.Context, m config.MIDI, s *show.Show, eng *engine.Engine) (*midictl.Watcher, error) {
	ids := make([]uuid.UUID, len(s.Channels))
	for i, c := range s.Channels {
		ids[i] = c.ID
	}
	ctl := &midictl.Controller{
		Keys:     midictl.Keymap{Base: m.BaseNote, Channels: ids},
		Level:    m.FlashLevel,
		Duration: m.Flash,
		Logger:   logger,
		Target: func() midictl.Flasher {
			if sess := eng.Active(); sess != nil {
				return sess
			}
			return nil
		},
	}

	watcher, err := midictl.NewWatcher(m.Preferred, m.Excluded, ctl.HandleMessage, logger)
	if err != nil {
		return nil, err
	}
	watcher.OnStatus(func(st midictl.Status) {
		if st.Connected {
			logger.Info("midi: pads live", "device", st.Device, "session", eng.Active() != nil)
		}
	})
	logger.Info("midi: waiting for device",
		"first_pad", midictl.NoteName(m.BaseNote),
		"pads", len(ids),
	)

	go func() {
		ticker := time.NewTicker(midictl.RescanInterval)
		defer ticker.Stop()
		watcher.Tick()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				watcher.Tick()
			}
		}
	}()
	return watcher, nil
}

// -------------------- export --------------------

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sf := addShowFlags(fs)
	out := fs.String("o", "", "output .lms file (default: history name with .lms)")
	author := fs.String("author", "", "author recorded in the sequence")
	music := fs.String("music", "", "music file name recorded in the sequence")
	fs.Parse(args)

	initLogger(*sf.debug)
	_, s, frames, err := sf.load()
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = trimExt(*sf.history) + ".lms"
	}

	tracks := export.Show(s, frames)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	doc := export.Document{Author: *author, CreatedAt: time.Now()}
	if *music != "" {
		doc.MusicFile = filepath.Base(*music)
	}
	if err := export.WriteLMS(f, doc, tracks, frames); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("export: written", "path", path, "channels", len(tracks), "frames", len(frames))
	return nil
}

func trimExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}

// -------------------- ports --------------------

func runPorts(args []string) error {
	fs := flag.NewFlagSet("ports", flag.ExitOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Parse(args)
	initLogger(*debug)

	ports, err := lor.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.USB {
			fmt.Printf("%s\tUSB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			fmt.Println(p.Name)
		}
	}
	return nil
}
