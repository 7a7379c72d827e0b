package spectrum

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLineBytes = 1 << 20

// ReadHistory decodes a recorded spectrum history: one JSON frame per line,
// blank lines ignored.
func ReadHistory(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var frames []Frame
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("spectrum: line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("spectrum: read history: %w", err)
	}
	return frames, nil
}

// LoadHistory reads a history file from disk.
func LoadHistory(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spectrum: %w", err)
	}
	defer f.Close()
	return ReadHistory(f)
}

// WriteHistory encodes frames in the format ReadHistory accepts.
func WriteHistory(w io.Writer, frames []Frame) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("spectrum: write history: %w", err)
		}
	}
	return bw.Flush()
}
