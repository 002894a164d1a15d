package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LoadJSON reads a trace document from a file.
func LoadJSON(path string) (Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return Trace{}, fmt.Errorf("open trace file: %w", err)
	}
	defer file.Close()

	tr, err := Decode(file)
	if err != nil {
		return Trace{}, fmt.Errorf("decode trace %s: %w", path, err)
	}
	return tr, nil
}

// Decode parses one trace document.
func Decode(r io.Reader) (Trace, error) {
	var tr Trace
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tr); err != nil {
		return Trace{}, fmt.Errorf("parse trace: %w", err)
	}
	for idx, s := range tr.Sessions {
		for pidx, p := range s.Packets {
			if p.Direction != Uplink && p.Direction != Downlink {
				return Trace{}, fmt.Errorf("session %d packet %d: unsupported direction %q", idx, pidx, p.Direction)
			}
			if p.PayloadLen < 0 {
				return Trace{}, fmt.Errorf("session %d packet %d: negative payload", idx, pidx)
			}
		}
	}
	return tr, nil
}

// WriteJSON encodes a trace document.
func WriteJSON(w io.Writer, tr Trace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tr); err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	return nil
}
