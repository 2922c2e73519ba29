package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"dirwatch/internal/watcher"
)

// changePrinter writes one line per change. A single printer is shared by
// every watched directory, so writes are serialized.
type changePrinter struct {
	mutex   sync.Mutex
	out     io.Writer
	encoder *json.Encoder
}

type changeLine struct {
	Path      string       `json:"path"`
	Kind      watcher.Kind `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
}

func newChangePrinter(out io.Writer, jsonOutput bool) *changePrinter {
	printer := &changePrinter{out: out}
	if jsonOutput {
		printer.encoder = json.NewEncoder(out)
	}
	return printer
}

func (printer *changePrinter) Print(batch watcher.Batch) error {
	printer.mutex.Lock()
	defer printer.mutex.Unlock()
	for _, change := range batch.Changes {
		entryPath := filepath.Join(batch.Path, change.Name)
		if printer.encoder != nil {
			if err := printer.encoder.Encode(changeLine{
				Path:      entryPath,
				Kind:      change.Kind,
				Timestamp: change.Timestamp,
			}); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(printer.out, "%s\t%s\t%s\n", change.Timestamp.Format(time.RFC3339Nano), change.Kind, entryPath); err != nil {
			return err
		}
	}
	return nil
}
